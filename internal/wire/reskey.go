package wire

import "github.com/frankplus/zenoh-pico/internal/zbuf"

// NoResourceID is the sentinel Rid value meaning "no numeric id is
// bound yet" -- the name is carried as a plain string instead of a
// registry lookup key.
const NoResourceID uint64 = 0

// ResKey names a resource either by a numeric id bound by a prior
// RESOURCE declaration, by a bare string expression, or (Z_K set) by
// an id plus a string suffix resolved relative to it.
type ResKey struct {
	Rid    uint64
	Suffix string
}

// HasSuffix reports whether a textual suffix accompanies Rid, which
// callers use to decide whether to set FlagK before encoding.
func (k ResKey) HasSuffix() bool {
	return k.Rid == NoResourceID || k.Suffix != ""
}

func encodeResKey(w *zbuf.WBuf, k ResKey) byte {
	w.PutZInt(k.Rid)
	if !k.HasSuffix() {
		return 0
	}
	w.PutString(k.Suffix)
	return FlagK
}

func decodeResKey(r *zbuf.RBuf, flags byte, flagK byte) (ResKey, error) {
	rid, err := r.GetZInt()
	if err != nil {
		return ResKey{}, err
	}
	k := ResKey{Rid: rid}
	if rid == NoResourceID || flags&flagK != 0 {
		s, err := r.GetString()
		if err != nil {
			return ResKey{}, err
		}
		k.Suffix = s
	}
	return k, nil
}
