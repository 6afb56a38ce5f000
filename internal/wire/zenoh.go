package wire

import (
	"fmt"

	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// ZenohMessage is the inner, data-plane message family carried inside
// a Frame's payload. Decorators (ReplyContext,
// Attachment) are themselves messages in this family: they precede,
// and apply to, the very next Data/Unit/Query message in the same
// Frame.
type ZenohMessage interface {
	zenohMessage()
}

// Declaration is one entry of a Declare message's body.
type Declaration interface {
	declaration() byte
}

type ResourceDecl struct {
	Rid uint64
	Key ResKey
}

func (ResourceDecl) declaration() byte { return DeclResource }

type ForgetResourceDecl struct{ Rid uint64 }

func (ForgetResourceDecl) declaration() byte { return DeclForgetResource }

type PublisherDecl struct{ Key ResKey }

func (PublisherDecl) declaration() byte { return DeclPublisher }

type ForgetPublisherDecl struct{ Key ResKey }

func (ForgetPublisherDecl) declaration() byte { return DeclForgetPublisher }

// SubscriberDecl declares a subscription. Mode/Reliable are only
// meaningful -- and only encoded -- when HasSubInfo is true; a bare
// declaration defaults to push/best-effort.
type SubscriberDecl struct {
	Key        ResKey
	HasSubInfo bool
	Mode       SubMode
	Reliable   bool
}

func (SubscriberDecl) declaration() byte { return DeclSubscriber }

type ForgetSubscriberDecl struct{ Key ResKey }

func (ForgetSubscriberDecl) declaration() byte { return DeclForgetSubscriber }

type QueryableDecl struct{ Key ResKey }

func (QueryableDecl) declaration() byte { return DeclQueryable }

type ForgetQueryableDecl struct{ Key ResKey }

func (ForgetQueryableDecl) declaration() byte { return DeclForgetQueryable }

// Declare carries a batch of declarations applied atomically, in
// order, by the registry.
type Declare struct {
	Declarations []Declaration
}

func (Declare) zenohMessage() {}

// DataInfo is the optional encoding/timestamp decorator on a Data
// message, present only when Z_I is set.
type DataInfo struct {
	Encoding  string
	Timestamp uint64
	HasTime   bool
}

type Data struct {
	Key        ResKey
	Congestion CongestionControl
	Info       *DataInfo
	Payload    []byte
}

func (Data) zenohMessage() {}

// Unit is a Data message with no payload, used to carry a reply's
// decorators (ReplyContext) without a body.
type Unit struct {
	Key        ResKey
	Congestion CongestionControl
}

func (Unit) zenohMessage() {}

type Pull struct {
	Key        ResKey
	PullID     uint64
	MaxSamples uint64
	HasMax     bool
}

func (Pull) zenohMessage() {}

type Query struct {
	Key           ResKey
	Predicate     string
	QueryID       uint64
	Target        Target
	HasTarget     bool
	Consolidation Consolidation
}

func (Query) zenohMessage() {}

// ReplyContext decorates the Data/Unit that follows it in the same
// Frame, correlating it to a pending query and marking the final
// reply in a sequence (Final, gated by Z_T). A Final ReplyContext may
// decorate a Unit carrying no payload, signaling end-of-replies with
// no further data.
type ReplyContext struct {
	QueryID   uint64
	ReplierID []byte
	Final     bool
}

func (ReplyContext) zenohMessage() {}

// Attachment carries an opaque, protocol-agnostic byte string
// alongside the message that follows it.
type Attachment struct {
	Payload []byte
}

func (Attachment) zenohMessage() {}

// EncodeZenohMessage appends m's header and body to w.
func EncodeZenohMessage(w *zbuf.WBuf, m ZenohMessage) error {
	switch v := m.(type) {
	case Declare:
		w.PutByte(packHeader(IDDeclare, 0))
		w.PutZInt(uint64(len(v.Declarations)))
		for _, d := range v.Declarations {
			if err := encodeDeclaration(w, d); err != nil {
				return err
			}
		}
	case Data:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		flags := keyFlag
		if v.Info != nil {
			flags |= FlagI
		}
		if v.Congestion == CongestionDrop {
			flags |= FlagD
		}
		w.PutByte(packHeader(IDData, flags))
		w.PutRaw(keyBytes)
		if v.Info != nil {
			w.PutString(v.Info.Encoding)
			if v.Info.HasTime {
				w.PutByte(1)
				w.PutZInt(v.Info.Timestamp)
			} else {
				w.PutByte(0)
			}
		}
		w.PutBytes(v.Payload)
	case Unit:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		flags := keyFlag
		if v.Congestion == CongestionDrop {
			flags |= FlagD
		}
		w.PutByte(packHeader(IDUnit, flags))
		w.PutRaw(keyBytes)
	case Pull:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(IDPull, keyFlag))
		w.PutRaw(keyBytes)
		w.PutZInt(v.PullID)
		if v.HasMax {
			w.PutByte(1)
			w.PutZInt(v.MaxSamples)
		} else {
			w.PutByte(0)
		}
	case Query:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		flags := keyFlag
		if v.HasTarget {
			flags |= FlagQ
		}
		w.PutByte(packHeader(IDQuery, flags))
		w.PutRaw(keyBytes)
		w.PutString(v.Predicate)
		w.PutZInt(v.QueryID)
		if v.HasTarget {
			w.PutByte(byte(v.Target))
		}
		w.PutByte(byte(v.Consolidation))
	case ReplyContext:
		flags := byte(0)
		if v.Final {
			flags |= FlagT
		}
		w.PutByte(packHeader(IDReplyContext, flags))
		w.PutZInt(v.QueryID)
		if !v.Final {
			w.PutBytes(v.ReplierID)
		}
	case Attachment:
		w.PutByte(packHeader(IDAttachment, 0))
		w.PutBytes(v.Payload)
	default:
		return &zerrors.ProtocolError{Operation: "encode zenoh message", Offset: -1, Message: fmt.Sprintf("unknown zenoh message type %T", m)}
	}
	return nil
}

// resKeyBytes encodes k into a standalone buffer so its Z_K flag is
// known before the caller writes the header byte that precedes it.
func resKeyBytes(k ResKey) (flag byte, encoded []byte) {
	tmp := zbuf.NewWBuf(2 + len(k.Suffix))
	flag = encodeResKey(tmp, k)
	return flag, tmp.Bytes()
}

func decodeDeclaration(r *zbuf.RBuf) (Declaration, error) {
	hdr, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	id, flags := unpackHeader(hdr)
	switch id {
	case DeclResource:
		rid, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		return ResourceDecl{Rid: rid, Key: key}, nil
	case DeclForgetResource:
		rid, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		return ForgetResourceDecl{Rid: rid}, nil
	case DeclPublisher:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		return PublisherDecl{Key: key}, nil
	case DeclForgetPublisher:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		return ForgetPublisherDecl{Key: key}, nil
	case DeclSubscriber:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		d := SubscriberDecl{Key: key}
		if flags&FlagS2 != 0 {
			mode, err := r.GetByte()
			if err != nil {
				return nil, err
			}
			d.HasSubInfo = true
			d.Mode = SubMode(mode)
			reliable, err := r.GetByte()
			if err != nil {
				return nil, err
			}
			d.Reliable = reliable != 0
		}
		return d, nil
	case DeclForgetSubscriber:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		return ForgetSubscriberDecl{Key: key}, nil
	case DeclQueryable:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		return QueryableDecl{Key: key}, nil
	case DeclForgetQueryable:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		return ForgetQueryableDecl{Key: key}, nil
	default:
		return nil, &zerrors.ProtocolError{Operation: "decode declaration", Offset: r.Pos(), Message: fmt.Sprintf("unknown declaration id 0x%02x", id)}
	}
}

func encodeDeclaration(w *zbuf.WBuf, d Declaration) error {
	switch v := d.(type) {
	case ResourceDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(DeclResource, keyFlag))
		w.PutZInt(v.Rid)
		w.PutRaw(keyBytes)
	case ForgetResourceDecl:
		w.PutByte(packHeader(DeclForgetResource, 0))
		w.PutZInt(v.Rid)
	case PublisherDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(DeclPublisher, keyFlag))
		w.PutRaw(keyBytes)
	case ForgetPublisherDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(DeclForgetPublisher, keyFlag))
		w.PutRaw(keyBytes)
	case SubscriberDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		flags := keyFlag
		if v.HasSubInfo {
			flags |= FlagS2
		}
		w.PutByte(packHeader(DeclSubscriber, flags))
		w.PutRaw(keyBytes)
		if v.HasSubInfo {
			w.PutByte(byte(v.Mode))
			if v.Reliable {
				w.PutByte(1)
			} else {
				w.PutByte(0)
			}
		}
	case ForgetSubscriberDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(DeclForgetSubscriber, keyFlag))
		w.PutRaw(keyBytes)
	case QueryableDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(DeclQueryable, keyFlag))
		w.PutRaw(keyBytes)
	case ForgetQueryableDecl:
		keyFlag, keyBytes := resKeyBytes(v.Key)
		w.PutByte(packHeader(DeclForgetQueryable, keyFlag))
		w.PutRaw(keyBytes)
	default:
		return &zerrors.ProtocolError{Operation: "encode declaration", Offset: -1, Message: fmt.Sprintf("unknown declaration type %T", d)}
	}
	return nil
}

// DecodeZenohMessage reads one zenoh message from r.
func DecodeZenohMessage(r *zbuf.RBuf) (ZenohMessage, error) {
	hdr, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	id, flags := unpackHeader(hdr)
	switch id {
	case IDDeclare:
		n, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		decls := make([]Declaration, 0, n)
		for i := uint64(0); i < n; i++ {
			d, err := decodeDeclaration(r)
			if err != nil {
				return nil, err
			}
			decls = append(decls, d)
		}
		return Declare{Declarations: decls}, nil
	case IDData:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		cc := CongestionBlock
		if flags&FlagD != 0 {
			cc = CongestionDrop
		}
		var info *DataInfo
		if flags&FlagI != 0 {
			enc, err := r.GetString()
			if err != nil {
				return nil, err
			}
			hasTime, err := r.GetByte()
			if err != nil {
				return nil, err
			}
			di := &DataInfo{Encoding: enc}
			if hasTime != 0 {
				ts, err := r.GetZInt()
				if err != nil {
					return nil, err
				}
				di.HasTime = true
				di.Timestamp = ts
			}
			info = di
		}
		payload, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		return Data{Key: key, Congestion: cc, Info: info, Payload: cloneBytes(payload)}, nil
	case IDUnit:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		cc := CongestionBlock
		if flags&FlagD != 0 {
			cc = CongestionDrop
		}
		return Unit{Key: key, Congestion: cc}, nil
	case IDPull:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		pullID, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		hasMax, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		p := Pull{Key: key, PullID: pullID}
		if hasMax != 0 {
			max, err := r.GetZInt()
			if err != nil {
				return nil, err
			}
			p.HasMax = true
			p.MaxSamples = max
		}
		return p, nil
	case IDQuery:
		key, err := decodeResKey(r, flags, FlagK)
		if err != nil {
			return nil, err
		}
		pred, err := r.GetString()
		if err != nil {
			return nil, err
		}
		qid, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		q := Query{Key: key, Predicate: pred, QueryID: qid}
		if flags&FlagQ != 0 {
			t, err := r.GetByte()
			if err != nil {
				return nil, err
			}
			q.HasTarget = true
			q.Target = Target(t)
		}
		cons, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		q.Consolidation = Consolidation(cons)
		return q, nil
	case IDReplyContext:
		qid, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		rc := ReplyContext{QueryID: qid, Final: flags&FlagT != 0}
		if !rc.Final {
			replier, err := r.GetBytes()
			if err != nil {
				return nil, err
			}
			rc.ReplierID = cloneBytes(replier)
		}
		return rc, nil
	case IDAttachment:
		payload, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		return Attachment{Payload: cloneBytes(payload)}, nil
	default:
		return nil, &zerrors.ProtocolError{Operation: "decode zenoh message", Offset: r.Pos(), Message: fmt.Sprintf("unknown zenoh message id 0x%02x", id)}
	}
}

// EncodeZenohMessageBytes is a convenience wrapper returning m's
// encoded form as a standalone byte slice, used when building a
// Frame's payload out of one or more zenoh messages.
func EncodeZenohMessageBytes(m ZenohMessage) ([]byte, error) {
	w := zbuf.NewWBuf(64)
	if err := EncodeZenohMessage(w, m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
