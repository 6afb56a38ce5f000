// Package locator parses and formats the locator and endpoint
// grammars used to name a reachable link:
//
//	locator  = scheme "/" address ( "?" key "=" value ( "," key "=" value )* )?
//	endpoint = locator ( "#" key "=" value ( "," key "=" value )* )?
//
// Formatting is the inverse of parsing and is stable: metadata and
// config keys are always emitted in lexicographic order, so
// byte-equality of two formatted strings implies semantic equality.
package locator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// Scheme identifies the transport a locator addresses.
type Scheme string

const (
	SchemeTCP Scheme = "tcp"
	SchemeUDP Scheme = "udp"
)

// Locator is the parsed (scheme, address, metadata) triple.
type Locator struct {
	Scheme   Scheme
	Address  string
	Metadata map[string]string
}

// Endpoint extends a Locator with an optional config map, carried
// after a "#" separator.
type Endpoint struct {
	Locator
	Config map[string]string
}

// Parse parses s as a bare locator (no "#config" tail).
func Parse(s string) (Locator, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return Locator{}, err
	}
	if len(ep.Config) > 0 {
		return Locator{}, &zerrors.ParseError{
			Operation: "parse locator",
			Input:     s,
			Err:       fmt.Errorf("unexpected '#' config tail in bare locator"),
		}
	}
	return ep.Locator, nil
}

// ParseEndpoint parses s as scheme "/" address ("?" metadata)?
// ("#" config)?.
func ParseEndpoint(s string) (Endpoint, error) {
	rest := s
	configPart := ""
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		configPart = rest[i+1:]
		rest = rest[:i]
	}

	metaPart := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		metaPart = rest[i+1:]
		rest = rest[:i]
	}

	i := strings.IndexByte(rest, '/')
	if i <= 0 {
		return Endpoint{}, &zerrors.ParseError{
			Operation: "parse locator",
			Input:     s,
			Err:       fmt.Errorf("missing mandatory '/' scheme separator"),
		}
	}
	scheme := rest[:i]
	address := rest[i+1:]

	if !isLowerAlpha(scheme) {
		return Endpoint{}, &zerrors.ParseError{
			Operation: "parse locator",
			Input:     s,
			Err:       fmt.Errorf("scheme %q must be lowercase alpha", scheme),
		}
	}
	switch Scheme(scheme) {
	case SchemeTCP, SchemeUDP:
	default:
		return Endpoint{}, &zerrors.ParseError{
			Operation: "parse locator",
			Input:     s,
			Err:       fmt.Errorf("unrecognized scheme %q (want tcp or udp)", scheme),
		}
	}

	if address == "" {
		return Endpoint{}, &zerrors.ParseError{
			Operation: "parse locator",
			Input:     s,
			Err:       fmt.Errorf("address must not be empty"),
		}
	}
	if strings.ContainsAny(address, "?#") {
		return Endpoint{}, &zerrors.ParseError{
			Operation: "parse locator",
			Input:     s,
			Err:       fmt.Errorf("address contains reserved character"),
		}
	}

	meta, err := parseKV(metaPart)
	if err != nil {
		return Endpoint{}, &zerrors.ParseError{Operation: "parse locator metadata", Input: s, Err: err}
	}
	cfg, err := parseKV(configPart)
	if err != nil {
		return Endpoint{}, &zerrors.ParseError{Operation: "parse endpoint config", Input: s, Err: err}
	}

	return Endpoint{
		Locator: Locator{
			Scheme:   Scheme(scheme),
			Address:  address,
			Metadata: meta,
		},
		Config: cfg,
	}, nil
}

func parseKV(s string) (map[string]string, error) {
	out := map[string]string{}
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		i := strings.IndexByte(pair, '=')
		if i <= 0 {
			return nil, fmt.Errorf("malformed key=value pair %q", pair)
		}
		key := pair[:i]
		val, err := url.QueryUnescape(pair[i+1:])
		if err != nil {
			return nil, fmt.Errorf("malformed percent-encoding in value for key %q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

func isLowerAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// String formats the locator back into its canonical, round-trippable
// string form. Metadata keys are emitted in lexicographic order.
func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(string(l.Scheme))
	b.WriteByte('/')
	b.WriteString(l.Address)
	writeKV(&b, '?', l.Metadata)
	return b.String()
}

// String formats the endpoint, appending its config tail after the
// locator's metadata.
func (e Endpoint) String() string {
	var b strings.Builder
	b.WriteString(e.Locator.String())
	writeKV(&b, '#', e.Config)
	return b.String()
}

func writeKV(b *strings.Builder, sep byte, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte(sep)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(m[k]))
	}
}

// Equal reports whether two locators are scheme-and-address-and-
// metadata equal.
func (l Locator) Equal(other Locator) bool {
	if l.Scheme != other.Scheme || l.Address != other.Address {
		return false
	}
	if len(l.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range l.Metadata {
		if other.Metadata[k] != v {
			return false
		}
	}
	return true
}
