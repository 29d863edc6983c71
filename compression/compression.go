// Package compression negotiates and applies message compression.
//
// The sender compresses with the first encoding of its send preference list.
// The receiver accepts only encodings in its accept list; anything else is
// rejected with ErrUnsupportedEncoding, never decoded as identity.
package compression

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mini-grpc/status"
)

const (
	HeaderEncoding       = "Grpc-Encoding"
	HeaderAcceptEncoding = "Grpc-Accept-Encoding"
)

// ErrUnsupportedEncoding is wrapped by the Status returned when the peer
// used an encoding outside the accepted set.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// Encoding is a compression algorithm.
type Encoding uint8

const (
	Identity Encoding = iota
	Gzip
	Deflate
	Snappy
)

var _encodingTokens = [...]string{
	Identity: "identity",
	Gzip:     "gzip",
	Deflate:  "deflate",
	Snappy:   "snappy",
}

// HeaderValue returns the wire token.
func (e Encoding) HeaderValue() string {
	if int(e) < len(_encodingTokens) {
		return _encodingTokens[e]
	}
	return fmt.Sprintf("encoding(%d)", e)
}

func (e Encoding) String() string {
	return e.HeaderValue()
}

// Parse returns the encoding for a wire token.
func Parse(token string) (Encoding, bool) {
	token = strings.TrimSpace(strings.ToLower(token))
	for i, t := range _encodingTokens {
		if t == token {
			return Encoding(i), true
		}
	}
	return Identity, false
}

// UnmarshalYAML reads an encoding from its token.
func (e *Encoding) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	enc, ok := Parse(s)
	if !ok {
		return fmt.Errorf("unknown compression encoding %q", s)
	}
	*e = enc
	return nil
}

// MarshalYAML writes the token.
func (e Encoding) MarshalYAML() (interface{}, error) {
	return e.HeaderValue(), nil
}

// AcceptEncodingHeaderValue joins the tokens of encs in order, skipping
// identity. ok is false when nothing is left to advertise.
func AcceptEncodingHeaderValue(encs []Encoding) (value string, ok bool) {
	tokens := make([]string, 0, len(encs))
	seen := make(map[Encoding]bool, len(encs))
	for _, e := range encs {
		if e == Identity || seen[e] {
			continue
		}
		seen[e] = true
		tokens = append(tokens, e.HeaderValue())
	}
	if len(tokens) == 0 {
		return "", false
	}
	return strings.Join(tokens, ","), true
}

// SelectSend returns the first configured send encoding, identity when the
// list is empty.
func SelectSend(prefs []Encoding) Encoding {
	if len(prefs) == 0 {
		return Identity
	}
	return prefs[0]
}

// FromEncodingHeader returns the encoding the peer used. An absent header
// or "identity" means no compression. Any other token must be in accepted.
func FromEncodingHeader(h http.Header, accepted []Encoding) (Encoding, error) {
	token := h.Get(HeaderEncoding)
	if token == "" {
		return Identity, nil
	}
	enc, ok := Parse(token)
	if ok && enc == Identity {
		return Identity, nil
	}
	if ok && contains(accepted, enc) {
		return enc, nil
	}
	return Identity, status.Wrap(status.Unimplemented,
		fmt.Errorf("content is compressed with %q: %w", token, ErrUnsupportedEncoding))
}

// Negotiate picks the first of prefs that the peer advertised in its
// accept-encoding header value, identity if none match.
func Negotiate(prefs []Encoding, peerAccept string) Encoding {
	if peerAccept == "" {
		return Identity
	}
	var peer []Encoding
	for _, tok := range strings.Split(peerAccept, ",") {
		if e, ok := Parse(tok); ok {
			peer = append(peer, e)
		}
	}
	for _, e := range prefs {
		if e != Identity && contains(peer, e) {
			return e
		}
	}
	return Identity
}

func contains(encs []Encoding, e Encoding) bool {
	for _, x := range encs {
		if x == e {
			return true
		}
	}
	return false
}
