package status

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
)

const (
	HeaderStatus  = "Grpc-Status"
	HeaderMessage = "Grpc-Message"
	HeaderDetails = "Grpc-Status-Details-Bin"
)

// AddToHeader writes s into h. Use it on response headers for a
// trailers-only response, or on a trailer map.
func (s *Status) AddToHeader(h http.Header) {
	h.Set(HeaderStatus, s.Code().numeric())
	if msg := s.Message(); msg != "" {
		h.Set(HeaderMessage, encodeMessage(msg))
	}
	if d := s.Details(); len(d) > 0 {
		h.Set(HeaderDetails, base64.RawStdEncoding.EncodeToString(d))
	}
}

// AddToTrailer writes s into the trailer section of a server response
// header map, using http.TrailerPrefix so no trailer declaration is needed.
func (s *Status) AddToTrailer(h http.Header) {
	t := make(http.Header, 3)
	s.AddToHeader(t)
	for k, v := range t {
		h[http.TrailerPrefix+k] = v
	}
}

// FromHeader reads a Status from h. ok is false when h carries no
// grpc-status, which means no status has been asserted yet, not OK.
// A malformed grpc-status yields an InvalidArgument status.
func FromHeader(h http.Header) (st *Status, ok bool) {
	raw := h.Get(HeaderStatus)
	if raw == "" {
		return nil, false
	}
	code, err := parseCode(raw)
	if err != nil {
		return Wrap(InvalidArgument, err), true
	}
	st = &Status{code: code, message: decodeMessage(h.Get(HeaderMessage))}
	if d := h.Get(HeaderDetails); d != "" {
		details, err := decodeBinary(d)
		if err != nil {
			return Newf(InvalidArgument, "invalid %s: %v", strings.ToLower(HeaderDetails), err), true
		}
		st.details = details
	}
	return st, true
}

func (c Code) numeric() string {
	return strconv.FormatUint(uint64(c), 10)
}

func decodeBinary(s string) ([]byte, error) {
	if len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

const upperhex = "0123456789ABCDEF"

// encodeMessage percent-encodes bytes outside printable ASCII and '%'.
func encodeMessage(msg string) string {
	n := 0
	for i := 0; i < len(msg); i++ {
		if needsEscape(msg[i]) {
			n++
		}
	}
	if n == 0 {
		return msg
	}
	var b strings.Builder
	b.Grow(len(msg) + 2*n)
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if needsEscape(c) {
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(c byte) bool {
	return c < ' ' || c > '~' || c == '%'
}

// decodeMessage is lenient: an invalid escape is kept verbatim.
func decodeMessage(msg string) string {
	if !strings.Contains(msg, "%") {
		return msg
	}
	var b strings.Builder
	b.Grow(len(msg))
	for i := 0; i < len(msg); i++ {
		if msg[i] == '%' && i+2 < len(msg) {
			hi, ok1 := unhex(msg[i+1])
			lo, ok2 := unhex(msg[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(msg[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
