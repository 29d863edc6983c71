// Package metadata holds the application key-value headers sent alongside a
// payload. Keys are lowercase; keys ending in "-bin" carry binary values and
// are base64-encoded on the wire.
package metadata

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/net/http/httpguts"
)

const binarySuffix = "-bin"

// MD maps lowercase keys to values.
type MD map[string][]string

// New builds an MD from a map, lowercasing keys.
func New(m map[string]string) MD {
	md := make(MD, len(m))
	for k, v := range m {
		md.Append(k, v)
	}
	return md
}

// Pairs builds an MD from alternating keys and values. It panics on an odd
// number of arguments.
func Pairs(kv ...string) MD {
	if len(kv)%2 == 1 {
		panic(fmt.Sprintf("metadata: Pairs got an odd number of arguments: %d", len(kv)))
	}
	md := make(MD, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		md.Append(kv[i], kv[i+1])
	}
	return md
}

// Get returns the values for key.
func (md MD) Get(key string) []string {
	return md[strings.ToLower(key)]
}

// Value returns the first value for key.
func (md MD) Value(key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Set replaces the values for key.
func (md MD) Set(key string, vals ...string) {
	if len(vals) == 0 {
		return
	}
	md[strings.ToLower(key)] = vals
}

// Append adds values to key.
func (md MD) Append(key string, vals ...string) {
	if len(vals) == 0 {
		return
	}
	k := strings.ToLower(key)
	md[k] = append(md[k], vals...)
}

// Delete removes key.
func (md MD) Delete(key string) {
	delete(md, strings.ToLower(key))
}

// Len returns the number of keys.
func (md MD) Len() int {
	return len(md)
}

// Copy returns a deep copy.
func (md MD) Copy() MD {
	out := make(MD, len(md))
	for k, v := range md {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Join merges several MDs; values for the same key are concatenated.
func Join(mds ...MD) MD {
	out := MD{}
	for _, md := range mds {
		for k, v := range md {
			out[k] = append(out[k], v...)
		}
	}
	return out
}

// IsReserved reports whether a header is owned by the protocol and never
// treated as application metadata.
func IsReserved(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, ":") || strings.HasPrefix(k, "grpc-") {
		return true
	}
	switch k {
	case "content-type", "te", "user-agent", "content-length", "connection",
		"trailer", "transfer-encoding", "host", "accept-encoding", "content-encoding":
		return true
	}
	return false
}

// ToHeader copies md into h. Reserved keys and invalid names or values are
// reported together; valid entries are still written.
func ToHeader(md MD, h http.Header) error {
	var err error
	for k, vals := range md {
		if IsReserved(k) {
			err = multierr.Append(err, fmt.Errorf("metadata: reserved header %q", k))
			continue
		}
		if !httpguts.ValidHeaderFieldName(k) {
			err = multierr.Append(err, fmt.Errorf("metadata: invalid header name %q", k))
			continue
		}
		binary := strings.HasSuffix(k, binarySuffix)
		for _, v := range vals {
			if binary {
				v = base64.RawStdEncoding.EncodeToString([]byte(v))
			} else if !httpguts.ValidHeaderFieldValue(v) {
				err = multierr.Append(err, fmt.Errorf("metadata: invalid value for header %q", k))
				continue
			}
			h.Add(k, v)
		}
	}
	return err
}

// FromHeader extracts application metadata from h, skipping reserved keys.
// Binary values that fail to decode are kept as received.
func FromHeader(h http.Header) MD {
	md := make(MD, len(h))
	for k, vals := range h {
		k = strings.ToLower(k)
		if IsReserved(k) {
			continue
		}
		binary := strings.HasSuffix(k, binarySuffix)
		for _, v := range vals {
			if binary {
				if b, err := decodeBinary(v); err == nil {
					v = string(b)
				}
			}
			md[k] = append(md[k], v)
		}
	}
	return md
}

func decodeBinary(s string) ([]byte, error) {
	if len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
