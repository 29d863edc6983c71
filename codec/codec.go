// Package codec serializes message payloads. The Codec shape matches
// grpc-go's encoding.Codec so the same value can be registered there.
package codec

import (
	"reflect"
	"strings"
	"sync"
)

// BaseContentType identifies protocol payloads.
const BaseContentType = "application/grpc"

// Codec marshals and unmarshals payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name is the content-subtype, lowercase.
	Name() string
}

var (
	mu     sync.RWMutex
	codecs = map[string]Codec{}
)

func init() {
	Register(Proto{})
	Register(JSON{})
	Register(Binary{})
}

// Register makes c available by name.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[strings.ToLower(c.Name())] = c
}

// Get returns the codec registered under name.
func Get(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[strings.ToLower(name)]
	return c, ok
}

// ContentType returns the content-type used for payloads encoded with c.
// Proto is the default and uses the bare base content-type.
func ContentType(c Codec) string {
	if c == nil || c.Name() == (Proto{}).Name() {
		return BaseContentType
	}
	return BaseContentType + "+" + c.Name()
}

// FromContentType returns the codec for a content-type header. ok is false
// when the header is not a protocol content-type or names an unknown
// subtype.
func FromContentType(contentType string) (c Codec, ok bool) {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if !strings.HasPrefix(contentType, BaseContentType) {
		return nil, false
	}
	sub := contentType[len(BaseContentType):]
	switch {
	case sub == "":
		return Get(Proto{}.Name())
	case sub[0] == '+':
		return Get(sub[1:])
	}
	return nil, false
}

// Decode unmarshals data into a new T. Pointer types are allocated so that
// T may be either a message struct or a pointer to one.
func Decode[T any](c Codec, data []byte) (T, error) {
	var msg T
	if rt := reflect.TypeOf(msg); rt != nil && rt.Kind() == reflect.Pointer {
		msg = reflect.New(rt.Elem()).Interface().(T)
		return msg, c.Unmarshal(data, msg)
	}
	err := c.Unmarshal(data, &msg)
	return msg, err
}
