package codec

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/mailru/easyjson"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON encodes payloads as JSON. Types with generated easyjson marshalers
// skip reflection; everything else goes through json-iterator.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	if m, ok := v.(easyjson.Marshaler); ok {
		return easyjson.Marshal(m)
	}
	return jsonAPI.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	if u, ok := v.(easyjson.Unmarshaler); ok {
		return easyjson.Unmarshal(data, u)
	}
	return jsonAPI.Unmarshal(data, v)
}

func (JSON) Name() string { return "json" }
