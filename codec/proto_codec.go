package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Proto encodes protobuf messages. It is the default codec.
type Proto struct{}

func (Proto) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: proto cannot marshal %T", v)
	}
	return proto.Marshal(m)
}

func (Proto) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: proto cannot unmarshal into %T", v)
	}
	return proto.Unmarshal(data, m)
}

func (Proto) Name() string { return "proto" }
