package codec

import "fmt"

// Binary passes raw bytes through untouched. It accepts []byte and *[]byte.
type Binary struct{}

func (Binary) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, fmt.Errorf("codec: binary cannot marshal %T", v)
}

func (Binary) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("codec: binary cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (Binary) Name() string { return "binary" }
