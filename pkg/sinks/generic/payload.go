package generic

import "github.com/pkg/errors"

// Payload converts a delivered element into raw bytes for wire sinks. Sinks
// that put elements on a socket or broker accept exactly strings and byte
// slices; anything else is a delivery error, not something to silently
// serialize.
func Payload(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}

	return nil, errors.Errorf("unsupported payload type %T", value)
}
