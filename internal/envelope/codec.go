package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// jsonFallbackPrefix marks payload_bytes as JSON rather than msgpack.
// In msgpack 0xff is the negative fixint -1; the registered payload and
// result types are structs, which encode as maps (0x80-0x8f, 0xde or
// 0xdf), so their encodings never begin with it and the byte can serve
// as a one-byte mode switch.
const jsonFallbackPrefix = 0xFF

// EncodePayload encodes v as msgpack, the compact binary default every
// handler in internal/handlers is registered against.
func EncodePayload(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// EncodePayloadJSON encodes v as JSON prefixed with the fallback marker,
// for callers (debugging tools) that would rather not link a msgpack
// encoder.
func EncodePayloadJSON(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, jsonFallbackPrefix)
	out = append(out, body...)

	return out, nil
}

// DecodePayload decodes data into v, picking msgpack or the JSON
// fallback based on the leading byte.
func DecodePayload(data []byte, v any) error {
	if len(data) > 0 && data[0] == jsonFallbackPrefix {
		if err := json.Unmarshal(data[1:], v); err != nil {
			return fmt.Errorf("envelope: json payload decode: %w", err)
		}
		return nil
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("envelope: msgpack payload decode: %w", err)
	}
	return nil
}
