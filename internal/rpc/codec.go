// Package rpc is the gRPC transport binding for the wire envelope:
// a single bidirectional ExecuteCommand/HealthCheck
// service, carrying Envelope/Reply as msgpack-encoded messages instead
// of protobuf, via a custom grpc codec registered under the
// "msgpack" content-subtype — this repository's op_name-tagged
// envelope already is the schema, so a second protobuf schema on top of
// it would be redundant.
package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

const codecName = "msgpack"

// msgpackCodec implements google.golang.org/grpc/encoding.Codec against
// plain Go structs (internal/envelope's Envelope/Reply and this
// package's HealthRequest/HealthReply), registered globally at package
// init so both client and server dial/serve with
// grpc.CallContentSubtype(codecName).
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: msgpack marshal: %w", err)
	}
	return b, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: msgpack unmarshal: %w", err)
	}
	return nil
}

func (msgpackCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}
