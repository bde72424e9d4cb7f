// Package envelope implements the wire envelope and polymorphic
// dispatch layer: a single RPC (ExecuteCommand) carries an
// op-name-tagged Envelope, a registry resolves op_name to a typed
// handler, and the dual-mode codec (codec.go) decodes the payload either
// as msgpack (the default) or, when the caller sets the 0xFF prefix
// byte, as a JSON fallback.
package envelope

// Envelope is what crosses the wire on every ExecuteCommand call.
type Envelope struct {
	OpName        string
	PayloadBytes  []byte
	CorrelationID string
}

// Reply is what ExecuteCommand returns. Exactly one of ResultBytes or
// ErrorMessage is meaningful, selected by Success.
type Reply struct {
	Success       bool
	ResultBytes   []byte
	ErrorMessage  string
	ErrorKind     string
	CorrelationID string
}
