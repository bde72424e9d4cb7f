package envelope

import (
	"context"
	"reflect"

	"github.com/LerianStudio/acsd/pkg/acserr"
	"github.com/LerianStudio/acsd/pkg/mlog"
)

// Dispatcher resolves an Envelope's op_name against a Registry, decodes
// its payload, invokes the handler, and encodes a Reply. It never
// itself enforces per-tenant ordering or admission; that's the Command
// Buffer's job (internal/buffer), which calls Dispatch once it has
// decided to run the command.
type Dispatcher struct {
	registry *Registry
	logger   mlog.Logger
}

// NewDispatcher builds a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger mlog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs env against the registered handler for env.OpName,
// returning a Reply that is always safe to send back over the wire.
// Dispatch does not recover handler panics: they propagate to the
// caller, which guards with mruntime (internal/buffer does this around
// every command-lane invocation).
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, env Envelope) Reply {
	entry, ok := d.registry.Lookup(env.OpName)
	if !ok {
		return errReply(env.CorrelationID, acserr.UnknownOpError{OpName: env.OpName})
	}

	payload := reflect.New(entry.PayloadType).Interface()
	if len(env.PayloadBytes) > 0 {
		if err := DecodePayload(env.PayloadBytes, payload); err != nil {
			return errReply(env.CorrelationID, acserr.BadPayloadError{
				OpName:  env.OpName,
				Message: err.Error(),
				Err:     err,
			})
		}
	}

	switch entry.Class {
	case CommandVoid:
		if err := entry.CommandVoidFn(ctx, tenantID, payload); err != nil {
			return errReply(env.CorrelationID, wrapHandlerErr(env.OpName, err))
		}
		return Reply{Success: true, CorrelationID: env.CorrelationID}

	case CommandWithResult, Query:
		result, err := entry.ResultFn(ctx, tenantID, payload)
		if err != nil {
			return errReply(env.CorrelationID, wrapHandlerErr(env.OpName, err))
		}

		resultBytes, err := EncodePayload(result)
		if err != nil {
			return errReply(env.CorrelationID, acserr.InternalError{
				Message: "encoding result",
				Err:     err,
			})
		}

		return Reply{Success: true, ResultBytes: resultBytes, CorrelationID: env.CorrelationID}

	default:
		return errReply(env.CorrelationID, acserr.InternalError{Message: "unreachable handler class"})
	}
}

// wrapHandlerErr classifies err; if it's already one of the closed
// taxonomy kinds it passes through unchanged (e.g. a handler that itself
// returns acserr.UnknownTenantError), otherwise it's wrapped as a
// HandlerError so the breaker never counts it as a transport failure.
// An acserr.InternalError classifies as KindInternal like any
// unclassified error, so it is wrapped too.
func wrapHandlerErr(opName string, err error) error {
	if acserr.ClassifyErr(err) != acserr.KindInternal {
		return err
	}
	return acserr.HandlerError{OpName: opName, Message: err.Error(), Err: err}
}

func errReply(correlationID string, err error) Reply {
	return Reply{
		Success:       false,
		ErrorMessage:  acserr.Redact(err.Error()),
		ErrorKind:     string(acserr.ClassifyErr(err)),
		CorrelationID: correlationID,
	}
}
