package ipc

import (
	"context"
	"fmt"
)

// Backend is what the daemon exposes over the socket.
type Backend interface {
	Status(ctx context.Context) (*StatusResponse, error)
	Reset(ctx context.Context) (*ResetResponse, error)
	Reload(ctx context.Context) (*ReloadResponse, error)
	Trace(ctx context.Context, limit int) (*TraceResponse, error)
	Metrics(ctx context.Context) (*MetricsResponse, error)
}

// DefaultTraceLimit applies when a trace request names no limit.
const DefaultTraceLimit = 50

// MaxTraceLimit caps a single trace response.
const MaxTraceLimit = 10000

// DaemonHandler routes requests to a Backend.
type DaemonHandler struct {
	backend Backend
}

// NewDaemonHandler wraps b.
func NewDaemonHandler(b Backend) *DaemonHandler {
	return &DaemonHandler{backend: b}
}

// HandleMessage implements Handler.
func (h *DaemonHandler) HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error) {
	id := msg.Header.RequestID

	switch msg.Header.Type {
	case MsgStatusRequest:
		resp, err := h.backend.Status(ctx)
		if err != nil {
			return NewErrorMessage(id, ErrUnavailable, err.Error()), nil
		}
		return NewResponse(MsgStatusResponse, id, resp)

	case MsgResetRequest:
		resp, err := h.backend.Reset(ctx)
		if err != nil {
			return NewErrorMessage(id, ErrUnavailable, err.Error()), nil
		}
		return NewResponse(MsgResetResponse, id, resp)

	case MsgReloadRequest:
		resp, err := h.backend.Reload(ctx)
		if err != nil {
			return NewErrorMessage(id, ErrInternalError, err.Error()), nil
		}
		return NewResponse(MsgReloadResponse, id, resp)

	case MsgTraceRequest:
		var req TraceRequest
		if len(msg.Payload) > 0 {
			if err := Decode(msg.Payload, &req); err != nil {
				return NewErrorMessage(id, ErrInvalidRequest, "invalid trace request"), nil
			}
		}
		switch {
		case req.Limit < 0:
			return NewErrorMessage(id, ErrInvalidRequest, fmt.Sprintf("invalid limit %d", req.Limit)), nil
		case req.Limit == 0:
			req.Limit = DefaultTraceLimit
		case req.Limit > MaxTraceLimit:
			req.Limit = MaxTraceLimit
		}
		resp, err := h.backend.Trace(ctx, req.Limit)
		if err != nil {
			return NewErrorMessage(id, ErrInternalError, err.Error()), nil
		}
		return NewResponse(MsgTraceResponse, id, resp)

	case MsgMetricsRequest:
		resp, err := h.backend.Metrics(ctx)
		if err != nil {
			return NewErrorMessage(id, ErrInternalError, err.Error()), nil
		}
		return NewResponse(MsgMetricsResponse, id, resp)

	default:
		return NewErrorMessage(id, ErrInvalidRequest, fmt.Sprintf("unknown message type %s", msg.Header.Type)), nil
	}
}
