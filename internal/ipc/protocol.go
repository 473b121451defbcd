// Package ipc is the control channel between superkeysd and superkeysctl.
//
// Messages are a 16-byte big-endian header followed by a JSON payload,
// carried over a unix socket.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"superkeys/internal/engine"
	"superkeys/internal/fsm"
	"superkeys/internal/store"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x534b4950 // "SKIP"
)

// MaxPayload bounds a single message.
const MaxPayload = 4 * 1024 * 1024

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	// Status (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Engine control (0x02xx)
	MsgResetRequest  MessageType = 0x0200
	MsgResetResponse MessageType = 0x0201

	// Configuration (0x03xx)
	MsgReloadRequest  MessageType = 0x0300
	MsgReloadResponse MessageType = 0x0301

	// Trace store (0x04xx)
	MsgTraceRequest  MessageType = 0x0400
	MsgTraceResponse MessageType = 0x0401

	// Event streaming (0x05xx)
	MsgSubscribe     MessageType = 0x0500
	MsgSubscribeResp MessageType = 0x0501
	MsgUnsubscribe   MessageType = 0x0502
	MsgEvent         MessageType = 0x0504

	// Metrics (0x06xx)
	MsgMetricsRequest  MessageType = 0x0600
	MsgMetricsResponse MessageType = 0x0601
)

var typeNames = map[MessageType]string{
	MsgPing: "ping", MsgPong: "pong", MsgError: "error",
	MsgStatusRequest: "status_request", MsgStatusResponse: "status_response",
	MsgResetRequest: "reset_request", MsgResetResponse: "reset_response",
	MsgReloadRequest: "reload_request", MsgReloadResponse: "reload_response",
	MsgTraceRequest: "trace_request", MsgTraceResponse: "trace_response",
	MsgSubscribe: "subscribe", MsgSubscribeResp: "subscribe_response",
	MsgUnsubscribe: "unsubscribe", MsgEvent: "event",
	MsgMetricsRequest: "metrics_request", MsgMetricsResponse: "metrics_response",
}

func (t MessageType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(0x%04x)", uint16(t))
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // payload length, header excluded
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// FlagJSON marks a JSON payload. It is the only encoding.
const FlagJSON uint8 = 0x04

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes header and payload in one call.
func (m *Message) Write(w io.Writer) error {
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Magic)
	buf = append(buf, m.Header.Version, m.Header.Flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrUnavailable      = 7
)

// StatusResponse contains daemon status
type StatusResponse struct {
	Version    string             `json:"version"`
	StartedAt  time.Time          `json:"started_at"`
	Uptime     string             `json:"uptime"`
	ConfigPath string             `json:"config_path"`
	Devices    []string           `json:"devices"`
	Engine     engine.Status      `json:"engine"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// ResetResponse reports the state after a reset.
type ResetResponse struct {
	Node string `json:"node"`
}

// ReloadResponse reports the outcome of a config reload.
type ReloadResponse struct {
	Success    bool   `json:"success"`
	ConfigPath string `json:"config_path"`
	Error      string `json:"error,omitempty"`
}

// TraceRequest asks for the most recent transitions.
type TraceRequest struct {
	Limit int `json:"limit"`
}

// TraceResponse carries recorded transitions, oldest first.
type TraceResponse struct {
	Enabled     bool               `json:"enabled"`
	Transitions []store.Transition `json:"transitions"`
	Stats       store.Stats        `json:"stats"`
	Sessions    []store.Session    `json:"sessions,omitempty"`
	Dropped     uint64             `json:"dropped"`
}

// SubscribeResponse acknowledges a subscription.
type SubscribeResponse struct {
	Success bool `json:"success"`
}

// StateEvent is broadcast for every state machine step.
type StateEvent struct {
	Time         time.Time `json:"time"`
	Code         string    `json:"code"`
	Pressed      bool      `json:"pressed"`
	Before       string    `json:"before"`
	After        string    `json:"after"`
	Result       string    `json:"result"`
	Redispatched bool      `json:"redispatched,omitempty"`
}

// StateEventFromStep converts a machine step.
func StateEventFromStep(s fsm.Step) StateEvent {
	return StateEvent{
		Time:         s.Time,
		Code:         s.Code.String(),
		Pressed:      s.Pressed,
		Before:       s.Before.String(),
		After:        s.After.String(),
		Result:       s.Result.String(),
		Redispatched: s.Redispatched,
	}
}

// MetricsResponse carries the Prometheus text exposition.
type MetricsResponse struct {
	Text string `json:"text"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
