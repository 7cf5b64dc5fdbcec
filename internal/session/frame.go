package session

import (
	"encoding/json"
	"time"

	"github.com/connectorhost/connectorhost/internal/filter"
	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

// Frame types understood on the inbound side.
const (
	FrameTypePing            = "ping"
	FrameTypePong            = "pong"
	FrameTypeListConnectors  = "list-connectors"
	FrameTypeConnectors      = "connectors"
	FrameTypeOperation       = "operation"
	FrameTypeResponse        = "response"
	FrameTypeServiceInfo     = "service-info"
	FrameTypeError           = "error"
)

// Operation names accepted in an "operation" frame's payload.
const (
	OpSchema              = "schema"
	OpTest                = "test"
	OpCreate              = "create"
	OpGet                 = "get"
	OpUpdate              = "update"
	OpDelete              = "delete"
	OpSearch              = "search"
	OpSync                = "sync"
	OpAddAttributeValues  = "addAttributeValues"
	OpRemoveAttributeValues = "removeAttributeValues"
	OpScriptOnConnector   = "scriptOnConnector"
)

// InboundFrame is the loosely-typed shape of any message received from the
// control plane.
type InboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"-"`
}

// rawInboundFrame mirrors InboundFrame plus the operation envelope fields,
// used only for decoding.
type rawInboundFrame struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"requestId,omitempty"`
	ConnectorID string          `json:"connectorId,omitempty"`
	Operation   string          `json:"operation,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// operationPayload is the untyped shape of an "operation" frame's payload
// field, decoded further per-operation by the dispatcher.
type operationPayload struct {
	ObjectClass string                  `json:"objectClass,omitempty"`
	UID         string                  `json:"uid,omitempty"`
	Attrs       map[string]interface{}  `json:"attrs,omitempty"`
	Filter      *filter.Raw             `json:"filter,omitempty"`
	Token       json.RawMessage         `json:"token,omitempty"`
	Context     *scriptContextPayload   `json:"context,omitempty"`
	Options     *spi.OperationOptions   `json:"options,omitempty"`
}

// options returns the decoded OperationOptions, or an empty one if the
// caller omitted the field entirely.
func (p *operationPayload) options() *spi.OperationOptions {
	if p.Options == nil {
		return &spi.OperationOptions{}
	}
	return p.Options
}

type scriptContextPayload struct {
	Language string                 `json:"language"`
	Script   string                 `json:"script"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// pongFrame is sent in reply to a "ping" frame.
type pongFrame struct {
	Type       string   `json:"type"`
	Timestamp  string   `json:"timestamp"`
	Connectors []string `json:"connectors"`
}

func newPongFrame(connectors []string) pongFrame {
	return pongFrame{Type: FrameTypePong, Timestamp: time.Now().UTC().Format(time.RFC3339), Connectors: connectors}
}

// connectorsFrame is sent in reply to "list-connectors".
type connectorsFrame struct {
	Type       string   `json:"type"`
	Connectors []string `json:"connectors"`
}

// serviceInfoFrame announces the session on successful (re)connect.
type serviceInfoFrame struct {
	Type       string   `json:"type"`
	Service    string   `json:"service"`
	StartedAt  string   `json:"startedAt"`
	Connectors []string `json:"connectors"`
}

// responseFrame is the reply to an "operation" frame.
type responseFrame struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId,omitempty"`
	Success   bool          `json:"success"`
	Result    interface{}   `json:"result,omitempty"`
	Error     *responseErr  `json:"error,omitempty"`
}

type responseErr struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// errorFrame answers an unknown frame type that carried a requestId.
type errorFrame struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId,omitempty"`
	Error     *responseErr `json:"error,omitempty"`
}

func errFrame(errType cherrors.ErrorType, message string) *responseErr {
	return &responseErr{Message: message, Name: string(errType)}
}
