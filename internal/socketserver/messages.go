package socketserver

import (
	"encoding/json"
	"time"

	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// Message type constants
const (
	// Workspace operations
	MessageTypeWorkspaceStatus = "workspace_status"
	MessageTypeWorkspaceCreate = "workspace_create"
	MessageTypeWorkspaceDelete = "workspace_delete"
	MessageTypeMetadataGet     = "metadata_get"
	MessageTypeMetadataSet     = "metadata_set"
	MessageTypeExecuteCommand  = "execute_command"

	// Server-initiated notifications
	MessageTypeWorkspaceRemoved = "workspace_removed"

	// Connection lifecycle
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeClose  = "close"
	MessageTypeClosed = "closed"

	// Error
	MessageTypeError = "error"
)

// responseSuffix is appended to the request type on operation responses.
const responseSuffix = "_response"

// BaseMessage is the framing for every message on the socket. Messages are
// newline-delimited JSON. Operation responses carry a result envelope in
// Data; protocol-level failures (malformed JSON, unknown type) carry Error
// instead.
type BaseMessage struct {
	Type      string               `json:"type"`
	RequestID string               `json:"request_id,omitempty"`
	Data      json.RawMessage      `json:"data,omitempty"`
	Timestamp string               `json:"timestamp,omitempty"`
	Error     *workspace.ErrorInfo `json:"error,omitempty"`
}

// RequestPayload is the union of the fields operation requests may carry.
// Every operation except workspace_create addresses an existing workspace
// through its filesystem path.
type RequestPayload struct {
	Workspace     string            `json:"workspace"`
	Name          string            `json:"name,omitempty"`
	InitialPrompt string            `json:"initial_prompt,omitempty"`
	Model         string            `json:"model,omitempty"`
	Command       string            `json:"command,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewMessage creates a new message with the given type
func NewMessage(msgType string) *BaseMessage {
	return &BaseMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewResponse creates an operation response carrying a result envelope
func NewResponse(msgType string, requestID string, res workspace.Result) *BaseMessage {
	data, err := json.Marshal(res)
	if err != nil {
		data, _ = json.Marshal(workspace.Errorf(workspace.ErrCodeInternalError, "failed to serialize result: %v", err))
	}
	return &BaseMessage{
		Type:      msgType + responseSuffix,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewNotification creates a server-initiated message with a JSON payload
func NewNotification(msgType string, payload interface{}) *BaseMessage {
	data, _ := json.Marshal(payload)
	return &BaseMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewError creates a protocol-level error response
func NewError(requestID string, code string, message string) *BaseMessage {
	return &BaseMessage{
		Type:      MessageTypeError,
		RequestID: requestID,
		Error: &workspace.ErrorInfo{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
