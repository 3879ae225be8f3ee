package socketserver

import (
	"context"
	"encoding/json"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// Protocol-level error codes (framing and routing, not operation outcomes)
const (
	ErrorCodeInvalidRequest = "invalid-request"
	ErrorCodeUnknownType    = "unknown-type"
)

// Dispatcher routes operation requests to the workspace API. The identity
// registry is consulted first: a request addressing an unknown workspace is
// answered with a workspace-not-found envelope and never reaches the API.
type Dispatcher struct {
	registry *workspace.Registry
	api      workspace.API
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher over the shared registry and API
func NewDispatcher(registry *workspace.Registry, api workspace.API, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		api:      api,
		log:      log.WithPrefix("dispatch"),
	}
}

// Dispatch handles a single request message and returns the response to send
// back on the same connection. Lifecycle messages (ping, close) are answered
// directly; operation messages go through resolution and the API.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *BaseMessage) *BaseMessage {
	switch msg.Type {
	case MessageTypePing:
		resp := NewMessage(MessageTypePong)
		resp.RequestID = msg.RequestID
		return resp

	case MessageTypeClose:
		resp := NewMessage(MessageTypeClosed)
		resp.RequestID = msg.RequestID
		return resp

	case MessageTypeWorkspaceStatus,
		MessageTypeWorkspaceCreate,
		MessageTypeWorkspaceDelete,
		MessageTypeMetadataGet,
		MessageTypeMetadataSet,
		MessageTypeExecuteCommand:
		return d.dispatchOperation(ctx, msg)

	default:
		d.log.Warn("Unknown message type: %s", msg.Type)
		return NewError(msg.RequestID, ErrorCodeUnknownType, "unknown message type: "+msg.Type)
	}
}

func (d *Dispatcher) dispatchOperation(ctx context.Context, msg *BaseMessage) *BaseMessage {
	var payload RequestPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return NewError(msg.RequestID, ErrorCodeInvalidRequest, "invalid request payload: "+err.Error())
		}
	}

	id, ok := d.registry.Resolve(payload.Workspace)
	if !ok {
		d.log.Debug("Resolution miss for %q (%s)", payload.Workspace, msg.Type)
		return NewResponse(msg.Type, msg.RequestID, workspace.NotFound(payload.Workspace))
	}

	res := d.runOperation(ctx, msg.Type, id, payload)
	return NewResponse(msg.Type, msg.RequestID, res)
}

func (d *Dispatcher) runOperation(ctx context.Context, msgType string, id workspace.Identity, payload RequestPayload) workspace.Result {
	switch msgType {
	case MessageTypeWorkspaceStatus:
		status, err := d.api.GetStatus(ctx, id.ProjectID, id.Name)
		if err != nil {
			return d.apiFailure(msgType, err)
		}
		return workspace.OK(status)

	case MessageTypeMetadataGet:
		meta, err := d.api.GetMetadata(ctx, id.ProjectID, id.Name)
		if err != nil {
			return d.apiFailure(msgType, err)
		}
		return workspace.OK(meta)

	case MessageTypeMetadataSet:
		if payload.Metadata == nil {
			return workspace.Errorf(workspace.ErrCodeInvalidInput, "metadata_set requires a metadata object")
		}
		if err := d.api.SetMetadata(ctx, id.ProjectID, id.Name, payload.Metadata); err != nil {
			return d.apiFailure(msgType, err)
		}
		return workspace.OK(nil)

	case MessageTypeWorkspaceDelete:
		if err := d.api.Remove(ctx, id.ProjectID, id.Name); err != nil {
			return d.apiFailure(msgType, err)
		}
		return workspace.OK(nil)

	case MessageTypeExecuteCommand:
		if payload.Command == "" {
			return workspace.Errorf(workspace.ErrCodeInvalidInput, "execute_command requires a command")
		}
		result, err := d.api.ExecuteCommand(ctx, id.ProjectID, id.Name, payload.Command)
		if err != nil {
			return d.apiFailure(msgType, err)
		}
		return workspace.OK(result)

	case MessageTypeWorkspaceCreate:
		if payload.Name == "" {
			return workspace.Errorf(workspace.ErrCodeInvalidInput, "workspace_create requires a name")
		}
		created, err := d.api.Create(ctx, id.ProjectID, workspace.CreateOptions{
			Name:          payload.Name,
			InitialPrompt: payload.InitialPrompt,
			Model:         payload.Model,
		})
		if err != nil {
			return d.apiFailure(msgType, err)
		}
		return workspace.OK(created)
	}

	return workspace.Errorf(workspace.ErrCodeInternalError, "unhandled operation: %s", msgType)
}

func (d *Dispatcher) apiFailure(msgType string, err error) workspace.Result {
	d.log.Error("Operation %s failed: %v", msgType, err)
	return workspace.Errorf(workspace.ErrCodeInternalError, "%v", err)
}
