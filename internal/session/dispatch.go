package session

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/connectorhost/connectorhost/internal/breaker"
	"github.com/connectorhost/connectorhost/internal/cache"
	"github.com/connectorhost/connectorhost/internal/connector/facade"
	"github.com/connectorhost/connectorhost/internal/connector/registry"
	"github.com/connectorhost/connectorhost/internal/filter"
	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
	"github.com/connectorhost/connectorhost/pkg/logger"
)

// Dispatcher routes decoded frames to per-instance Facades, lazily
// building a Facade the first time an instance is addressed so that
// instances registered after session start are still reachable.
type Dispatcher struct {
	reg   *registry.Registry
	cache *cache.Cache

	mu       sync.Mutex
	facades  map[string]*facade.Facade

	log *zap.Logger
}

// NewDispatcher builds a Dispatcher over reg, sharing a single cache
// across every Facade it creates.
func NewDispatcher(reg *registry.Registry, sharedCache *cache.Cache) *Dispatcher {
	if sharedCache == nil {
		sharedCache = cache.New(cache.DefaultCapacity, cache.DefaultTTL)
	}
	return &Dispatcher{
		reg:     reg,
		cache:   sharedCache,
		facades: make(map[string]*facade.Facade),
		log:     logger.With(zap.String("component", "session.dispatch")),
	}
}

// ConnectorIDs returns the ids currently registered, for service-info,
// pong, and list-connectors frames.
func (d *Dispatcher) ConnectorIDs() []string {
	return d.reg.IDs()
}

func (d *Dispatcher) facadeFor(instanceID string) (*facade.Facade, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.facades[instanceID]; ok {
		return f, nil
	}

	instance, err := d.reg.Get(instanceID)
	if err != nil {
		return nil, err
	}

	f := facade.New(instance, breaker.New(breaker.DefaultConfig(), d.log), d.cache)
	d.facades[instanceID] = f
	return f, nil
}

// Handle decodes one inbound message and returns the reply to send, if
// any. A nil reply means the frame was handled with no response required
// (e.g. an unknown frame type that carried no requestId).
func (d *Dispatcher) Handle(ctx context.Context, message []byte) ([]byte, error) {
	var raw rawInboundFrame
	if err := json.Unmarshal(message, &raw); err != nil {
		return nil, cherrors.Wrap(err, cherrors.ErrorTypeProtocolError, "malformed frame")
	}

	switch raw.Type {
	case FrameTypePing:
		return encode(newPongFrame(d.ConnectorIDs()))

	case FrameTypeListConnectors:
		return encode(connectorsFrame{Type: FrameTypeConnectors, Connectors: d.ConnectorIDs()})

	case FrameTypeOperation:
		if raw.RequestID == "" {
			d.log.Warn("operation frame missing requestId, ignoring")
			return nil, nil
		}
		return d.handleOperation(ctx, raw)

	default:
		if raw.RequestID != "" {
			return encode(errorFrame{Type: FrameTypeError, RequestID: raw.RequestID, Error: errFrame(cherrors.ErrorTypeProtocolError, "unknown frame type")})
		}
		d.log.Warn("unknown frame type, ignoring", zap.String("type", raw.Type))
		return nil, nil
	}
}

func (d *Dispatcher) handleOperation(ctx context.Context, raw rawInboundFrame) ([]byte, error) {
	result, opErr := d.runOperation(ctx, raw)
	if opErr != nil {
		return encode(responseFrame{
			Type:      FrameTypeResponse,
			RequestID: raw.RequestID,
			Success:   false,
			Error:     errFrame(cherrors.TypeOf(opErr), opErr.Error()),
		})
	}
	return encode(responseFrame{Type: FrameTypeResponse, RequestID: raw.RequestID, Success: true, Result: result})
}

func (d *Dispatcher) runOperation(ctx context.Context, raw rawInboundFrame) (interface{}, error) {
	if raw.ConnectorID == "" {
		return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "operation frame missing connectorId")
	}

	var payload operationPayload
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return nil, cherrors.Wrap(err, cherrors.ErrorTypeValidationFailed, "malformed operation payload")
		}
	}

	if err := validatePayload(raw.Operation, &payload); err != nil {
		return nil, err
	}

	f, err := d.facadeFor(raw.ConnectorID)
	if err != nil {
		return nil, err
	}

	switch raw.Operation {
	case OpSchema:
		return f.Schema(ctx)

	case OpTest:
		return nil, f.Test(ctx)

	case OpCreate:
		obj, err := f.Create(ctx, payload.ObjectClass, toAttributeValues(payload.Attrs), payload.options())
		return obj, err

	case OpGet:
		return f.Get(ctx, payload.ObjectClass, payload.UID, payload.options())

	case OpUpdate:
		return f.Update(ctx, payload.ObjectClass, payload.UID, toAttributeValues(payload.Attrs), payload.options())

	case OpDelete:
		return nil, f.Delete(ctx, payload.ObjectClass, payload.UID, payload.options())

	case OpAddAttributeValues:
		return f.AddAttributeValues(ctx, payload.ObjectClass, payload.UID, toAttributeValues(payload.Attrs), payload.options())

	case OpRemoveAttributeValues:
		return f.RemoveAttributeValues(ctx, payload.ObjectClass, payload.UID, toAttributeValues(payload.Attrs), payload.options())

	case OpSearch:
		return d.runSearch(ctx, f, &payload)

	case OpSync:
		var token *spi.SyncToken
		if len(payload.Token) > 0 && string(payload.Token) != "null" {
			token = &spi.SyncToken{}
			if err := json.Unmarshal(payload.Token, token); err != nil {
				return nil, cherrors.Wrap(err, cherrors.ErrorTypeValidationFailed, "malformed sync token")
			}
		}
		return f.Sync(ctx, payload.ObjectClass, token, payload.options())

	case OpScriptOnConnector:
		script := spi.ScriptContext{Language: payload.Context.Language, Script: payload.Context.Script, Params: payload.Context.Params}
		return f.ScriptOnConnector(ctx, script)

	default:
		return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "unknown operation %q", raw.Operation)
	}
}

func (d *Dispatcher) runSearch(ctx context.Context, f *facade.Facade, payload *operationPayload) (interface{}, error) {
	var node *spi.FilterNode
	if payload.Filter != nil {
		n, err := filter.Parse(payload.Filter)
		if err != nil {
			return nil, err
		}
		node = n
	}

	listResult, _, err := f.Search(ctx, payload.ObjectClass, node, payload.options(), nil)
	if err != nil {
		return nil, err
	}
	return listResult, nil
}

// validatePayload enforces the required-field table for each operation.
func validatePayload(op string, p *operationPayload) error {
	missing := func(field string) error {
		return cherrors.Newf(cherrors.ErrorTypeValidationFailed, "operation %q payload missing required field %q", op, field)
	}

	switch op {
	case OpSchema, OpTest:
		return nil
	case OpCreate:
		if p.ObjectClass == "" {
			return missing("objectClass")
		}
		if p.Attrs == nil {
			return missing("attrs")
		}
	case OpGet, OpDelete:
		if p.ObjectClass == "" {
			return missing("objectClass")
		}
		if p.UID == "" {
			return missing("uid")
		}
	case OpUpdate, OpAddAttributeValues, OpRemoveAttributeValues:
		if p.ObjectClass == "" {
			return missing("objectClass")
		}
		if p.UID == "" {
			return missing("uid")
		}
		if p.Attrs == nil {
			return missing("attrs")
		}
	case OpSearch:
		if p.ObjectClass == "" {
			return missing("objectClass")
		}
	case OpSync:
		if p.ObjectClass == "" {
			return missing("objectClass")
		}
	case OpScriptOnConnector:
		if p.Context == nil || p.Context.Language == "" {
			return missing("context.language")
		}
		if p.Context.Script == "" {
			return missing("context.script")
		}
	default:
		return cherrors.Newf(cherrors.ErrorTypeValidationFailed, "unknown operation %q", op)
	}
	return nil
}

func toAttributeValues(m map[string]interface{}) map[string]spi.AttributeValue {
	if m == nil {
		return nil
	}
	out := make(map[string]spi.AttributeValue, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, cherrors.Wrap(err, cherrors.ErrorTypeProtocolError, "failed to encode frame")
	}
	return data, nil
}
