package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/connectorhost/connectorhost/internal/cache"
	"github.com/connectorhost/connectorhost/internal/connector/registry"
	"github.com/connectorhost/connectorhost/internal/spi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, impl *spi.Connector) *Dispatcher {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterFactory("stub", "1.0.0", func(args spi.FactoryArgs) (*spi.Connector, error) {
		return impl, nil
	}))
	_, err := reg.InitInstance("inst1", "stub", "1.0.0", nil)
	require.NoError(t, err)
	return NewDispatcher(reg, cache.New(100, time.Minute))
}

func TestHandlePingRepliesWithPongAndConnectors(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})
	reply, err := d.Handle(context.Background(), []byte(`{"type":"ping"}`))
	require.NoError(t, err)

	var pong pongFrame
	require.NoError(t, json.Unmarshal(reply, &pong))
	assert.Equal(t, FrameTypePong, pong.Type)
	assert.Equal(t, []string{"inst1"}, pong.Connectors)
}

func TestHandleListConnectors(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})
	reply, err := d.Handle(context.Background(), []byte(`{"type":"list-connectors"}`))
	require.NoError(t, err)

	var frame connectorsFrame
	require.NoError(t, json.Unmarshal(reply, &frame))
	assert.Equal(t, []string{"inst1"}, frame.Connectors)
}

func TestHandleUnknownTypeWithRequestIDRepliesError(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})
	reply, err := d.Handle(context.Background(), []byte(`{"type":"bogus","requestId":"r1"}`))
	require.NoError(t, err)

	var frame errorFrame
	require.NoError(t, json.Unmarshal(reply, &frame))
	assert.Equal(t, "r1", frame.RequestID)
	assert.NotNil(t, frame.Error)
}

func TestHandleUnknownTypeWithoutRequestIDIsSilent(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})
	reply, err := d.Handle(context.Background(), []byte(`{"type":"bogus"}`))
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestHandleOperationMissingRequestIDIsSilent(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})
	reply, err := d.Handle(context.Background(), []byte(`{"type":"operation","connectorId":"inst1","operation":"test"}`))
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestHandleOperationGetSuccess(t *testing.T) {
	impl := &spi.Connector{
		Get: func(ctx context.Context, objectClass, uid string, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: uid}, nil
		},
	}
	d := newTestDispatcher(t, impl)

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"get","payload":{"objectClass":"User","uid":"u1"}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
}

func TestHandleOperationGetDecodesOptions(t *testing.T) {
	var seenOpts *spi.OperationOptions
	impl := &spi.Connector{
		Get: func(ctx context.Context, objectClass, uid string, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			seenOpts = opts
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: uid}, nil
		},
	}
	d := newTestDispatcher(t, impl)

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"get","payload":{"objectClass":"User","uid":"u1","options":{"attributesToGet":["name"]}}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.True(t, resp.Success)

	require.NotNil(t, seenOpts)
	assert.Equal(t, []string{"name"}, seenOpts.AttributesToGet)
}

func TestHandleOperationSearchDecodesOptions(t *testing.T) {
	var seenOpts *spi.OperationOptions
	impl := &spi.Connector{
		SearchList: func(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
			seenOpts = opts
			return &spi.SearchResult{Results: []*spi.ConnectorObject{{ObjectClass: objectClass, UID: "u1"}}}, nil
		},
	}
	d := newTestDispatcher(t, impl)

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"search","payload":{"objectClass":"User","options":{"pageSize":10,"pagedResultsOffset":20}}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.True(t, resp.Success)

	require.NotNil(t, seenOpts)
	assert.Equal(t, 10, seenOpts.PageSize)
	assert.Equal(t, 20, seenOpts.PagedResultsOffset)
}

func TestHandleOperationGetWithoutOptionsPassesEmptyOptions(t *testing.T) {
	var seenOpts *spi.OperationOptions
	impl := &spi.Connector{
		Get: func(ctx context.Context, objectClass, uid string, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			seenOpts = opts
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: uid}, nil
		},
	}
	d := newTestDispatcher(t, impl)

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"get","payload":{"objectClass":"User","uid":"u1"}}`
	_, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	require.NotNil(t, seenOpts)
	assert.Empty(t, seenOpts.AttributesToGet)
}

func TestHandleOperationMissingFieldProducesValidationError(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"get","payload":{"objectClass":"User"}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_failed", resp.Error.Name)
}

func TestHandleOperationUnknownConnectorIDProducesError(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})

	msg := `{"type":"operation","requestId":"r1","connectorId":"ghost","operation":"test"}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "connector_not_found", resp.Error.Name)
}

func TestHandleOperationCreateRequiresAttrsAndObjectClass(t *testing.T) {
	impl := &spi.Connector{
		Create: func(ctx context.Context, objectClass string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: "new1", Attributes: attrs}, nil
		},
	}
	d := newTestDispatcher(t, impl)

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"create","payload":{"objectClass":"User","attrs":{"name":"Ann"}}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.True(t, resp.Success)
}

func TestHandleOperationSearchParsesFilter(t *testing.T) {
	var seenFilter *spi.FilterNode
	impl := &spi.Connector{
		SearchList: func(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
			seenFilter = filterNode
			return &spi.SearchResult{Results: []*spi.ConnectorObject{{ObjectClass: objectClass, UID: "u1"}}}, nil
		},
	}
	d := newTestDispatcher(t, impl)

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"search","payload":{"objectClass":"User","filter":{"type":"CMP","op":"EQ","path":["name"],"value":"Ann"}}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)
	require.NotNil(t, seenFilter)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.True(t, resp.Success)
}

func TestHandleOperationScriptOnConnectorRequiresLanguageAndScript(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})

	msg := `{"type":"operation","requestId":"r1","connectorId":"inst1","operation":"scriptOnConnector","payload":{"context":{"language":"js"}}}`
	reply, err := d.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)

	var resp responseFrame
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.False(t, resp.Success)
}

func TestHandleMalformedJSONIsProtocolError(t *testing.T) {
	d := newTestDispatcher(t, &spi.Connector{})
	_, err := d.Handle(context.Background(), []byte(`not json`))
	require.Error(t, err)
}
