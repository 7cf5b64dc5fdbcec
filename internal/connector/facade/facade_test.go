package facade

import (
	"context"
	"testing"
	"time"

	"github.com/connectorhost/connectorhost/internal/breaker"
	"github.com/connectorhost/connectorhost/internal/cache"
	"github.com/connectorhost/connectorhost/internal/spi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(impl *spi.Connector) *Facade {
	instance := &spi.ConnectorInstance{ID: "inst1", Impl: impl}
	b := breaker.New(breaker.DefaultConfig(), nil)
	c := cache.New(100, time.Minute)
	return New(instance, b, c)
}

func TestGetCachedUntilUpdateInvalidates(t *testing.T) {
	getCalls := 0
	mutated := false

	impl := &spi.Connector{
		Get: func(ctx context.Context, objectClass, uid string, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			getCalls++
			name := "A"
			if mutated {
				name = "B"
			}
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: uid, Attributes: map[string]spi.AttributeValue{"name": name}}, nil
		},
		Update: func(ctx context.Context, objectClass, uid string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			mutated = true
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: uid, Attributes: attrs}, nil
		},
	}

	f := newTestFacade(impl)
	opts := &spi.OperationOptions{AttributesToGet: []string{"name"}}

	obj1, err := f.Get(context.Background(), "User", "u1", opts)
	require.NoError(t, err)
	assert.Equal(t, "A", obj1.Attributes["name"])

	obj2, err := f.Get(context.Background(), "User", "u1", opts)
	require.NoError(t, err)
	assert.Equal(t, "A", obj2.Attributes["name"])
	assert.Equal(t, 1, getCalls)

	_, err = f.Update(context.Background(), "User", "u1", map[string]spi.AttributeValue{"name": "B"}, nil)
	require.NoError(t, err)

	obj3, err := f.Get(context.Background(), "User", "u1", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, getCalls)
	assert.Equal(t, "B", obj3.Attributes["name"])
}

func TestSchemaCachedAndEmptyWhenUnsupported(t *testing.T) {
	f := newTestFacade(&spi.Connector{})
	schema, err := f.Schema(context.Background())
	require.NoError(t, err)
	assert.Empty(t, schema.ObjectClasses)
	assert.True(t, schema.Features.ComplexAttributes)
}

func TestTestSucceedsSilentlyWithoutImpl(t *testing.T) {
	f := newTestFacade(&spi.Connector{})
	assert.NoError(t, f.Test(context.Background()))
}

func TestGetNotSupportedWithoutImpl(t *testing.T) {
	f := newTestFacade(&spi.Connector{})
	_, err := f.Get(context.Background(), "User", "u1", nil)
	assert.Error(t, err)
}

func TestCreateInvalidatesSchemaAndGetPrefix(t *testing.T) {
	schemaCalls := 0
	impl := &spi.Connector{
		Schema: func(ctx context.Context) (*spi.Schema, error) {
			schemaCalls++
			return &spi.Schema{ObjectClasses: []spi.ObjectClassInfo{spi.NewObjectClassInfo("User")}}, nil
		},
		Create: func(ctx context.Context, objectClass string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
			return &spi.ConnectorObject{ObjectClass: objectClass, UID: "new1", Attributes: attrs}, nil
		},
	}
	f := newTestFacade(impl)

	_, err := f.Schema(context.Background())
	require.NoError(t, err)
	_, err = f.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, schemaCalls)

	_, err = f.Create(context.Background(), "User", map[string]spi.AttributeValue{"name": "new"}, nil)
	require.NoError(t, err)

	_, err = f.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, schemaCalls)
}

func TestSearchListModeHandlerAdaptsToStream(t *testing.T) {
	impl := &spi.Connector{
		SearchList: func(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
			return &spi.SearchResult{Results: []*spi.ConnectorObject{
				{ObjectClass: objectClass, UID: "u1"},
				{ObjectClass: objectClass, UID: "u2"},
			}}, nil
		},
	}
	f := newTestFacade(impl)

	var seen []string
	_, streamResult, err := f.Search(context.Background(), "User", nil, &spi.OperationOptions{}, func(obj *spi.ConnectorObject) bool {
		seen = append(seen, obj.UID)
		return true
	})
	require.NoError(t, err)
	require.NotNil(t, streamResult)
	assert.Equal(t, []string{"u1", "u2"}, seen)
}

func TestSearchListModeHandlerCancelsPromptly(t *testing.T) {
	impl := &spi.Connector{
		SearchList: func(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
			return &spi.SearchResult{Results: []*spi.ConnectorObject{
				{ObjectClass: objectClass, UID: "u1"},
				{ObjectClass: objectClass, UID: "u2"},
			}}, nil
		},
	}
	f := newTestFacade(impl)

	var seen []string
	_, _, err := f.Search(context.Background(), "User", nil, &spi.OperationOptions{}, func(obj *spi.ConnectorObject) bool {
		seen = append(seen, obj.UID)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, seen)
}

func TestSearchListModeAdvancesOffsetAcrossPages(t *testing.T) {
	pages := [][]string{
		{"u1", "u2"},
		{"u3", "u4"},
		{"u5"},
	}
	var gotOffsets []int

	impl := &spi.Connector{
		SearchList: func(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
			gotOffsets = append(gotOffsets, opts.PagedResultsOffset)

			idx := opts.PagedResultsOffset / 2
			uids := pages[idx]
			results := make([]*spi.ConnectorObject, len(uids))
			for i, uid := range uids {
				results[i] = &spi.ConnectorObject{ObjectClass: objectClass, UID: uid}
			}

			var next *int
			if idx+1 < len(pages) {
				n := opts.PagedResultsOffset + len(uids)
				next = &n
			}
			return &spi.SearchResult{Results: results, NextOffset: next}, nil
		},
	}
	f := newTestFacade(impl)

	var seen []string
	_, streamResult, err := f.Search(context.Background(), "User", nil, &spi.OperationOptions{}, func(obj *spi.ConnectorObject) bool {
		seen = append(seen, obj.UID)
		return true
	})
	require.NoError(t, err)
	require.NotNil(t, streamResult)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, seen)
	assert.Equal(t, []int{0, 2, 4}, gotOffsets)
	assert.Equal(t, 0, streamResult.RemainingResults)
}

func TestSearchListModeOffsetPaginationStopsEarly(t *testing.T) {
	pages := [][]string{
		{"u1", "u2"},
		{"u3", "u4"},
	}
	callCount := 0

	impl := &spi.Connector{
		SearchList: func(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
			callCount++
			idx := opts.PagedResultsOffset / 2
			uids := pages[idx]
			results := make([]*spi.ConnectorObject, len(uids))
			for i, uid := range uids {
				results[i] = &spi.ConnectorObject{ObjectClass: objectClass, UID: uid}
			}

			var next *int
			if idx+1 < len(pages) {
				n := opts.PagedResultsOffset + len(uids)
				next = &n
			}
			return &spi.SearchResult{Results: results, NextOffset: next}, nil
		},
	}
	f := newTestFacade(impl)

	var seen []string
	_, streamResult, err := f.Search(context.Background(), "User", nil, &spi.OperationOptions{}, func(obj *spi.ConnectorObject) bool {
		seen = append(seen, obj.UID)
		return len(seen) < 3
	})
	require.NoError(t, err)
	require.NotNil(t, streamResult)
	assert.Equal(t, []string{"u1", "u2", "u3"}, seen)
	assert.Equal(t, 2, callCount)
	assert.Equal(t, 1, streamResult.RemainingResults)
}
