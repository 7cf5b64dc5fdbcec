// Package facade implements the resilience-and-caching wrapper around a
// single connector instance: every uniform operation runs through a
// private circuit breaker and a shared, instance-namespaced TTL cache,
// with writes invalidating the reads they affect before returning.
package facade

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/connectorhost/connectorhost/internal/breaker"
	"github.com/connectorhost/connectorhost/internal/cache"
	"github.com/connectorhost/connectorhost/internal/metrics"
	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
	"github.com/connectorhost/connectorhost/pkg/logger"
)

const (
	fiveMinutes   = 5 * time.Minute
	thirtySeconds = 30 * time.Second
)

// Facade wraps exactly one ConnectorInstance. It is the sole owner of its
// Breaker; the Cache is a shared, process-scoped resource passed in by the
// caller.
type Facade struct {
	instance *spi.ConnectorInstance
	breaker  *breaker.Breaker
	cache    *cache.Cache
	log      *zap.Logger
}

// New builds a Facade for instance, sharing cache across every Facade in
// the process. If b is nil, a breaker with default thresholds is created.
func New(instance *spi.ConnectorInstance, b *breaker.Breaker, c *cache.Cache) *Facade {
	if b == nil {
		b = breaker.New(breaker.DefaultConfig(), logger.With(zap.String("instance", instance.ID)))
	}
	return &Facade{
		instance: instance,
		breaker:  b,
		cache:    c,
		log:      logger.With(zap.String("component", "facade"), zap.String("instance", instance.ID)),
	}
}

// InstanceID returns the wrapped instance's id.
func (f *Facade) InstanceID() string { return f.instance.ID }

func (f *Facade) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	timer := metrics.NewTimer()
	err := f.breaker.Execute(ctx, fn)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.OperationLatency.WithLabelValues(f.instance.ID, operation, status).Observe(timer.ObserveSeconds())
	metrics.BreakerState.WithLabelValues(f.instance.ID).Set(metrics.BreakerStateValue(f.breaker.State().String()))

	return err
}

func (f *Facade) recordCacheHit(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metrics.CacheResult.WithLabelValues(f.instance.ID, result).Inc()
}

// Test probes connectivity. An impl without Test succeeds silently.
func (f *Facade) Test(ctx context.Context) error {
	if f.instance.Impl.Test == nil {
		return nil
	}
	return f.run(ctx, "test", f.instance.Impl.Test)
}

// Schema returns the connector's object model, cached for 5 minutes. An
// impl without Schema returns the empty schema shape.
func (f *Facade) Schema(ctx context.Context) (*spi.Schema, error) {
	if f.instance.Impl.Schema == nil {
		return spi.EmptySchema(), nil
	}

	key := cache.Key("schema", f.instance.ID)
	if v, ok := f.cache.Get(key); ok {
		f.recordCacheHit(true)
		return v.(*spi.Schema), nil
	}
	f.recordCacheHit(false)

	var schema *spi.Schema
	err := f.run(ctx, "schema", func(ctx context.Context) error {
		s, err := f.instance.Impl.Schema(ctx)
		if err != nil {
			return err
		}
		schema = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.cache.SetTTL(key, schema, fiveMinutes)
	return schema, nil
}

// Get fetches a single object, cached for 30 seconds under a key that
// includes the sorted, deduplicated attribute projection. Only non-nil
// results are cached.
func (f *Facade) Get(ctx context.Context, objectClass, uid string, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
	if f.instance.Impl.Get == nil {
		return nil, cherrors.New(cherrors.ErrorTypeNotSupported, "get is not supported by this connector")
	}

	key := cache.Key("get", f.instance.ID, objectClass, uid, opts.SortedAttributesToGet())
	if v, ok := f.cache.Get(key); ok {
		f.recordCacheHit(true)
		return v.(*spi.ConnectorObject), nil
	}
	f.recordCacheHit(false)

	var obj *spi.ConnectorObject
	err := f.run(ctx, "get", func(ctx context.Context) error {
		o, err := f.instance.Impl.Get(ctx, objectClass, uid, opts)
		if err != nil {
			return err
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if obj != nil {
		f.cache.SetTTL(key, obj, thirtySeconds)
	}
	return obj, nil
}

// Create creates an object, invalidating the schema cache entry and every
// cached get under the object's objectClass on success.
func (f *Facade) Create(ctx context.Context, objectClass string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
	if f.instance.Impl.Create == nil {
		return nil, cherrors.New(cherrors.ErrorTypeNotSupported, "create is not supported by this connector")
	}

	var obj *spi.ConnectorObject
	err := f.run(ctx, "create", func(ctx context.Context) error {
		o, err := f.instance.Impl.Create(ctx, objectClass, attrs, opts)
		if err != nil {
			return err
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.cache.DeleteByPrefix(cache.Prefix("schema", f.instance.ID))
	f.cache.DeleteByPrefix(cache.Prefix("get", f.instance.ID, objectClass))
	return obj, nil
}

// Update replaces attributes on an object, invalidating every cached get
// for (objectClass, uid) on success.
func (f *Facade) Update(ctx context.Context, objectClass, uid string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
	if f.instance.Impl.Update == nil {
		return nil, cherrors.New(cherrors.ErrorTypeNotSupported, "update is not supported by this connector")
	}

	var obj *spi.ConnectorObject
	err := f.run(ctx, "update", func(ctx context.Context) error {
		o, err := f.instance.Impl.Update(ctx, objectClass, uid, attrs, opts)
		if err != nil {
			return err
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.cache.DeleteByPrefix(cache.Prefix("get", f.instance.ID, objectClass, uid))
	return obj, nil
}

// Delete removes an object, invalidating the same prefix as Update.
func (f *Facade) Delete(ctx context.Context, objectClass, uid string, opts *spi.OperationOptions) error {
	if f.instance.Impl.Delete == nil {
		return cherrors.New(cherrors.ErrorTypeNotSupported, "delete is not supported by this connector")
	}

	err := f.run(ctx, "delete", func(ctx context.Context) error {
		return f.instance.Impl.Delete(ctx, objectClass, uid, opts)
	})
	if err != nil {
		return err
	}

	f.cache.DeleteByPrefix(cache.Prefix("get", f.instance.ID, objectClass, uid))
	return nil
}

// AddAttributeValues appends values to a multi-valued attribute,
// invalidating the same prefix as Update.
func (f *Facade) AddAttributeValues(ctx context.Context, objectClass, uid string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
	return f.runAttributeValues(ctx, "addAttributeValues", f.instance.Impl.AddAttributeValues, objectClass, uid, attrs, opts)
}

// RemoveAttributeValues removes values from a multi-valued attribute,
// invalidating the same prefix as Update.
func (f *Facade) RemoveAttributeValues(ctx context.Context, objectClass, uid string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
	return f.runAttributeValues(ctx, "removeAttributeValues", f.instance.Impl.RemoveAttributeValues, objectClass, uid, attrs, opts)
}

func (f *Facade) runAttributeValues(ctx context.Context, operation string, fn spi.AttributeValuesFunc, objectClass, uid string, attrs map[string]spi.AttributeValue, opts *spi.OperationOptions) (*spi.ConnectorObject, error) {
	if fn == nil {
		return nil, cherrors.New(cherrors.ErrorTypeNotSupported, "attribute value operation is not supported by this connector")
	}

	var obj *spi.ConnectorObject
	err := f.run(ctx, operation, func(ctx context.Context) error {
		o, err := fn(ctx, objectClass, uid, attrs, opts)
		if err != nil {
			return err
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.cache.DeleteByPrefix(cache.Prefix("get", f.instance.ID, objectClass, uid))
	return obj, nil
}

// Search runs in list mode or streaming mode depending on the underlying
// capability, bridging one to the other when only one is implemented, per
// the list-primary policy. Results are never cached.
func (f *Facade) Search(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions, handler spi.ObjectHandler) (*spi.SearchResult, *spi.StreamResult, error) {
	impl := f.instance.Impl

	switch {
	case impl.SearchList != nil && handler == nil:
		var result *spi.SearchResult
		err := f.run(ctx, "search", func(ctx context.Context) error {
			r, err := impl.SearchList(ctx, objectClass, filterNode, opts)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		return result, nil, err

	case impl.SearchStream != nil && handler != nil:
		var result *spi.StreamResult
		err := f.run(ctx, "search", func(ctx context.Context) error {
			r, err := impl.SearchStream(ctx, objectClass, filterNode, opts, handler)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		return nil, result, err

	case impl.SearchList != nil && handler != nil:
		// Bridge list to streaming: page via the list form, delivering each
		// object to handler; stop as soon as it returns false.
		return f.bridgeListToStream(ctx, objectClass, filterNode, opts, handler)

	case impl.SearchStream != nil && handler == nil:
		// Bridge streaming to list: accumulate into a buffer.
		result, err := f.bridgeStreamToList(ctx, objectClass, filterNode, opts)
		return result, nil, err

	default:
		return nil, nil, cherrors.New(cherrors.ErrorTypeNotSupported, "search is not supported by this connector")
	}
}

func (f *Facade) bridgeListToStream(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions, handler spi.ObjectHandler) (*spi.SearchResult, *spi.StreamResult, error) {
	var pageOpts spi.OperationOptions
	if opts != nil {
		pageOpts = *opts
	}

	for {
		var page *spi.SearchResult
		err := f.run(ctx, "search", func(ctx context.Context) error {
			p, err := f.instance.Impl.SearchList(ctx, objectClass, filterNode, &pageOpts)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, nil, err
		}

		for i, obj := range page.Results {
			if !handler(obj) {
				remaining := len(page.Results) - i - 1
				return nil, &spi.StreamResult{PagedResultsCookie: pageOpts.PagedResultsCookie, RemainingResults: remaining}, nil
			}
		}

		if page.NextOffset == nil {
			return nil, &spi.StreamResult{RemainingResults: 0}, nil
		}
		pageOpts.PagedResultsOffset = *page.NextOffset
		pageOpts.PagedResultsCookie = ""
	}
}

func (f *Facade) bridgeStreamToList(ctx context.Context, objectClass string, filterNode *spi.FilterNode, opts *spi.OperationOptions) (*spi.SearchResult, error) {
	var buffer []*spi.ConnectorObject
	handler := func(obj *spi.ConnectorObject) bool {
		buffer = append(buffer, obj)
		return true
	}

	err := f.run(ctx, "search", func(ctx context.Context) error {
		_, err := f.instance.Impl.SearchStream(ctx, objectClass, filterNode, opts, handler)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &spi.SearchResult{Results: buffer}, nil
}

// Sync fetches delta changes since token. Never cached.
func (f *Facade) Sync(ctx context.Context, objectClass string, token *spi.SyncToken, opts *spi.OperationOptions) (*spi.SyncResult, error) {
	if f.instance.Impl.Sync == nil {
		return nil, cherrors.New(cherrors.ErrorTypeNotSupported, "sync is not supported by this connector")
	}

	var result *spi.SyncResult
	err := f.run(ctx, "sync", func(ctx context.Context) error {
		r, err := f.instance.Impl.Sync(ctx, objectClass, token, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// ScriptOnConnector runs a connector-defined script. The result is
// caller-opaque.
func (f *Facade) ScriptOnConnector(ctx context.Context, script spi.ScriptContext) (interface{}, error) {
	if f.instance.Impl.ScriptOnConnector == nil {
		return nil, cherrors.New(cherrors.ErrorTypeNotSupported, "scriptOnConnector is not supported by this connector")
	}

	var result interface{}
	err := f.run(ctx, "scriptOnConnector", func(ctx context.Context) error {
		r, err := f.instance.Impl.ScriptOnConnector(ctx, script)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
