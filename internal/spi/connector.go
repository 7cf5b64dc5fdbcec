package spi

import "context"

// Config is the post-build, opaque configuration value produced for a
// connector instance. A config that needs validation implements Validator;
// the Registry invokes it before the factory runs.
type Config interface{}

// Validator is the optional hook a Config may implement. Failure names the
// offending property so the caller can surface a precise ConfigInvalid
// error.
type Validator interface {
	Validate() error
}

// FactoryArgs is passed to a Factory when the Registry materializes an
// instance.
type FactoryArgs struct {
	InstanceID       string
	ConnectorID      string
	ConnectorVersion string
	Config           Config
}

// Factory builds a Connector capability set from FactoryArgs.
type Factory func(args FactoryArgs) (*Connector, error)

// ConfigBuilder turns a raw, loosely-typed configuration value (typically
// decoded JSON) into an effective Config. The Loader registers builders
// with the Registry, and the Registry calls one when it initializes an
// instance; a (type, version) with no builder registered gets the raw value
// unchanged.
type ConfigBuilder func(raw map[string]interface{}) (Config, error)

// TestFunc probes connectivity to the backend.
type TestFunc func(ctx context.Context) error

// SchemaFunc returns the connector's object model.
type SchemaFunc func(ctx context.Context) (*Schema, error)

// GetFunc fetches a single object, returning nil (not an error) when absent.
type GetFunc func(ctx context.Context, objectClass, uid string, opts *OperationOptions) (*ConnectorObject, error)

// CreateFunc creates an object and returns its canonical representation.
type CreateFunc func(ctx context.Context, objectClass string, attrs map[string]AttributeValue, opts *OperationOptions) (*ConnectorObject, error)

// UpdateFunc replaces attributes on an existing object.
type UpdateFunc func(ctx context.Context, objectClass, uid string, attrs map[string]AttributeValue, opts *OperationOptions) (*ConnectorObject, error)

// DeleteFunc removes an object.
type DeleteFunc func(ctx context.Context, objectClass, uid string, opts *OperationOptions) error

// AttributeValuesFunc implements addAttributeValues / removeAttributeValues.
type AttributeValuesFunc func(ctx context.Context, objectClass, uid string, attrs map[string]AttributeValue, opts *OperationOptions) (*ConnectorObject, error)

// SearchListFunc is the list-mode search shape: the impl pages internally
// and returns one page.
type SearchListFunc func(ctx context.Context, objectClass string, filter *FilterNode, opts *OperationOptions) (*SearchResult, error)

// SearchStreamFunc is the streaming-mode search shape: the impl delivers
// objects to handler as it pages, stopping promptly if handler returns
// false.
type SearchStreamFunc func(ctx context.Context, objectClass string, filter *FilterNode, opts *OperationOptions, handler ObjectHandler) (*StreamResult, error)

// SyncFunc implements delta sync from an opaque continuation token.
type SyncFunc func(ctx context.Context, objectClass string, token *SyncToken, opts *OperationOptions) (*SyncResult, error)

// ScriptFunc runs an arbitrary connector-defined script.
type ScriptFunc func(ctx context.Context, script ScriptContext) (interface{}, error)

// Connector is the capability set a factory produces: a fixed struct of
// optional function fields rather than a monolithic interface every
// backend must fully implement. A nil field means the operation is not
// supported; the Facade detects this at call time and raises NotSupported.
// The Registry does not inspect the capability set.
type Connector struct {
	Test                  TestFunc
	Schema                SchemaFunc
	Get                   GetFunc
	Create                CreateFunc
	Update                UpdateFunc
	Delete                DeleteFunc
	AddAttributeValues    AttributeValuesFunc
	RemoveAttributeValues AttributeValuesFunc
	SearchList            SearchListFunc
	SearchStream          SearchStreamFunc
	Sync                  SyncFunc
	ScriptOnConnector     ScriptFunc
}
