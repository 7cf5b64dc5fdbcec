// Package spi defines the uniform operation surface that every connector
// implements and every Facade mediates: the object/schema model, the
// option bag, sync tokens, and the capability set a connector factory
// produces.
package spi


// AttributeValue is a primitive, an ordered sequence of primitives, a
// nested complex object (name to AttributeValue), or an ordered sequence
// of complex objects. Complex values may nest recursively, so the Go
// representation is simply interface{} with conventions enforced by
// callers: string, int64, bool, nil, []interface{}, or map[string]interface{}.
type AttributeValue interface{}

// ConnectorObject is the uniform representation of a remote entity.
type ConnectorObject struct {
	ObjectClass string                    `json:"objectClass"`
	UID         string                    `json:"uid"`
	Name        string                    `json:"name,omitempty"`
	Attributes  map[string]AttributeValue `json:"attributes"`
}

// DeletedMarker is the attribute key used to mark a ConnectorObject
// delivered by sync as a tombstone rather than an upsert.
const DeletedMarker = "__DELETED__"

// IsDeleted reports whether obj represents a sync tombstone.
func (o *ConnectorObject) IsDeleted() bool {
	if o == nil || o.Attributes == nil {
		return false
	}
	v, ok := o.Attributes[DeletedMarker]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// AttributeType enumerates the data types a SchemaAttribute may declare.
type AttributeType string

const (
	AttributeTypeString   AttributeType = "string"
	AttributeTypeInteger  AttributeType = "integer"
	AttributeTypeBoolean  AttributeType = "boolean"
	AttributeTypeDatetime AttributeType = "datetime"
	AttributeTypeRef      AttributeType = "reference"
	AttributeTypeComplex  AttributeType = "complex"
)

// SchemaAttribute describes a single attribute of an ObjectClassInfo.
type SchemaAttribute struct {
	Name             string            `json:"name"`
	Type             AttributeType     `json:"type"`
	Required         bool              `json:"required"`
	MultiValued      bool              `json:"multiValued"`
	Creatable        bool              `json:"creatable"`
	Updateable       bool              `json:"updateable"`
	Readable         bool              `json:"readable"`
	ReturnedByDefault bool             `json:"returnedByDefault"`
	SubAttributes    []SchemaAttribute `json:"subAttributes,omitempty"`
}

// SupportedOp enumerates the uniform operations an ObjectClassInfo may
// advertise support for.
type SupportedOp string

const (
	SupportCreate SupportedOp = "CREATE"
	SupportUpdate SupportedOp = "UPDATE"
	SupportDelete SupportedOp = "DELETE"
	SupportGet    SupportedOp = "GET"
	SupportSearch SupportedOp = "SEARCH"
	SupportSync   SupportedOp = "SYNC"
)

// ObjectClassInfo describes one logical entity type a connector exposes.
type ObjectClassInfo struct {
	Name          string            `json:"name"`
	NativeName    string            `json:"nativeName,omitempty"`
	IDAttribute   string            `json:"idAttribute"`
	NameAttribute string            `json:"nameAttribute"`
	Supports      []SupportedOp     `json:"supports"`
	Attributes    []SchemaAttribute `json:"attributes"`
}

// NewObjectClassInfo returns an ObjectClassInfo with the spec-mandated
// defaults for IDAttribute and NameAttribute applied.
func NewObjectClassInfo(name string) ObjectClassInfo {
	return ObjectClassInfo{
		Name:          name,
		IDAttribute:   "id",
		NameAttribute: "displayName",
	}
}

// SchemaFeatures are the feature flags a Schema advertises.
type SchemaFeatures struct {
	Paging            bool `json:"paging"`
	Sorting           bool `json:"sorting"`
	ScriptOnConnector bool `json:"scriptOnConnector"`
	ResolveUsername   bool `json:"resolveUsername"`
	ComplexAttributes bool `json:"complexAttributes"`
}

// Schema is the full description of a connector's object model.
type Schema struct {
	ObjectClasses []ObjectClassInfo `json:"objectClasses"`
	Features      SchemaFeatures    `json:"features"`
}

// EmptySchema is returned by the Facade when an impl declares no schema
// capability.
func EmptySchema() *Schema {
	return &Schema{
		ObjectClasses: []ObjectClassInfo{},
		Features:      SchemaFeatures{ComplexAttributes: true},
	}
}

// SortOrder is the direction of a sort key.
type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// SortKey pairs a path with a direction.
type SortKey struct {
	Path  string    `json:"path"`
	Order SortOrder `json:"order"`
}

// SearchScope bounds a containment-style search.
type SearchScope string

const (
	ScopeObject   SearchScope = "OBJECT"
	ScopeOneLevel SearchScope = "ONE_LEVEL"
	ScopeSubtree  SearchScope = "SUBTREE"
)

// TotalPagedResultsPolicy controls whether a search reports a total count.
type TotalPagedResultsPolicy string

const (
	TotalPolicyNone     TotalPagedResultsPolicy = "NONE"
	TotalPolicyEstimate TotalPagedResultsPolicy = "ESTIMATE"
	TotalPolicyExact    TotalPagedResultsPolicy = "EXACT"
)

// Container identifies a containing object for scoped searches.
type Container struct {
	ObjectClass string `json:"objectClass"`
	UID         string `json:"uid"`
}

// OperationOptions is the option bag accepted by every uniform operation.
// All fields are optional; zero values mean "not specified".
type OperationOptions struct {
	AttributesToGet         []string                `json:"attributesToGet,omitempty"`
	PageSize                int                      `json:"pageSize,omitempty"`
	PagedResultsOffset      int                      `json:"pagedResultsOffset,omitempty"`
	PagedResultsCookie      string                   `json:"pagedResultsCookie,omitempty"`
	SortKeys                []SortKey                `json:"sortKeys,omitempty"`
	SortBy                  string                   `json:"sortBy,omitempty"`
	SortOrder               SortOrder                `json:"sortOrder,omitempty"`
	Container               *Container               `json:"container,omitempty"`
	Scope                   SearchScope              `json:"scope,omitempty"`
	TotalPagedResultsPolicy TotalPagedResultsPolicy  `json:"totalPagedResultsPolicy,omitempty"`
	RunAsUser               string                   `json:"runAsUser,omitempty"`
	RunWithPassword         string                   `json:"runWithPassword,omitempty"`
	RequireSerial           bool                     `json:"requireSerial,omitempty"`
	FailOnError             bool                     `json:"failOnError,omitempty"`
	TimeoutMs               int                      `json:"timeoutMs,omitempty"`
}

// SortedAttributesToGet returns a canonical (sorted, deduplicated) copy of
// AttributesToGet, used as a cache key component.
func (o *OperationOptions) SortedAttributesToGet() []string {
	if o == nil || len(o.AttributesToGet) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(o.AttributesToGet))
	out := make([]string, 0, len(o.AttributesToGet))
	for _, a := range o.AttributesToGet {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sortStrings(out)
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// SyncToken is an opaque, connector-interpreted continuation marker.
type SyncToken struct {
	Value string `json:"value"`
}

// SearchResult is the list-mode result of a search operation.
type SearchResult struct {
	Results    []*ConnectorObject `json:"results"`
	NextOffset *int               `json:"nextOffset,omitempty"`
}

// StreamResult is the streaming-mode result of a search operation: the
// handler already received the objects, this carries only the
// continuation state.
type StreamResult struct {
	PagedResultsCookie string `json:"pagedResultsCookie,omitempty"`
	RemainingResults   int    `json:"remainingPagedResults"`
}

// SyncResult is the result of a sync operation.
type SyncResult struct {
	Token   SyncToken          `json:"token"`
	Changes []*ConnectorObject `json:"changes"`
}

// ScriptContext is the payload of a scriptOnConnector call.
type ScriptContext struct {
	Language string                 `json:"language"`
	Script   string                 `json:"script"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// ObjectHandler is invoked once per object during a streaming search; a
// false return cancels further delivery promptly.
type ObjectHandler func(obj *ConnectorObject) bool
