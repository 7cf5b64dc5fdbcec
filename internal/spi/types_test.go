package spi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedAttributesToGetDeduplicatesAndSorts(t *testing.T) {
	opts := &OperationOptions{AttributesToGet: []string{"name", "mail", "name", "id"}}
	assert.Equal(t, []string{"id", "mail", "name"}, opts.SortedAttributesToGet())
}

func TestSortedAttributesToGetNilWhenEmpty(t *testing.T) {
	var opts *OperationOptions
	assert.Nil(t, opts.SortedAttributesToGet())

	opts = &OperationOptions{}
	assert.Nil(t, opts.SortedAttributesToGet())
}

func TestIsDeletedRecognizesTombstone(t *testing.T) {
	obj := &ConnectorObject{
		ObjectClass: "User",
		UID:         "u1",
		Attributes:  map[string]AttributeValue{DeletedMarker: true},
	}
	assert.True(t, obj.IsDeleted())

	obj2 := &ConnectorObject{ObjectClass: "User", UID: "u2", Attributes: map[string]AttributeValue{"name": "A"}}
	assert.False(t, obj2.IsDeleted())

	assert.False(t, (*ConnectorObject)(nil).IsDeleted())
}

func TestConnectorKeyString(t *testing.T) {
	k := ConnectorKey{Type: "graph", Version: "1.2.0"}
	assert.Equal(t, "graph@1.2.0", k.String())
}

func TestEmptySchemaDefaults(t *testing.T) {
	s := EmptySchema()
	assert.Empty(t, s.ObjectClasses)
	assert.True(t, s.Features.ComplexAttributes)
}

func TestNewObjectClassInfoDefaults(t *testing.T) {
	oc := NewObjectClassInfo("User")
	assert.Equal(t, "id", oc.IDAttribute)
	assert.Equal(t, "displayName", oc.NameAttribute)
}
