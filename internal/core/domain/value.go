package domain

import (
	"reflect"
	"time"
)

// Entity is any object whose properties can be looked up by name.
// CybOX object properties, nested types (hashes, email headers) and
// test doubles all implement it.
type Entity interface {
	// Property returns the named property. ok is false when the entity
	// has no such property or the property is unset.
	Property(name string) (Value, bool)
}

// Value is a property value: a Leaf, a Node or a List.
type Value interface {
	isValue()
}

// Leaf is a terminal property value with an optional pattern condition
// (e.g., "Equals", "Contains"). An empty Condition means the property
// carries no condition attribute.
type Leaf struct {
	Data      any
	Condition string
}

// Node wraps a nested entity.
type Node struct {
	Entity Entity
}

// List is an ordered list of values.
type List []Value

func (Leaf) isValue() {}
func (Node) isValue() {}
func (List) isValue() {}

// Text returns a Leaf holding s with no condition.
func Text(s string) Leaf {
	return Leaf{Data: s}
}

// IsZero reports whether v is absent or falsy: a nil value, an empty
// string, a zero number, false, an empty list or a node without entity.
func IsZero(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case Leaf:
		return isZeroData(x.Data)
	case Node:
		return x.Entity == nil || isNilEntity(x.Entity)
	case List:
		return len(x) == 0
	default:
		return false
	}
}

func isZeroData(data any) bool {
	switch d := data.(type) {
	case nil:
		return true
	case string:
		return d == ""
	case bool:
		return !d
	case int:
		return d == 0
	case int64:
		return d == 0
	case uint64:
		return d == 0
	case float64:
		return d == 0
	case time.Time:
		return d.IsZero()
	}
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isNilEntity(e Entity) bool {
	rv := reflect.ValueOf(e)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
