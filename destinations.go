package dyndest

import (
	"errors"
	"hash/maphash"
	"reflect"
	"sync/atomic"
)

// Element is a record flowing through the pipeline. The adapter never inspects
// it; it is only forwarded to the key resolver.
type Element = any

// DestinationKey identifies a logical output target. Keys must be comparable so
// that elements can be grouped by destination.
type DestinationKey = any

// KeyResolver maps an element to its destination key. Implementations must be
// deterministic and free of side effects.
type KeyResolver interface {
	ResolveKey(Element) (DestinationKey, error)
}

// TableResolver maps a destination key to a table location. The result is
// validated by [Destinations.GetTable]; anything other than a valid
// [TableLocation] or *[TableLocation] is rejected with a [TypeMismatchError].
type TableResolver interface {
	ResolveTable(DestinationKey) (any, error)
}

// SchemaResolver maps a destination key to a schema. The result is validated
// by [Destinations.GetSchema]; anything other than a valid [Schema] or
// *[Schema] is rejected with a [TypeMismatchError].
type SchemaResolver interface {
	ResolveSchema(DestinationKey) (any, error)
}

// KeyFunc adapts an ordinary function to a [KeyResolver]. Pass a pointer to a
// KeyFunc when the resolver should take part in equality by identity.
type KeyFunc func(Element) (DestinationKey, error)

// ResolveKey calls f(e).
func (f KeyFunc) ResolveKey(e Element) (DestinationKey, error) { return f(e) }

// TableFunc adapts an ordinary function to a [TableResolver].
type TableFunc func(DestinationKey) (any, error)

// ResolveTable calls f(key).
func (f TableFunc) ResolveTable(key DestinationKey) (any, error) { return f(key) }

// SchemaFunc adapts an ordinary function to a [SchemaResolver].
type SchemaFunc func(DestinationKey) (any, error)

// ResolveSchema calls f(key).
func (f SchemaFunc) ResolveSchema(key DestinationKey) (any, error) { return f(key) }

// Equaler is implemented by resolvers with their own notion of equality.
// Resolvers implementing Equaler should also implement [Hasher]; otherwise
// their hash falls back to the dynamic type name.
type Equaler interface {
	Equal(other any) bool
}

// Hasher is implemented by resolvers that define [Equaler]. Equal resolvers
// must return equal hashes.
type Hasher interface {
	Hash() uint64
}

// DynamicDestinations is the capability a sink consumes: per-element key
// resolution, per-key table and schema resolution, and value identity for
// deduplicating configurations across workers.
type DynamicDestinations interface {
	GetDestination(Element) (DestinationKey, error)
	GetTable(DestinationKey) (TableLocation, error)
	GetSchema(DestinationKey) (Schema, error)
	Equaler
	Hasher
}

var _ DynamicDestinations = (*Destinations)(nil)

// Destinations binds a key, table and schema resolver together. It is
// immutable after [New] and safe for concurrent use.
//
// Equality is only as strong as the equality of the three resolvers. Function
// values are not comparable in Go, so a bare [KeyFunc] makes the adapter equal
// only to itself; use a *KeyFunc (or any comparable resolver) to share
// identity between adapters.
type Destinations struct {
	key    KeyResolver
	table  TableResolver
	schema SchemaResolver

	hash   atomic.Uint64
	hashed atomic.Bool
}

// New creates a Destinations from the three resolvers. Every nil resolver is
// reported as a [MissingArgumentError]; no adapter is returned in that case.
func New(key KeyResolver, table TableResolver, schema SchemaResolver) (*Destinations, error) {
	if err := checkArguments(key, table, schema); err != nil {
		return nil, err
	}

	return &Destinations{
		key:    key,
		table:  table,
		schema: schema,
	}, nil
}

// GetDestination returns the destination key for e. Errors from the key
// resolver are returned as-is.
func (d *Destinations) GetDestination(e Element) (DestinationKey, error) {
	return d.key.ResolveKey(e)
}

// GetTable returns the table location for key.
func (d *Destinations) GetTable(key DestinationKey) (TableLocation, error) {
	out, err := d.table.ResolveTable(key)
	if err != nil {
		return TableLocation{}, err
	}

	var loc TableLocation
	switch v := out.(type) {
	case TableLocation:
		loc = v
	case *TableLocation:
		if v == nil {
			return TableLocation{}, newTypeMismatch(StageTable, key, out, "nil table location")
		}
		loc = *v
	default:
		return TableLocation{}, newTypeMismatch(StageTable, key, out, "")
	}

	if err := loc.Validate(); err != nil {
		return TableLocation{}, newTypeMismatch(StageTable, key, out, err.Error())
	}

	return loc, nil
}

// GetSchema returns the schema for key.
func (d *Destinations) GetSchema(key DestinationKey) (Schema, error) {
	out, err := d.schema.ResolveSchema(key)
	if err != nil {
		return Schema{}, err
	}

	var schema Schema
	switch v := out.(type) {
	case Schema:
		schema = v
	case *Schema:
		if v == nil {
			return Schema{}, newTypeMismatch(StageSchema, key, out, "nil schema")
		}
		schema = *v
	default:
		return Schema{}, newTypeMismatch(StageSchema, key, out, "")
	}

	if err := schema.Validate(); err != nil {
		return Schema{}, newTypeMismatch(StageSchema, key, out, err.Error())
	}

	return schema, nil
}

// Equal reports whether other is a *Destinations with pairwise equal
// resolvers. It never panics.
func (d *Destinations) Equal(other any) bool {
	o, ok := other.(*Destinations)
	if !ok || o == nil || d == nil {
		return false
	}
	if d == o {
		return true
	}

	return equalResolvers(d.key, o.key) &&
		equalResolvers(d.table, o.table) &&
		equalResolvers(d.schema, o.schema)
}

// Hash returns a hash consistent with [Destinations.Equal]. It is computed on
// first use and memoized. Racing first calls compute the same value.
func (d *Destinations) Hash() uint64 {
	if d.hashed.Load() {
		return d.hash.Load()
	}

	h := combineHash(hashResolver(d.key), hashResolver(d.table), hashResolver(d.schema))
	d.hash.Store(h)
	d.hashed.Store(true)
	return h
}

var seed = maphash.MakeSeed()

func equalResolvers(a, b any) bool {
	if eq, ok := a.(Equaler); ok {
		return eq.Equal(b)
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return !va.IsValid() && !vb.IsValid()
	}
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}

	return a == b
}

func hashResolver(r any) uint64 {
	if h, ok := r.(Hasher); ok {
		return h.Hash()
	}

	v := reflect.ValueOf(r)
	if !v.IsValid() {
		return 0
	}

	if _, ok := r.(Equaler); !ok && v.Comparable() {
		return maphash.Comparable(seed, r)
	}

	// Only the type is stable across values that may compare equal.
	return maphash.String(seed, v.Type().String())
}

func combineHash(parts ...uint64) uint64 {
	h := uint64(1)
	for _, p := range parts {
		h = 31*h + p
	}
	return h
}

func checkArguments(key KeyResolver, table TableResolver, schema SchemaResolver) error {
	var errs []error
	if isNil(key) {
		errs = append(errs, &MissingArgumentError{Argument: "key"})
	}
	if isNil(table) {
		errs = append(errs, &MissingArgumentError{Argument: "table"})
	}
	if isNil(schema) {
		errs = append(errs, &MissingArgumentError{Argument: "schema"})
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			return true
		}
	}

	// A pointer to a nil func adapter cannot be invoked either.
	if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Func {
		return rv.Elem().IsNil()
	}

	return false
}
