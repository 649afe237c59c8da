package dynamock

import (
	"fmt"
	"testing"

	"github.com/nisimpson/dyndest"
)

// RouteOption is a functional option for configuring Routes during building.
type RouteOption func(*Routes)

// Routes is a table-driven resolver for tests. It implements all three
// resolution stages: the key is read from a map element, and tables and
// schemas are looked up by key. A *Routes compares by identity.
type Routes struct {
	KeyField string
	Tables   map[dyndest.DestinationKey]any
	Schemas  map[dyndest.DestinationKey]any
}

var (
	_ dyndest.KeyResolver    = (*Routes)(nil)
	_ dyndest.TableResolver  = (*Routes)(nil)
	_ dyndest.SchemaResolver = (*Routes)(nil)
)

// NewRoutes creates a new Routes with the given options applied. Elements are
// keyed by their "key" field unless WithKeyField says otherwise.
func NewRoutes(opts ...RouteOption) *Routes {
	r := &Routes{
		KeyField: "key",
		Tables:   make(map[dyndest.DestinationKey]any),
		Schemas:  make(map[dyndest.DestinationKey]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithKeyField sets the element field holding the destination key.
func WithKeyField(name string) RouteOption {
	return func(r *Routes) {
		r.KeyField = name
	}
}

// WithRoute maps key to a table location and schema.
func WithRoute(key dyndest.DestinationKey, loc dyndest.TableLocation, schema dyndest.Schema) RouteOption {
	return func(r *Routes) {
		r.Tables[key] = loc
		r.Schemas[key] = schema
	}
}

// WithTableValue maps key to an arbitrary table resolver result, which need
// not be a valid location.
func WithTableValue(key dyndest.DestinationKey, v any) RouteOption {
	return func(r *Routes) {
		r.Tables[key] = v
	}
}

// WithSchemaValue maps key to an arbitrary schema resolver result.
func WithSchemaValue(key dyndest.DestinationKey, v any) RouteOption {
	return func(r *Routes) {
		r.Schemas[key] = v
	}
}

// ResolveKey implements dyndest.KeyResolver for map[string]any elements.
func (r *Routes) ResolveKey(e dyndest.Element) (dyndest.DestinationKey, error) {
	m, ok := e.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unsupported element type %T", e)
	}
	key, ok := m[r.KeyField]
	if !ok {
		return nil, fmt.Errorf("element has no %q field", r.KeyField)
	}
	return key, nil
}

// ResolveTable implements dyndest.TableResolver.
func (r *Routes) ResolveTable(key dyndest.DestinationKey) (any, error) {
	if v, ok := r.Tables[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no table for key %v", key)
}

// ResolveSchema implements dyndest.SchemaResolver.
func (r *Routes) ResolveSchema(key dyndest.DestinationKey) (any, error) {
	if v, ok := r.Schemas[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no schema for key %v", key)
}

// Destinations binds r to all three stages, failing the test on error.
func (r *Routes) Destinations(t testing.TB) *dyndest.Destinations {
	t.Helper()
	dest, err := dyndest.New(r, r, r)
	if err != nil {
		t.Fatalf("failed to create destinations: %v", err)
	}
	return dest
}
