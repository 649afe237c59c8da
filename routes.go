package dyndest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// RouteTable is a static routing configuration. It resolves keys from a
// field of map elements and looks up tables and schemas by the key's %v
// form, falling back to the Default route. A *RouteTable compares by
// identity. Create one with [ParseRouteTable] or [LoadRouteTable].
//
// A route table file looks like:
//
//	key: region
//	default: other
//	routes:
//	  EU:
//	    table: project:dataset.eu_table
//	    schema:
//	      fields:
//	        - {name: id, type: INTEGER, key: HASH}
//	  other:
//	    table: dataset.events
//	    schema:
//	      fields:
//	        - {name: id, type: INTEGER, key: HASH}
type RouteTable struct {
	KeyField string                `yaml:"key"`
	Default  string                `yaml:"default,omitempty"`
	Routes   map[string]RouteEntry `yaml:"routes"`

	locations map[string]TableLocation
}

// RouteEntry is a single destination in a [RouteTable].
type RouteEntry struct {
	Table  string `yaml:"table"` // table spec, see ParseTableLocation
	Schema Schema `yaml:"schema"`
}

var (
	_ KeyResolver    = (*RouteTable)(nil)
	_ TableResolver  = (*RouteTable)(nil)
	_ SchemaResolver = (*RouteTable)(nil)
)

// LoadRouteTable reads and parses a route table file.
func LoadRouteTable(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table %s: %w", path, err)
	}
	return ParseRouteTable(data)
}

// ParseRouteTable parses YAML route table data. Every table spec and schema
// is validated up front; unknown fields are rejected.
func ParseRouteTable(data []byte) (*RouteTable, error) {
	var rt RouteTable

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rt); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}

	if err := rt.prepare(); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (rt *RouteTable) prepare() error {
	if len(rt.Routes) == 0 {
		return errors.New("route table has no routes")
	}
	if rt.Default != "" {
		if _, ok := rt.Routes[rt.Default]; !ok {
			return fmt.Errorf("default route %q is not defined", rt.Default)
		}
	}

	names := make([]string, 0, len(rt.Routes))
	for name := range rt.Routes {
		names = append(names, name)
	}
	sort.Strings(names)

	rt.locations = make(map[string]TableLocation, len(rt.Routes))
	for _, name := range names {
		entry := rt.Routes[name]
		loc, err := ParseTableLocation(entry.Table)
		if err != nil {
			return fmt.Errorf("route %q: %w", name, err)
		}
		if err := entry.Schema.Validate(); err != nil {
			return fmt.Errorf("route %q: invalid schema: %w", name, err)
		}
		rt.locations[name] = loc
	}

	return nil
}

// Destinations binds rt to all three resolution stages.
func (rt *RouteTable) Destinations() (*Destinations, error) {
	return New(rt, rt, rt)
}

// ResolveKey implements [KeyResolver] for map[string]any elements.
func (rt *RouteTable) ResolveKey(e Element) (DestinationKey, error) {
	if rt.KeyField == "" {
		return nil, errors.New("route table has no key field")
	}
	m, ok := e.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unsupported element type %T", e)
	}
	key, ok := m[rt.KeyField]
	if !ok {
		return nil, fmt.Errorf("element has no %q field", rt.KeyField)
	}
	return key, nil
}

// ResolveTable implements [TableResolver].
func (rt *RouteTable) ResolveTable(key DestinationKey) (any, error) {
	name, err := rt.lookup(key)
	if err != nil {
		return nil, err
	}
	return rt.locations[name], nil
}

// ResolveSchema implements [SchemaResolver].
func (rt *RouteTable) ResolveSchema(key DestinationKey) (any, error) {
	name, err := rt.lookup(key)
	if err != nil {
		return nil, err
	}
	return rt.Routes[name].Schema, nil
}

func (rt *RouteTable) lookup(key DestinationKey) (string, error) {
	name := fmt.Sprint(key)
	if _, ok := rt.locations[name]; ok {
		return name, nil
	}
	if rt.Default != "" {
		return rt.Default, nil
	}
	return "", fmt.Errorf("no route for key %v", key)
}
