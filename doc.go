// Package dyndest resolves the destination of every element written by a
// pipeline sink: which table it goes to and what that table looks like.
//
// # Key Concepts
//
// Destinations are resolved in three stages, each supplied by the caller:
//   - KeyResolver: element -> destination key (an opaque, comparable value)
//   - TableResolver: destination key -> TableLocation
//   - SchemaResolver: destination key -> Schema
//
// The stages are bound together with New, which returns a Destinations value.
// Table and schema resolvers return untyped values; Destinations validates them
// and reports anything else as a *TypeMismatchError. Errors returned by the
// resolvers themselves are passed through untouched.
//
// # Basic Usage
//
//	keyFn := dyndest.KeyFunc(func(e dyndest.Element) (dyndest.DestinationKey, error) {
//	    return e.(Event).Region, nil
//	})
//	tableFn := dyndest.TableFunc(func(k dyndest.DestinationKey) (any, error) {
//	    return dyndest.TableLocation{Project: "project", Dataset: "events", Table: k.(string)}, nil
//	})
//	schemaFn := dyndest.SchemaFunc(func(k dyndest.DestinationKey) (any, error) {
//	    return eventSchema, nil
//	})
//
//	dest, err := dyndest.New(&keyFn, &tableFn, &schemaFn)
//
// Static routing can also be configured in YAML with a RouteTable:
//
//	rt, err := dyndest.LoadRouteTable("routes.yaml")
//	dest, err := rt.Destinations()
//
// # Identity
//
// Destinations can be compared with Equal and hashed with Hash so that a
// pipeline engine can deduplicate resolver configurations. Two values are
// equal when their resolvers are pairwise equal. Go functions are not
// comparable, so pass pointers to the func adapters (or any comparable
// resolver type) when two configurations should compare equal. The hash is
// computed on first use and memoized.
//
// # DynamoDB
//
// Router builds DynamoDB requests for resolved destinations:
//
//	router := dyndest.NewRouter(dest)
//	batches, err := router.MarshalBatch(elements)
//	for _, batch := range batches {
//	    _, err = ddb.BatchWriteItem(ctx, batch)
//	}
//
// Missing tables can be created from their schemas with a Provisioner:
//
//	name, err := router.Provisioner(ddb).EnsureTable(ctx, key)
package dyndest
