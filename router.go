package dyndest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxBatchSize is the maximum number of items allowed in a DynamoDB batch operation.
	MaxBatchSize = 25
)

// Item is an alias for the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// Router turns elements into DynamoDB requests against the tables chosen by
// its [DynamicDestinations]. It only builds requests; sending them is up to
// the caller.
type Router struct {
	Destinations       DynamicDestinations // Resolves keys, tables and schemas
	NameDelimiter      string              // Joins project, dataset and table. Default is '.'.
	PartitionDelimiter string              // Appends the partition to the table name. Default is '_'.
	BatchSize          int                 // Requests per batch write, at most MaxBatchSize
	BillingMode        types.BillingMode   // Billing mode for created tables
}

// NewRouter creates a new Router with default configuration.
func NewRouter(dest DynamicDestinations) *Router {
	return &Router{
		Destinations:       dest,
		NameDelimiter:      ".",
		PartitionDelimiter: "_",
		BatchSize:          MaxBatchSize,
		BillingMode:        types.BillingModePayPerRequest,
	}
}

// Route is the fully resolved destination of an element.
type Route struct {
	Key       DestinationKey
	Location  TableLocation
	Schema    Schema
	TableName string
}

// TableName returns the physical DynamoDB table name for loc.
func (r *Router) TableName(loc TableLocation) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.Project, loc.Dataset, loc.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	name := strings.Join(parts, r.NameDelimiter)
	if loc.Partition != "" {
		name += r.PartitionDelimiter + loc.Partition
	}
	return name
}

// Route resolves the destination key, table and schema of e.
func (r *Router) Route(e Element) (Route, error) {
	key, err := r.Destinations.GetDestination(e)
	if err != nil {
		return Route{}, fmt.Errorf("failed to resolve destination: %w", err)
	}
	return r.RouteKey(key)
}

// RouteKey resolves the table and schema of key.
func (r *Router) RouteKey(key DestinationKey) (Route, error) {
	loc, err := r.Destinations.GetTable(key)
	if err != nil {
		return Route{}, fmt.Errorf("failed to resolve table: %w", err)
	}

	schema, err := r.Destinations.GetSchema(key)
	if err != nil {
		return Route{}, fmt.Errorf("failed to resolve schema: %w", err)
	}

	return Route{
		Key:       key,
		Location:  loc,
		Schema:    schema,
		TableName: r.TableName(loc),
	}, nil
}

// MarshalItem marshals e into a DynamoDB item and checks that every required
// or key field of schema is present.
func MarshalItem(e Element, schema Schema) (Item, error) {
	av, err := attributevalue.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("failed to marshal item: %T does not marshal to a map", e)
	}
	item := m.Value

	var missing []string
	for _, f := range schema.Fields {
		if !f.Required() {
			continue
		}
		av, ok := item[f.Name]
		if _, null := av.(*types.AttributeValueMemberNULL); !ok || null {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required attributes %s", ErrSchemaViolation, strings.Join(missing, ", "))
	}

	return item, nil
}

// PutOptions configures a single put request.
type PutOptions struct {
	Condition   expression.ConditionBuilder // Optional condition on the existing item
	IfNotExists bool                        // If true, the put fails when the key already exists
}

// MarshalPut resolves the destination of e and marshals it into a put item request.
func (r *Router) MarshalPut(e Element, opts ...func(*PutOptions)) (*dynamodb.PutItemInput, error) {
	var putOpts PutOptions
	for _, opt := range opts {
		opt(&putOpts)
	}

	route, err := r.Route(e)
	if err != nil {
		return nil, err
	}

	item, err := MarshalItem(e, route.Schema)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(route.TableName),
		Item:      item,
	}

	cond := putOpts.Condition
	if putOpts.IfNotExists {
		hk, ok := route.Schema.KeyField(KeyHash)
		if !ok {
			return nil, fmt.Errorf("%w: table %s has no hash key for IfNotExists", ErrSchemaViolation, route.TableName)
		}
		notExists := expression.AttributeNotExists(expression.Name(hk.Name))
		if cond.IsSet() {
			cond = cond.And(notExists)
		} else {
			cond = notExists
		}
	}

	if cond.IsSet() {
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	return input, nil
}

// MarshalBatch groups elements by destination key and marshals them into batch
// write requests. Table and schema are resolved once per distinct key. Requests
// for each table are chunked in sizes of BatchSize or less, in first-seen order.
func (r *Router) MarshalBatch(elements []Element) ([]*dynamodb.BatchWriteItemInput, error) {
	var (
		routes = make(map[DestinationKey]Route)
		tables []string
		writes = make(map[string][]types.WriteRequest)
	)

	for i, e := range elements {
		key, err := r.Destinations.GetDestination(e)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve destination of element %d: %w", i, err)
		}
		if v := reflect.ValueOf(key); v.IsValid() && !v.Comparable() {
			return nil, fmt.Errorf("element %d: %w: %T", i, ErrKeyNotComparable, key)
		}

		route, ok := routes[key]
		if !ok {
			if route, err = r.RouteKey(key); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			routes[key] = route
		}

		item, err := MarshalItem(e, route.Schema)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		if _, seen := writes[route.TableName]; !seen {
			tables = append(tables, route.TableName)
		}
		writes[route.TableName] = append(writes[route.TableName], types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	size := r.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	var batches []*dynamodb.BatchWriteItemInput
	for _, table := range tables {
		requests := writes[table]
		for i := 0; i < len(requests); i += size {
			end := min(i+size, len(requests))
			batches = append(batches, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					table: requests[i:end],
				},
			})
		}
	}

	return batches, nil
}

// MarshalCreateTable marshals the table resolved for key into a create table
// request. The schema must define a hash key; a range key is optional.
func (r *Router) MarshalCreateTable(key DestinationKey) (*dynamodb.CreateTableInput, error) {
	route, err := r.RouteKey(key)
	if err != nil {
		return nil, err
	}
	return r.marshalCreateTable(route)
}

func (r *Router) marshalCreateTable(route Route) (*dynamodb.CreateTableInput, error) {
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(route.TableName),
		BillingMode: r.BillingMode,
	}

	for _, role := range []KeyRole{KeyHash, KeyRange} {
		f, ok := route.Schema.KeyField(role)
		if !ok {
			if role == KeyHash {
				return nil, fmt.Errorf("%w: table %s has no hash key", ErrSchemaViolation, route.TableName)
			}
			continue
		}

		attrType, err := scalarType(f)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", route.TableName, err)
		}

		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(f.Name),
			AttributeType: attrType,
		})
		input.KeySchema = append(input.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(f.Name),
			KeyType:       types.KeyType(role),
		})
	}

	if r.BillingMode == types.BillingModeProvisioned {
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		}
	}

	return input, nil
}

func scalarType(f Field) (types.ScalarAttributeType, error) {
	if f.Mode == ModeRepeated {
		return "", fmt.Errorf("%w: key %q cannot be repeated", ErrSchemaViolation, f.Name)
	}

	switch f.Type {
	case TypeString, TypeDate, TypeTime, TypeDatetime, TypeTimestamp:
		return types.ScalarAttributeTypeS, nil
	case TypeInteger, TypeFloat, TypeNumeric:
		return types.ScalarAttributeTypeN, nil
	case TypeBytes:
		return types.ScalarAttributeTypeB, nil
	}
	return "", errors.Join(ErrSchemaViolation, fmt.Errorf("key %q has non-scalar type %s", f.Name, f.Type))
}
