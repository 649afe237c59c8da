package dyndest_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dyndest"
	"github.com/nisimpson/dyndest/dynamock"
	"github.com/nisimpson/dyndest/dynamock/assert"
	"github.com/stretchr/testify/require"
)

var (
	euLocation = dyndest.TableLocation{Project: "project", Dataset: "dataset", Table: "eu_table"}
	usLocation = dyndest.TableLocation{Dataset: "dataset", Table: "us_table", Partition: "2025"}

	eventSchema = dyndest.Schema{Fields: []dyndest.Field{
		{Name: "id", Type: dyndest.TypeInteger, Key: dyndest.KeyHash},
		{Name: "ts", Type: dyndest.TypeTimestamp, Key: dyndest.KeyRange},
		{Name: "region", Type: dyndest.TypeString, Mode: dyndest.ModeRequired},
		{Name: "note", Type: dyndest.TypeString},
	}}
)

func newEventRoutes() *dynamock.Routes {
	return dynamock.NewRoutes(
		dynamock.WithKeyField("region"),
		dynamock.WithRoute("EU", euLocation, eventSchema),
		dynamock.WithRoute("US", usLocation, eventSchema),
	)
}

func event(id int, region string) map[string]any {
	return map[string]any{
		"id":     id,
		"ts":     "2025-01-01T00:00:00Z",
		"region": region,
	}
}

func TestNewRouter(t *testing.T) {
	router := dyndest.NewRouter(newEventRoutes().Destinations(t))

	if router.NameDelimiter != "." {
		t.Errorf("Expected name delimiter '.', got %s", router.NameDelimiter)
	}
	if router.PartitionDelimiter != "_" {
		t.Errorf("Expected partition delimiter '_', got %s", router.PartitionDelimiter)
	}
	if router.BatchSize != dyndest.MaxBatchSize {
		t.Errorf("Expected batch size %d, got %d", dyndest.MaxBatchSize, router.BatchSize)
	}
	if router.BillingMode != types.BillingModePayPerRequest {
		t.Errorf("Expected billing mode PAY_PER_REQUEST, got %s", router.BillingMode)
	}
}

func TestRouterTableName(t *testing.T) {
	router := dyndest.NewRouter(nil)

	require.Equal(t, "project.dataset.eu_table", router.TableName(euLocation))
	require.Equal(t, "dataset.us_table_2025", router.TableName(usLocation))
	require.Equal(t, "events", router.TableName(dyndest.TableLocation{Table: "events"}))

	router.NameDelimiter = "-"
	router.PartitionDelimiter = "--"
	require.Equal(t, "dataset-us_table--2025", router.TableName(usLocation))
}

func TestRouterRoute(t *testing.T) {
	router := dyndest.NewRouter(newEventRoutes().Destinations(t))

	route, err := router.Route(event(1, "EU"))
	require.NoError(t, err)
	require.Equal(t, "EU", route.Key)
	require.Equal(t, euLocation, route.Location)
	require.Equal(t, eventSchema, route.Schema)
	require.Equal(t, "project.dataset.eu_table", route.TableName)

	t.Run("unknown key", func(t *testing.T) {
		_, err := router.Route(event(1, "APAC"))
		require.ErrorContains(t, err, "failed to resolve table")
	})

	t.Run("type mismatch stays visible", func(t *testing.T) {
		routes := newEventRoutes()
		dynamock.WithTableValue("EU", 42)(routes)
		router := dyndest.NewRouter(routes.Destinations(t))

		_, err := router.Route(event(1, "EU"))
		var mismatch *dyndest.TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		require.Equal(t, dyndest.StageTable, mismatch.Stage)
	})
}

func TestMarshalItem(t *testing.T) {
	t.Run("valid element", func(t *testing.T) {
		item, err := dyndest.MarshalItem(event(7, "EU"), eventSchema)
		require.NoError(t, err)

		assert.Items(t, []dyndest.Item{item}).HasAttribute("region", "EU")
		require.Equal(t, &types.AttributeValueMemberN{Value: "7"}, item["id"])
	})

	t.Run("missing required attributes", func(t *testing.T) {
		_, err := dyndest.MarshalItem(map[string]any{"id": 7, "region": nil}, eventSchema)
		require.ErrorIs(t, err, dyndest.ErrSchemaViolation)
		require.ErrorContains(t, err, "ts, region")
	})

	t.Run("unmarshalable element", func(t *testing.T) {
		_, err := dyndest.MarshalItem(make(chan int), eventSchema)
		require.Error(t, err)
		require.NotErrorIs(t, err, dyndest.ErrSchemaViolation)
	})
}

func TestRouterMarshalPut(t *testing.T) {
	router := dyndest.NewRouter(newEventRoutes().Destinations(t))

	t.Run("basic put", func(t *testing.T) {
		input, err := router.MarshalPut(event(1, "US"))
		require.NoError(t, err)

		require.Equal(t, "dataset.us_table_2025", aws.ToString(input.TableName))
		require.Nil(t, input.ConditionExpression)
		assert.Items(t, []dyndest.Item{input.Item}).HasAttribute("region", "US")
	})

	t.Run("if not exists", func(t *testing.T) {
		input, err := router.MarshalPut(event(1, "EU"), func(opts *dyndest.PutOptions) {
			opts.IfNotExists = true
		})
		require.NoError(t, err)

		require.NotNil(t, input.ConditionExpression)
		require.Contains(t, aws.ToString(input.ConditionExpression), "attribute_not_exists")
		require.Contains(t, input.ExpressionAttributeNames, "#0")
		require.Equal(t, "id", input.ExpressionAttributeNames["#0"])
	})

	t.Run("custom condition", func(t *testing.T) {
		input, err := router.MarshalPut(event(1, "EU"), func(opts *dyndest.PutOptions) {
			opts.Condition = expression.Name("note").AttributeNotExists()
			opts.IfNotExists = true
		})
		require.NoError(t, err)

		require.Contains(t, aws.ToString(input.ConditionExpression), "AND")
		require.Len(t, input.ExpressionAttributeNames, 2)
	})

	t.Run("if not exists without hash key", func(t *testing.T) {
		schema := dyndest.Schema{Fields: []dyndest.Field{{Name: "region", Type: dyndest.TypeString}}}
		routes := dynamock.NewRoutes(dynamock.WithKeyField("region"), dynamock.WithRoute("EU", euLocation, schema))
		router := dyndest.NewRouter(routes.Destinations(t))

		_, err := router.MarshalPut(event(1, "EU"), func(opts *dyndest.PutOptions) {
			opts.IfNotExists = true
		})
		require.ErrorIs(t, err, dyndest.ErrSchemaViolation)
	})

	t.Run("key resolver error", func(t *testing.T) {
		_, err := router.MarshalPut("not a map")
		require.ErrorContains(t, err, "failed to resolve destination")
	})
}

// countingRoutes counts table and schema resolutions.
type countingRoutes struct {
	*dynamock.Routes
	tables, schemas int
}

func (c *countingRoutes) ResolveTable(key dyndest.DestinationKey) (any, error) {
	c.tables++
	return c.Routes.ResolveTable(key)
}

func (c *countingRoutes) ResolveSchema(key dyndest.DestinationKey) (any, error) {
	c.schemas++
	return c.Routes.ResolveSchema(key)
}

func TestRouterMarshalBatch(t *testing.T) {
	t.Run("groups by destination", func(t *testing.T) {
		counting := &countingRoutes{Routes: newEventRoutes()}
		dest, err := dyndest.New(counting, counting, counting)
		require.NoError(t, err)
		router := dyndest.NewRouter(dest)

		var elements []dyndest.Element
		for i := 0; i < 30; i++ {
			elements = append(elements, event(i, "EU"))
		}
		for i := 0; i < 3; i++ {
			elements = append(elements, event(100+i, "US"))
		}

		batches, err := router.MarshalBatch(elements)
		require.NoError(t, err)

		assert.Batches(t, batches).
			HasCount(3).
			WithinLimit().
			HasRequestCount("project.dataset.eu_table", 30).
			HasRequestCount("dataset.us_table_2025", 3).
			Items("dataset.us_table_2025").
			HasAttribute("region", "US")

		require.Equal(t, 2, counting.tables)
		require.Equal(t, 2, counting.schemas)

		// First-seen order: the EU table comes first.
		require.Contains(t, batches[0].RequestItems, "project.dataset.eu_table")
		require.Len(t, batches[0].RequestItems["project.dataset.eu_table"], 25)
		require.Len(t, batches[1].RequestItems["project.dataset.eu_table"], 5)
	})

	t.Run("custom batch size", func(t *testing.T) {
		router := dyndest.NewRouter(newEventRoutes().Destinations(t))
		router.BatchSize = 10

		var elements []dyndest.Element
		for i := 0; i < 21; i++ {
			elements = append(elements, event(i, "EU"))
		}

		batches, err := router.MarshalBatch(elements)
		require.NoError(t, err)
		assert.Batches(t, batches).HasCount(3).HasRequestCount("project.dataset.eu_table", 21)
	})

	t.Run("empty input", func(t *testing.T) {
		router := dyndest.NewRouter(newEventRoutes().Destinations(t))

		batches, err := router.MarshalBatch(nil)
		require.NoError(t, err)
		require.Empty(t, batches)
	})

	t.Run("non-comparable key", func(t *testing.T) {
		keyFn := dyndest.KeyFunc(func(e dyndest.Element) (dyndest.DestinationKey, error) {
			return []string{"EU"}, nil
		})
		routes := newEventRoutes()
		dest, err := dyndest.New(&keyFn, routes, routes)
		require.NoError(t, err)

		_, err = dyndest.NewRouter(dest).MarshalBatch([]dyndest.Element{event(1, "EU")})
		require.ErrorIs(t, err, dyndest.ErrKeyNotComparable)
	})

	t.Run("resolver error", func(t *testing.T) {
		boom := errors.New("boom")
		keyFn := dyndest.KeyFunc(func(e dyndest.Element) (dyndest.DestinationKey, error) {
			return nil, boom
		})
		routes := newEventRoutes()
		dest, err := dyndest.New(&keyFn, routes, routes)
		require.NoError(t, err)

		_, err = dyndest.NewRouter(dest).MarshalBatch([]dyndest.Element{event(1, "EU")})
		require.ErrorIs(t, err, boom)
		require.ErrorContains(t, err, "element 0")
	})

	t.Run("schema violation", func(t *testing.T) {
		router := dyndest.NewRouter(newEventRoutes().Destinations(t))

		_, err := router.MarshalBatch([]dyndest.Element{event(1, "EU"), map[string]any{"region": "EU"}})
		require.ErrorIs(t, err, dyndest.ErrSchemaViolation)
		require.ErrorContains(t, err, "element 1")
	})
}

func TestRouterMarshalCreateTable(t *testing.T) {
	t.Run("composite key", func(t *testing.T) {
		router := dyndest.NewRouter(newEventRoutes().Destinations(t))

		input, err := router.MarshalCreateTable("EU")
		require.NoError(t, err)

		assert.CreateTable(t, input).
			HasTableName("project.dataset.eu_table").
			HasHashKey("id", types.ScalarAttributeTypeN).
			HasRangeKey("ts", types.ScalarAttributeTypeS).
			HasBillingMode(types.BillingModePayPerRequest)
		require.Nil(t, input.ProvisionedThroughput)
	})

	t.Run("provisioned billing", func(t *testing.T) {
		router := dyndest.NewRouter(newEventRoutes().Destinations(t))
		router.BillingMode = types.BillingModeProvisioned

		input, err := router.MarshalCreateTable("US")
		require.NoError(t, err)
		require.NotNil(t, input.ProvisionedThroughput)
		assert.CreateTable(t, input).HasTableName("dataset.us_table_2025")
	})

	keyTypes := map[dyndest.FieldType]types.ScalarAttributeType{
		dyndest.TypeString:  types.ScalarAttributeTypeS,
		dyndest.TypeDate:    types.ScalarAttributeTypeS,
		dyndest.TypeNumeric: types.ScalarAttributeTypeN,
		dyndest.TypeBytes:   types.ScalarAttributeTypeB,
	}
	for fieldType, attrType := range keyTypes {
		t.Run(fmt.Sprintf("%s hash key", fieldType), func(t *testing.T) {
			schema := dyndest.Schema{Fields: []dyndest.Field{{Name: "pk", Type: fieldType, Key: dyndest.KeyHash}}}
			routes := dynamock.NewRoutes(dynamock.WithRoute("K", euLocation, schema))

			input, err := dyndest.NewRouter(routes.Destinations(t)).MarshalCreateTable("K")
			require.NoError(t, err)
			assert.CreateTable(t, input).HasHashKey("pk", attrType).HasNoRangeKey()
		})
	}

	invalid := map[string]dyndest.Schema{
		"no hash key":   {Fields: []dyndest.Field{{Name: "id", Type: dyndest.TypeString}}},
		"boolean key":   {Fields: []dyndest.Field{{Name: "flag", Type: dyndest.TypeBoolean, Key: dyndest.KeyHash}}},
		"repeated key":  {Fields: []dyndest.Field{{Name: "ids", Type: dyndest.TypeString, Mode: dyndest.ModeRepeated, Key: dyndest.KeyHash}}},
		"record as key": {Fields: []dyndest.Field{{Name: "r", Type: dyndest.TypeRecord, Key: dyndest.KeyHash, Fields: []dyndest.Field{{Name: "x", Type: dyndest.TypeString}}}}},
	}
	for name, schema := range invalid {
		t.Run(name, func(t *testing.T) {
			routes := dynamock.NewRoutes(dynamock.WithRoute("K", euLocation, schema))

			_, err := dyndest.NewRouter(routes.Destinations(t)).MarshalCreateTable("K")
			require.ErrorIs(t, err, dyndest.ErrSchemaViolation)
		})
	}
}
