// Package assert provides fluent assertion utilities for testing the DynamoDB
// requests built by dyndest.
//
// # Usage
//
//	import "github.com/nisimpson/dyndest/dynamock/assert"
//
//	// Assert on batch write requests
//	assert.Batches(t, batches).
//		HasCount(2).
//		HasRequestCount("project.dataset.eu_table", 30)
//
//	// Assert on created tables
//	assert.CreateTable(t, input).
//		HasTableName("project.dataset.eu_table").
//		HasHashKey("id", types.ScalarAttributeTypeN)
//
//	// Assert on items
//	assert.Items(t, items).
//		HasCount(3).
//		HasAttribute("region", "EU")
package assert

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dyndest"
)

// TB is the subset of testing.TB used by the assertions.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
}

// BatchesAssertion provides fluent assertions for batch write requests.
type BatchesAssertion struct {
	t       TB
	batches []*dynamodb.BatchWriteItemInput
}

// Batches creates a new BatchesAssertion for the given batch write requests.
func Batches(t TB, batches []*dynamodb.BatchWriteItemInput) *BatchesAssertion {
	return &BatchesAssertion{
		t:       t,
		batches: batches,
	}
}

// HasCount asserts the number of batch requests.
func (a *BatchesAssertion) HasCount(expected int) *BatchesAssertion {
	a.t.Helper()
	if len(a.batches) != expected {
		a.t.Errorf("expected %d batches, got %d", expected, len(a.batches))
	}
	return a
}

// HasTable asserts that at least one batch writes to tableName.
func (a *BatchesAssertion) HasTable(tableName string) *BatchesAssertion {
	a.t.Helper()
	for _, batch := range a.batches {
		if _, ok := batch.RequestItems[tableName]; ok {
			return a
		}
	}
	a.t.Errorf("expected a batch for table %s", tableName)
	return a
}

// HasRequestCount asserts the total number of write requests for tableName
// across all batches.
func (a *BatchesAssertion) HasRequestCount(tableName string, expected int) *BatchesAssertion {
	a.t.Helper()
	var count int
	for _, batch := range a.batches {
		count += len(batch.RequestItems[tableName])
	}
	if count != expected {
		a.t.Errorf("expected %d requests for table %s, got %d", expected, tableName, count)
	}
	return a
}

// WithinLimit asserts that no batch exceeds dyndest.MaxBatchSize requests.
func (a *BatchesAssertion) WithinLimit() *BatchesAssertion {
	a.t.Helper()
	for i, batch := range a.batches {
		var count int
		for _, requests := range batch.RequestItems {
			count += len(requests)
		}
		if count > dyndest.MaxBatchSize {
			a.t.Errorf("batch %d has %d requests, limit is %d", i, count, dyndest.MaxBatchSize)
		}
	}
	return a
}

// Items returns the put request items for tableName across all batches.
func (a *BatchesAssertion) Items(tableName string) *ItemsAssertion {
	var items []dyndest.Item
	for _, batch := range a.batches {
		for _, req := range batch.RequestItems[tableName] {
			if req.PutRequest != nil {
				items = append(items, req.PutRequest.Item)
			}
		}
	}
	return Items(a.t, items)
}

// ItemsAssertion provides fluent assertions for DynamoDB items.
type ItemsAssertion struct {
	t     TB
	items []dyndest.Item
}

// Items creates a new ItemsAssertion for the given DynamoDB items.
func Items(t TB, items []dyndest.Item) *ItemsAssertion {
	return &ItemsAssertion{
		t:     t,
		items: items,
	}
}

// HasCount asserts that the items collection has the expected count.
func (a *ItemsAssertion) HasCount(expected int) *ItemsAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d items, got %d", expected, len(a.items))
	}
	return a
}

// HasAttribute asserts that every item has the string attribute with the
// expected value.
func (a *ItemsAssertion) HasAttribute(attributeName, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for i, item := range a.items {
		attr, ok := item[attributeName].(*types.AttributeValueMemberS)
		if !ok {
			a.t.Errorf("item %d has no string attribute %s", i, attributeName)
			continue
		}
		if attr.Value != expectedValue {
			a.t.Errorf("item %d attribute %s expected %s, got %s", i, attributeName, expectedValue, attr.Value)
		}
	}
	return a
}

// CreateTableAssertion provides fluent assertions for create table requests.
type CreateTableAssertion struct {
	t     TB
	input *dynamodb.CreateTableInput
}

// CreateTable creates a new CreateTableAssertion for the given request.
func CreateTable(t TB, input *dynamodb.CreateTableInput) *CreateTableAssertion {
	return &CreateTableAssertion{
		t:     t,
		input: input,
	}
}

// HasTableName asserts the name of the created table.
func (a *CreateTableAssertion) HasTableName(expected string) *CreateTableAssertion {
	a.t.Helper()
	if got := aws.ToString(a.input.TableName); got != expected {
		a.t.Errorf("expected table name %s, got %s", expected, got)
	}
	return a
}

// HasHashKey asserts the hash key attribute and its type.
func (a *CreateTableAssertion) HasHashKey(name string, attrType types.ScalarAttributeType) *CreateTableAssertion {
	a.t.Helper()
	a.hasKey(types.KeyTypeHash, name, attrType)
	return a
}

// HasRangeKey asserts the range key attribute and its type.
func (a *CreateTableAssertion) HasRangeKey(name string, attrType types.ScalarAttributeType) *CreateTableAssertion {
	a.t.Helper()
	a.hasKey(types.KeyTypeRange, name, attrType)
	return a
}

// HasNoRangeKey asserts that the table has a simple primary key.
func (a *CreateTableAssertion) HasNoRangeKey() *CreateTableAssertion {
	a.t.Helper()
	for _, k := range a.input.KeySchema {
		if k.KeyType == types.KeyTypeRange {
			a.t.Errorf("expected no range key, got %s", aws.ToString(k.AttributeName))
		}
	}
	return a
}

// HasBillingMode asserts the billing mode of the created table.
func (a *CreateTableAssertion) HasBillingMode(expected types.BillingMode) *CreateTableAssertion {
	a.t.Helper()
	if a.input.BillingMode != expected {
		a.t.Errorf("expected billing mode %s, got %s", expected, a.input.BillingMode)
	}
	return a
}

func (a *CreateTableAssertion) hasKey(keyType types.KeyType, name string, attrType types.ScalarAttributeType) {
	a.t.Helper()

	var found bool
	for _, k := range a.input.KeySchema {
		if k.KeyType == keyType && aws.ToString(k.AttributeName) == name {
			found = true
		}
	}
	if !found {
		a.t.Errorf("expected %s key %s", keyType, name)
		return
	}

	for _, def := range a.input.AttributeDefinitions {
		if aws.ToString(def.AttributeName) == name {
			if def.AttributeType != attrType {
				a.t.Errorf("key %s expected type %s, got %s", name, attrType, def.AttributeType)
			}
			return
		}
	}
	a.t.Errorf("key %s has no attribute definition", name)
}
