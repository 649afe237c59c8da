package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/dyndest"
)

// Seeder writes test elements to their resolved destination tables, creating
// the tables first when needed.
type Seeder struct {
	client      DynamoDBAPI
	router      *dyndest.Router
	provisioner *dyndest.Provisioner
}

// NewSeeder creates a Seeder that routes elements with router and writes them
// with client.
func NewSeeder(client DynamoDBAPI, router *dyndest.Router, opts ...func(*dyndest.ProvisionOptions)) *Seeder {
	return &Seeder{
		client:      client,
		router:      router,
		provisioner: router.Provisioner(client, opts...),
	}
}

// SeedJSON reads a JSON array of objects and seeds each object as an element.
// Returns the number of items written.
func (s *Seeder) SeedJSON(ctx context.Context, r io.Reader) (int, error) {
	var document []map[string]any
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return 0, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	elements := make([]dyndest.Element, len(document))
	for i, obj := range document {
		elements[i] = obj
	}
	return s.SeedElements(ctx, elements...)
}

// SeedElements ensures every destination table exists, then writes elements in
// batches. Returns the number of items written before any error.
func (s *Seeder) SeedElements(ctx context.Context, elements ...dyndest.Element) (int, error) {
	seen := make(map[dyndest.DestinationKey]bool)
	for i, e := range elements {
		key, err := s.router.Destinations.GetDestination(e)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve destination of element %d: %w", i, err)
		}
		if v := reflect.ValueOf(key); v.IsValid() && !v.Comparable() {
			return 0, fmt.Errorf("element %d: %w: %T", i, dyndest.ErrKeyNotComparable, key)
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		if _, err := s.provisioner.EnsureTable(ctx, key); err != nil {
			return 0, err
		}
	}

	batches, err := s.router.MarshalBatch(elements)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, batch := range batches {
		out, err := s.client.BatchWriteItem(ctx, batch)
		if err != nil {
			return count, fmt.Errorf("failed to write batch: %w", err)
		}
		if n := unprocessed(out); n > 0 {
			return count, fmt.Errorf("failed to write batch: %d unprocessed items", n)
		}
		for _, requests := range batch.RequestItems {
			count += len(requests)
		}
	}

	return count, nil
}

func unprocessed(out *dynamodb.BatchWriteItemOutput) int {
	if out == nil {
		return 0
	}
	n := 0
	for _, requests := range out.UnprocessedItems {
		n += len(requests)
	}
	return n
}
