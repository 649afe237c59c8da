// Package dynamock provides testing utilities for the dyndest library.
//
// This package includes:
//   - Expectation-based mock DynamoDB client for unit testing
//   - Table-driven resolvers (Routes) built with functional options
//   - Local DynamoDB client helpers for integration tests
//   - A Seeder that provisions destination tables and writes JSON fixtures
//
// # Mock Client
//
// The MockClient fails the test on any call without an expectation:
//
//	mock := dynamock.NewMockClient(t)
//	mock.DescribeTableFunc = func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
//		return nil, &types.ResourceNotFoundException{}
//	}
//
// # Routes
//
//	routes := dynamock.NewRoutes(
//		dynamock.WithKeyField("region"),
//		dynamock.WithRoute("EU", euTable, euSchema),
//	)
//	dest := routes.Destinations(t)
//
// # Seeding
//
//	dynamock.WithLocalDynamoDB(t, dynamock.DefaultLocalPort, func(local *dynamock.LocalDynamoDB) {
//		seeder := dynamock.NewSeeder(local.Client, dyndest.NewRouter(dest))
//		count, err := seeder.SeedJSON(ctx, fixtures)
//	})
package dynamock
