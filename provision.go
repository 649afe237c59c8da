package dyndest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"
)

// TableAPI is the subset of the DynamoDB client needed to provision tables.
type TableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// ProvisionOptions configures a [Provisioner].
type ProvisionOptions struct {
	Wait    bool          // If true, EnsureTable waits for new tables to become active
	MaxWait time.Duration // Upper bound on the wait. Default is 5 minutes.
	Logger  *slog.Logger  // Receives provisioning events. Default discards them.

	// Limiter throttles DescribeTable and CreateTable calls. Nil means
	// unlimited.
	Limiter *rate.Limiter
}

// Provisioner creates destination tables from their resolved schemas when
// they do not exist yet. Each table is checked at most once per Provisioner.
type Provisioner struct {
	router *Router
	client TableAPI
	opts   ProvisionOptions
	ready  sync.Map // table name -> struct{}
}

// Provisioner returns a Provisioner that creates missing tables with client.
func (r *Router) Provisioner(client TableAPI, opts ...func(*ProvisionOptions)) *Provisioner {
	options := ProvisionOptions{
		Wait:    true,
		MaxWait: 5 * time.Minute,
		Logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Provisioner{
		router: r,
		client: client,
		opts:   options,
	}
}

// EnsureTable resolves the table for key and creates it if it does not exist.
// It returns the physical table name.
func (p *Provisioner) EnsureTable(ctx context.Context, key DestinationKey) (string, error) {
	route, err := p.router.RouteKey(key)
	if err != nil {
		return "", err
	}

	name := route.TableName
	if _, ok := p.ready.Load(name); ok {
		return name, nil
	}

	log := p.opts.Logger.With("table", name, "location", route.Location.String())

	if err := p.wait(ctx); err != nil {
		return "", fmt.Errorf("failed to describe table %s: %w", name, err)
	}
	out, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})

	var notFound *types.ResourceNotFoundException
	switch {
	case err == nil:
		if out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			p.ready.Store(name, struct{}{})
			return name, nil
		}
		log.DebugContext(ctx, "table exists but is not active")
	case errors.As(err, &notFound):
		if err := p.createTable(ctx, route, log); err != nil {
			return "", err
		}
	default:
		log.ErrorContext(ctx, "describe table failed", "code", errorCode(err))
		return "", fmt.Errorf("failed to describe table %s: %w", name, err)
	}

	if p.opts.Wait {
		waiter := dynamodb.NewTableExistsWaiter(p.client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, p.opts.MaxWait); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrTableNotReady, name, err)
		}
		log.InfoContext(ctx, "table active")
	}

	p.ready.Store(name, struct{}{})
	return name, nil
}

func (p *Provisioner) createTable(ctx context.Context, route Route, log *slog.Logger) error {
	input, err := p.router.marshalCreateTable(route)
	if err != nil {
		return err
	}

	if err := p.wait(ctx); err != nil {
		return fmt.Errorf("failed to create table %s: %w", route.TableName, err)
	}
	_, err = p.client.CreateTable(ctx, input)

	var inUse *types.ResourceInUseException
	switch {
	case err == nil:
		log.InfoContext(ctx, "table created", "billing_mode", string(input.BillingMode))
	case errors.As(err, &inUse):
		// Another worker created it first.
		log.DebugContext(ctx, "table already being created")
	default:
		log.ErrorContext(ctx, "create table failed", "code", errorCode(err))
		return fmt.Errorf("failed to create table %s: %w", route.TableName, err)
	}

	return nil
}

func (p *Provisioner) wait(ctx context.Context) error {
	if p.opts.Limiter == nil {
		return nil
	}
	return p.opts.Limiter.Wait(ctx)
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return "unknown"
}
