// Package qdrant provides a vector driver backed by a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/shelf/pkg/vector"
)

const (
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// DefaultCollection is used when no collection is configured.
	DefaultCollection = "shelf_books"

	positionKey = "position"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the gRPC address, e.g. "localhost:6334".
	Target string

	// Collection is the name of the Qdrant collection.
	Collection string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint

	// APIKey authenticates against Qdrant Cloud.
	APIKey string
}

// Driver implements vector.Driver for Qdrant. Point ids are catalog positions
// and each point carries its position as payload so truncation can filter on it.
type Driver struct {
	client     *qdrant.Client
	collection string
	dims       int
	logger     *slog.Logger

	mu sync.Mutex
}

// NewDriver connects to Qdrant and creates the collection if it is missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	d := &Driver{
		client:     client,
		collection: collection,
		dims:       int(c.Dimensions),
		logger:     logger,
	}

	if err := d.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("qdrant vector driver initialized",
		"target", c.Target,
		"collection", collection,
		"dimensions", c.Dimensions,
	)

	return d, nil
}

func splitTarget(target string) (string, int, error) {
	if target == "" {
		return "localhost", DefaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, DefaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (d *Driver) ensureCollection(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(d.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", d.collection, err)
	}
	return nil
}

// Add upserts entries as points keyed by position.
func (d *Driver) Add(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	count, err := d.Count(ctx)
	if err != nil {
		return err
	}
	if err := vector.CheckEntries(entries, count, d.dims); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(e.Position)),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{positionKey: int64(e.Position)}),
		}
	}

	_, err = d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added entries to qdrant", "count", len(entries))
	return nil
}

// Query runs a cosine similarity search.
func (d *Driver) Query(ctx context.Context, embedding []float32, k int) ([]vector.Result, error) {
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensions, len(embedding), d.dims)
	}

	count, err := d.Count(ctx)
	if err != nil {
		return nil, err
	}
	k = vector.ClampK(k, count)
	if k == 0 {
		return nil, nil
	}

	resp, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.Result, len(resp))
	for i, scored := range resp {
		results[i] = vector.Result{
			Position: int(scored.GetId().GetNum()),
			Score:    float64(scored.GetScore()),
		}
	}
	return results, nil
}

// Count is the exact number of points in the collection.
func (d *Driver) Count(ctx context.Context) (int, error) {
	n, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting points: %w", vector.ErrConnection, err)
	}
	return int(n), nil
}

// Truncate deletes every point whose position is n or above.
func (d *Driver) Truncate(ctx context.Context, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewRange(positionKey, &qdrant.Range{Gte: qdrant.PtrOf(float64(max(n, 0)))}),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("truncating points: %w", err)
	}
	return nil
}

// Flush is a no-op: writes wait for Qdrant to apply them.
func (d *Driver) Flush(context.Context) error {
	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
