// Package vectorutils builds the configured vector driver.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/shelf/pkg/vector"
	"github.com/papercomputeco/shelf/pkg/vector/flat"
	"github.com/papercomputeco/shelf/pkg/vector/qdrant"
	"github.com/papercomputeco/shelf/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	Target       string
	Collection   string
	Dimensions   uint
	APIKey       string
	Logger       *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "", "flat":
		return flat.NewDriver(flat.Config{
			Path:       o.Target,
			Dimensions: int(o.Dimensions),
		}, o.Logger)
	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:     o.Target,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			APIKey:     o.APIKey,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
