package engine

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
)

// Migrate copies every record of the given collections from src to dst,
// keeping ids and timestamps. This works for:
// - Embedded -> SQL (the upgrade)
// - SQL -> Embedded (backup/offline)
// - Embedded or SQL -> Remote daemon
// It returns the number of records copied.
func Migrate(ctx context.Context, src recordstore.Reader, dst recordstore.Restorer, collections ...string) (int, error) {
	copied := 0
	for _, collection := range collections {
		recs, err := src.FindMany(ctx, collection, recordstore.Query{})
		if err != nil {
			return copied, fmt.Errorf("failed to list %s: %w", collection, err)
		}
		for _, rec := range recs {
			if err := dst.Restore(ctx, collection, rec); err != nil {
				return copied, fmt.Errorf("failed to restore %s/%s: %w", collection, rec.ID(), err)
			}
			copied++
		}
	}
	return copied, nil
}
