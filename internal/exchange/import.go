package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"golang.org/x/sync/errgroup"
)

// Importer applies bundles received from peers to a store.
type Importer struct {
	Store *mutation.Store
	// Workers bounds parallel decoding. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Import decodes every bundle in parallel, then applies all entries to the
// store as one batch. A malformed bundle fails the whole call before the
// store is touched. Entries rejected by the store are reported in the
// returned error alongside the counts; the accepted ones are kept.
func (im *Importer) Import(ctx context.Context, bundles ...[]byte) (mutation.ImportResult, error) {
	logger := im.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := im.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	decoded := make([][]mutation.Entry, len(bundles))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range bundles {
		i, raw := i, raw
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			es, err := ReadBundle(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("bundle %d: %w", i, err)
			}
			decoded[i] = es
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return mutation.ImportResult{}, err
	}

	var all []mutation.Entry
	for _, es := range decoded {
		all = append(all, es...)
	}
	res, err := im.Store.Import(all)
	logger.Info("mutation bundles imported",
		"bundles", len(bundles),
		"added", res.Added,
		"duplicates", res.Duplicates,
		"rejected", res.Rejected)
	return res, err
}
