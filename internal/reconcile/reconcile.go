// Package reconcile finds blobs in the project namespace that no longer decode
// into a project owning their key, and removes them.
//
// It is an administrative job and never runs during normal request flow.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"projectstore/internal/codec"
	"projectstore/internal/keys"
	"projectstore/internal/metrics"
	"projectstore/internal/storage"
)

// Item outcomes.
const (
	StatusValid   = "valid"
	StatusDeleted = "deleted"
	StatusOrphan  = "orphan"
	StatusErrored = "errored"
)

const defaultConcurrency = 8

// Options control a single scan.
type Options struct {
	// DryRun reports orphans without deleting them.
	DryRun bool
}

// ItemResult is the outcome for one key.
type ItemResult struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes a scan. Items are ordered by key.
type Report struct {
	DryRun  bool         `json:"dry_run"`
	Total   int          `json:"total"`
	Valid   int          `json:"valid"`
	Deleted int          `json:"deleted"`
	Orphans int          `json:"orphans"`
	Errored int          `json:"errored"`
	Items   []ItemResult `json:"items"`
}

type Reconciler struct {
	backend     storage.Backend
	keys        *keys.Resolver
	log         *zap.Logger
	metrics     *metrics.Store
	concurrency int
}

// New returns a reconciler. A nil backend makes every scan fail with
// storage.ErrNotConfigured.
func New(backend storage.Backend, resolver *keys.Resolver, log *zap.Logger, m *metrics.Store, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = keys.NewResolver(keys.DefaultNamespace)
	}
	return &Reconciler{
		backend:     backend,
		keys:        resolver,
		log:         log.Named("reconciler"),
		metrics:     m,
		concurrency: concurrency,
	}
}

// Scan visits every blob under the namespace. Per-blob failures are recorded
// in the report; only a missing backend or a failed listing is an error.
func (r *Reconciler) Scan(ctx context.Context, opt Options) (*Report, error) {
	if r.backend == nil {
		return nil, fmt.Errorf("%w: reconcile: %w", storage.ErrUnavailable, storage.ErrNotConfigured)
	}
	prefix := r.keys.Prefix()
	objs, err := r.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", storage.ErrUnavailable, prefix, err)
	}

	items := make([]ItemResult, len(objs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, obj := range objs {
		g.Go(func() error {
			items[i] = r.visit(ctx, obj.Key, opt.DryRun)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	rep := &Report{DryRun: opt.DryRun, Total: len(items), Items: items}
	for _, it := range items {
		r.metrics.ReconcileItem(it.Status)
		switch it.Status {
		case StatusValid:
			rep.Valid++
		case StatusDeleted:
			rep.Deleted++
		case StatusOrphan:
			rep.Orphans++
		case StatusErrored:
			rep.Errored++
		}
	}
	r.log.Info("reconcile_finished",
		zap.Bool("dry_run", opt.DryRun),
		zap.Int("total", rep.Total),
		zap.Int("valid", rep.Valid),
		zap.Int("deleted", rep.Deleted),
		zap.Int("orphans", rep.Orphans),
		zap.Int("errored", rep.Errored),
	)
	return rep, nil
}

func (r *Reconciler) visit(ctx context.Context, key string, dryRun bool) ItemResult {
	b, err := r.backend.Fetch(ctx, key)
	if err != nil {
		r.log.Warn("reconcile_fetch_failed", zap.String("key", key), zap.Error(err))
		return ItemResult{Key: key, Status: StatusErrored, Error: err.Error()}
	}

	reason := ""
	doc, err := codec.Decode(b)
	switch {
	case err != nil:
		reason = err.Error()
	case !r.keys.Owns(key, doc.ID):
		reason = fmt.Sprintf("key not owned by project %s", doc.ID)
	default:
		return ItemResult{Key: key, Status: StatusValid}
	}

	if dryRun {
		return ItemResult{Key: key, Status: StatusOrphan, Reason: reason}
	}
	if _, err := r.backend.Delete(ctx, key); err != nil {
		r.log.Warn("reconcile_delete_failed", zap.String("key", key), zap.Error(err))
		return ItemResult{Key: key, Status: StatusErrored, Reason: reason, Error: err.Error()}
	}
	r.log.Info("reconcile_orphan_deleted", zap.String("key", key), zap.String("reason", reason))
	return ItemResult{Key: key, Status: StatusDeleted, Reason: reason}
}
