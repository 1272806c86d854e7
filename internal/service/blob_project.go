package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"projectstore/internal/codec"
	"projectstore/internal/keys"
	"projectstore/internal/metrics"
	"projectstore/internal/model"
	"projectstore/internal/storage"
)

// DefaultFetchConcurrency caps parallel blob fetches when Options leaves it unset.
const DefaultFetchConcurrency = 8

// Options tune the object storage adapter.
type Options struct {
	// FetchConcurrency bounds parallel fetches during a listing.
	FetchConcurrency int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// blobProjectService stores each project as one JSON blob. It is the only
// component that reads and writes project blobs during normal request flow.
type blobProjectService struct {
	backend     storage.Backend
	keys        *keys.Resolver
	log         *zap.Logger
	metrics     *metrics.Store
	concurrency int
	now         func() time.Time
	tracer      trace.Tracer
}

// NewBlobProjectService constructs a ProjectService over an object store.
// A nil backend means storage is not configured: listings degrade to sample
// data and writes fail with ErrBackendUnavailable.
func NewBlobProjectService(backend storage.Backend, resolver *keys.Resolver, log *zap.Logger, m *metrics.Store, opts Options) ProjectService {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultFetchConcurrency
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = keys.NewResolver(keys.DefaultNamespace)
	}
	return &blobProjectService{
		backend:     backend,
		keys:        resolver,
		log:         log.Named("project_store"),
		metrics:     m,
		concurrency: opts.FetchConcurrency,
		now:         opts.Now,
		tracer:      otel.Tracer("projectstore/internal/service"),
	}
}

func (s *blobProjectService) notConfigured(op string) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, storage.ErrNotConfigured)
}

func (s *blobProjectService) Create(ctx context.Context, in model.Project) (*model.Project, error) {
	ctx, span := s.tracer.Start(ctx, "ProjectStore.Create")
	defer span.End()

	doc, err := prepareNew(in, s.now())
	if err != nil {
		return nil, err
	}
	if s.backend == nil {
		return nil, s.notConfigured("create")
	}
	span.SetAttributes(attribute.String("project.id", doc.ID))

	key := s.keys.CanonicalKey(doc.ID)
	if in.ID != "" {
		// Re-creating an id keeps its original creation time.
		if prev, err := s.fetchDocument(ctx, key); err == nil && prev.ID == doc.ID && !prev.CreatedAt.IsZero() {
			doc.CreatedAt = prev.CreatedAt
		}
	}

	stored, err := s.write(ctx, key, doc)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	s.log.Info("project_created", zap.String("id", doc.ID), zap.String("key", key))
	return stored, nil
}

func (s *blobProjectService) List(ctx context.Context) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "ProjectStore.List")
	defer span.End()

	if s.backend == nil {
		s.log.Info("project_list_degraded", zap.String("reason", DegradedNotConfigured))
		s.metrics.ListDegraded(DegradedNotConfigured)
		span.SetAttributes(attribute.String("degraded.reason", DegradedNotConfigured))
		return degradedResult(DegradedNotConfigured), nil
	}

	items, err := s.collect(ctx)
	if err != nil {
		reason := DegradedListFailed
		pingErr := s.backend.Ping(ctx)
		if pingErr != nil {
			reason = DegradedUnreachable
		}
		s.log.Error("project_list_degraded",
			zap.String("reason", reason),
			zap.String("backend", s.backend.Name()),
			zap.Error(err),
			zap.NamedError("ping_error", pingErr),
		)
		s.metrics.ListDegraded(reason)
		span.SetAttributes(attribute.String("degraded.reason", reason))
		recordErr(span, err)
		return degradedResult(reason), nil
	}
	return &ListResult{Items: items, Total: len(items)}, nil
}

// Get reads the listing rather than the object directly: list and direct get
// can be served from different consistency domains, and the listing also
// covers legacy keys.
func (s *blobProjectService) Get(ctx context.Context, id string) (*model.Project, error) {
	ctx, span := s.tracer.Start(ctx, "ProjectStore.Get", trace.WithAttributes(attribute.String("project.id", id)))
	defer span.End()

	if err := validateID(id); err != nil {
		return nil, err
	}
	if s.backend == nil {
		return nil, s.notConfigured("get")
	}
	items, err := s.collect(ctx)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *blobProjectService) Update(ctx context.Context, id string, patch model.ProjectPatch) (*model.Project, error) {
	ctx, span := s.tracer.Start(ctx, "ProjectStore.Update", trace.WithAttributes(attribute.String("project.id", id)))
	defer span.End()

	patch, err := preparePatch(patch)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*current)
	next.ID = current.ID
	next.UpdatedAt = s.now()
	next.Storage = nil

	key := s.keys.CanonicalKey(id)
	stored, err := s.write(ctx, key, next)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	if current.Storage != nil && current.Storage.Key != key {
		s.log.Info("project_moved_to_canonical_key",
			zap.String("id", id),
			zap.String("from", current.Storage.Key),
			zap.String("to", key),
		)
	}
	s.log.Info("project_updated", zap.String("id", id), zap.String("key", key))
	return stored, nil
}

// Delete tries the canonical key, then each legacy key in order, and stops at
// the first key holding this project. Key schemes overlap across ids (the v1
// key of "project_x" is the canonical key of "x"), so a blob is only removed
// after it decodes to the requested id.
func (s *blobProjectService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	ctx, span := s.tracer.Start(ctx, "ProjectStore.Delete", trace.WithAttributes(attribute.String("project.id", id)))
	defer span.End()

	if err := validateID(id); err != nil {
		return nil, err
	}
	if s.backend == nil {
		return nil, s.notConfigured("delete")
	}

	candidates := append([]string{s.keys.CanonicalKey(id)}, s.keys.LegacyKeyCandidates(id)...)
	var errs []error
	for i, key := range candidates {
		doc, err := s.fetchDocument(ctx, key)
		switch {
		case errors.Is(err, storage.ErrObjectNotFound):
			continue
		case errors.Is(err, codec.ErrInvalidDocument):
			s.log.Warn("project_delete_key_skipped", zap.String("id", id), zap.String("key", key), zap.Error(err))
			continue
		case err != nil:
			s.log.Warn("project_delete_key_failed", zap.String("id", id), zap.String("key", key), zap.Error(err))
			errs = append(errs, fmt.Errorf("fetch %s: %w", key, err))
			continue
		}
		if doc.ID != id {
			s.log.Warn("project_delete_key_skipped",
				zap.String("id", id),
				zap.String("key", key),
				zap.String("holds", doc.ID),
			)
			continue
		}

		found, err := s.backend.Delete(ctx, key)
		if err != nil {
			s.log.Warn("project_delete_key_failed", zap.String("id", id), zap.String("key", key), zap.Error(err))
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		if !found {
			continue
		}

		kind := "canonical"
		if i > 0 {
			kind = "legacy"
		}
		s.log.Info("project_deleted",
			zap.String("id", id),
			zap.String("key", key),
			zap.String("match", kind),
			zap.Int("candidate", i),
		)
		s.metrics.DeleteMatched(kind)
		span.SetAttributes(attribute.String("project.deleted_key", key))
		return &DeleteResult{ID: id, DeletedKey: key, Legacy: i > 0}, nil
	}

	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrBackendUnavailable, errors.Join(errs...))
		recordErr(span, err)
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// write encodes doc and overwrites key with it.
func (s *blobProjectService) write(ctx context.Context, key string, doc model.Project) (*model.Project, error) {
	data, err := codec.Encode(doc)
	if err != nil {
		return nil, err
	}
	info, err := s.backend.Put(ctx, key, data, storage.PutObjectOptions{
		Overwrite:   true,
		ContentType: codec.ContentType,
		Metadata:    map[string]string{"project-id": doc.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: put %s: %v", ErrBackendUnavailable, key, err)
	}
	doc.Storage = &model.StorageRef{Key: key, ETag: info.ETag, URL: s.objectURL(ctx, key, info.URL)}
	return &doc, nil
}

// objectURL returns known when the driver already filled it, otherwise asks
// the backend. A URL that cannot be produced is left empty; the project is
// still readable without it.
func (s *blobProjectService) objectURL(ctx context.Context, key, known string) string {
	if known != "" {
		return known
	}
	u, err := s.backend.URL(ctx, key)
	if err != nil {
		s.log.Debug("project_url_unavailable", zap.String("key", key), zap.Error(err))
		return ""
	}
	return u
}

func (s *blobProjectService) fetchDocument(ctx context.Context, key string) (*model.Project, error) {
	b, err := s.backend.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return codec.Decode(b)
}

// Reasons a blob is skipped while listing.
const (
	skipFetch    = "fetch"
	skipDecode   = "decode"
	skipMismatch = "key_mismatch"
)

// collect lists the namespace and loads every blob with bounded parallelism.
// A blob that cannot be fetched, decoded or does not belong to the id it
// contains is logged and skipped; it never fails the listing.
func (s *blobProjectService) collect(ctx context.Context) ([]model.Project, error) {
	prefix := s.keys.Prefix()
	objs, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrBackendUnavailable, prefix, err)
	}

	loaded := make([]*model.Project, len(objs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, obj := range objs {
		g.Go(func() error {
			doc, reason, err := s.load(ctx, obj)
			if err != nil {
				s.log.Warn("project_blob_skipped",
					zap.String("key", obj.Key),
					zap.String("reason", reason),
					zap.Error(err),
				)
				s.metrics.ItemSkipped(reason)
				return nil
			}
			loaded[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrBackendUnavailable, prefix, err)
	}

	return s.dedupe(loaded), nil
}

func (s *blobProjectService) load(ctx context.Context, obj storage.ObjectInfo) (*model.Project, string, error) {
	b, err := s.backend.Fetch(ctx, obj.Key)
	if err != nil {
		return nil, skipFetch, err
	}
	doc, err := codec.Decode(b)
	if err != nil {
		return nil, skipDecode, err
	}
	if !s.keys.Owns(obj.Key, doc.ID) {
		return nil, skipMismatch, fmt.Errorf("blob holds project %s", doc.ID)
	}
	doc.Storage = &model.StorageRef{Key: obj.Key, ETag: obj.ETag, URL: s.objectURL(ctx, obj.Key, obj.URL)}
	return doc, "", nil
}

// dedupe keeps one copy per id. Stale copies under legacy keys lose to the
// canonical copy; between legacy copies the most recently updated wins.
// The result is ordered newest first.
func (s *blobProjectService) dedupe(loaded []*model.Project) []model.Project {
	byID := make(map[string]*model.Project, len(loaded))
	for _, doc := range loaded {
		if doc == nil {
			continue
		}
		prev, ok := byID[doc.ID]
		if !ok || s.preferred(doc, prev) {
			if ok {
				s.log.Debug("project_duplicate_ignored", zap.String("id", doc.ID), zap.String("key", prev.Storage.Key))
			}
			byID[doc.ID] = doc
			continue
		}
		s.log.Debug("project_duplicate_ignored", zap.String("id", doc.ID), zap.String("key", doc.Storage.Key))
	}

	out := make([]model.Project, 0, len(byID))
	for _, doc := range byID {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *blobProjectService) preferred(a, b *model.Project) bool {
	aCanon := s.keys.IsCanonical(a.Storage.Key, a.ID)
	bCanon := s.keys.IsCanonical(b.Storage.Key, b.ID)
	if aCanon != bCanon {
		return aCanon
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
