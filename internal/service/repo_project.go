package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projectstore/internal/metrics"
	"projectstore/internal/model"
	"projectstore/internal/repository"
)

// repoProjectService is the relational variant of ProjectService. It keeps the
// same contract as the object store adapter, including degraded listings.
type repoProjectService struct {
	repo    repository.ProjectRepository
	log     *zap.Logger
	metrics *metrics.Store
	now     func() time.Time
}

// NewRepositoryProjectService constructs a ProjectService backed by a SQL
// repository. A nil repo means the database is not configured.
func NewRepositoryProjectService(repo repository.ProjectRepository, log *zap.Logger, m *metrics.Store, opts Options) ProjectService {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &repoProjectService{repo: repo, log: log.Named("project_repository"), metrics: m, now: opts.Now}
}

func rowKey(id string) string { return "projects/" + id }

func (s *repoProjectService) unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
}

func (s *repoProjectService) Create(ctx context.Context, in model.Project) (*model.Project, error) {
	p, err := prepareNew(in, s.now())
	if err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, s.unavailable("create", errors.New("database not configured"))
	}
	out, err := s.repo.Create(ctx, &p)
	if err != nil {
		return nil, s.unavailable("create", err)
	}
	out.Storage = &model.StorageRef{Key: rowKey(out.ID)}
	s.log.Info("project_created", zap.String("id", out.ID))
	return out, nil
}

func (s *repoProjectService) List(ctx context.Context) (*ListResult, error) {
	if s.repo == nil {
		s.log.Info("project_list_degraded", zap.String("reason", DegradedNotConfigured))
		s.metrics.ListDegraded(DegradedNotConfigured)
		return degradedResult(DegradedNotConfigured), nil
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		reason := DegradedListFailed
		pingErr := s.repo.Ping(ctx)
		if pingErr != nil {
			reason = DegradedUnreachable
		}
		s.log.Error("project_list_degraded",
			zap.String("reason", reason),
			zap.Error(err),
			zap.NamedError("ping_error", pingErr),
		)
		s.metrics.ListDegraded(reason)
		return degradedResult(reason), nil
	}
	for i := range items {
		items[i].Storage = &model.StorageRef{Key: rowKey(items[i].ID)}
	}
	return &ListResult{Items: items, Total: len(items)}, nil
}

func (s *repoProjectService) Get(ctx context.Context, id string) (*model.Project, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, s.unavailable("get", errors.New("database not configured"))
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, s.unavailable("get", err)
	}
	p.Storage = &model.StorageRef{Key: rowKey(p.ID)}
	return p, nil
}

func (s *repoProjectService) Update(ctx context.Context, id string, patch model.ProjectPatch) (*model.Project, error) {
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

	out, err := s.repo.Update(ctx, &next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, s.unavailable("update", err)
	}
	out.Storage = &model.StorageRef{Key: rowKey(out.ID)}
	s.log.Info("project_updated", zap.String("id", id))
	return out, nil
}

func (s *repoProjectService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, s.unavailable("delete", errors.New("database not configured"))
	}
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, s.unavailable("delete", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.log.Info("project_deleted", zap.String("id", id))
	s.metrics.DeleteMatched("canonical")
	return &DeleteResult{ID: id, DeletedKey: rowKey(id)}, nil
}
