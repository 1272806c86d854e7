package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"projectstore/internal/model"
	"projectstore/internal/repository"
)

// ProjectPostgres is a PostgreSQL implementation of repository.ProjectRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ProjectPostgres struct {
	db *sql.DB
}

// NewProjectPostgres creates a new ProjectPostgres repository.
func NewProjectPostgres(db *sql.DB) *ProjectPostgres {
	return &ProjectPostgres{db: db}
}

var _ repository.ProjectRepository = (*ProjectPostgres)(nil)

const projectColumns = `id, name, primary_media_url, video_url, marker_media_url, status, backend_metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p    model.Project
		meta []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PrimaryMediaURL,
		&p.VideoURL,
		&p.MarkerMediaURL,
		&p.Status,
		&meta,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.BackendMetadata); err != nil {
			return nil, fmt.Errorf("decode backend_metadata of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create upserts a project row. On conflict every column except created_at is
// replaced.
func (r *ProjectPostgres) Create(ctx context.Context, p *model.Project) (*model.Project, error) {
	meta, err := encodeMetadata(p.BackendMetadata)
	if err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			primary_media_url = EXCLUDED.primary_media_url,
			video_url = EXCLUDED.video_url,
			marker_media_url = EXCLUDED.marker_media_url,
			status = EXCLUDED.status,
			backend_metadata = EXCLUDED.backend_metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + projectColumns
	row := r.db.QueryRowContext(ctx, q,
		p.ID,
		p.Name,
		p.PrimaryMediaURL,
		p.VideoURL,
		p.MarkerMediaURL,
		p.Status,
		meta,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return scanProject(row)
}

// FindByID fetches a single project by its ID.
func (r *ProjectPostgres) FindByID(ctx context.Context, id string) (*model.Project, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(r.db.QueryRowContext(ctx, q, id))
}

// List returns every project, newest first.
func (r *ProjectPostgres) List(ctx context.Context) ([]model.Project, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC, id ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Update rewrites the mutable columns of an existing row.
func (r *ProjectPostgres) Update(ctx context.Context, p *model.Project) (*model.Project, error) {
	meta, err := encodeMetadata(p.BackendMetadata)
	if err != nil {
		return nil, err
	}
	const q = `
		UPDATE projects SET
			name = $2,
			primary_media_url = $3,
			video_url = $4,
			marker_media_url = $5,
			status = $6,
			backend_metadata = $7,
			updated_at = $8
		WHERE id = $1
		RETURNING ` + projectColumns
	row := r.db.QueryRowContext(ctx, q,
		p.ID,
		p.Name,
		p.PrimaryMediaURL,
		p.VideoURL,
		p.MarkerMediaURL,
		p.Status,
		meta,
		p.UpdatedAt,
	)
	return scanProject(row)
}

// Delete removes a project by ID and reports whether a row existed.
func (r *ProjectPostgres) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM projects WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the connection pool can reach the database.
func (r *ProjectPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
