// Package repository contains data access layer abstractions for the
// relational variant of the project store. Implementations live in
// subpackages (e.g., postgres).
package repository

import (
	"context"

	"projectstore/internal/model"
)

// ProjectRepository defines data access for projects using SQL queries only.
// It holds no business logic, only persistence operations.
type ProjectRepository interface {
	// Create inserts a project, or overwrites every field except created_at
	// when the id already exists. Returns the stored row.
	Create(ctx context.Context, p *model.Project) (*model.Project, error)

	// FindByID returns a project by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// List returns every project, newest first.
	List(ctx context.Context) ([]model.Project, error)

	// Update rewrites the mutable columns of an existing project, or returns
	// sql.ErrNoRows.
	Update(ctx context.Context, p *model.Project) (*model.Project, error)

	// Delete removes a project by ID and reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Ping checks that the database answers.
	Ping(ctx context.Context) error
}
