package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"projectstore/internal/keys"
	"projectstore/internal/model"
	"projectstore/internal/storage"
)

var (
	// ErrValidation means the caller supplied an incomplete or malformed project.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the project is absent under every key it may live at.
	ErrNotFound = errors.New("project not found")
	// ErrBackendUnavailable wraps failures talking to the backing store. It is
	// retryable.
	ErrBackendUnavailable = storage.ErrUnavailable
)

// Reasons reported when a listing falls back to sample data.
const (
	DegradedNotConfigured = "not_configured"
	DegradedUnreachable   = "unreachable"
	DegradedListFailed    = "list_failed"
)

// ListResult is the service-level DTO for project listings.
type ListResult struct {
	Items          []model.Project `json:"data"`
	Total          int             `json:"total"`
	Degraded       bool            `json:"degraded"`
	DegradedReason string          `json:"degraded_reason,omitempty"`
}

// DeleteResult reports which stored key a delete removed.
type DeleteResult struct {
	ID         string `json:"id"`
	DeletedKey string `json:"deleted_key"`
	Legacy     bool   `json:"legacy"`
}

// ProjectService defines the use cases for handling projects.
type ProjectService interface {
	// Create validates and stores a new project, assigning an id when absent.
	// Creating with an existing id overwrites that project.
	Create(ctx context.Context, p model.Project) (*model.Project, error)

	// List returns every stored project. It does not fail when the backend is
	// missing or down; it answers with sample data and marks the result degraded.
	List(ctx context.Context) (*ListResult, error)

	// Get returns a single project by its ID.
	Get(ctx context.Context, id string) (*model.Project, error)

	// Update merges the non-empty fields of patch into an existing project.
	Update(ctx context.Context, id string, patch model.ProjectPatch) (*model.Project, error)

	// Delete removes a project and reports the key that held it.
	Delete(ctx context.Context, id string) (*DeleteResult, error)
}

// prepareNew validates a create request and fills in id, defaults and
// timestamps.
func prepareNew(in model.Project, now time.Time) (model.Project, error) {
	doc := in
	doc.ID = strings.TrimSpace(doc.ID)
	doc.Name = strings.TrimSpace(doc.Name)
	doc.PrimaryMediaURL = strings.TrimSpace(doc.PrimaryMediaURL)
	doc.VideoURL = strings.TrimSpace(doc.VideoURL)
	doc.MarkerMediaURL = strings.TrimSpace(doc.MarkerMediaURL)
	doc.Storage = nil

	var missing []string
	if doc.Name == "" {
		missing = append(missing, "name")
	}
	if doc.PrimaryMediaURL == "" {
		missing = append(missing, "primary_media_url")
	}
	if doc.VideoURL == "" {
		missing = append(missing, "video_url")
	}
	if len(missing) > 0 {
		return model.Project{}, fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	if err := validateMediaURLs(doc.PrimaryMediaURL, doc.VideoURL, doc.MarkerMediaURL); err != nil {
		return model.Project{}, err
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	} else if err := validateID(doc.ID); err != nil {
		return model.Project{}, err
	}
	if doc.MarkerMediaURL == "" {
		doc.MarkerMediaURL = doc.PrimaryMediaURL
	}
	if doc.Status == "" {
		doc.Status = model.StatusActive
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return doc, nil
}

// preparePatch trims a patch and validates any media URLs it carries.
func preparePatch(p model.ProjectPatch) (model.ProjectPatch, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.PrimaryMediaURL = strings.TrimSpace(p.PrimaryMediaURL)
	p.VideoURL = strings.TrimSpace(p.VideoURL)
	p.MarkerMediaURL = strings.TrimSpace(p.MarkerMediaURL)
	p.Status = strings.TrimSpace(p.Status)
	if err := validateMediaURLs(p.PrimaryMediaURL, p.VideoURL, p.MarkerMediaURL); err != nil {
		return model.ProjectPatch{}, err
	}
	return p, nil
}

func validateMediaURLs(urls ...string) error {
	for _, raw := range urls {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: media url %q is not absolute", ErrValidation, raw)
		}
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if !keys.ValidID(id) {
		return fmt.Errorf("%w: invalid id %q", ErrValidation, id)
	}
	if IsSampleID(id) {
		return fmt.Errorf("%w: id %q is reserved for sample data", ErrValidation, id)
	}
	return nil
}

// sampleEpoch anchors sample timestamps so repeated listings are identical.
var sampleEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// SampleProjects returns the fixed data set served in degraded mode. Sample
// ids all start with "sample-" so callers can tell them from real projects.
func SampleProjects() []model.Project {
	return []model.Project{
		{
			ID:              "sample-lantern",
			Name:            "Lantern Festival Poster",
			PrimaryMediaURL: "https://placehold.co/800x600?text=Lantern",
			VideoURL:        "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
			MarkerMediaURL:  "https://placehold.co/400x400?text=Lantern+Marker",
			Status:          model.StatusActive,
			CreatedAt:       sampleEpoch.Add(48 * time.Hour),
			UpdatedAt:       sampleEpoch.Add(48 * time.Hour),
		},
		{
			ID:              "sample-harbor",
			Name:            "Harbor Museum Guide",
			PrimaryMediaURL: "https://placehold.co/800x600?text=Harbor",
			VideoURL:        "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ElephantsDream.mp4",
			MarkerMediaURL:  "https://placehold.co/800x600?text=Harbor",
			Status:          model.StatusActive,
			CreatedAt:       sampleEpoch.Add(24 * time.Hour),
			UpdatedAt:       sampleEpoch.Add(24 * time.Hour),
		},
		{
			ID:              "sample-aurora",
			Name:            "Aurora Business Card",
			PrimaryMediaURL: "https://placehold.co/800x600?text=Aurora",
			VideoURL:        "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ForBiggerBlazes.mp4",
			MarkerMediaURL:  "https://placehold.co/800x600?text=Aurora",
			Status:          model.StatusActive,
			CreatedAt:       sampleEpoch,
			UpdatedAt:       sampleEpoch,
		},
	}
}

// IsSampleID reports whether id belongs to the degraded-mode data set. Such
// ids are never stored, so every operation taking an id rejects them.
func IsSampleID(id string) bool {
	return strings.HasPrefix(id, "sample-")
}

func degradedResult(reason string) *ListResult {
	items := SampleProjects()
	return &ListResult{Items: items, Total: len(items), Degraded: true, DegradedReason: reason}
}
