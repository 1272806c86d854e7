// Package codec converts projects to and from the byte payloads stored in
// object storage.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"projectstore/internal/model"
)

// ErrInvalidDocument is returned by Decode when a payload is not a project.
var ErrInvalidDocument = errors.New("invalid document")

// ContentType is the media type of encoded projects.
const ContentType = "application/json"

// storedProject is the on-blob shape. The first generation of blobs used
// camelCase names and "_id"; those are read as fallbacks and never written.
type storedProject struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	PrimaryMediaURL string            `json:"primary_media_url"`
	VideoURL        string            `json:"video_url"`
	MarkerMediaURL  string            `json:"marker_media_url"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	BackendMetadata map[string]string `json:"backend_metadata,omitempty"`

	LegacyID             string            `json:"_id,omitempty"`
	LegacyOriginalImage  string            `json:"originalImage,omitempty"`
	LegacyVideoURL       string            `json:"videoURL,omitempty"`
	LegacyMarkerImage    string            `json:"markerImage,omitempty"`
	LegacyCloudinaryData map[string]string `json:"cloudinaryData,omitempty"`
	LegacyCreatedAt      *time.Time        `json:"createdAt,omitempty"`
	LegacyUpdatedAt      *time.Time        `json:"updatedAt,omitempty"`
}

// Encode serializes a project. The storage reference is not part of the
// payload.
func Encode(p model.Project) ([]byte, error) {
	sp := storedProject{
		ID:              p.ID,
		Name:            p.Name,
		PrimaryMediaURL: p.PrimaryMediaURL,
		VideoURL:        p.VideoURL,
		MarkerMediaURL:  p.MarkerMediaURL,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
		BackendMetadata: p.BackendMetadata,
	}
	b, err := json.MarshalIndent(sp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project %s: %w", p.ID, err)
	}
	return b, nil
}

// Decode parses a payload and validates that it is a project: it must be a
// JSON object with a non-empty id and name.
func Decode(b []byte) (*model.Project, error) {
	var sp storedProject
	if err := json.Unmarshal(b, &sp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	p := &model.Project{
		ID:              firstNonEmpty(sp.ID, sp.LegacyID),
		Name:            strings.TrimSpace(sp.Name),
		PrimaryMediaURL: firstNonEmpty(sp.PrimaryMediaURL, sp.LegacyOriginalImage),
		VideoURL:        firstNonEmpty(sp.VideoURL, sp.LegacyVideoURL),
		MarkerMediaURL:  firstNonEmpty(sp.MarkerMediaURL, sp.LegacyMarkerImage),
		Status:          sp.Status,
		CreatedAt:       sp.CreatedAt,
		UpdatedAt:       sp.UpdatedAt,
		BackendMetadata: sp.BackendMetadata,
	}
	if p.BackendMetadata == nil && len(sp.LegacyCloudinaryData) > 0 {
		p.BackendMetadata = sp.LegacyCloudinaryData
	}
	if p.CreatedAt.IsZero() && sp.LegacyCreatedAt != nil {
		p.CreatedAt = sp.LegacyCreatedAt.UTC()
	}
	if p.UpdatedAt.IsZero() && sp.LegacyUpdatedAt != nil {
		p.UpdatedAt = sp.LegacyUpdatedAt.UTC()
	}

	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidDocument)
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
