package model

import "time"

// StatusActive is the default status of a newly created project.
const StatusActive = "active"

// Project is the document persisted by the project store.
// It carries no persistence-specific tags beyond JSON so that every backend
// (object storage, PostgreSQL) can share it.
type Project struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	PrimaryMediaURL string            `json:"primary_media_url"`
	VideoURL        string            `json:"video_url"`
	MarkerMediaURL  string            `json:"marker_media_url"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	BackendMetadata map[string]string `json:"backend_metadata,omitempty"`

	// Storage is filled in by the store on read and write. It is never
	// serialized into the stored blob.
	Storage *StorageRef `json:"storage,omitempty"`
}

// StorageRef identifies where a project was read from or written to.
type StorageRef struct {
	Key  string `json:"key"`
	ETag string `json:"etag,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ProjectPatch holds the fields accepted by an update. Empty values leave the
// stored field untouched. There is deliberately no ID field.
type ProjectPatch struct {
	Name            string            `json:"name"`
	PrimaryMediaURL string            `json:"primary_media_url"`
	VideoURL        string            `json:"video_url"`
	MarkerMediaURL  string            `json:"marker_media_url"`
	Status          string            `json:"status"`
	BackendMetadata map[string]string `json:"backend_metadata"`
}

// Apply merges the non-empty fields of p into a copy of doc.
func (p ProjectPatch) Apply(doc Project) Project {
	if p.Name != "" {
		doc.Name = p.Name
	}
	if p.PrimaryMediaURL != "" {
		doc.PrimaryMediaURL = p.PrimaryMediaURL
	}
	if p.VideoURL != "" {
		doc.VideoURL = p.VideoURL
	}
	if p.MarkerMediaURL != "" {
		doc.MarkerMediaURL = p.MarkerMediaURL
	}
	if p.Status != "" {
		doc.Status = p.Status
	}
	if len(p.BackendMetadata) > 0 {
		merged := make(map[string]string, len(doc.BackendMetadata)+len(p.BackendMetadata))
		for k, v := range doc.BackendMetadata {
			merged[k] = v
		}
		for k, v := range p.BackendMetadata {
			merged[k] = v
		}
		doc.BackendMetadata = merged
	}
	return doc
}
