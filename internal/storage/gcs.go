package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"projectstore/internal/config"
)

// gcsStorage implements Backend on a Google Cloud Storage bucket. It also
// works against a fake-gcs-server emulator when EmulatorHost is set.
type gcsStorage struct {
	client        *gcs.Client
	bucket        string
	projectID     string
	emulatorHost  string
	presignExpiry time.Duration
}

// NewGCS builds a GCS client. Like NewMinIO it performs no request.
func NewGCS(ctx context.Context, cfg config.GCSConfig, presignExpiry time.Duration) (Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is required", ErrNotConfigured)
	}

	var opts []option.ClientOption
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	switch {
	case emulator != "":
		opts = append(opts, option.WithoutAuthentication(), option.WithEndpoint(emulator+"/storage/v1/"))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))

	cli, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &gcsStorage{client: cli, bucket: cfg.Bucket, projectID: cfg.ProjectID, emulatorHost: emulator, presignExpiry: presignExpiry}, nil
}

func (g *gcsStorage) Name() string { return "gcs" }

func (g *gcsStorage) Put(ctx context.Context, key string, data []byte, opt PutObjectOptions) (ObjectInfo, error) {
	obj := g.client.Bucket(g.bucket).Object(key)
	if !opt.Overwrite {
		obj = obj.If(gcs.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opt.ContentType
	w.Metadata = opt.Metadata
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return ObjectInfo{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return ObjectInfo{}, fmt.Errorf("close writer %s: %w", key, err)
	}

	attrs := w.Attrs()
	return ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		ETag:         attrs.Etag,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
		Metadata:     attrs.Metadata,
	}, nil
}

func (g *gcsStorage) Delete(ctx context.Context, key string) (bool, error) {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

func (g *gcsStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	out := make([]ObjectInfo, 0)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		out = append(out, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			ETag:         attrs.Etag,
			ContentType:  attrs.ContentType,
			LastModified: attrs.Updated,
			Metadata:     attrs.Metadata,
		})
	}
	return out, nil
}

func (g *gcsStorage) Fetch(ctx context.Context, key string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// URL signs a GET URL. Emulators cannot sign, so a plain media link is
// returned for them instead.
func (g *gcsStorage) URL(ctx context.Context, key string) (string, error) {
	if g.emulatorHost != "" {
		return fmt.Sprintf("%s/download/storage/v1/b/%s/o/%s?alt=media",
			g.emulatorHost, g.bucket, url.PathEscape(key)), nil
	}
	return g.client.Bucket(g.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(g.presignExpiry),
		Scheme:  gcs.SigningSchemeV4,
	})
}

func (g *gcsStorage) Ping(ctx context.Context) error {
	_, err := g.NamespaceExists(ctx)
	return err
}

func (g *gcsStorage) NamespaceExists(ctx context.Context) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureNamespace creates the bucket in the configured project.
func (g *gcsStorage) EnsureNamespace(ctx context.Context) error {
	exists, err := g.NamespaceExists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
