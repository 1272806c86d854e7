package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"projectstore/internal/codec"
	"projectstore/internal/keys"
	"projectstore/internal/model"
	"projectstore/internal/storage"
	"projectstore/internal/storage/memstore"
	"projectstore/internal/storage/mocks"
)

const ns = keys.DefaultNamespace

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	t := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newBlobService(t *testing.T, backend storage.Backend, resolver *keys.Resolver) ProjectService {
	t.Helper()
	if resolver == nil {
		resolver = keys.NewResolver(ns)
	}
	return NewBlobProjectService(backend, resolver, zap.NewNop(), nil, Options{FetchConcurrency: 4, Now: stepClock()})
}

func demoInput() model.Project {
	return model.Project{
		Name:            "Demo",
		PrimaryMediaURL: "https://x/a.jpg",
		VideoURL:        "https://x/a.mp4",
	}
}

func seedProject(t *testing.T, store *memstore.Store, key string, p model.Project) {
	t.Helper()
	b, err := codec.Encode(p)
	require.NoError(t, err)
	store.Seed(key, b)
}

func TestBlobProjectService_DemoScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	created, err := svc.Create(ctx, demoInput())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, created.PrimaryMediaURL, created.MarkerMediaURL)
	assert.Equal(t, model.StatusActive, created.Status)
	require.NotNil(t, created.Storage)
	assert.Equal(t, ns+"/project_"+created.ID+".json", created.Storage.Key)
	assert.True(t, store.Has(created.Storage.Key))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Name)

	res, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Storage.Key, res.DeletedKey)
	assert.False(t, res.Legacy)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobProjectService_Create_Validation(t *testing.T) {
	svc := newBlobService(t, memstore.New(), nil)

	tests := []struct {
		name string
		in   model.Project
	}{
		{name: "missing name", in: model.Project{PrimaryMediaURL: "https://x/a.jpg", VideoURL: "https://x/a.mp4"}},
		{name: "missing video", in: model.Project{Name: "n", PrimaryMediaURL: "https://x/a.jpg"}},
		{name: "relative url", in: model.Project{Name: "n", PrimaryMediaURL: "/a.jpg", VideoURL: "https://x/a.mp4"}},
		{name: "id with slash", in: model.Project{ID: "../x", Name: "n", PrimaryMediaURL: "https://x/a.jpg", VideoURL: "https://x/a.mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBlobProjectService_IdempotentCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	in := demoInput()
	in.ID = "fixed-id"
	first, err := svc.Create(ctx, in)
	require.NoError(t, err)
	second, err := svc.Create(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, []string{ns + "/project_fixed-id.json"}, store.Keys())
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	patch := model.ProjectPatch{Name: "Renamed", Status: "archived"}
	u1, err := svc.Update(ctx, "fixed-id", patch)
	require.NoError(t, err)
	u2, err := svc.Update(ctx, "fixed-id", patch)
	require.NoError(t, err)

	u1.UpdatedAt, u2.UpdatedAt = time.Time{}, time.Time{}
	u1.Storage, u2.Storage = nil, nil
	assert.Equal(t, *u1, *u2)
	assert.Equal(t, "Renamed", u2.Name)
	assert.Equal(t, first.CreatedAt, u2.CreatedAt)
	assert.Len(t, store.Keys(), 1)
}

func TestBlobProjectService_Update_MovesLegacyToCanonical(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	legacyKey := ns + "/old_p1.json"
	seedProject(t, store, legacyKey, model.Project{
		ID: "p1", Name: "Old", PrimaryMediaURL: "https://x/a.jpg", VideoURL: "https://x/a.mp4",
		CreatedAt: time.Unix(100, 0).UTC(), UpdatedAt: time.Unix(100, 0).UTC(),
	})

	updated, err := svc.Update(ctx, "p1", model.ProjectPatch{Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, ns+"/project_p1.json", updated.Storage.Key)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "New", list.Items[0].Name)
	assert.Equal(t, ns+"/project_p1.json", list.Items[0].Storage.Key)
}

func TestBlobProjectService_Update_NotFound(t *testing.T) {
	svc := newBlobService(t, memstore.New(), nil)
	_, err := svc.Update(context.Background(), "nope", model.ProjectPatch{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobProjectService_DeleteFallback(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	legacyKey := ns + "/" + ns + "/project_p9.json"
	seedProject(t, store, legacyKey, model.Project{ID: "p9", Name: "Legacy", PrimaryMediaURL: "https://x/a.jpg", VideoURL: "https://x/a.mp4"})

	res, err := svc.Delete(ctx, "p9")
	require.NoError(t, err)
	assert.Equal(t, legacyKey, res.DeletedKey)
	assert.True(t, res.Legacy)

	_, err = svc.Delete(ctx, "p9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobProjectService_DeleteStopsAtFirstMatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	resolver := keys.NewResolverWithSchemes(ns, []keys.Scheme{
		{Version: 2, Pattern: "{namespace}/old_{id}.json"},
		{Version: 1, Pattern: "{namespace}/{id}.json"},
	})
	svc := newBlobService(t, store, resolver)

	store.Seed(ns+"/old_abc.json", []byte(`{"id":"abc","name":"x"}`))
	store.Seed(ns+"/abc.json", []byte(`{"id":"abc","name":"x"}`))

	res, err := svc.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, ns+"/old_abc.json", res.DeletedKey)
	assert.Equal(t, []string{ns + "/old_abc.json"}, store.DeleteCalls())
	assert.True(t, store.Has(ns+"/abc.json"))
}

func TestBlobProjectService_Delete_BackendErrors(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	seedProject(t, store, ns+"/project_p1.json", model.Project{ID: "p1", Name: "One"})
	store.FailDelete(ns+"/project_p1.json", errors.New("connection reset"))
	store.FailFetch(ns+"/p1.json", errors.New("read timeout"))

	_, err := svc.Delete(ctx, "p1")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "delete "+ns+"/project_p1.json")
	assert.Contains(t, err.Error(), "fetch "+ns+"/p1.json")
	assert.True(t, store.Has(ns+"/project_p1.json"))
}

func TestBlobProjectService_DeleteLeavesOtherProjects(t *testing.T) {
	ctx := context.Background()

	t.Run("canonical key of another id", func(t *testing.T) {
		store := memstore.New()
		svc := newBlobService(t, store, nil)
		_, err := svc.Create(ctx, model.Project{ID: "abc", Name: "Kept", PrimaryMediaURL: "https://x/a.jpg", VideoURL: "https://x/a.mp4"})
		require.NoError(t, err)

		// {ns}/{id}.json for "project_abc" is the canonical key of "abc".
		_, err = svc.Delete(ctx, "project_abc")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, store.Has(ns+"/project_abc.json"))
		assert.Empty(t, store.DeleteCalls())

		got, err := svc.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "Kept", got.Name)
	})

	t.Run("legacy key of another id", func(t *testing.T) {
		store := memstore.New()
		svc := newBlobService(t, store, nil)
		// {ns}/old_{id}.json for "abc" is the v1 key of "old_abc".
		seedProject(t, store, ns+"/old_abc.json", model.Project{ID: "old_abc", Name: "Other"})

		_, err := svc.Delete(ctx, "abc")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, store.Has(ns+"/old_abc.json"))
	})

	t.Run("undecodable blob is not a match", func(t *testing.T) {
		store := memstore.New()
		svc := newBlobService(t, store, nil)
		store.Seed(ns+"/project_p2.json", []byte(`{"name":`))
		seedProject(t, store, ns+"/p2.json", model.Project{ID: "p2", Name: "Old"})

		res, err := svc.Delete(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, ns+"/p2.json", res.DeletedKey)
		assert.True(t, store.Has(ns+"/project_p2.json"))
	})
}

func TestBlobProjectService_SampleIDsAreReserved(t *testing.T) {
	ctx := context.Background()
	svc := newBlobService(t, memstore.New(), nil)

	in := demoInput()
	in.ID = "sample-harbor"
	_, err := svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, "sample-harbor", model.ProjectPatch{Name: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Delete(ctx, "sample-harbor")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "reserved")
}

func TestBlobProjectService_BoundedFetches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("p%02d", i)
		seedProject(t, store, ns+"/project_"+id+".json", model.Project{ID: id, Name: id})
	}
	store.FailFetch(ns+"/project_p05.json", errors.New("read timeout"))
	store.SetFetchDelay(10 * time.Millisecond)

	svc := NewBlobProjectService(store, keys.NewResolver(ns), zap.NewNop(), nil, Options{FetchConcurrency: 3, Now: stepClock()})
	res, err := svc.List(ctx)
	require.NoError(t, err)

	assert.False(t, res.Degraded)
	assert.Equal(t, 11, res.Total)
	assert.Equal(t, 12, store.FetchCalls())
	assert.LessOrEqual(t, store.PeakFetches(), 3)
	assert.GreaterOrEqual(t, store.PeakFetches(), 2)
}

// signingStore leaves URLs out of listings and puts, like the cloud drivers,
// and signs them on request.
type signingStore struct {
	*memstore.Store
	urlErr error
}

func (s *signingStore) strip(info storage.ObjectInfo) storage.ObjectInfo {
	info.URL = ""
	return info
}

func (s *signingStore) Put(ctx context.Context, key string, data []byte, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	info, err := s.Store.Put(ctx, key, data, opt)
	return s.strip(info), err
}

func (s *signingStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	objs, err := s.Store.List(ctx, prefix)
	for i := range objs {
		objs[i] = s.strip(objs[i])
	}
	return objs, err
}

func (s *signingStore) URL(_ context.Context, key string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://signed.test/" + key, nil
}

func TestBlobProjectService_ResolvesBlobURLs(t *testing.T) {
	ctx := context.Background()

	t.Run("signed by the backend", func(t *testing.T) {
		store := &signingStore{Store: memstore.New()}
		svc := newBlobService(t, store, nil)

		created, err := svc.Create(ctx, demoInput())
		require.NoError(t, err)
		key := ns + "/project_" + created.ID + ".json"
		assert.Equal(t, "https://signed.test/"+key, created.Storage.URL)

		res, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "https://signed.test/"+key, res.Items[0].Storage.URL)
	})

	t.Run("signing failure leaves the url empty", func(t *testing.T) {
		store := &signingStore{Store: memstore.New(), urlErr: errors.New("no signing key")}
		svc := newBlobService(t, store, nil)

		_, err := svc.Create(ctx, demoInput())
		require.NoError(t, err)

		res, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Empty(t, res.Items[0].Storage.URL)
	})
}

func TestBlobProjectService_ListIsolatesCorruption(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, model.Project{ID: id, Name: id, PrimaryMediaURL: "https://x/a.jpg", VideoURL: "https://x/a.mp4"})
		require.NoError(t, err)
	}
	store.Seed(ns+"/project_broken.json", []byte("{not json"))
	store.Seed(ns+"/project_other.json", []byte(`{"id":"a","name":"stolen"}`))
	store.Seed(ns+"/project_gone.json", []byte(`{"id":"gone","name":"x"}`))
	store.FailFetch(ns+"/project_gone.json", errors.New("timeout"))

	res, err := svc.List(ctx)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 3, res.Total)
	ids := make([]string, 0, len(res.Items))
	for _, p := range res.Items {
		ids = append(ids, p.ID)
	}
	// newest first
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestBlobProjectService_ListEmpty(t *testing.T) {
	svc := newBlobService(t, memstore.New(), nil)

	res, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Items)
}

func TestBlobProjectService_DegradedModes(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		svc := newBlobService(t, nil, nil)

		first, err := svc.List(context.Background())
		require.NoError(t, err)
		second, err := svc.List(context.Background())
		require.NoError(t, err)

		assert.True(t, first.Degraded)
		assert.Equal(t, DegradedNotConfigured, first.DegradedReason)
		assert.Equal(t, first, second)
		for _, p := range first.Items {
			assert.True(t, IsSampleID(p.ID))
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		store := memstore.New()
		store.SetListError(errors.New("dial tcp: refused"))
		store.SetPingError(errors.New("dial tcp: refused"))
		svc := newBlobService(t, store, nil)

		res, err := svc.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DegradedUnreachable, res.DegradedReason)
		assert.Equal(t, SampleProjects(), res.Items)
	})

	t.Run("list failed", func(t *testing.T) {
		store := memstore.New()
		store.SetListError(errors.New("access denied"))
		svc := newBlobService(t, store, nil)

		res, err := svc.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DegradedListFailed, res.DegradedReason)
	})

	t.Run("writes fail when not configured", func(t *testing.T) {
		svc := newBlobService(t, nil, nil)

		_, err := svc.Create(context.Background(), demoInput())
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.ErrorIs(t, err, storage.ErrNotConfigured)

		_, err = svc.Delete(context.Background(), "x")
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})
}

func TestBlobProjectService_DedupePrefersCanonical(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newBlobService(t, store, nil)

	old := time.Unix(100, 0).UTC()
	seedProject(t, store, ns+"/project_d.json", model.Project{ID: "d", Name: "canonical", CreatedAt: old, UpdatedAt: old})
	seedProject(t, store, ns+"/d.json", model.Project{ID: "d", Name: "legacy", CreatedAt: old, UpdatedAt: old.Add(time.Hour)})

	got, err := svc.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "canonical", got.Name)
}

func TestBlobProjectService_Create_PutFailure(t *testing.T) {
	backend := new(mocks.MockBackend)
	backend.On("Put", mock.Anything, ns+"/project_p1.json", mock.Anything, mock.MatchedBy(func(o storage.PutObjectOptions) bool {
		return o.Overwrite && o.ContentType == codec.ContentType && o.Metadata["project-id"] == "p1"
	})).Return(storage.ObjectInfo{}, errors.New("503 slow down"))
	backend.On("Fetch", mock.Anything, ns+"/project_p1.json").Return(nil, storage.ErrObjectNotFound)

	svc := newBlobService(t, backend, nil)
	in := demoInput()
	in.ID = "p1"

	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "project_p1.json")
	backend.AssertExpectations(t)
}
