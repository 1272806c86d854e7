package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectstore/internal/storage"
)

func TestStore_PutFetchDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	info, err := s.Put(ctx, "ns/a.json", []byte(`{}`), storage.PutObjectOptions{ContentType: "application/json"})
	require.NoError(t, err)
	assert.Equal(t, "ns/a.json", info.Key)
	assert.NotEmpty(t, info.ETag)

	_, err = s.Put(ctx, "ns/a.json", []byte(`{"x":1}`), storage.PutObjectOptions{})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = s.Put(ctx, "ns/a.json", []byte(`{"x":1}`), storage.PutObjectOptions{Overwrite: true})
	require.NoError(t, err)

	b, err := s.Fetch(ctx, "ns/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(b))

	found, err := s.Delete(ctx, "ns/a.json")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.Delete(ctx, "ns/a.json")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.Fetch(ctx, "ns/a.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.Equal(t, []string{"ns/a.json", "ns/a.json"}, s.DeleteCalls())
}

func TestStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed("ns/b.json", []byte("b"))
	s.Seed("ns/a.json", []byte("a"))
	s.Seed("other/c.json", []byte("c"))

	objs, err := s.List(ctx, "ns/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "ns/a.json", objs[0].Key)
	assert.Equal(t, "ns/b.json", objs[1].Key)
}

func TestStore_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed("ns/a.json", []byte("a"))
	boom := errors.New("boom")

	s.FailFetch("ns/a.json", boom)
	_, err := s.Fetch(ctx, "ns/a.json")
	assert.ErrorIs(t, err, boom)

	s.FailDelete("ns/a.json", boom)
	_, err = s.Delete(ctx, "ns/a.json")
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Has("ns/a.json"))

	s.SetListError(boom)
	_, err = s.List(ctx, "ns/")
	assert.ErrorIs(t, err, boom)

	s.SetPingError(boom)
	assert.ErrorIs(t, s.Ping(ctx), boom)
	_, err = s.NamespaceExists(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestStore_Namespace(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetNamespace(false)

	exists, err := s.NamespaceExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Put(ctx, "ns/a.json", []byte("a"), storage.PutObjectOptions{Overwrite: true})
	assert.Error(t, err)

	require.NoError(t, s.EnsureNamespace(ctx))
	exists, err = s.NamespaceExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_FetchDelay(t *testing.T) {
	s := New()
	s.Seed("ns/a.json", []byte(`{}`))
	s.SetFetchDelay(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fetch(context.Background(), "ns/a.json")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, s.PeakFetches())
	assert.Equal(t, 3, s.FetchCalls())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Fetch(ctx, "ns/a.json")
	assert.ErrorIs(t, err, context.Canceled)
}
