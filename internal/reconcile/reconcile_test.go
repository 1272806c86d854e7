package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectstore/internal/keys"
	"projectstore/internal/metrics"
	"projectstore/internal/storage"
	"projectstore/internal/storage/memstore"
)

const ns = keys.DefaultNamespace

func seeded() *memstore.Store {
	store := memstore.New()
	store.Seed(ns+"/project_a.json", []byte(`{"id":"a","name":"A"}`))
	store.Seed(ns+"/old_b.json", []byte(`{"id":"b","name":"B"}`))
	store.Seed(ns+"/project_c.json", []byte(`not json`))
	store.Seed(ns+"/project_d.json", []byte(`{"id":"a","name":"copy"}`))
	return store
}

func TestScan_DryRun(t *testing.T) {
	store := seeded()
	r := New(store, keys.NewResolver(ns), nil, nil, 2)

	rep, err := r.Scan(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, 2, rep.Orphans)
	assert.Zero(t, rep.Deleted)
	assert.Len(t, store.Keys(), 4)

	keysInOrder := make([]string, 0, len(rep.Items))
	for _, it := range rep.Items {
		keysInOrder = append(keysInOrder, it.Key)
	}
	assert.Equal(t, store.Keys(), keysInOrder)
}

func TestScan_DeletesOrphans(t *testing.T) {
	store := seeded()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewStore(reg)
	require.NoError(t, err)
	r := New(store, keys.NewResolver(ns), nil, m, 4)

	rep, err := r.Scan(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Deleted)
	assert.Equal(t, []string{ns + "/old_b.json", ns + "/project_a.json"}, store.Keys())
}

func TestScan_IsolatesFailures(t *testing.T) {
	store := seeded()
	store.FailFetch(ns+"/project_a.json", errors.New("timeout"))
	store.FailDelete(ns+"/project_c.json", errors.New("access denied"))
	r := New(store, keys.NewResolver(ns), nil, nil, 4)

	rep, err := r.Scan(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Errored)
	assert.Equal(t, 1, rep.Deleted)
	assert.Equal(t, 1, rep.Valid)
}

func TestScan_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		_, err := New(nil, nil, nil, nil, 0).Scan(context.Background(), Options{})
		assert.ErrorIs(t, err, storage.ErrNotConfigured)
	})

	t.Run("list fails", func(t *testing.T) {
		store := memstore.New()
		store.SetListError(errors.New("refused"))
		_, err := New(store, nil, nil, nil, 0).Scan(context.Background(), Options{})
		assert.ErrorIs(t, err, storage.ErrUnavailable)
	})
}

func TestScan_BoundedFetches(t *testing.T) {
	store := memstore.New()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("p%d", i)
		store.Seed(ns+"/project_"+id+".json", []byte(`{"id":"`+id+`","name":"x"}`))
	}
	store.FailFetch(ns+"/project_p3.json", errors.New("read timeout"))
	store.SetFetchDelay(10 * time.Millisecond)

	rep, err := New(store, keys.NewResolver(ns), nil, nil, 2).Scan(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 10, rep.Total)
	assert.Equal(t, 9, rep.Valid)
	assert.Equal(t, 1, rep.Errored)
	assert.Equal(t, 10, store.FetchCalls())
	assert.LessOrEqual(t, store.PeakFetches(), 2)
	assert.GreaterOrEqual(t, store.PeakFetches(), 2)
}
