// Package memstore is an in-process storage.Backend. It backs
// STORAGE_DRIVER=memory for local runs and lets tests inject per-key
// failures.
package memstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"projectstore/internal/storage"
)

type object struct {
	data        []byte
	etag        string
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// Store keeps objects in a map guarded by a mutex.
type Store struct {
	mu        sync.Mutex
	objects   map[string]object
	namespace bool

	pingErr     error
	listErr     error
	fetchErrs   map[string]error
	deleteErrs  map[string]error
	deleteCalls []string
	fetchCalls  int
	fetchDelay  time.Duration
	inflight    int
	peak        int
}

// New returns an empty store whose namespace already exists.
func New() *Store {
	return &Store{
		objects:    make(map[string]object),
		namespace:  true,
		fetchErrs:  make(map[string]error),
		deleteErrs: make(map[string]error),
	}
}

var _ storage.Backend = (*Store)(nil)

func (s *Store) Name() string { return "memory" }

func (s *Store) Put(_ context.Context, key string, data []byte, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.namespace {
		return storage.ObjectInfo{}, fmt.Errorf("put %s: bucket does not exist", key)
	}
	if _, exists := s.objects[key]; exists && !opt.Overwrite {
		return storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrAlreadyExists, key)
	}
	sum := md5.Sum(data)
	obj := object{
		data:        append([]byte(nil), data...),
		etag:        hex.EncodeToString(sum[:]),
		contentType: opt.ContentType,
		metadata:    opt.Metadata,
		modified:    time.Now().UTC(),
	}
	s.objects[key] = obj
	return s.info(key, obj), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteCalls = append(s.deleteCalls, key)
	if err := s.deleteErrs[key]; err != nil {
		return false, err
	}
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns matching objects in lexicographic key order.
func (s *Store) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]storage.ObjectInfo, 0)
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, s.info(k, obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	delay := s.fetchDelay
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetchErrs[key]; err != nil {
		return nil, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *Store) URL(_ context.Context, key string) (string, error) {
	return "memory://" + key, nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *Store) NamespaceExists(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return false, s.pingErr
	}
	return s.namespace, nil
}

func (s *Store) EnsureNamespace(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return s.pingErr
	}
	s.namespace = true
	return nil
}

func (s *Store) info(key string, obj object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          key,
		URL:          "memory://" + key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		ContentType:  obj.contentType,
		LastModified: obj.modified,
		Metadata:     obj.metadata,
	}
}

// Seed writes raw bytes under key with overwrite enabled.
func (s *Store) Seed(key string, data []byte) {
	_, _ = s.Put(context.Background(), key, data, storage.PutObjectOptions{Overwrite: true})
}

// Has reports whether key is stored.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// Keys returns every stored key in order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetPingError makes Ping, NamespaceExists and EnsureNamespace fail with err.
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// SetListError makes List fail with err.
func (s *Store) SetListError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// SetNamespace marks the bucket as present or missing.
func (s *Store) SetNamespace(exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = exists
}

// FailFetch makes Fetch of key fail with err.
func (s *Store) FailFetch(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErrs[key] = err
}

// FailDelete makes Delete of key fail with err.
func (s *Store) FailDelete(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErrs[key] = err
}

// DeleteCalls returns the keys passed to Delete, in call order.
func (s *Store) DeleteCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleteCalls...)
}

// FetchCalls returns how many times Fetch was called.
func (s *Store) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

// SetFetchDelay makes every Fetch wait d before answering, so concurrent
// fetches overlap.
func (s *Store) SetFetchDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchDelay = d
}

// PeakFetches returns the largest number of Fetch calls that were in flight
// at the same time.
func (s *Store) PeakFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}
