// Package indexstore resolves and persists per-tenant vector indexes through a
// process-local cache, a local disk mirror and a remote object store.
package indexstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/objectstore"
	"github.com/cortexlayer/ragcore/internal/telemetry"
	"github.com/cortexlayer/ragcore/internal/vector"
)

var (
	// ErrStoreUnavailable means no tier could produce the tenant's index.
	ErrStoreUnavailable = errors.New("index store unavailable")
	// ErrRemoteReplication means a save reached the mirror and cache but not the remote store.
	ErrRemoteReplication = errors.New("remote index replication failed")
	// ErrModelMismatch means a batch was embedded by a different model than the tenant's index.
	ErrModelMismatch = errors.New("embedding model does not match tenant index")
)

// loadTimeout bounds a shared tenant resolution once it is detached from its callers.
const loadTimeout = 2 * time.Minute

// IndexKey is the remote key of a tenant's index blob.
func IndexKey(clientID string) string {
	return "indexes/" + clientID + ".index"
}

// MetaKey is the remote key of a tenant's metadata blob.
func MetaKey(clientID string) string {
	return "indexes/" + clientID + "_meta.json"
}

// Hit is one search result mapped back to its metadata record.
type Hit struct {
	ID       int64
	Record   models.ChunkRecord
	Distance float32
	Score    float64
}

// Stats summarizes a tenant's index.
type Stats struct {
	ClientID  string `json:"client_id"`
	Vectors   int    `json:"vectors"`
	Records   int    `json:"records"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
	IndexType string `json:"index_type"`
	Mirrored  bool   `json:"mirrored"`
}

// Store owns the tenant cache and coordinates the mirror and remote tiers.
type Store struct {
	mirror    *DiskMirror
	remote    objectstore.Store
	cache     Cache
	mock      config.Toggle
	indexType string
	logger    *zap.Logger
	metrics   *telemetry.Metrics

	locks   tenantLocks
	loads   singleflight.Group
	cacheMu sync.Mutex // orders cache fills against saves
}

// Option configures Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCache replaces the default MapCache.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithMockToggle sets the flag that makes Load synthesize empty indexes without I/O
// and Save skip the remote upload.
func WithMockToggle(t config.Toggle) Option {
	return func(s *Store) { s.mock = t }
}

// WithIndexType selects the vector index implementation for new tenants.
func WithIndexType(t string) Option {
	return func(s *Store) { s.indexType = t }
}

// New creates a Store. remote may be nil, in which case indexes are kept local-only.
func New(mirror *DiskMirror, remote objectstore.Store, opts ...Option) (*Store, error) {
	if mirror == nil {
		return nil, fmt.Errorf("disk mirror is required")
	}
	s := &Store{
		mirror:  mirror,
		remote:  remote,
		metrics: telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.cache == nil {
		s.cache = NewMapCache()
	}
	if s.mock == nil {
		s.mock = config.StaticToggle(false)
	}
	probe, err := vector.NewIndex(s.indexType, 1)
	if err != nil {
		return nil, fmt.Errorf("index type: %w", err)
	}
	_ = probe.Close()
	return s, nil
}

// Load resolves the tenant's snapshot: cache, then mock mode, then the disk mirror,
// then the remote store. Concurrent loads of one tenant share a single resolution.
// A tenant that exists nowhere yields an error matching both ErrStoreUnavailable
// and objectstore.ErrNotFound.
func (s *Store) Load(ctx context.Context, clientID string) (*Snapshot, error) {
	if snap, ok := s.cache.Get(clientID); ok {
		s.metrics.IndexLoadsTotal.WithLabelValues("cache").Inc()
		return snap, nil
	}
	// The shared resolution outlives any single caller; each caller only waits on its own ctx.
	ch := s.loads.DoChan(clientID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		if snap, ok := s.cache.Get(clientID); ok {
			return snap, nil
		}
		snap, tier, err := s.resolve(shared, clientID)
		if err != nil {
			s.metrics.IndexLoadsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		s.metrics.IndexLoadsTotal.WithLabelValues(tier).Inc()
		return s.fill(clientID, snap), nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: tenant %s: %w", ErrStoreUnavailable, clientID, ctx.Err())
	}
}

// fill caches snap unless a save got there first.
func (s *Store) fill(clientID string, snap *Snapshot) *Snapshot {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if existing, ok := s.cache.Get(clientID); ok {
		return existing
	}
	s.cache.Set(clientID, snap)
	s.metrics.CachedTenants.Set(float64(s.cache.Len()))
	return snap
}

// Evict drops the tenant's cached snapshot so the next Load re-reads the mirror or remote.
// It waits for an in-flight Add of the same tenant to finish.
func (s *Store) Evict(clientID string) {
	unlock := s.locks.lock(clientID)
	defer unlock()
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Delete(clientID)
	s.metrics.CachedTenants.Set(float64(s.cache.Len()))
	s.logger.Info("evicted cached index", zap.String("client_id", clientID))
}

func (s *Store) resolve(ctx context.Context, clientID string) (*Snapshot, string, error) {
	if s.mock.Enabled() {
		s.logger.Warn("mock mode: creating empty index", zap.String("client_id", clientID))
		return &Snapshot{}, "mock", nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "indexstore.resolve")
	span.SetAttributes(attribute.String("client_id", clientID))
	defer span.End()

	indexData, metaData, err := s.mirror.Read(clientID)
	if err == nil {
		snap, derr := decodeSnapshot(indexData, metaData)
		if derr == nil {
			s.logger.Debug("index loaded from mirror", zap.String("client_id", clientID), zap.Int("vectors", snap.Len()))
			return snap, "mirror", nil
		}
		s.logger.Warn("discarding unreadable mirror", zap.String("client_id", clientID), zap.Error(derr))
	}

	snap, err := s.fetchRemote(ctx, clientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		s.logger.Error("failed to load index", zap.String("client_id", clientID), zap.Error(err))
		return nil, "", err
	}
	s.logger.Debug("index loaded from remote", zap.String("client_id", clientID), zap.Int("vectors", snap.Len()))
	return snap, "remote", nil
}

func (s *Store) fetchRemote(ctx context.Context, clientID string) (*Snapshot, error) {
	if s.remote == nil {
		return nil, fmt.Errorf("%w: tenant %s: no mirror and no remote store: %w", ErrStoreUnavailable, clientID, objectstore.ErrNotFound)
	}
	indexData, err := s.remote.Download(ctx, IndexKey(clientID))
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %s: %w", ErrStoreUnavailable, clientID, err)
	}
	metaData, err := s.remote.Download(ctx, MetaKey(clientID))
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %s: %w", ErrStoreUnavailable, clientID, err)
	}
	if err := s.mirror.Write(clientID, indexData, metaData); err != nil {
		s.logger.Warn("failed to mirror remote index", zap.String("client_id", clientID), zap.Error(err))
	}
	snap, err := decodeSnapshot(indexData, metaData)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %s: %w", ErrStoreUnavailable, clientID, err)
	}
	return snap, nil
}

// Save writes snap to the mirror, uploads both blobs, and replaces the cached snapshot.
// Every write is attempted. A remote failure returns ErrRemoteReplication; the mirror and
// cache keep the new snapshot.
func (s *Store) Save(ctx context.Context, clientID string, snap *Snapshot) error {
	ctx, span := telemetry.Tracer().Start(ctx, "indexstore.save")
	span.SetAttributes(attribute.String("client_id", clientID), attribute.Int("vectors", snap.Len()))
	defer span.End()

	indexData, metaData, err := encodeSnapshot(snap)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var mirrorErr, remoteErr error
	if err := s.mirror.Write(clientID, indexData, metaData); err != nil {
		mirrorErr = fmt.Errorf("write mirror: %w", err)
	}
	if s.remote != nil && !s.mock.Enabled() {
		remoteErr = errors.Join(
			s.remote.Upload(ctx, IndexKey(clientID), indexData),
			s.remote.Upload(ctx, MetaKey(clientID), metaData),
		)
		if remoteErr != nil {
			remoteErr = fmt.Errorf("%w: %w", ErrRemoteReplication, remoteErr)
		}
	}

	s.cacheMu.Lock()
	s.cache.Set(clientID, snap)
	s.metrics.CachedTenants.Set(float64(s.cache.Len()))
	s.cacheMu.Unlock()

	switch {
	case mirrorErr != nil:
		s.metrics.IndexSavesTotal.WithLabelValues("mirror_error").Inc()
	case remoteErr != nil:
		s.metrics.IndexSavesTotal.WithLabelValues("remote_error").Inc()
	default:
		s.metrics.IndexSavesTotal.WithLabelValues("ok").Inc()
	}
	if err := errors.Join(mirrorErr, remoteErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save incomplete")
		s.logger.Error("index save incomplete", zap.String("client_id", clientID), zap.Error(err))
		return err
	}
	s.logger.Debug("index saved", zap.String("client_id", clientID), zap.Int("vectors", snap.Len()))
	return nil
}

// Add appends embeddings and their records to the tenant's index and saves the result.
// Calls for one tenant are serialized. The first batch fixes the tenant's dimension and
// model; later batches must match both. The cached snapshot is never modified in place.
func (s *Store) Add(ctx context.Context, clientID, model string, embeddings [][]float32, records []models.ChunkRecord) error {
	if len(embeddings) != len(records) {
		return fmt.Errorf("add: %d embeddings for %d records", len(embeddings), len(records))
	}
	if len(embeddings) == 0 {
		return nil
	}

	unlock := s.locks.lock(clientID)
	defer unlock()

	current, err := s.Load(ctx, clientID)
	if err != nil {
		if !errors.Is(err, objectstore.ErrNotFound) {
			return err
		}
		s.logger.Info("creating index for new tenant", zap.String("client_id", clientID))
		current = &Snapshot{}
	}

	if current.Model != "" && model != "" && current.Model != model {
		return fmt.Errorf("%w: tenant %s uses %q, batch embedded with %q", ErrModelMismatch, clientID, current.Model, model)
	}

	var idx vector.Index
	if current.Index == nil {
		idx, err = vector.NewIndex(s.indexType, len(embeddings[0]))
	} else {
		idx, err = current.Index.Clone()
	}
	if err != nil {
		return fmt.Errorf("prepare index: %w", err)
	}
	if err := idx.Add(ctx, embeddings); err != nil {
		_ = idx.Close()
		return fmt.Errorf("add to index for tenant %s: %w", clientID, err)
	}

	next := &Snapshot{
		Dimension: idx.Dimension(),
		Model:     current.Model,
		Index:     idx,
		Records:   make([]models.ChunkRecord, 0, len(current.Records)+len(records)),
	}
	if next.Model == "" {
		next.Model = model
	}
	next.Records = append(next.Records, current.Records...)
	next.Records = append(next.Records, records...)

	if err := s.Save(ctx, clientID, next); err != nil {
		return err
	}
	s.logger.Info("added vectors to index",
		zap.String("client_id", clientID),
		zap.Int("added", len(embeddings)),
		zap.Int("total", next.Len()),
	)
	return nil
}

// Search returns up to k records nearest to query. A tenant without vectors yields no hits.
func (s *Store) Search(ctx context.Context, clientID string, query []float32, k int) ([]Hit, error) {
	snap, err := s.Load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if snap.Index == nil {
		return nil, nil
	}
	neighbors, err := snap.Index.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search tenant %s: %w", clientID, err)
	}
	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ID < 0 || n.ID >= int64(len(snap.Records)) {
			continue
		}
		hits = append(hits, Hit{
			ID:       n.ID,
			Record:   snap.Records[n.ID],
			Distance: n.Distance,
			Score:    vector.Score(n.Distance),
		})
	}
	return hits, nil
}

// Stats describes the tenant's index.
func (s *Store) Stats(ctx context.Context, clientID string) (*Stats, error) {
	snap, err := s.Load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		ClientID:  clientID,
		Vectors:   snap.Len(),
		Records:   len(snap.Records),
		Dimension: snap.Dimension,
		Model:     snap.Model,
		Mirrored:  s.mirror.Exists(clientID),
	}
	if snap.Index != nil {
		st.IndexType = snap.Index.Type()
	}
	return st, nil
}
