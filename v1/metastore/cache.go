package metastore

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// Logger is the logging surface the metastore needs.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

// Cache serves collection metadata from memory and writes through to a
// DocumentStore. The first read loads the full snapshot; later reads never
// touch the store until InvalidateCache or an event from another instance.
type Cache struct {
	store      DocumentStore
	notifier   Notifier
	logger     Logger
	metrics    metrics.MetricsCollector
	instanceID string

	mu     sync.RWMutex
	snap   *Snapshot
	loaded bool

	subMu sync.Mutex
	sub   io.Closer
}

// Option configures a Cache.
type Option func(*Cache)

func WithNotifier(n Notifier) Option {
	return func(c *Cache) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithLogger(l Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m metrics.MetricsCollector) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithInstanceID overrides the generated instance id. Events carrying this
// id are treated as the cache's own and ignored.
func WithInstanceID(id string) Option {
	return func(c *Cache) {
		if id != "" {
			c.instanceID = id
		}
	}
}

func NewCache(store DocumentStore, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		notifier:   NopNotifier{},
		logger:     nopLogger{},
		metrics:    metrics.Nop{},
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) InstanceID() string { return c.instanceID }

// Start subscribes to invalidation events from other instances. ctx must
// outlive the subscription; Close ends it.
func (c *Cache) Start(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.sub != nil {
		return nil
	}

	sub, err := c.notifier.Subscribe(ctx, c.handleEvent)
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

func (c *Cache) Close() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	return err
}

func (c *Cache) handleEvent(ctx context.Context, event Event) {
	if event.Origin == c.instanceID {
		return
	}

	c.mu.Lock()
	err := c.reloadLocked(ctx)
	c.mu.Unlock()

	fields := map[string]interface{}{
		"origin":        event.Origin,
		"reason":        event.Reason,
		"collection_id": event.CollectionID,
	}
	if err != nil {
		c.logger.Error("failed to reload collection metadata after remote change", err, fields)
		return
	}
	c.metrics.IncrementCacheInvalidations("remote")
	c.logger.Info("reloaded collection metadata after remote change", nil, fields)
}

// ── Reads ───────────────────────────────────────────────────────────────────

func (c *Cache) GetCollection(ctx context.Context, collectionID string) (vectordb.CollectionStateInfo, error) {
	return c.Get(ctx, KindContent, collectionID)
}

func (c *Cache) GetQueryCollection(ctx context.Context, collectionID string) (vectordb.CollectionStateInfo, error) {
	return c.Get(ctx, KindQuery, collectionID)
}

func (c *Cache) GetBlueCollection(ctx context.Context) (vectordb.CollectionStateInfo, error) {
	return c.GetBlue(ctx, KindContent)
}

func (c *Cache) GetBlueQueryCollection(ctx context.Context) (vectordb.CollectionStateInfo, error) {
	return c.GetBlue(ctx, KindQuery)
}

func (c *Cache) ListCollections(ctx context.Context) ([]vectordb.CollectionStateInfo, error) {
	return c.List(ctx, KindContent)
}

func (c *Cache) ListQueryCollections(ctx context.Context) ([]vectordb.CollectionStateInfo, error) {
	return c.List(ctx, KindQuery)
}

// Get returns one document, or a CollectionNotFoundError.
func (c *Cache) Get(ctx context.Context, kind Kind, collectionID string) (vectordb.CollectionStateInfo, error) {
	var info vectordb.CollectionStateInfo
	err := c.view(ctx, func(s *Snapshot) error {
		doc, ok := s.Documents[kind][collectionID]
		if !ok {
			return &vectordb.CollectionNotFoundError{CollectionID: collectionID}
		}
		info = present(s, kind, doc)
		return nil
	})
	return info, err
}

func (c *Cache) Exists(ctx context.Context, kind Kind, collectionID string) (bool, error) {
	var exists bool
	err := c.view(ctx, func(s *Snapshot) error {
		_, exists = s.Documents[kind][collectionID]
		return nil
	})
	return exists, err
}

// GetBlue returns the document the blue pointer of kind names. It fails with
// CollectionNotFoundError when no blue collection was ever set.
func (c *Cache) GetBlue(ctx context.Context, kind Kind) (vectordb.CollectionStateInfo, error) {
	var info vectordb.CollectionStateInfo
	err := c.view(ctx, func(s *Snapshot) error {
		id, ok := s.Blue[kind]
		if !ok {
			return &vectordb.CollectionNotFoundError{CollectionID: "blue " + string(kind) + " collection"}
		}
		doc, ok := s.Documents[kind][id]
		if !ok {
			return &vectordb.CollectionNotFoundError{CollectionID: id}
		}
		info = present(s, kind, doc)
		return nil
	})
	return info, err
}

// List returns every document of kind ordered by collection id.
func (c *Cache) List(ctx context.Context, kind Kind) ([]vectordb.CollectionStateInfo, error) {
	var out []vectordb.CollectionStateInfo
	err := c.view(ctx, func(s *Snapshot) error {
		out = make([]vectordb.CollectionStateInfo, 0, len(s.Documents[kind]))
		for _, doc := range s.Documents[kind] {
			out = append(out, present(s, kind, doc))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, err
}

// ── Writes ──────────────────────────────────────────────────────────────────

// AddCollection records a new document. When the id is already stored,
// possibly by another process, the snapshot is reloaded and the error wraps
// ErrDocumentExists.
func (c *Cache) AddCollection(ctx context.Context, kind Kind, info vectordb.CollectionStateInfo) error {
	err := c.mutate(ctx, func(s *Snapshot) error {
		if info.CreatedAt.IsZero() {
			info.CreatedAt = time.Now().UTC()
		}
		err := c.store.Insert(ctx, kind, info)
		if errors.Is(err, ErrDocumentExists) {
			c.logger.Warn("collection already recorded by another instance", nil, map[string]interface{}{
				"collection_id": info.CollectionID,
				"kind":          string(kind),
			})
			return errors.Join(err, c.reloadOrForget(ctx))
		}
		if err != nil {
			return err
		}
		s.Documents[kind][info.CollectionID] = cloneInfo(storedForm(info))
		return nil
	})
	if err != nil {
		return err
	}
	c.publish(ctx, ReasonCreated, info.CollectionID)
	return nil
}

// UpdateCollection stores the work state and index flag of an existing
// document, typically to move it from RED to GREEN.
func (c *Cache) UpdateCollection(ctx context.Context, kind Kind, info vectordb.CollectionStateInfo) error {
	err := c.mutate(ctx, func(s *Snapshot) error {
		updated, err := c.store.Update(ctx, kind, info)
		if errors.Is(err, vectordb.ErrCollectionNotFound) {
			delete(s.Documents[kind], info.CollectionID)
		}
		if err != nil {
			return err
		}
		s.Documents[kind][info.CollectionID] = cloneInfo(updated)
		return nil
	})
	if err != nil {
		return err
	}
	c.publish(ctx, ReasonUpdated, info.CollectionID)
	return nil
}

// DeleteCollection removes a document. beforeCommit runs once the document is
// known not to be blue; a failure there leaves the document in place.
//
// The store call runs without the cache lock: beforeCommit drops tables and
// waits behind running searches, and metadata reads must not queue behind it.
func (c *Cache) DeleteCollection(ctx context.Context, kind Kind, collectionID string, beforeCommit func(ctx context.Context) error) error {
	err := c.store.Delete(ctx, kind, collectionID, beforeCommit)
	if err != nil && !errors.Is(err, vectordb.ErrCollectionNotFound) {
		return err
	}

	c.mu.Lock()
	if c.loaded {
		delete(c.snap.Documents[kind], collectionID)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.publish(ctx, ReasonDeleted, collectionID)
	return nil
}

// SetBlueCollection makes collectionID the blue content collection. The store
// moves the query pointer along when the query collection exists there, which
// the local snapshot may not know yet.
func (c *Cache) SetBlueCollection(ctx context.Context, collectionID string) error {
	var moved map[Kind]string
	err := c.mutate(ctx, func(s *Snapshot) error {
		var err error
		if moved, err = c.store.SetBlue(ctx, collectionID); err != nil {
			return err
		}
		for kind, id := range moved {
			if _, ok := s.Documents[kind][id]; !ok {
				return c.reloadOrForget(ctx)
			}
		}
		for kind, id := range moved {
			s.Blue[kind] = id
		}
		return nil
	})
	if err != nil {
		return err
	}

	for kind := range moved {
		c.metrics.IncrementBlueSwitches(string(kind))
	}
	c.logger.Info("blue collection switched", nil, map[string]interface{}{
		"collection_id": collectionID,
		"query_pointer": moved[KindQuery],
	})
	c.publish(ctx, ReasonBlueSwitched, collectionID)
	return nil
}

// MarkOptimizationApplied durably records name on a document.
func (c *Cache) MarkOptimizationApplied(ctx context.Context, kind Kind, collectionID, name string) (vectordb.CollectionStateInfo, error) {
	var info vectordb.CollectionStateInfo
	err := c.mutate(ctx, func(s *Snapshot) error {
		updated, err := c.store.AppendOptimization(ctx, kind, collectionID, name)
		if err != nil {
			return err
		}
		s.Documents[kind][collectionID] = cloneInfo(updated)
		info = present(s, kind, updated)
		return nil
	})
	if err != nil {
		return info, err
	}
	c.publish(ctx, ReasonOptimized, collectionID)
	return info, nil
}

// InvalidateCache drops the in-memory state and reloads it from the store.
func (c *Cache) InvalidateCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reloadLocked(ctx); err != nil {
		return err
	}
	c.metrics.IncrementCacheInvalidations("local")
	return nil
}

// ── Internals ───────────────────────────────────────────────────────────────

func (c *Cache) view(ctx context.Context, fn func(s *Snapshot) error) error {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return fn(c.snap)
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if err := c.reloadLocked(ctx); err != nil {
			return err
		}
	}
	return fn(c.snap)
}

func (c *Cache) mutate(ctx context.Context, fn func(s *Snapshot) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if err := c.reloadLocked(ctx); err != nil {
			return err
		}
	}
	return fn(c.snap)
}

func (c *Cache) reloadLocked(ctx context.Context) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.snap = snap
	c.loaded = true
	return nil
}

// reloadOrForget reloads the snapshot. On failure the snapshot is marked
// unloaded so the next read retries. Callers hold c.mu.
func (c *Cache) reloadOrForget(ctx context.Context) error {
	if err := c.reloadLocked(ctx); err != nil {
		c.loaded = false
		return err
	}
	return nil
}

func (c *Cache) publish(ctx context.Context, reason, collectionID string) {
	event := Event{Origin: c.instanceID, Reason: reason, CollectionID: collectionID}
	if err := c.notifier.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to broadcast collection metadata change", err, map[string]interface{}{
			"reason":        reason,
			"collection_id": collectionID,
		})
	}
}

// present derives the BLUE state from the pointer and detaches the slices.
func present(s *Snapshot, kind Kind, doc vectordb.CollectionStateInfo) vectordb.CollectionStateInfo {
	doc = cloneInfo(doc)
	if s.Blue[kind] == doc.CollectionID {
		doc.WorkState = vectordb.WorkStateBlue
	}
	return doc
}
