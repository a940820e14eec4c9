package metastore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// MemoryStore is a DocumentStore that lives in process memory. It suits
// single-process deployments and tests.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: NewSnapshot()}
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap), nil
}

func (m *MemoryStore) Insert(_ context.Context, kind Kind, info vectordb.CollectionStateInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snap.Documents[kind][info.CollectionID]; ok {
		return fmt.Errorf("%w: %s", ErrDocumentExists, info.CollectionID)
	}
	now := time.Now().UTC()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now
	m.snap.Documents[kind][info.CollectionID] = cloneInfo(storedForm(info))
	return nil
}

func (m *MemoryStore) Update(_ context.Context, kind Kind, info vectordb.CollectionStateInfo) (vectordb.CollectionStateInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.snap.Documents[kind][info.CollectionID]
	if !ok {
		return vectordb.CollectionStateInfo{}, &vectordb.CollectionNotFoundError{CollectionID: info.CollectionID}
	}
	updated, err := applyUpdate(stored, info)
	if err != nil {
		return vectordb.CollectionStateInfo{}, err
	}
	updated.UpdatedAt = time.Now().UTC()
	m.snap.Documents[kind][info.CollectionID] = updated
	return cloneInfo(updated), nil
}

func (m *MemoryStore) AppendOptimization(_ context.Context, kind Kind, collectionID, name string) (vectordb.CollectionStateInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.snap.Documents[kind][collectionID]
	if !ok {
		return vectordb.CollectionStateInfo{}, &vectordb.CollectionNotFoundError{CollectionID: collectionID}
	}
	if !info.HasOptimization(name) {
		info.AppliedOptimizations = append(slices.Clone(info.AppliedOptimizations), name)
		info.UpdatedAt = time.Now().UTC()
		m.snap.Documents[kind][collectionID] = info
	}
	return cloneInfo(info), nil
}

func (m *MemoryStore) Delete(ctx context.Context, kind Kind, collectionID string, beforeCommit func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snap.Documents[kind][collectionID]; !ok {
		return &vectordb.CollectionNotFoundError{CollectionID: collectionID}
	}
	if m.snap.Blue[kind] == collectionID {
		return &vectordb.DeleteBlueCollectionError{CollectionID: collectionID}
	}
	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}
	delete(m.snap.Documents[kind], collectionID)
	return nil
}

func (m *MemoryStore) SetBlue(_ context.Context, collectionID string) (map[Kind]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snap.Documents[KindContent][collectionID]; !ok {
		return nil, &vectordb.CollectionNotFoundError{CollectionID: collectionID}
	}
	moved := map[Kind]string{KindContent: collectionID}
	queryID := vectordb.QueryCollectionID(collectionID)
	if _, ok := m.snap.Documents[KindQuery][queryID]; ok {
		moved[KindQuery] = queryID
	}
	for kind, id := range moved {
		m.snap.Blue[kind] = id
	}
	return moved, nil
}

// storedForm strips the derived BLUE state before persisting.
func storedForm(info vectordb.CollectionStateInfo) vectordb.CollectionStateInfo {
	if info.WorkState == vectordb.WorkStateBlue {
		info.WorkState = vectordb.WorkStateGreen
	}
	return info
}

func cloneInfo(info vectordb.CollectionStateInfo) vectordb.CollectionStateInfo {
	info.AppliedOptimizations = slices.Clone(info.AppliedOptimizations)
	return info
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	out := NewSnapshot()
	for kind, docs := range s.Documents {
		for id, info := range docs {
			out.Documents[kind][id] = cloneInfo(info)
		}
	}
	for kind, id := range s.Blue {
		out.Blue[kind] = id
	}
	return out
}
