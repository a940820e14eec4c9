package metastore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/vectorcollections/v1/postgres"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

const (
	collectionInfoTable = "vc_collection_info"
	bluePointerTable    = "vc_blue_pointer"
)

// collectionInfoRow holds one collection document. The document keeps the
// whole CollectionStateInfo so new fields need no schema change.
type collectionInfoRow struct {
	Kind         string                                            `gorm:"column:kind;primaryKey"`
	CollectionID string                                            `gorm:"column:collection_id;primaryKey"`
	Document     datatypes.JSONType[vectordb.CollectionStateInfo] `gorm:"column:document"`
	CreatedAt    time.Time                                         `gorm:"column:created_at"`
	UpdatedAt    time.Time                                         `gorm:"column:updated_at"`
}

func (collectionInfoRow) TableName() string { return collectionInfoTable }

type bluePointerRow struct {
	Kind         string    `gorm:"column:kind;primaryKey"`
	CollectionID string    `gorm:"column:collection_id"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (bluePointerRow) TableName() string { return bluePointerTable }

var metastoreDDL = []string{
	`CREATE TABLE IF NOT EXISTS ` + collectionInfoTable + ` (
		kind          text        NOT NULL,
		collection_id text        NOT NULL,
		document      jsonb       NOT NULL,
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, collection_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + bluePointerTable + ` (
		kind          text        PRIMARY KEY,
		collection_id text        NOT NULL,
		updated_at    timestamptz NOT NULL DEFAULT now()
	)`,
}

// PostgresStore keeps collection documents and blue pointers in two tables.
// Blue pointer moves and deletes serialize on row locks, so the check that a
// deleted collection is not blue cannot race with a switch.
type PostgresStore struct {
	pg postgres.Client
}

func NewPostgresStore(pg postgres.Client) *PostgresStore {
	return &PostgresStore{pg: pg}
}

// Migrate creates the metadata tables. Concurrent callers are serialized by
// a transaction-scoped advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.pg.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", collectionInfoTable).Error; err != nil {
			return err
		}
		for _, stmt := range metastoreDDL {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to migrate metastore: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	var (
		docs     []collectionInfoRow
		pointers []bluePointerRow
	)
	err := s.pg.WithReadFallback(ctx, func(db *gorm.DB) error {
		docs, pointers = nil, nil
		if err := db.Order("kind, collection_id").Find(&docs).Error; err != nil {
			return err
		}
		return db.Find(&pointers).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load collection metadata: %w", err)
	}

	snap := NewSnapshot()
	for _, row := range docs {
		kind := Kind(row.Kind)
		if _, ok := snap.Documents[kind]; !ok {
			continue
		}
		info := row.Document.Data()
		info.CollectionID = row.CollectionID
		info.CreatedAt = row.CreatedAt
		info.UpdatedAt = row.UpdatedAt
		snap.Documents[kind][row.CollectionID] = info
	}
	for _, p := range pointers {
		snap.Blue[Kind(p.Kind)] = p.CollectionID
	}
	return snap, nil
}

// Insert adds a document with ON CONFLICT DO NOTHING, so a document written
// by another process is never replaced.
func (s *PostgresStore) Insert(ctx context.Context, kind Kind, info vectordb.CollectionStateInfo) error {
	now := time.Now().UTC()
	info = storedForm(info)
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now

	row := collectionInfoRow{
		Kind:         string(kind),
		CollectionID: info.CollectionID,
		Document:     datatypes.NewJSONType(info),
		CreatedAt:    info.CreatedAt,
		UpdatedAt:    now,
	}
	res := s.pg.DB().WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentExists, info.CollectionID)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, kind Kind, info vectordb.CollectionStateInfo) (vectordb.CollectionStateInfo, error) {
	var updated vectordb.CollectionStateInfo
	err := s.pg.Transaction(ctx, func(tx *gorm.DB) error {
		stored, err := lockDocument(tx, kind, info.CollectionID)
		if err != nil {
			return err
		}
		if updated, err = applyUpdate(stored, info); err != nil {
			return err
		}
		updated.UpdatedAt = time.Now().UTC()
		return tx.Model(&collectionInfoRow{}).
			Where("kind = ? AND collection_id = ?", kind, info.CollectionID).
			Updates(map[string]any{
				"document":   datatypes.NewJSONType(updated),
				"updated_at": updated.UpdatedAt,
			}).Error
	})
	return updated, err
}

// lockDocument reads a document under FOR UPDATE.
func lockDocument(tx *gorm.DB, kind Kind, collectionID string) (vectordb.CollectionStateInfo, error) {
	var row collectionInfoRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ? AND collection_id = ?", kind, collectionID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return vectordb.CollectionStateInfo{}, &vectordb.CollectionNotFoundError{CollectionID: collectionID}
	}
	if err != nil {
		return vectordb.CollectionStateInfo{}, err
	}
	info := row.Document.Data()
	info.CollectionID = row.CollectionID
	info.CreatedAt = row.CreatedAt
	info.UpdatedAt = row.UpdatedAt
	return info, nil
}

func (s *PostgresStore) AppendOptimization(ctx context.Context, kind Kind, collectionID, name string) (vectordb.CollectionStateInfo, error) {
	var info vectordb.CollectionStateInfo
	err := s.pg.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if info, err = lockDocument(tx, kind, collectionID); err != nil {
			return err
		}
		if info.HasOptimization(name) {
			return nil
		}

		info.AppliedOptimizations = append(slices.Clone(info.AppliedOptimizations), name)
		info.UpdatedAt = time.Now().UTC()
		return tx.Model(&collectionInfoRow{}).
			Where("kind = ? AND collection_id = ?", kind, collectionID).
			Updates(map[string]any{
				"document":   datatypes.NewJSONType(info),
				"updated_at": info.UpdatedAt,
			}).Error
	})
	return info, err
}

// Delete locks the document before it reads the blue pointer. SetBlue holds a
// share lock on the same row while it moves the pointer, so the two serialize
// even before a pointer row exists.
func (s *PostgresStore) Delete(ctx context.Context, kind Kind, collectionID string, beforeCommit func(ctx context.Context) error) error {
	return s.pg.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockDocument(tx, kind, collectionID); err != nil {
			return err
		}

		var ptr bluePointerRow
		err := tx.Where("kind = ?", kind).Take(&ptr).Error
		switch {
		case err == nil && ptr.CollectionID == collectionID:
			return &vectordb.DeleteBlueCollectionError{CollectionID: collectionID}
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		err = tx.Where("kind = ? AND collection_id = ?", kind, collectionID).Delete(&collectionInfoRow{}).Error
		if err != nil {
			return err
		}
		if beforeCommit != nil {
			return beforeCommit(ctx)
		}
		return nil
	})
}

func (s *PostgresStore) SetBlue(ctx context.Context, collectionID string) (map[Kind]string, error) {
	moved := map[Kind]string{}
	err := s.pg.Transaction(ctx, func(tx *gorm.DB) error {
		var current []bluePointerRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Order("kind").
			Find(&current).Error
		if err != nil {
			return err
		}

		// Share locks on the documents keep a concurrent delete out until
		// the pointers are committed.
		candidates := map[Kind]string{
			KindContent: collectionID,
			KindQuery:   vectordb.QueryCollectionID(collectionID),
		}
		for _, kind := range Kinds {
			id := candidates[kind]
			var doc collectionInfoRow
			err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
				Select("kind", "collection_id").
				Where("kind = ? AND collection_id = ?", kind, id).
				Take(&doc).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound) && kind == KindContent:
				return &vectordb.CollectionNotFoundError{CollectionID: id}
			case errors.Is(err, gorm.ErrRecordNotFound):
				continue
			case err != nil:
				return err
			}
			moved[kind] = id
		}

		now := time.Now().UTC()
		for _, kind := range Kinds {
			id, ok := moved[kind]
			if !ok {
				continue
			}
			row := bluePointerRow{Kind: string(kind), CollectionID: id, UpdatedAt: now}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "kind"}},
				DoUpdates: clause.AssignmentColumns([]string{"collection_id", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}
