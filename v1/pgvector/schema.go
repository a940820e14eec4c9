package pgvector

import (
	"fmt"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// createTablesSQL returns the DDL for a collection's tables. Every statement
// is idempotent so an interrupted build can be resumed.
func createTablesSQL(t Tables, dimensions int) []string {
	objects := t.QuotedObjects()
	parts := t.QuotedParts()
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + objects + ` (
			object_id    text  PRIMARY KEY,
			original_id  text,
			user_id      text,
			payload      jsonb NOT NULL DEFAULT '{}'::jsonb,
			storage_meta jsonb NOT NULL DEFAULT '{}'::jsonb
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			object_id  text        NOT NULL REFERENCES %s (object_id) ON DELETE CASCADE,
			part_id    text        NOT NULL,
			vector     vector(%d)  NOT NULL,
			is_average boolean     NOT NULL DEFAULT false,
			PRIMARY KEY (object_id, part_id)
		)`, parts, objects, dimensions),
		averagePartIndexSQL(t),
	}
}

// averagePartIndexSQL allows at most one average part per object.
func averagePartIndexSQL(t Tables) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (object_id) WHERE is_average",
		quoteIdent(t.indexName("parts_avg")), t.QuotedParts())
}

// dropSQL removes the routines and tables of a collection.
func dropSQL(t Tables, routines *RoutineSet) []string {
	var stmts []string
	for _, r := range routines.All() {
		stmts = append(stmts, r.DropSQL)
	}
	return append(stmts,
		`DROP TABLE IF EXISTS `+t.QuotedParts(),
		`DROP TABLE IF EXISTS `+t.QuotedObjects(),
	)
}

func hnswIndexSQL(t Tables, model vectordb.EmbeddingModelInfo) (string, error) {
	ops, err := opsClass(model.MetricType)
	if err != nil {
		return "", err
	}
	params := model.HNSW
	defaults := vectordb.DefaultHNSWParameters()
	if params.M <= 0 {
		params.M = defaults.M
	}
	if params.EfConstruction <= 0 {
		params.EfConstruction = defaults.EfConstruction
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (vector %s) WITH (m = %d, ef_construction = %d)",
		quoteIdent(t.indexName("hnsw")), t.QuotedParts(), ops, params.M, params.EfConstruction), nil
}
