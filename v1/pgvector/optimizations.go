package pgvector

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// Optimization is an idempotent physical change to a collection. Its name is
// recorded on the collection document once applied, and an optimization whose
// name is already recorded is not applied again.
type Optimization interface {
	Name() string
	Apply(ctx context.Context, c *Collection) error
}

// DefaultOptimizations is applied to content collections.
func DefaultOptimizations() []Optimization {
	return []Optimization{
		PayloadIndexOptimization{},
		LookupIndexOptimization{},
		PartsObjectIndexOptimization{},
		VacuumAnalyzeOptimization{},
	}
}

// DefaultQueryOptimizations is applied to query collections. They are never
// looked up by user, so the lookup index is left out.
func DefaultQueryOptimizations() []Optimization {
	return []Optimization{
		PayloadIndexOptimization{},
		PartsObjectIndexOptimization{},
		VacuumAnalyzeOptimization{},
	}
}

// PayloadIndexOptimization adds a GIN index serving the containment
// predicates of term, terms and list filters.
type PayloadIndexOptimization struct{}

func (PayloadIndexOptimization) Name() string { return "payload_gin_index" }

func (PayloadIndexOptimization) Apply(ctx context.Context, c *Collection) error {
	return c.exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (payload jsonb_path_ops)",
		quoteIdent(c.tables.indexName("payload_gin")), c.tables.QuotedObjects()))
}

// LookupIndexOptimization indexes original_id and user_id, which
// FindByOriginalIDs and the personalization predicates filter on.
type LookupIndexOptimization struct{}

func (LookupIndexOptimization) Name() string { return "lookup_indexes" }

func (LookupIndexOptimization) Apply(ctx context.Context, c *Collection) error {
	objects := c.tables.QuotedObjects()
	return c.exec(ctx,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (original_id, user_id)",
			quoteIdent(c.tables.indexName("original_user")), objects),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (user_id) WHERE user_id IS NOT NULL",
			quoteIdent(c.tables.indexName("user")), objects),
	)
}

// PartsObjectIndexOptimization adds the unique partial index over average
// parts to collections whose tables were created without it. Mean-only
// searches read through it.
type PartsObjectIndexOptimization struct{}

func (PartsObjectIndexOptimization) Name() string { return "parts_average_index" }

func (PartsObjectIndexOptimization) Apply(ctx context.Context, c *Collection) error {
	return c.exec(ctx, averagePartIndexSQL(c.tables))
}

// VacuumAnalyzeOptimization refreshes planner statistics on both tables.
type VacuumAnalyzeOptimization struct{}

func (VacuumAnalyzeOptimization) Name() string { return "vacuum_analyze" }

// Apply runs outside any transaction; VACUUM refuses to run inside one.
func (VacuumAnalyzeOptimization) Apply(ctx context.Context, c *Collection) error {
	db := c.pg.DB().WithContext(ctx)
	for _, table := range []string{c.tables.QuotedObjects(), c.tables.QuotedParts()} {
		if err := db.Exec("VACUUM ANALYZE " + table).Error; err != nil {
			return fmt.Errorf("vacuum analyze %s: %w", table, err)
		}
	}
	return nil
}

// RangeFieldIndexOptimization indexes the numeric payload expression that
// range filters on Field compare against. Only filtered searches with inlined
// filters use it; bound parameters hide the constant path from the planner.
type RangeFieldIndexOptimization struct {
	Field string
}

func (o RangeFieldIndexOptimization) Name() string { return "range_field_index:" + o.Field }

func (o RangeFieldIndexOptimization) Apply(ctx context.Context, c *Collection) error {
	expr, err := o.expression()
	if err != nil {
		return err
	}
	return c.exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(c.tables.indexName("rf_"+shortHash(o.Name()))), c.tables.QuotedObjects(), expr))
}

// expression is the range filter's numeric extraction, rendered the way
// filtered searches inline it.
func (o RangeFieldIndexOptimization) expression() (string, error) {
	keys, err := payloadKeys(vectordb.Leaf{Field: o.Field})
	if err != nil {
		return "", err
	}
	return (&renderer{inline: true}).numeric(keys), nil
}

// exec runs DDL statements in one transaction.
func (c *Collection) exec(ctx context.Context, stmts ...string) error {
	return c.write(ctx, func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
