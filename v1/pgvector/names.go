package pgvector

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// Collection ids become part of table, index and routine names, which
// Postgres caps at 63 bytes.
var (
	collectionIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,40}$`)
	identifierPattern   = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// ValidateCollectionID reports whether id can name a collection.
func ValidateCollectionID(id string) error {
	if !collectionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must match %s", vectordb.ErrInvalidCollectionName, id, collectionIDPattern.String())
	}
	return nil
}

// Tables names the two tables backing one collection.
type Tables struct {
	CollectionID string
	Objects      string
	Parts        string
}

func tablesFor(collectionID string) Tables {
	return Tables{
		CollectionID: collectionID,
		Objects:      "vc_" + collectionID + "_objects",
		Parts:        "vc_" + collectionID + "_parts",
	}
}

// QuotedObjects returns the objects table as a quoted identifier.
func (t Tables) QuotedObjects() string { return quoteIdent(t.Objects) }

// QuotedParts returns the parts table as a quoted identifier.
func (t Tables) QuotedParts() string { return quoteIdent(t.Parts) }

// indexName derives an index name from the collection and a short suffix.
func (t Tables) indexName(suffix string) string {
	return "vc_" + t.CollectionID + "_" + suffix
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteLiteral renders s as a standard-conforming SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
