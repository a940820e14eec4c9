package pgvector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

func translateOne(t *testing.T, q vectordb.Query, prefix string) (Fragment, string) {
	t.Helper()
	tr, err := Translate(vectordb.NewPayloadFilter(q), prefix, "english")
	require.NoError(t, err)
	require.Len(t, tr.Composable, 1)
	require.Len(t, tr.Solid, 1)
	return tr.Composable[0], tr.Solid[0]
}

func TestTranslate_Leaves(t *testing.T) {
	numeric := func(prefix, key string) string {
		p := prefix + "payload -> " + key
		return "(CASE WHEN jsonb_typeof(" + p + ") = 'number' THEN (" + p + ")::numeric END)"
	}

	tests := []struct {
		name     string
		query    vectordb.Query
		wantSQL  string
		wantArgs []any
		solid    string
	}{
		{
			name:     "term",
			query:    vectordb.NewTerm("lang", "de"),
			wantSQL:  "o.payload @> ?::jsonb",
			wantArgs: []any{`{"lang":"de"}`},
			solid:    `o.payload @> '{"lang":"de"}'::jsonb`,
		},
		{
			name:     "term on nested field",
			query:    vectordb.NewTerm("meta.year", 2020),
			wantSQL:  "o.payload @> ?::jsonb",
			wantArgs: []any{`{"meta":{"year":2020}}`},
			solid:    `o.payload @> '{"meta":{"year":2020}}'::jsonb`,
		},
		{
			name:     "term on column",
			query:    vectordb.NewColumnTerm("user_id", "u1"),
			wantSQL:  "o.user_id = ?::text",
			wantArgs: []any{"u1"},
			solid:    "o.user_id = 'u1'",
		},
		{
			name:     "terms",
			query:    vectordb.NewTerms("lang", "de", "en"),
			wantSQL:  "(o.payload @> ?::jsonb) OR (o.payload @> ?::jsonb)",
			wantArgs: []any{`{"lang":"de"}`, `{"lang":"en"}`},
			solid:    `(o.payload @> '{"lang":"de"}'::jsonb) OR (o.payload @> '{"lang":"en"}'::jsonb)`,
		},
		{
			name:     "terms on column",
			query:    vectordb.NewColumnTerms("object_id", "a", "b"),
			wantSQL:  "o.object_id IN (?::text, ?::text)",
			wantArgs: []any{"a", "b"},
			solid:    "o.object_id IN ('a', 'b')",
		},
		{
			name:     "range",
			query:    vectordb.NewRange("score", vectordb.NumericRange{Gte: vectordb.Ptr(0.5), Lt: vectordb.Ptr(1.0)}),
			wantSQL:  numeric("o.", "?::text") + " >= ?::numeric AND " + numeric("o.", "?::text") + " < ?::numeric",
			wantArgs: []any{"score", "score", 0.5, "score", "score", 1.0},
			solid:    numeric("o.", "'score'") + " >= 0.5::numeric AND " + numeric("o.", "'score'") + " < 1::numeric",
		},
		{
			name:     "match",
			query:    vectordb.NewMatch("title", "Vector search!"),
			wantSQL:  "to_tsvector('english', COALESCE(o.payload ->> ?::text, '')) @@ to_tsquery('english', ?::text)",
			wantArgs: []any{"title", "vector:* & search:*"},
			solid:    "to_tsvector('english', COALESCE(o.payload ->> 'title', '')) @@ to_tsquery('english', 'vector:* & search:*')",
		},
		{
			name:     "wildcard",
			query:    vectordb.NewWildcard("title", "vect* DB"),
			wantSQL:  "to_tsvector('english', COALESCE(o.payload ->> ?::text, '')) @@ to_tsquery('english', ?::text)",
			wantArgs: []any{"title", "vect:* & db"},
			solid:    "to_tsvector('english', COALESCE(o.payload ->> 'title', '')) @@ to_tsquery('english', 'vect:* & db')",
		},
		{
			name:     "exists",
			query:    vectordb.NewExists("meta.author"),
			wantSQL:  "COALESCE(jsonb_typeof(o.payload -> ?::text -> ?::text), 'null') <> 'null'",
			wantArgs: []any{"meta", "author"},
			solid:    "COALESCE(jsonb_typeof(o.payload -> 'meta' -> 'author'), 'null') <> 'null'",
		},
		{
			name:     "exists on column",
			query:    &vectordb.ExistsQuery{Leaf: vectordb.Leaf{Field: "original_id", ForceNotPayload: true}},
			wantSQL:  "o.original_id IS NOT NULL",
			wantArgs: nil,
			solid:    "o.original_id IS NOT NULL",
		},
		{
			name:     "list has all",
			query:    vectordb.NewListHasAll("tags", "a", "b"),
			wantSQL:  "o.payload @> ?::jsonb",
			wantArgs: []any{`{"tags":["a","b"]}`},
			solid:    `o.payload @> '{"tags":["a","b"]}'::jsonb`,
		},
		{
			name:     "list has any",
			query:    vectordb.NewListHasAny("tags", "a", "b"),
			wantSQL:  "(o.payload @> ?::jsonb) OR (o.payload @> ?::jsonb)",
			wantArgs: []any{`{"tags":["a"]}`, `{"tags":["b"]}`},
			solid:    `(o.payload @> '{"tags":["a"]}'::jsonb) OR (o.payload @> '{"tags":["b"]}'::jsonb)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, solid := translateOne(t, tt.query, "o")
			assert.Equal(t, tt.wantSQL, frag.SQL)
			assert.Equal(t, tt.wantArgs, frag.Args)
			assert.Equal(t, tt.solid, solid)
		})
	}
}

func TestTranslate_NoPrefix(t *testing.T) {
	frag, solid := translateOne(t, vectordb.NewTerm("lang", "de"), "")
	assert.Equal(t, "payload @> ?::jsonb", frag.SQL)
	assert.Equal(t, `payload @> '{"lang":"de"}'::jsonb`, solid)
}

func TestTranslate_RootBoolSplitsIntoConjuncts(t *testing.T) {
	filter := vectordb.NewPayloadFilter(vectordb.NewBool(
		vectordb.Must(vectordb.NewTerm("lang", "de")),
		vectordb.Filter(vectordb.NewColumnTerm("user_id", "u1")),
		vectordb.Should(vectordb.NewExists("a"), vectordb.NewExists("b")),
		vectordb.MustNot(vectordb.NewTerm("draft", true)),
	))

	tr, err := Translate(filter, "o", "english")
	require.NoError(t, err)
	require.Len(t, tr.Composable, 4)

	assert.Equal(t, "o.payload @> ?::jsonb", tr.Composable[0].SQL)
	assert.Equal(t, "o.user_id = ?::text", tr.Composable[1].SQL)
	assert.Equal(t,
		"((COALESCE(jsonb_typeof(o.payload -> ?::text), 'null') <> 'null') OR (COALESCE(jsonb_typeof(o.payload -> ?::text), 'null') <> 'null'))",
		tr.Composable[2].SQL)
	assert.Equal(t, []any{"a", "b"}, tr.Composable[2].Args)
	assert.Equal(t, "NOT COALESCE((o.payload @> ?::jsonb), FALSE)", tr.Composable[3].SQL)
	assert.Equal(t, []any{`{"draft":true}`}, tr.Composable[3].Args)

	where, args := tr.Where()
	assert.Equal(t, "(o.payload @> ?::jsonb) AND (o.user_id = ?::text) AND ("+tr.Composable[2].SQL+") AND (NOT COALESCE((o.payload @> ?::jsonb), FALSE))", where)
	assert.Equal(t, []any{`{"lang":"de"}`, "u1", "a", "b", `{"draft":true}`}, args)

	assert.Equal(t,
		`(o.payload @> '{"lang":"de"}'::jsonb) AND (o.user_id = 'u1') AND `+
			`(((COALESCE(jsonb_typeof(o.payload -> 'a'), 'null') <> 'null') OR (COALESCE(jsonb_typeof(o.payload -> 'b'), 'null') <> 'null'))) AND `+
			`(NOT COALESCE((o.payload @> '{"draft":true}'::jsonb), FALSE))`,
		tr.SolidClause())
}

func TestTranslate_NestedBool(t *testing.T) {
	frag, _ := translateOne(t, vectordb.NewBool(vectordb.Should(
		vectordb.NewBool(vectordb.Must(vectordb.NewTerm("a", 1)), vectordb.MustNot(vectordb.NewTerm("b", 2))),
		vectordb.NewTerm("c", 3),
	)), "o")

	assert.Equal(t, "(((o.payload @> ?::jsonb) AND NOT COALESCE((o.payload @> ?::jsonb), FALSE)) OR (o.payload @> ?::jsonb))", frag.SQL)
	assert.Equal(t, []any{`{"a":1}`, `{"b":2}`, `{"c":3}`}, frag.Args)
}

func TestTranslate_MustNotKeepsRowsWithoutField(t *testing.T) {
	tests := []struct {
		name     string
		query    vectordb.Query
		wantSQL  string
		wantArgs []any
		solid    string
	}{
		{
			name:     "column term",
			query:    vectordb.NewBool(vectordb.MustNot(vectordb.NewColumnTerm("user_id", "u1"))),
			wantSQL:  "NOT COALESCE((o.user_id = ?::text), FALSE)",
			wantArgs: []any{"u1"},
			solid:    "NOT COALESCE((o.user_id = 'u1'), FALSE)",
		},
		{
			name:     "range",
			query:    vectordb.NewBool(vectordb.MustNot(vectordb.NewRange("price", vectordb.NumericRange{Gt: vectordb.Ptr(5.0)}))),
			wantSQL:  "NOT COALESCE((" + "(CASE WHEN jsonb_typeof(o.payload -> ?::text) = 'number' THEN (o.payload -> ?::text)::numeric END) > ?::numeric" + "), FALSE)",
			wantArgs: []any{"price", "price", 5.0},
			solid:    "NOT COALESCE((" + "(CASE WHEN jsonb_typeof(o.payload -> 'price') = 'number' THEN (o.payload -> 'price')::numeric END) > 5::numeric" + "), FALSE)",
		},
		{
			name: "should below must_not",
			query: vectordb.NewBool(vectordb.MustNot(vectordb.NewBool(vectordb.Should(
				vectordb.NewColumnTerm("user_id", "u1"),
				vectordb.NewColumnTerm("original_id", "o1"),
			)))),
			wantSQL:  "NOT COALESCE((((o.user_id = ?::text) OR (o.original_id = ?::text))), FALSE)",
			wantArgs: []any{"u1", "o1"},
			solid:    "NOT COALESCE((((o.user_id = 'u1') OR (o.original_id = 'o1'))), FALSE)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, solid := translateOne(t, tt.query, "o")
			assert.Equal(t, tt.wantSQL, frag.SQL)
			assert.Equal(t, tt.wantArgs, frag.Args)
			assert.Equal(t, tt.solid, solid)
		})
	}
}

func TestTranslate_Empty(t *testing.T) {
	for name, filter := range map[string]*vectordb.PayloadFilter{
		"nil filter": nil,
		"nil query":  {},
		"empty bool": vectordb.NewPayloadFilter(vectordb.NewBool()),
	} {
		t.Run(name, func(t *testing.T) {
			tr, err := Translate(filter, "o", "english")
			require.NoError(t, err)
			assert.True(t, tr.IsEmpty())

			where, args := tr.Where()
			assert.Equal(t, "TRUE", where)
			assert.Empty(t, args)
			assert.Equal(t, "", tr.SolidClause())
		})
	}
}

func TestTranslate_QuotesInlinedText(t *testing.T) {
	frag, solid := translateOne(t, vectordb.NewColumnTerm("object_id", "it's"), "o")
	assert.Equal(t, []any{"it's"}, frag.Args)
	assert.Equal(t, "o.object_id = 'it''s'", solid)

	_, solid = translateOne(t, vectordb.NewTerm("q", "x'); DROP TABLE t; --"), "o")
	assert.Equal(t, `o.payload @> '{"q":"x''); DROP TABLE t; --"}'::jsonb`, solid)
}

func TestTranslate_MatchStripsOperators(t *testing.T) {
	frag, _ := translateOne(t, vectordb.NewMatch("title", "a|b & !c:*"), "o")
	assert.Equal(t, "ab:* & c:*", frag.Args[1])
}

func TestTranslate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query vectordb.Query
	}{
		{"column term on unknown column", vectordb.NewColumnTerm("payload", "x")},
		{"column term with number", &vectordb.TermQuery{Leaf: vectordb.Leaf{Field: "user_id", ForceNotPayload: true}, Value: 1}},
		{"range on column", &vectordb.RangeQuery{Leaf: vectordb.Leaf{Field: "user_id", ForceNotPayload: true}, Gt: vectordb.Ptr(1.0)}},
		{"range without bounds", vectordb.NewRange("x", vectordb.NumericRange{})},
		{"terms without values", vectordb.NewTerms("x")},
		{"terms with mixed types", vectordb.NewTerms("x", "a", 1)},
		{"term with null", vectordb.NewTerm("x", nil)},
		{"term with object", vectordb.NewTerm("x", map[string]any{"a": 1})},
		{"empty field", vectordb.NewTerm("", "a")},
		{"empty path segment", vectordb.NewExists("a..b")},
		{"match without words", vectordb.NewMatch("title", "!!! ???")},
		{"wildcard inside token", vectordb.NewWildcard("title", "v*ct")},
		{"list on column", &vectordb.ListHasAnyQuery{Leaf: vectordb.Leaf{Field: "user_id", ForceNotPayload: true}, Values: []any{"a"}}},
		{"list without values", vectordb.NewListHasAll("tags")},
		{"nil child", vectordb.NewBool(vectordb.Must(nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(vectordb.NewPayloadFilter(tt.query), "o", "english")
			require.Error(t, err)
			assert.True(t, errors.Is(err, vectordb.ErrInvalidFilter), "got %v", err)
		})
	}
}

func TestTranslate_RejectsUnsafeIdentifiers(t *testing.T) {
	filter := vectordb.NewPayloadFilter(vectordb.NewTerm("a", "b"))

	_, err := Translate(filter, "o; DROP", "english")
	assert.ErrorIs(t, err, vectordb.ErrInvalidFilter)

	_, err = Translate(filter, "o", "english'")
	assert.ErrorIs(t, err, vectordb.ErrInvalidFilter)
}

func TestTranslate_Deterministic(t *testing.T) {
	filter := vectordb.NewPayloadFilter(vectordb.NewBool(
		vectordb.Must(vectordb.NewTerms("lang", "de", "en"), vectordb.NewRange("year", vectordb.NumericRange{Gt: vectordb.Ptr(2000.0)})),
		vectordb.Should(vectordb.NewMatch("title", "vector"), vectordb.NewListHasAny("tags", "x", "y")),
	))
	first, err := Translate(filter, "o", "english")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Translate(filter, "o", "english")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
