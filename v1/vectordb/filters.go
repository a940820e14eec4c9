package vectordb

import (
	"encoding/json"
)

// Query is the interface all payload filter nodes implement.
// The set of implementations is closed; translators switch over it exhaustively.
type Query interface {
	// IsQuery is a marker method to ensure type safety
	IsQuery()
}

// PayloadFilter is the root of a filter tree.
//
// Example:
//
//	filter := vectordb.NewPayloadFilter(vectordb.NewBool(
//	    vectordb.Must(vectordb.NewTerm("lang", "de")),
//	    vectordb.Should(vectordb.NewTerms("tag", "ml", "ai")),
//	    vectordb.MustNot(vectordb.NewExists("archived")),
//	))
type PayloadFilter struct {
	Query Query
}

// NewPayloadFilter wraps a query node into a PayloadFilter.
func NewPayloadFilter(q Query) *PayloadFilter {
	return &PayloadFilter{Query: q}
}

// Leaf carries the addressing shared by all leaf predicates.
//
// Field may be dotted ("meta.source.kind") to reach nested payload keys.
// ForceNotPayload addresses the object column of the same name instead.
type Leaf struct {
	Field           string `json:"field"`
	ForceNotPayload bool   `json:"force_not_payload,omitempty"`
}

// ── Exact Match ──────────────────────────────────────────────────────────────

// TermQuery matches a scalar value exactly (string, number or bool).
type TermQuery struct {
	Leaf
	Value any `json:"value"`
}

func (q *TermQuery) IsQuery() {}

// TermsQuery matches any of the given scalar values (IN).
type TermsQuery struct {
	Leaf
	Values []any `json:"values"`
}

func (q *TermsQuery) IsQuery() {}

// ── Range ────────────────────────────────────────────────────────────────────

// RangeQuery compares a numeric field against inclusive or exclusive bounds.
type RangeQuery struct {
	Leaf
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

func (q *RangeQuery) IsQuery() {}

// ── Full Text ────────────────────────────────────────────────────────────────

// MatchQuery is a full-text match; every word of Query must appear as a prefix.
type MatchQuery struct {
	Leaf
	Query string `json:"query"`
}

func (q *MatchQuery) IsQuery() {}

// WildcardQuery is a full-text match where '*' may end a token.
type WildcardQuery struct {
	Leaf
	Value string `json:"value"`
}

func (q *WildcardQuery) IsQuery() {}

// ── Presence ─────────────────────────────────────────────────────────────────

// ExistsQuery matches when the field is present and not null.
type ExistsQuery struct {
	Leaf
}

func (q *ExistsQuery) IsQuery() {}

// ── Lists ────────────────────────────────────────────────────────────────────

// ListHasAllQuery matches a payload list that contains every value.
type ListHasAllQuery struct {
	Leaf
	Values []any `json:"values"`
}

func (q *ListHasAllQuery) IsQuery() {}

// ListHasAnyQuery matches a payload list that contains at least one value.
type ListHasAnyQuery struct {
	Leaf
	Values []any `json:"values"`
}

func (q *ListHasAnyQuery) IsQuery() {}

// ── Bool ─────────────────────────────────────────────────────────────────────

// BoolQuery combines children.
//
// Must and Filter are conjunctive, Should is disjunctive and MustNot
// excludes rows where all of its children hold. Empty clauses are ignored.
type BoolQuery struct {
	Must    []Query
	Filter  []Query
	Should  []Query
	MustNot []Query
}

func (q *BoolQuery) IsQuery() {}

// IsEmpty reports whether the node has no children at all.
func (q *BoolQuery) IsEmpty() bool {
	return len(q.Must) == 0 && len(q.Filter) == 0 && len(q.Should) == 0 && len(q.MustNot) == 0
}

// ── JSON ─────────────────────────────────────────────────────────────────────

// Node type keys of the JSON wire form. Each node is an object with exactly one of them.
const (
	keyTerm       = "term"
	keyTerms      = "terms"
	keyRange      = "range"
	keyMatch      = "match"
	keyExists     = "exists"
	keyWildcard   = "wildcard"
	keyListHasAll = "list_has_all"
	keyListHasAny = "list_has_any"
	keyBool       = "bool"
)

type boolJSON struct {
	Must    []json.RawMessage `json:"must,omitempty"`
	Filter  []json.RawMessage `json:"filter,omitempty"`
	Should  []json.RawMessage `json:"should,omitempty"`
	MustNot []json.RawMessage `json:"must_not,omitempty"`
}

// MarshalJSON writes the root node in its single-key wire form.
func (f PayloadFilter) MarshalJSON() ([]byte, error) {
	if f.Query == nil {
		return []byte("null"), nil
	}
	return MarshalQuery(f.Query)
}

// UnmarshalJSON parses the wire form; unknown node types yield InvalidFilterError.
func (f *PayloadFilter) UnmarshalJSON(data []byte) error {
	q, err := ParseQuery(data)
	if err != nil {
		return err
	}
	f.Query = q
	return nil
}

// MarshalQuery encodes a node as {"<type>": {...}}.
func MarshalQuery(q Query) ([]byte, error) {
	var (
		key  string
		body any
	)
	switch n := q.(type) {
	case *TermQuery:
		key, body = keyTerm, n
	case *TermsQuery:
		key, body = keyTerms, n
	case *RangeQuery:
		key, body = keyRange, n
	case *MatchQuery:
		key, body = keyMatch, n
	case *ExistsQuery:
		key, body = keyExists, n
	case *WildcardQuery:
		key, body = keyWildcard, n
	case *ListHasAllQuery:
		key, body = keyListHasAll, n
	case *ListHasAnyQuery:
		key, body = keyListHasAny, n
	case *BoolQuery:
		b, err := marshalBool(n)
		if err != nil {
			return nil, err
		}
		key, body = keyBool, b
	default:
		return nil, NewInvalidFilterError("unknown query node %T", q)
	}
	return json.Marshal(map[string]any{key: body})
}

func marshalBool(q *BoolQuery) (*boolJSON, error) {
	out := &boolJSON{}
	var err error
	if out.Must, err = marshalChildren(q.Must); err != nil {
		return nil, err
	}
	if out.Filter, err = marshalChildren(q.Filter); err != nil {
		return nil, err
	}
	if out.Should, err = marshalChildren(q.Should); err != nil {
		return nil, err
	}
	if out.MustNot, err = marshalChildren(q.MustNot); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalChildren(children []Query) ([]json.RawMessage, error) {
	if len(children) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(children))
	for _, c := range children {
		raw, err := MarshalQuery(c)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
