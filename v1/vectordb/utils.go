package vectordb

import (
	"bytes"
	"encoding/json"
)

// ── Bool Constructors ────────────────────────────────────────────────────────

// NewBool creates a BoolQuery with the given clauses.
// Use with Must(), Filter(), Should() and MustNot() helpers.
//
// Example:
//
//	vectordb.NewBool(
//	    vectordb.Must(vectordb.NewTerm("status", "published")),
//	    vectordb.Should(vectordb.NewTerm("tag", "ml"), vectordb.NewTerm("tag", "ai")),
//	)
func NewBool(clauses ...func(*BoolQuery)) *BoolQuery {
	q := &BoolQuery{}
	for _, clause := range clauses {
		clause(q)
	}
	return q
}

// Must appends children that all have to match.
func Must(children ...Query) func(*BoolQuery) {
	return func(q *BoolQuery) {
		q.Must = append(q.Must, children...)
	}
}

// Filter appends children that all have to match. It behaves like Must.
func Filter(children ...Query) func(*BoolQuery) {
	return func(q *BoolQuery) {
		q.Filter = append(q.Filter, children...)
	}
}

// Should appends children of which at least one has to match.
func Should(children ...Query) func(*BoolQuery) {
	return func(q *BoolQuery) {
		q.Should = append(q.Should, children...)
	}
}

// MustNot appends children whose conjunction excludes a row.
func MustNot(children ...Query) func(*BoolQuery) {
	return func(q *BoolQuery) {
		q.MustNot = append(q.MustNot, children...)
	}
}

// ── Leaf Constructors ────────────────────────────────────────────────────────

func NewTerm(field string, value any) *TermQuery {
	return &TermQuery{Leaf: Leaf{Field: field}, Value: value}
}

// NewColumnTerm matches an object column (object_id, original_id, user_id) directly.
func NewColumnTerm(column string, value string) *TermQuery {
	return &TermQuery{Leaf: Leaf{Field: column, ForceNotPayload: true}, Value: value}
}

func NewTerms(field string, values ...any) *TermsQuery {
	return &TermsQuery{Leaf: Leaf{Field: field}, Values: values}
}

// NewColumnTerms is the IN variant of NewColumnTerm.
func NewColumnTerms(column string, values ...string) *TermsQuery {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return &TermsQuery{Leaf: Leaf{Field: column, ForceNotPayload: true}, Values: anyValues}
}

// NumericRange defines bounds for NewRange. Nil bounds are open.
type NumericRange struct {
	Gt  *float64
	Gte *float64
	Lt  *float64
	Lte *float64
}

func NewRange(field string, r NumericRange) *RangeQuery {
	return &RangeQuery{Leaf: Leaf{Field: field}, Gt: r.Gt, Gte: r.Gte, Lt: r.Lt, Lte: r.Lte}
}

func NewMatch(field, query string) *MatchQuery {
	return &MatchQuery{Leaf: Leaf{Field: field}, Query: query}
}

func NewWildcard(field, value string) *WildcardQuery {
	return &WildcardQuery{Leaf: Leaf{Field: field}, Value: value}
}

func NewExists(field string) *ExistsQuery {
	return &ExistsQuery{Leaf: Leaf{Field: field}}
}

func NewListHasAll(field string, values ...any) *ListHasAllQuery {
	return &ListHasAllQuery{Leaf: Leaf{Field: field}, Values: values}
}

func NewListHasAny(field string, values ...any) *ListHasAnyQuery {
	return &ListHasAnyQuery{Leaf: Leaf{Field: field}, Values: values}
}

// Ptr returns a pointer to v. Handy for range bounds.
func Ptr[T any](v T) *T {
	return &v
}

// ── Parsing ──────────────────────────────────────────────────────────────────

// ParseQuery decodes one node of the JSON wire form.
// Node type is detected by its single key; anything else is an InvalidFilterError.
func ParseQuery(data []byte) (Query, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, NewInvalidFilterError("node is not a JSON object: %v", err)
	}
	if len(fields) != 1 {
		return nil, NewInvalidFilterError("node must have exactly one type key, got %d", len(fields))
	}

	for key, body := range fields {
		switch key {
		case keyTerm:
			return decodeLeaf(key, body, &TermQuery{})
		case keyTerms:
			return decodeLeaf(key, body, &TermsQuery{})
		case keyRange:
			return decodeLeaf(key, body, &RangeQuery{})
		case keyMatch:
			return decodeLeaf(key, body, &MatchQuery{})
		case keyExists:
			return decodeLeaf(key, body, &ExistsQuery{})
		case keyWildcard:
			return decodeLeaf(key, body, &WildcardQuery{})
		case keyListHasAll:
			return decodeLeaf(key, body, &ListHasAllQuery{})
		case keyListHasAny:
			return decodeLeaf(key, body, &ListHasAnyQuery{})
		case keyBool:
			return parseBool(body)
		default:
			return nil, NewInvalidFilterError("unknown query type %q", key)
		}
	}
	return nil, NewInvalidFilterError("empty node")
}

// decodeLeaf strictly decodes a leaf body; unknown body fields are rejected.
func decodeLeaf[T Query](key string, body json.RawMessage, target T) (Query, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, NewInvalidFilterError("malformed %s body: %v", key, err)
	}
	return target, nil
}

func parseBool(body json.RawMessage) (Query, error) {
	var raw boolJSON
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, NewInvalidFilterError("malformed bool body: %v", err)
	}

	q := &BoolQuery{}
	var err error
	if q.Must, err = parseChildren(raw.Must); err != nil {
		return nil, err
	}
	if q.Filter, err = parseChildren(raw.Filter); err != nil {
		return nil, err
	}
	if q.Should, err = parseChildren(raw.Should); err != nil {
		return nil, err
	}
	if q.MustNot, err = parseChildren(raw.MustNot); err != nil {
		return nil, err
	}
	return q, nil
}

func parseChildren(raws []json.RawMessage) ([]Query, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make([]Query, 0, len(raws))
	for _, raw := range raws {
		q, err := ParseQuery(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}
