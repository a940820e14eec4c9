package pgvector

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// Fragment is a boolean SQL expression with gorm '?' placeholders.
type Fragment struct {
	SQL  string
	Args []any
}

// Translation is a filter rendered twice.
//
// Composable holds the top-level conjuncts with bound arguments; they are
// ANDed into a WHERE clause built by the caller. Solid holds the same
// conjuncts with every value inlined as a quoted literal. Solid text is handed
// to the filtered search routines as one argument and cannot take part in
// further placeholder binding.
type Translation struct {
	Composable []Fragment
	Solid      []string
}

// IsEmpty reports whether the filter restricts nothing.
func (t *Translation) IsEmpty() bool {
	return t == nil || len(t.Composable) == 0
}

// Where joins the composable fragments into one condition.
func (t *Translation) Where() (string, []any) {
	if t.IsEmpty() {
		return "TRUE", nil
	}
	parts := make([]string, len(t.Composable))
	var args []any
	for i, f := range t.Composable {
		parts[i] = "(" + f.SQL + ")"
		args = append(args, f.Args...)
	}
	return strings.Join(parts, " AND "), args
}

// SolidClause joins the solid fragments into one condition, or "" for an empty filter.
func (t *Translation) SolidClause() string {
	if t == nil || len(t.Solid) == 0 {
		return ""
	}
	parts := make([]string, len(t.Solid))
	for i, s := range t.Solid {
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " AND ")
}

// columnFields are the object columns a leaf may address with ForceNotPayload.
// All of them hold text.
var columnFields = map[string]bool{
	"object_id":   true,
	"original_id": true,
	"user_id":     true,
}

// Translate renders filter as SQL over the objects table aliased prefix. An
// empty prefix leaves columns unqualified. language names the text search
// configuration used by match and wildcard predicates.
//
// The output depends only on the input: the same filter always yields the
// same fragments.
//
// Example:
//
//	tr, err := pgvector.Translate(filter, "o", "english")
//	where, args := tr.Where()
//	db.Table("vc_m1_objects AS o").Where(where, args...).Count(&n)
func Translate(filter *vectordb.PayloadFilter, prefix, language string) (*Translation, error) {
	if prefix != "" && !identifierPattern.MatchString(prefix) {
		return nil, vectordb.NewInvalidFilterError("table prefix %q is not a plain identifier", prefix)
	}
	if !identifierPattern.MatchString(language) {
		return nil, vectordb.NewInvalidFilterError("text search language %q is not a plain identifier", language)
	}

	out := &Translation{}
	if filter == nil || filter.Query == nil {
		return out, nil
	}

	for _, node := range conjuncts(filter.Query) {
		bound := &renderer{prefix: prefix, language: language}
		sql, err := bound.render(node)
		if err != nil {
			return nil, err
		}

		inline := &renderer{prefix: prefix, language: language, inline: true}
		solid, err := inline.render(node)
		if err != nil {
			return nil, err
		}

		out.Composable = append(out.Composable, Fragment{SQL: sql, Args: bound.args})
		out.Solid = append(out.Solid, solid)
	}
	return out, nil
}

// conjuncts splits the root into independently ANDable parts so callers can
// combine them with their own conditions.
func conjuncts(q vectordb.Query) []vectordb.Query {
	b, ok := q.(*vectordb.BoolQuery)
	if !ok || b == nil {
		return []vectordb.Query{q}
	}

	var out []vectordb.Query
	out = append(out, b.Must...)
	out = append(out, b.Filter...)
	if len(b.Should) > 0 {
		out = append(out, &vectordb.BoolQuery{Should: b.Should})
	}
	if len(b.MustNot) > 0 {
		out = append(out, &vectordb.BoolQuery{MustNot: b.MustNot})
	}
	return out
}

// ── Rendering ────────────────────────────────────────────────────────────────

type renderer struct {
	prefix   string
	language string
	inline   bool
	args     []any
}

func (r *renderer) render(q vectordb.Query) (string, error) {
	switch n := q.(type) {
	case *vectordb.TermQuery:
		return r.term(n)
	case *vectordb.TermsQuery:
		return r.terms(n)
	case *vectordb.RangeQuery:
		return r.rangeQuery(n)
	case *vectordb.MatchQuery:
		return r.match(n)
	case *vectordb.WildcardQuery:
		return r.wildcard(n)
	case *vectordb.ExistsQuery:
		return r.exists(n)
	case *vectordb.ListHasAllQuery:
		return r.listHasAll(n)
	case *vectordb.ListHasAnyQuery:
		return r.listHasAny(n)
	case *vectordb.BoolQuery:
		return r.boolQuery(n)
	case nil:
		return "", vectordb.NewInvalidFilterError("nil filter node")
	default:
		return "", vectordb.NewInvalidFilterError("unsupported filter node %T", q)
	}
}

func (r *renderer) term(n *vectordb.TermQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil term node")
	}
	if n.ForceNotPayload {
		col, err := r.column(n.Leaf, "term")
		if err != nil {
			return "", err
		}
		s, ok := n.Value.(string)
		if !ok {
			return "", vectordb.NewInvalidFilterError("term on column %s needs a string value, got %T", n.Field, n.Value)
		}
		return col + " = " + r.text(s), nil
	}

	keys, err := payloadKeys(n.Leaf)
	if err != nil {
		return "", err
	}
	if _, err := classify(n.Value); err != nil {
		return "", vectordb.NewInvalidFilterError("term on %s: %v", n.Field, err)
	}
	return r.contains(keys, n.Value)
}

func (r *renderer) terms(n *vectordb.TermsQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil terms node")
	}
	if len(n.Values) == 0 {
		return "", vectordb.NewInvalidFilterError("terms on %s needs at least one value", n.Field)
	}
	if err := homogeneous(n.Values); err != nil {
		return "", vectordb.NewInvalidFilterError("terms on %s: %v", n.Field, err)
	}

	if n.ForceNotPayload {
		col, err := r.column(n.Leaf, "terms")
		if err != nil {
			return "", err
		}
		placeholders := make([]string, len(n.Values))
		for i, v := range n.Values {
			s, ok := v.(string)
			if !ok {
				return "", vectordb.NewInvalidFilterError("terms on column %s needs string values, got %T", n.Field, v)
			}
			placeholders[i] = r.text(s)
		}
		return col + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	}

	keys, err := payloadKeys(n.Leaf)
	if err != nil {
		return "", err
	}
	alternatives := make([]string, len(n.Values))
	for i, v := range n.Values {
		if alternatives[i], err = r.contains(keys, v); err != nil {
			return "", err
		}
	}
	return disjunction(alternatives), nil
}

func (r *renderer) rangeQuery(n *vectordb.RangeQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil range node")
	}
	if n.ForceNotPayload {
		return "", vectordb.NewInvalidFilterError("range on %s cannot address a column", n.Field)
	}
	keys, err := payloadKeys(n.Leaf)
	if err != nil {
		return "", err
	}

	bounds := []struct {
		op    string
		value *float64
	}{
		{">", n.Gt},
		{">=", n.Gte},
		{"<", n.Lt},
		{"<=", n.Lte},
	}

	var parts []string
	for _, b := range bounds {
		if b.value == nil {
			continue
		}
		if math.IsNaN(*b.value) || math.IsInf(*b.value, 0) {
			return "", vectordb.NewInvalidFilterError("range on %s has a non-finite bound", n.Field)
		}
		parts = append(parts, r.numeric(keys)+" "+b.op+" "+r.param(*b.value)+"::numeric")
	}
	if len(parts) == 0 {
		return "", vectordb.NewInvalidFilterError("range on %s needs at least one bound", n.Field)
	}
	return strings.Join(parts, " AND "), nil
}

func (r *renderer) match(n *vectordb.MatchQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil match node")
	}
	if n.ForceNotPayload {
		return "", vectordb.NewInvalidFilterError("match on %s cannot address a column", n.Field)
	}
	keys, err := payloadKeys(n.Leaf)
	if err != nil {
		return "", err
	}

	var terms []string
	for _, word := range strings.Fields(n.Query) {
		if token := lexeme(word); token != "" {
			terms = append(terms, token+":*")
		}
	}
	if len(terms) == 0 {
		return "", vectordb.NewInvalidFilterError("match on %s has no searchable words", n.Field)
	}
	return r.fullText(keys, strings.Join(terms, " & ")), nil
}

func (r *renderer) wildcard(n *vectordb.WildcardQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil wildcard node")
	}
	if n.ForceNotPayload {
		return "", vectordb.NewInvalidFilterError("wildcard on %s cannot address a column", n.Field)
	}
	keys, err := payloadKeys(n.Leaf)
	if err != nil {
		return "", err
	}

	var terms []string
	for _, word := range strings.Fields(n.Value) {
		prefixMatch := strings.HasSuffix(word, "*")
		core := strings.TrimSuffix(word, "*")
		if strings.Contains(core, "*") {
			return "", vectordb.NewInvalidFilterError("wildcard on %s: '*' may only end a token, got %q", n.Field, word)
		}
		token := lexeme(core)
		if token == "" {
			continue
		}
		if prefixMatch {
			token += ":*"
		}
		terms = append(terms, token)
	}
	if len(terms) == 0 {
		return "", vectordb.NewInvalidFilterError("wildcard on %s has no searchable words", n.Field)
	}
	return r.fullText(keys, strings.Join(terms, " & ")), nil
}

func (r *renderer) exists(n *vectordb.ExistsQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil exists node")
	}
	if n.ForceNotPayload {
		col, err := r.column(n.Leaf, "exists")
		if err != nil {
			return "", err
		}
		return col + " IS NOT NULL", nil
	}
	keys, err := payloadKeys(n.Leaf)
	if err != nil {
		return "", err
	}
	return "COALESCE(jsonb_typeof(" + r.path(keys, false) + "), 'null') <> 'null'", nil
}

func (r *renderer) listHasAll(n *vectordb.ListHasAllQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil list_has_all node")
	}
	keys, err := r.listKeys(n.Leaf, n.Values, "list_has_all")
	if err != nil {
		return "", err
	}
	return r.contains(keys, n.Values)
}

func (r *renderer) listHasAny(n *vectordb.ListHasAnyQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil list_has_any node")
	}
	keys, err := r.listKeys(n.Leaf, n.Values, "list_has_any")
	if err != nil {
		return "", err
	}
	alternatives := make([]string, len(n.Values))
	for i, v := range n.Values {
		if alternatives[i], err = r.contains(keys, []any{v}); err != nil {
			return "", err
		}
	}
	return disjunction(alternatives), nil
}

func (r *renderer) boolQuery(n *vectordb.BoolQuery) (string, error) {
	if n == nil {
		return "", vectordb.NewInvalidFilterError("nil bool node")
	}

	var parts []string
	for _, child := range append(append([]vectordb.Query{}, n.Must...), n.Filter...) {
		sql, err := r.render(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}

	if len(n.Should) > 0 {
		alternatives, err := r.renderAll(n.Should)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+strings.Join(alternatives, " OR ")+")")
	}

	if len(n.MustNot) > 0 {
		excluded, err := r.renderAll(n.MustNot)
		if err != nil {
			return "", err
		}
		// Predicates over a missing field or a NULL column yield NULL; those
		// rows do not match the excluded conjunction and must be kept.
		parts = append(parts, "NOT COALESCE("+strings.Join(excluded, " AND ")+", FALSE)")
	}

	if len(parts) == 0 {
		return "TRUE", nil
	}
	return strings.Join(parts, " AND "), nil
}

func (r *renderer) renderAll(children []vectordb.Query) ([]string, error) {
	out := make([]string, len(children))
	for i, child := range children {
		sql, err := r.render(child)
		if err != nil {
			return nil, err
		}
		out[i] = "(" + sql + ")"
	}
	return out, nil
}

// ── Expression helpers ───────────────────────────────────────────────────────

func (r *renderer) param(v any) string {
	if r.inline {
		return literal(v)
	}
	r.args = append(r.args, v)
	return "?"
}

func (r *renderer) text(s string) string {
	if r.inline {
		return quoteLiteral(s)
	}
	r.args = append(r.args, s)
	return "?::text"
}

func (r *renderer) qualified(column string) string {
	if r.prefix == "" {
		return column
	}
	return r.prefix + "." + column
}

func (r *renderer) column(leaf vectordb.Leaf, node string) (string, error) {
	if !columnFields[leaf.Field] {
		return "", vectordb.NewInvalidFilterError("%s cannot address column %q", node, leaf.Field)
	}
	return r.qualified(leaf.Field), nil
}

// path walks the payload; the last step yields text when asText is set.
func (r *renderer) path(keys []string, asText bool) string {
	var b strings.Builder
	b.WriteString(r.qualified("payload"))
	for i, k := range keys {
		if asText && i == len(keys)-1 {
			b.WriteString(" ->> ")
		} else {
			b.WriteString(" -> ")
		}
		b.WriteString(r.text(k))
	}
	return b.String()
}

// numeric extracts a payload number, or NULL when the value is not a number.
func (r *renderer) numeric(keys []string) string {
	return "(CASE WHEN jsonb_typeof(" + r.path(keys, false) + ") = 'number' THEN (" + r.path(keys, false) + ")::numeric END)"
}

// contains renders a jsonb containment test of value nested under keys.
// Containment is what GIN payload indexes accelerate.
func (r *renderer) contains(keys []string, value any) (string, error) {
	doc := value
	for i := len(keys) - 1; i >= 0; i-- {
		doc = map[string]any{keys[i]: doc}
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", vectordb.NewInvalidFilterError("cannot encode filter value: %v", err)
	}
	if r.inline {
		return r.qualified("payload") + " @> " + quoteLiteral(string(encoded)) + "::jsonb", nil
	}
	r.args = append(r.args, string(encoded))
	return r.qualified("payload") + " @> ?::jsonb", nil
}

func (r *renderer) fullText(keys []string, tsquery string) string {
	lang := quoteLiteral(r.language)
	return "to_tsvector(" + lang + ", COALESCE(" + r.path(keys, true) + ", '')) @@ to_tsquery(" + lang + ", " + r.text(tsquery) + ")"
}

func (r *renderer) listKeys(leaf vectordb.Leaf, values []any, node string) ([]string, error) {
	if leaf.ForceNotPayload {
		return nil, vectordb.NewInvalidFilterError("%s on %s cannot address a column", node, leaf.Field)
	}
	if len(values) == 0 {
		return nil, vectordb.NewInvalidFilterError("%s on %s needs at least one value", node, leaf.Field)
	}
	for _, v := range values {
		if _, err := classify(v); err != nil {
			return nil, vectordb.NewInvalidFilterError("%s on %s: %v", node, leaf.Field, err)
		}
	}
	return payloadKeys(leaf)
}

func payloadKeys(leaf vectordb.Leaf) ([]string, error) {
	if leaf.Field == "" {
		return nil, vectordb.NewInvalidFilterError("field is required")
	}
	keys := strings.Split(leaf.Field, ".")
	for _, k := range keys {
		if k == "" {
			return nil, vectordb.NewInvalidFilterError("field %q has an empty path segment", leaf.Field)
		}
	}
	return keys, nil
}

func disjunction(alternatives []string) string {
	if len(alternatives) == 1 {
		return alternatives[0]
	}
	wrapped := make([]string, len(alternatives))
	for i, a := range alternatives {
		wrapped[i] = "(" + a + ")"
	}
	return strings.Join(wrapped, " OR ")
}

// lexeme keeps letters and digits so user text cannot inject tsquery operators.
func lexeme(word string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return -1
	}, word)
}

// ── Scalars ──────────────────────────────────────────────────────────────────

type scalarKind int

const (
	kindString scalarKind = iota
	kindNumber
	kindBool
)

func (k scalarKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	default:
		return "bool"
	}
}

func classify(v any) (scalarKind, error) {
	switch n := v.(type) {
	case string:
		return kindString, nil
	case bool:
		return kindBool, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("non-finite number")
		}
		return kindNumber, nil
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return 0, fmt.Errorf("non-finite number")
		}
		return kindNumber, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindNumber, nil
	case json.Number:
		if _, err := n.Float64(); err != nil {
			return 0, fmt.Errorf("invalid number %q", n)
		}
		return kindNumber, nil
	case nil:
		return 0, fmt.Errorf("null is not a matchable value")
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func homogeneous(values []any) error {
	first, err := classify(values[0])
	if err != nil {
		return err
	}
	for _, v := range values[1:] {
		kind, err := classify(v)
		if err != nil {
			return err
		}
		if kind != first {
			return fmt.Errorf("mixed value types %s and %s", first, kind)
		}
	}
	return nil
}

// literal renders an already classified scalar as SQL text.
func literal(v any) string {
	switch n := v.(type) {
	case string:
		return quoteLiteral(n)
	case bool:
		if n {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case json.Number:
		return n.String()
	default:
		return fmt.Sprint(n)
	}
}
