package pgvector

import (
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// RoutineVariant selects one of the eight search routines of a collection.
type RoutineVariant struct {
	// Filtered routines take a solid filter clause and apply it to candidates
	// before any distance is computed.
	Filtered bool
	// Ordered routines sort by distance and paginate themselves; the others
	// return every row in range and leave ordering to the caller.
	Ordered bool
	// WithVectors routines return part vectors.
	WithVectors bool
}

// AllRoutineVariants lists every variant in a fixed order.
func AllRoutineVariants() []RoutineVariant {
	out := make([]RoutineVariant, 0, 8)
	for _, filtered := range []bool{false, true} {
		for _, ordered := range []bool{true, false} {
			for _, vectors := range []bool{true, false} {
				out = append(out, RoutineVariant{Filtered: filtered, Ordered: ordered, WithVectors: vectors})
			}
		}
	}
	return out
}

// code is the three letter suffix of the routine name, e.g. "aov".
func (v RoutineVariant) code() string {
	b := []byte{'s', 'u', 'n'}
	if v.Filtered {
		b[0] = 'a'
	}
	if v.Ordered {
		b[1] = 'o'
	}
	if v.WithVectors {
		b[2] = 'v'
	}
	return string(b)
}

func (v RoutineVariant) String() string {
	kind := "simple"
	if v.Filtered {
		kind = "advanced"
	}
	order := "unordered"
	if v.Ordered {
		order = "ordered"
	}
	vectors := "without vectors"
	if v.WithVectors {
		vectors = "with vectors"
	}
	return kind + ", " + order + ", " + vectors
}

// Routine is one generated server-side search function.
type Routine struct {
	Variant   RoutineVariant
	Name      string
	CreateSQL string
	DropSQL   string
	params    []routineParam
}

// Invocation returns the SELECT that calls the routine, with one '?' per parameter
// in this order: vector, user id, max distance, mean only, [limit, offset,] [filter].
func (r Routine) Invocation() string {
	placeholders := make([]string, len(r.params))
	for i, p := range r.params {
		placeholders[i] = "?::" + p.typ
	}
	return "SELECT * FROM " + quoteIdent(r.Name) + "(" + strings.Join(placeholders, ", ") + ")"
}

// RoutineSet is the full menu of search routines of one collection.
type RoutineSet struct {
	routines map[RoutineVariant]Routine
}

// Routine returns the routine for a variant.
func (s *RoutineSet) Routine(v RoutineVariant) Routine {
	return s.routines[v]
}

// Invocation is a shorthand for s.Routine(v).Invocation().
func (s *RoutineSet) Invocation(v RoutineVariant) string {
	return s.routines[v].Invocation()
}

// All returns the routines in AllRoutineVariants order.
func (s *RoutineSet) All() []Routine {
	out := make([]Routine, 0, len(s.routines))
	for _, v := range AllRoutineVariants() {
		out = append(out, s.routines[v])
	}
	return out
}

// metricOperators maps each metric to its pgvector distance operator and
// HNSW operator class.
var metricOperators = map[vectordb.MetricType]struct {
	operator string
	opsClass string
}{
	vectordb.MetricCosine: {"<=>", "vector_cosine_ops"},
	vectordb.MetricEuclid: {"<->", "vector_l2_ops"},
	vectordb.MetricDot:    {"<#>", "vector_ip_ops"},
}

func distanceOperator(metric vectordb.MetricType) (string, error) {
	op, ok := metricOperators[metric]
	if !ok {
		return "", &vectordb.UnsupportedMetricError{Metric: string(metric)}
	}
	return op.operator, nil
}

func opsClass(metric vectordb.MetricType) (string, error) {
	op, ok := metricOperators[metric]
	if !ok {
		return "", &vectordb.UnsupportedMetricError{Metric: string(metric)}
	}
	return op.opsClass, nil
}

func aggregateFunction(agg vectordb.MetricAggregationType) (string, error) {
	switch agg {
	case vectordb.AggregationMin:
		return "min", nil
	case vectordb.AggregationAvg:
		return "avg", nil
	default:
		return "", fmt.Errorf("unknown metric aggregation %q", agg)
	}
}

type routineParam struct {
	name string
	typ  string
}

// GenerateRoutines builds the search routines of a collection. Personalized
// routines hide other users' variants and prefer the caller's variant over
// its original; query collections are not personalized.
//
// An unknown metric fails here with UnsupportedMetricError, never at query time.
func GenerateRoutines(tables Tables, model vectordb.EmbeddingModelInfo, personalized bool) (*RoutineSet, error) {
	op, err := distanceOperator(model.MetricType)
	if err != nil {
		return nil, err
	}
	agg, err := aggregateFunction(model.MetricAggregationType)
	if err != nil {
		return nil, err
	}

	set := &RoutineSet{routines: make(map[RoutineVariant]Routine, 8)}
	for _, v := range AllRoutineVariants() {
		g := routineGenerator{tables: tables, variant: v, operator: op, aggregate: agg, personalized: personalized}
		set.routines[v] = g.generate()
	}
	return set, nil
}

type routineGenerator struct {
	tables       Tables
	variant      RoutineVariant
	operator     string
	aggregate    string
	personalized bool
}

func (g routineGenerator) name() string {
	return "vc_" + g.tables.CollectionID + "__s_" + g.variant.code()
}

func (g routineGenerator) params() []routineParam {
	params := []routineParam{
		{"p_vector", "vector"},
		{"p_user_id", "text"},
		{"p_max_distance", "float8"},
		{"p_mean_only", "boolean"},
	}
	if g.variant.Ordered {
		params = append(params, routineParam{"p_limit", "integer"}, routineParam{"p_offset", "integer"})
	}
	if g.variant.Filtered {
		params = append(params, routineParam{"p_filter", "text"})
	}
	return params
}

func (g routineGenerator) generate() Routine {
	params := g.params()
	name := quoteIdent(g.name())

	signature := make([]string, len(params))
	types := make([]string, len(params))
	for i, p := range params {
		signature[i] = p.name + " " + p.typ
		types[i] = p.typ
	}

	var body string
	if g.variant.Filtered {
		// The filter is only known at call time, so the query runs through
		// EXECUTE with the remaining parameters bound positionally.
		refs := make(map[string]string, len(params))
		using := make([]string, 0, len(params))
		for i, p := range params {
			if p.name == "p_filter" {
				continue
			}
			refs[p.name] = fmt.Sprintf("$%d", i+1)
			using = append(using, p.name)
		}
		query := g.query(refs, "%s")
		body = "\tRETURN QUERY EXECUTE format(" + quoteLiteral(query) + ", p_filter)\n\t\tUSING " + strings.Join(using, ", ") + ";\n"
	} else {
		refs := make(map[string]string, len(params))
		for _, p := range params {
			refs[p.name] = p.name
		}
		body = "\tRETURN QUERY\n" + g.query(refs, "") + ";\n"
	}

	create := "CREATE OR REPLACE FUNCTION " + name + "(" + strings.Join(signature, ", ") + ")\n" +
		"RETURNS TABLE (object_id text, original_id text, user_id text, payload jsonb, storage_meta jsonb, distance float8, parts jsonb)\n" +
		"LANGUAGE plpgsql STABLE AS $fn$\n" +
		"#variable_conflict use_column\n" +
		"BEGIN\n" + body + "END;\n$fn$"

	return Routine{
		Variant:   g.variant,
		Name:      g.name(),
		CreateSQL: create,
		DropSQL:   "DROP FUNCTION IF EXISTS " + name + "(" + strings.Join(types, ", ") + ")",
		params:    params,
	}
}

// query renders the routine's SELECT. refs maps parameter names to how the
// body refers to them; filter is the text substituted for the solid clause.
func (g routineGenerator) query(refs map[string]string, filter string) string {
	objects := g.tables.QuotedObjects()
	parts := g.tables.QuotedParts()

	var where []string
	if g.personalized {
		where = append(where,
			"(o.user_id IS NULL OR o.user_id = "+refs["p_user_id"]+")",
			"("+refs["p_user_id"]+" IS NULL OR NOT EXISTS (SELECT 1 FROM "+objects+" v WHERE v.original_id = o.object_id AND v.user_id = "+refs["p_user_id"]+"))",
		)
	}
	if filter != "" {
		where = append(where, "("+filter+")")
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "\n\t\tWHERE " + strings.Join(where, "\n\t\t  AND ")
	}

	partFields := "'part_id', pp.part_id, 'is_average', pp.is_average"
	if g.variant.WithVectors {
		partFields += ", 'vector', pp.vector::real[]"
	}

	var b strings.Builder
	b.WriteString("\tWITH candidates AS (\n")
	b.WriteString("\t\tSELECT o.object_id, o.original_id, o.user_id, o.payload, o.storage_meta\n")
	b.WriteString("\t\tFROM " + objects + " o" + whereClause + "\n")
	b.WriteString("\t), scored AS (\n")
	b.WriteString("\t\tSELECT p.object_id, " + g.aggregate + "(p.vector " + g.operator + " " + refs["p_vector"] + ")::float8 AS distance\n")
	b.WriteString("\t\tFROM " + parts + " p\n")
	b.WriteString("\t\tJOIN candidates c ON c.object_id = p.object_id\n")
	b.WriteString("\t\tWHERE NOT " + refs["p_mean_only"] + " OR p.is_average\n")
	b.WriteString("\t\tGROUP BY p.object_id\n")
	b.WriteString("\t)\n")
	b.WriteString("\tSELECT c.object_id, c.original_id, c.user_id, c.payload, c.storage_meta, s.distance,\n")
	b.WriteString("\t\tCOALESCE((SELECT jsonb_agg(jsonb_build_object(" + partFields + ") ORDER BY pp.part_id)\n")
	b.WriteString("\t\t FROM " + parts + " pp WHERE pp.object_id = s.object_id), '[]'::jsonb) AS parts\n")
	b.WriteString("\tFROM scored s\n")
	b.WriteString("\tJOIN candidates c ON c.object_id = s.object_id\n")
	b.WriteString("\tWHERE " + refs["p_max_distance"] + " IS NULL OR s.distance <= " + refs["p_max_distance"])
	if g.variant.Ordered {
		b.WriteString("\n\tORDER BY s.distance, c.object_id\n")
		b.WriteString("\tLIMIT " + refs["p_limit"] + " OFFSET " + refs["p_offset"])
	}
	return b.String()
}
