// Package query turns raw client query parameters into MongoDB retrieval
// requests. A Pipeline is an immutable value: every stage returns a new
// Pipeline, so a partially built pipeline can be shared and extended safely
// under concurrent use. Callers pick only the stages their resource needs.
package query

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultLimit is the page size used when the client does not supply one.
const DefaultLimit = 10

// Control parameters consumed by pipeline stages. Everything else in the
// query string is treated as a field filter.
const (
	ParamSearch   = "searchTerm"
	ParamSort     = "sort"
	ParamPage     = "page"
	ParamLimit    = "limit"
	ParamFields   = "fields"
	ParamPriceMin = "priceMin"
	ParamPriceMax = "priceMax"
)

var reservedParams = map[string]struct{}{
	ParamSearch:   {},
	ParamSort:     {},
	ParamPage:     {},
	ParamLimit:    {},
	ParamFields:   {},
	ParamPriceMin: {},
	ParamPriceMax: {},
}

// Meta describes the pagination envelope returned alongside a listing.
type Meta struct {
	Page      int64 `json:"page"`
	Limit     int64 `json:"limit"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// Pipeline is an ordered set of retrieval transformations over one
// collection. Each stage writes its own predicate slot, so re-applying a
// stage replaces its previous contribution instead of stacking a duplicate,
// and no stage can disturb a predicate another stage already produced.
type Pipeline struct {
	params url.Values

	search bson.M
	filter bson.M
	spec   bson.M
	price  bson.M

	sort    bson.D
	project bson.M
	page    int64
	limit   int64
}

// New creates a Pipeline over the given query parameters.
func New(params url.Values) Pipeline {
	return Pipeline{params: params, limit: DefaultLimit, page: 1}
}

// Search sets an OR of case-insensitive substring matches over fields when
// the searchTerm parameter is present. An absent term is a no-op.
func (p Pipeline) Search(fields ...string) Pipeline {
	term := p.params.Get(ParamSearch)
	if term == "" || len(fields) == 0 {
		return p
	}

	pattern := regexp.QuoteMeta(term)
	or := make([]bson.M, len(fields))
	for i, f := range fields {
		or[i] = bson.M{f: primitive.Regex{Pattern: pattern, Options: "i"}}
	}
	p.search = bson.M{"$or": or}
	return p
}

// Filter sets an exact-match clause for every parameter that is not a
// reserved control key.
func (p Pipeline) Filter() Pipeline {
	clause := bson.M{}
	for key, vals := range p.params {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		clause[key] = coerce(vals[0])
	}
	if len(clause) > 0 {
		p.filter = clause
	}
	return p
}

// FilterSpecifications sets exact-match clauses scoped to the declared
// specification attributes, ANDed together.
func (p Pipeline) FilterSpecifications(fields ...string) Pipeline {
	clause := bson.M{}
	for _, f := range fields {
		if v := p.params.Get(f); v != "" {
			clause[f] = coerce(v)
		}
	}
	if len(clause) > 0 {
		p.spec = clause
	}
	return p
}

// PriceRange sets a numeric range clause on the price field from priceMin
// and priceMax. An omitted or unparsable bound is unbounded on that side.
// When min > max the resulting clause matches no documents, which is the
// intended outcome rather than an error.
func (p Pipeline) PriceRange() Pipeline {
	bounds := bson.M{}
	if min, err := strconv.ParseFloat(p.params.Get(ParamPriceMin), 64); err == nil {
		bounds["$gte"] = min
	}
	if max, err := strconv.ParseFloat(p.params.Get(ParamPriceMax), 64); err == nil {
		bounds["$lte"] = max
	}
	if len(bounds) > 0 {
		p.price = bson.M{"price": bounds}
	}
	return p
}

// Sort sets the sort order from the comma-separated sort parameter. A "-"
// prefix marks a field descending. Unspecified, listings sort by creation
// time, newest first.
func (p Pipeline) Sort() Pipeline {
	spec := p.params.Get(ParamSort)
	if spec == "" {
		p.sort = bson.D{{Key: "createdAt", Value: -1}}
		return p
	}

	var sort bson.D
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		dir := 1
		if strings.HasPrefix(field, "-") {
			dir = -1
			field = field[1:]
		}
		if field != "" {
			sort = append(sort, bson.E{Key: field, Value: dir})
		}
	}
	if len(sort) == 0 {
		sort = bson.D{{Key: "createdAt", Value: -1}}
	}
	p.sort = sort
	return p
}

// Paginate sets page and limit from their parameters. Non-numeric or
// non-positive values fall back to page 1 and DefaultLimit.
func (p Pipeline) Paginate() Pipeline {
	p.page = positiveOr(p.params.Get(ParamPage), 1)
	p.limit = positiveOr(p.params.Get(ParamLimit), DefaultLimit)
	return p
}

// Fields sets an inclusion projection from the comma-separated fields
// parameter. Absent, all fields are returned.
func (p Pipeline) Fields() Pipeline {
	spec := p.params.Get(ParamFields)
	if spec == "" {
		return p
	}

	project := bson.M{}
	for _, f := range strings.Split(spec, ",") {
		if f = strings.TrimSpace(f); f != "" {
			project[f] = 1
		}
	}
	if len(project) > 0 {
		p.project = project
	}
	return p
}

// Predicate returns the accumulated filter document in fixed stage order.
// With no clauses it returns the universal predicate. The same predicate
// drives both the paginated find and the total count, so the two are always
// consistent.
func (p Pipeline) Predicate() bson.M {
	var clauses []bson.M
	for _, c := range []bson.M{p.search, p.filter, p.spec, p.price} {
		if c != nil {
			clauses = append(clauses, c)
		}
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	default:
		return bson.M{"$and": clauses}
	}
}

// FindOptions returns the sort, skip/limit, and projection for the
// paginated find.
func (p Pipeline) FindOptions() *options.FindOptions {
	opts := options.Find().
		SetSkip((p.page - 1) * p.limit).
		SetLimit(p.limit)
	if len(p.sort) > 0 {
		opts.SetSort(p.sort)
	}
	if p.project != nil {
		opts.SetProjection(p.project)
	}
	return opts
}

// Page returns the effective page number.
func (p Pipeline) Page() int64 { return p.page }

// Limit returns the effective page size.
func (p Pipeline) Limit() int64 { return p.limit }

// Meta builds the pagination envelope for a total matching count.
func (p Pipeline) Meta(total int64) Meta {
	totalPage := total / p.limit
	if total%p.limit != 0 {
		totalPage++
	}
	return Meta{
		Page:      p.page,
		Limit:     p.limit,
		Total:     total,
		TotalPage: totalPage,
	}
}

// coerce converts a wire string into the value type most likely to match
// the stored field: int, float, bool, or the string itself.
func coerce(v string) interface{} {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

func positiveOr(v string, def int64) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
