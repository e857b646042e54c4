// Package query turns untrusted list/export parameters into a validated Plan
// and renders that plan as an in-process predicate or a SQL fragment.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	ExportLimit  = 1000
)

type Filter struct {
	// Search is matched case-insensitively as a literal substring of the
	// title or the description. Empty means no search.
	Search    string
	Completed *bool
}

// Match reports whether t satisfies the filter. Ownership is checked by Plan.
func (f Filter) Match(t models.Task) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), needle)
}

// Plan is a complete owner-scoped query. A Limit of zero or less means no
// limit; the parsers never produce one.
type Plan struct {
	OwnerID string
	Filter  Filter
	Sort    Sort
	Skip    int
	Limit   int
}

func (p Plan) Match(t models.Task) bool {
	return t.UserID == p.OwnerID && p.Filter.Match(t)
}

// Window applies skip and limit to n already ordered rows and returns the
// half-open index range.
func (p Plan) Window(n int) (int, int) {
	start := p.Skip
	if start > n {
		start = n
	}
	end := n
	if p.Limit > 0 && start+p.Limit < n {
		end = start + p.Limit
	}
	return start, end
}

// Dialect selects the placeholder style of rendered SQL.
type Dialect int

const (
	// Dollar renders $1, $2, ... (PostgreSQL).
	Dollar Dialect = iota
	// Question renders ? (sqlite, gorm).
	Question
)

func (d Dialect) placeholder(n int) string {
	if d == Dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Where renders the filter predicate and its arguments. The owner predicate
// is always the first conjunct; count and page queries must share the result.
func (p Plan) Where(d Dialect) (string, []any) {
	args := []any{p.OwnerID}
	conds := []string{"user_id = " + d.placeholder(len(args))}

	if p.Filter.Completed != nil {
		args = append(args, *p.Filter.Completed)
		conds = append(conds, "completed = "+d.placeholder(len(args)))
	}
	if p.Filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(p.Filter.Search)) + "%"
		args = append(args, pattern)
		title := d.placeholder(len(args))
		args = append(args, pattern)
		description := d.placeholder(len(args))
		conds = append(conds, fmt.Sprintf(
			`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE %s ESCAPE '\')`,
			title, description))
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ParseList builds a list plan from request query values.
func ParseList(ownerID string, values url.Values) (Plan, error) {
	filter, sort, err := parseFilterSort(values)
	if err != nil {
		return Plan{}, err
	}

	skip, err := intParam(values, "skip", 0, errors.ErrInvalidSkip)
	if err != nil {
		return Plan{}, err
	}
	if skip < 0 {
		return Plan{}, errors.ErrInvalidSkip
	}

	limit, err := intParam(values, "limit", DefaultLimit, errors.ErrInvalidLimit)
	if err != nil {
		return Plan{}, err
	}
	if limit < 1 || limit > MaxLimit {
		return Plan{}, errors.ErrInvalidLimit
	}

	return Plan{OwnerID: ownerID, Filter: filter, Sort: sort, Skip: skip, Limit: limit}, nil
}

// ParseExport builds an export plan: same filter and sort as listing, always
// from the start of the set and capped at ExportLimit. skip and limit in
// values are ignored.
func ParseExport(ownerID string, values url.Values) (Plan, error) {
	filter, sort, err := parseFilterSort(values)
	if err != nil {
		return Plan{}, err
	}
	return Plan{OwnerID: ownerID, Filter: filter, Sort: sort, Skip: 0, Limit: ExportLimit}, nil
}

func parseFilterSort(values url.Values) (Filter, Sort, error) {
	var filter Filter
	filter.Search = values.Get("search")

	if raw := values.Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return Filter{}, Sort{}, errors.ErrInvalidCompleted
		}
		filter.Completed = &completed
	}

	sort := DefaultSort
	if raw := values.Get("sort_by"); raw != "" {
		sort.Field = LookupSortField(raw)
	}
	if raw, ok := values["sort_order"]; ok && len(raw) > 0 {
		switch Order(raw[0]) {
		case Asc, Desc:
			sort.Order = Order(raw[0])
		default:
			return Filter{}, Sort{}, errors.ErrInvalidSortOrder
		}
	}
	return filter, sort, nil
}

func intParam(values url.Values, key string, def int, invalid error) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid
	}
	return n, nil
}
