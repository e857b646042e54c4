package query

import (
	"fmt"
	"strings"

	"todoapi/internal/domain/models"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// SortField binds a request token to a column and an in-process comparator.
type SortField struct {
	Token   string
	Column  string
	compare func(a, b models.Task) int
	// nullable columns sort nulls as the largest value on every backend.
	nullable bool
}

var (
	SortTitle = SortField{Token: "title", Column: "title", compare: func(a, b models.Task) int {
		return strings.Compare(a.Title, b.Title)
	}}
	SortCompleted = SortField{Token: "completed", Column: "completed", compare: func(a, b models.Task) int {
		return compareBool(a.Completed, b.Completed)
	}}
	SortCreatedAt = SortField{Token: "created_at", Column: "created_at", compare: func(a, b models.Task) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	}}
	SortUpdatedAt = SortField{Token: "updated_at", Column: "updated_at", nullable: true, compare: func(a, b models.Task) int {
		switch {
		case a.UpdatedAt == nil && b.UpdatedAt == nil:
			return 0
		case a.UpdatedAt == nil:
			return 1
		case b.UpdatedAt == nil:
			return -1
		}
		return a.UpdatedAt.Compare(*b.UpdatedAt)
	}}
	SortID = SortField{Token: "id", Column: "id", compare: func(a, b models.Task) int {
		return strings.Compare(a.ID, b.ID)
	}}
)

var sortFields = map[string]SortField{
	SortTitle.Token:     SortTitle,
	SortCompleted.Token: SortCompleted,
	SortCreatedAt.Token: SortCreatedAt,
	SortUpdatedAt.Token: SortUpdatedAt,
	SortID.Token:        SortID,
}

// LookupSortField resolves a sort_by token. Unknown tokens fall back to
// created_at instead of failing.
func LookupSortField(token string) SortField {
	if f, ok := sortFields[token]; ok {
		return f
	}
	return SortCreatedAt
}

type Sort struct {
	Field SortField
	Order Order
}

// DefaultSort is newest first.
var DefaultSort = Sort{Field: SortCreatedAt, Order: Desc}

// Compare orders two tasks by the sort field, then by id in the same
// direction so that ties are reproducible across pages.
func (s Sort) Compare(a, b models.Task) int {
	c := s.Field.compare(a, b)
	if c == 0 && s.Field.Column != SortID.Column {
		c = strings.Compare(a.ID, b.ID)
	}
	if s.Order == Desc {
		return -c
	}
	return c
}

// OrderBy renders the ORDER BY expression list (without the keyword).
func (s Sort) OrderBy() string {
	dir := "ASC"
	if s.Order == Desc {
		dir = "DESC"
	}
	primary := fmt.Sprintf("%s %s", s.Field.Column, dir)
	if s.Field.nullable {
		if s.Order == Desc {
			primary += " NULLS FIRST"
		} else {
			primary += " NULLS LAST"
		}
	}
	if s.Field.Column == SortID.Column {
		return primary
	}
	return fmt.Sprintf("%s, %s %s", primary, SortID.Column, dir)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
