package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"todoapi/internal/domain/errors"
)

// Field names a patchable task attribute.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldCompleted   Field = "completed"
)

// patchOrder fixes the iteration order so generated SQL is stable.
var patchOrder = []Field{FieldTitle, FieldDescription, FieldCompleted}

// TaskPatch is a partial update. Only fields recorded in set are applied;
// an omitted field and a field explicitly set to null are different things.
type TaskPatch struct {
	Title       string
	Description *string
	Completed   bool

	set map[Field]struct{}
}

func (p *TaskPatch) mark(f Field) {
	if p.set == nil {
		p.set = make(map[Field]struct{}, len(patchOrder))
	}
	p.set[f] = struct{}{}
}

func (p TaskPatch) SetTitle(title string) TaskPatch {
	p.set = p.cloneSet()
	p.Title = title
	p.mark(FieldTitle)
	return p
}

// SetDescription sets or, with nil, clears the description.
func (p TaskPatch) SetDescription(description *string) TaskPatch {
	p.set = p.cloneSet()
	p.Description = description
	p.mark(FieldDescription)
	return p
}

func (p TaskPatch) SetCompleted(completed bool) TaskPatch {
	p.set = p.cloneSet()
	p.Completed = completed
	p.mark(FieldCompleted)
	return p
}

func (p TaskPatch) cloneSet() map[Field]struct{} {
	if p.set == nil {
		return nil
	}
	out := make(map[Field]struct{}, len(p.set))
	for f := range p.set {
		out[f] = struct{}{}
	}
	return out
}

func (p TaskPatch) Has(f Field) bool {
	_, ok := p.set[f]
	return ok
}

func (p TaskPatch) Empty() bool {
	return len(p.set) == 0
}

// Fields returns the supplied fields in a fixed order.
func (p TaskPatch) Fields() []Field {
	fields := make([]Field, 0, len(p.set))
	for _, f := range patchOrder {
		if p.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// Normalize trims the title and checks lengths of the supplied fields.
func (p TaskPatch) Normalize() (TaskPatch, error) {
	if p.Has(FieldTitle) {
		p.Title = strings.TrimSpace(p.Title)
		if p.Title == "" || utf8.RuneCountInString(p.Title) > 200 {
			return TaskPatch{}, errors.ErrInvalidTitle
		}
	}
	if p.Has(FieldDescription) && p.Description != nil && utf8.RuneCountInString(*p.Description) > 1000 {
		return TaskPatch{}, errors.ErrInvalidDescription
	}
	return p, nil
}

// Apply copies the supplied fields onto t and stamps updated_at. An empty
// patch leaves t untouched.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Empty() {
		return
	}
	if p.Has(FieldTitle) {
		t.Title = p.Title
	}
	if p.Has(FieldDescription) {
		if p.Description == nil {
			t.Description = nil
		} else {
			d := *p.Description
			t.Description = &d
		}
	}
	if p.Has(FieldCompleted) {
		t.Completed = p.Completed
	}
	t.UpdatedAt = &now
}

var jsonNull = []byte("null")

func (p *TaskPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return errors.ErrInvalidPatch
	}

	out := TaskPatch{}
	for key, value := range raw {
		isNull := bytes.Equal(bytes.TrimSpace(value), jsonNull)
		switch Field(key) {
		case FieldTitle:
			var title string
			if isNull || json.Unmarshal(value, &title) != nil {
				return errors.ErrInvalidTitle
			}
			out = out.SetTitle(title)
		case FieldDescription:
			if isNull {
				out = out.SetDescription(nil)
				continue
			}
			var description string
			if err := json.Unmarshal(value, &description); err != nil {
				return errors.ErrInvalidDescription
			}
			out = out.SetDescription(&description)
		case FieldCompleted:
			var completed bool
			if isNull || json.Unmarshal(value, &completed) != nil {
				return errors.ErrInvalidCompleted
			}
			out = out.SetCompleted(completed)
		}
	}
	*p = out
	return nil
}
