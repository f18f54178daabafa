// Package criteria defines the filters accepted by statistics and scans.
//
// A Criteria is exactly one of: everything, a date range, a department, or a
// user. Constructors are the only way to build one, so a filter can never be
// half date range and half department.
package criteria

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind tags which variant a Criteria holds.
type Kind int

const (
	KindAll Kind = iota
	KindDateRange
	KindDepartment
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindDateRange:
		return "date_range"
	case KindDepartment:
		return "department"
	case KindUser:
		return "user"
	default:
		return "all"
	}
}

// Criteria is a tagged filter.
type Criteria struct {
	kind Kind
	from time.Time
	to   time.Time
	id   primitive.ObjectID
}

// All matches everything.
func All() Criteria { return Criteria{kind: KindAll} }

// Between matches rows timestamped in [from, to]. A zero bound is open.
func Between(from, to time.Time) (Criteria, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Criteria{}, fmt.Errorf("criteria: range end %s is before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return Criteria{kind: KindDateRange, from: from, to: to}, nil
}

// ForDepartment matches rows belonging to a department.
func ForDepartment(id primitive.ObjectID) Criteria {
	return Criteria{kind: KindDepartment, id: id}
}

// ForUser matches rows attributed to a user.
func ForUser(id primitive.ObjectID) Criteria {
	return Criteria{kind: KindUser, id: id}
}

// Kind returns the variant tag.
func (c Criteria) Kind() Kind { return c.kind }

// Range returns the bounds when c is a date range.
func (c Criteria) Range() (from, to time.Time, ok bool) {
	return c.from, c.to, c.kind == KindDateRange
}

// DepartmentID returns the department when c is a department filter.
func (c Criteria) DepartmentID() (primitive.ObjectID, bool) {
	return c.id, c.kind == KindDepartment
}

// UserID returns the user when c is a user filter.
func (c Criteria) UserID() (primitive.ObjectID, bool) {
	return c.id, c.kind == KindUser
}

// InRange reports whether t satisfies a date range criteria. Non-range
// criteria always return true.
func (c Criteria) InRange(t time.Time) bool {
	if c.kind != KindDateRange {
		return true
	}
	if !c.from.IsZero() && t.Before(c.from) {
		return false
	}
	if !c.to.IsZero() && t.After(c.to) {
		return false
	}
	return true
}

// TimeFilter returns a Mongo range expression for a date range criteria, or
// nil when c is not a date range or both bounds are open.
func (c Criteria) TimeFilter() primitive.M {
	if c.kind != KindDateRange {
		return nil
	}
	q := primitive.M{}
	if !c.from.IsZero() {
		q["$gte"] = c.from
	}
	if !c.to.IsZero() {
		q["$lte"] = c.to
	}
	if len(q) == 0 {
		return nil
	}
	return q
}
