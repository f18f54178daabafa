// Package shared holds request parsing used by several API features.
package shared

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/inputval"
	"github.com/dalemusser/docflow/internal/app/system/normalize"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dateLayout = "2006-01-02"

// ParseCriteria reads one of: from/to, department_id, or user_id. Mixing
// them is a validation error; none of them means everything.
//
// A bare date for "to" covers the whole day.
func ParseCriteria(r *http.Request, op string) (criteria.Criteria, error) {
	from := normalize.QueryParam(query.Get(r, "from"))
	to := normalize.QueryParam(query.Get(r, "to"))
	dept := normalize.FilterID(query.Get(r, "department_id"))
	user := normalize.FilterID(query.Get(r, "user_id"))

	set := 0
	for _, present := range []bool{from != "" || to != "", dept != "", user != ""} {
		if present {
			set++
		}
	}
	if set > 1 {
		return criteria.Criteria{}, apperr.Validation(op, "use only one of from/to, department_id, user_id", nil)
	}

	switch {
	case dept != "":
		id, err := objectID(op, "department_id", dept)
		if err != nil {
			return criteria.Criteria{}, err
		}
		return criteria.ForDepartment(id), nil
	case user != "":
		id, err := objectID(op, "user_id", user)
		if err != nil {
			return criteria.Criteria{}, err
		}
		return criteria.ForUser(id), nil
	case from != "" || to != "":
		f, err := parseTime(op, "from", from, false)
		if err != nil {
			return criteria.Criteria{}, err
		}
		t, err := parseTime(op, "to", to, true)
		if err != nil {
			return criteria.Criteria{}, err
		}
		c, err := criteria.Between(f, t)
		if err != nil {
			return criteria.Criteria{}, apperr.Validation(op, err.Error(), map[string]string{"to": "before from"})
		}
		return c, nil
	}
	return criteria.All(), nil
}

// ParseStage reads a required stage from the query string.
func ParseStage(r *http.Request, op string) (models.Stage, error) {
	raw := normalize.Stage(query.Get(r, "stage"))
	if raw == "" {
		return "", apperr.Validation(op, "stage is required", map[string]string{"stage": "is required"})
	}
	st := models.Stage(raw)
	if !st.IsKnown() {
		return "", apperr.Validation(op, "unknown stage "+raw, map[string]string{"stage": "unknown stage"})
	}
	return st, nil
}

// ParseFloat reads an optional float; absent means 0.
func ParseFloat(r *http.Request, op, key string) (float64, error) {
	raw := normalize.QueryParam(query.Get(r, key))
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation(op, "invalid "+key, map[string]string{key: "must be a number"})
	}
	return f, nil
}

// PathID parses a hex ObjectID route parameter.
func PathID(r *http.Request, op, name string) (primitive.ObjectID, error) {
	return inputval.ObjectID(op, name, chi.URLParam(r, name))
}

func objectID(op, field, hex string) (primitive.ObjectID, error) {
	return inputval.ObjectID(op, field, hex)
}

func parseTime(op, field, raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.Validation(op, "invalid "+field, map[string]string{field: "must be RFC 3339 or YYYY-MM-DD"})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// ParseRange reads optional from/to bounds. A bare date for "to" covers the
// whole day; to before from is a validation error.
func ParseRange(r *http.Request, op string) (from, to *time.Time, err error) {
	f, err := parseTime(op, "from", normalize.QueryParam(query.Get(r, "from")), false)
	if err != nil {
		return nil, nil, err
	}
	t, err := parseTime(op, "to", normalize.QueryParam(query.Get(r, "to")), true)
	if err != nil {
		return nil, nil, err
	}
	if !f.IsZero() {
		from = &f
	}
	if !t.IsZero() {
		to = &t
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, apperr.Validation(op, "to is before from", map[string]string{"to": "before from"})
	}
	return from, to, nil
}

// OptionalID reads an optional ObjectID query parameter; "all" counts as
// absent.
func OptionalID(r *http.Request, op, key string) (*primitive.ObjectID, error) {
	raw := normalize.FilterID(query.Get(r, key))
	if raw == "" {
		return nil, nil
	}
	id, err := objectID(op, key, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
