// Package inputval validates decoded request bodies with
// go-playground/validator and reports failures as apperr validation errors
// keyed by JSON field name.
package inputval

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxBodyBytes bounds a JSON request body.
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		return models.Stage(fl.Field().String()).IsKnown()
	})
	_ = v.RegisterValidation("executor_role", func(fl validator.FieldLevel) bool {
		return models.ExecutorRole(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("violation_kind", func(fl validator.FieldLevel) bool {
		return models.IsViolationKind(fl.Field().String())
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
			return true
		}
		return false
	})
	return v
}

// Struct validates v and returns an apperr validation error listing every
// failing field, or nil.
func Struct(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(op, err.Error(), nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = describe(fe)
	}
	return apperr.Validation(op, "invalid request", fields)
}

// Decode reads a JSON body into dst and validates it. Unknown fields are
// rejected.
func Decode(op string, r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation(op, "malformed JSON body: "+err.Error(), nil)
	}
	return Struct(op, dst)
}

// ObjectID parses a hex ObjectID, reporting failures against field.
func ObjectID(op, field, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(op, "invalid id", map[string]string{field: "must be a 24-character hex id"})
	}
	return id, nil
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "objectid":
		return "must be a 24-character hex id"
	case "stage":
		return "unknown stage"
	case "executor_role":
		return "must be one of primary, equal, co, assistant"
	case "violation_kind":
		return "must be one of " + strings.Join(models.ViolationKinds, ", ")
	case "priority":
		return "must be one of low, normal, high, urgent"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt", "gte", "lte", "lt":
		return "out of range"
	}
	return "failed " + fe.Tag()
}
