package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"crimesleuth/internal/auth"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/policy"
	"crimesleuth/internal/query"
)

// Page is one page of a list result.
type Page[T any] struct {
	Items      []T
	Total      int64
	Pagination query.Pagination
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateInput runs struct tag validation and reports the first failing
// field as a validation error.
func validateInput(v any) error {
	err := inputValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return apperrors.Invalid("%s is required", fe.Field())
		case "oneof":
			return apperrors.Invalid("%s must be one of: %s", fe.Field(), fe.Param())
		default:
			return apperrors.Invalid("%s failed %s validation", fe.Field(), fe.Tag())
		}
	}
	return apperrors.Invalid("invalid input: %v", err)
}

// Validate checks a request body against its struct tags with the same
// rules and messages the services use.
func Validate(v any) error {
	return validateInput(v)
}

// authorize returns ErrForbidden unless the policy allows the action.
func authorize(actor auth.Principal, action policy.Action, own policy.Ownership) error {
	if !policy.Allow(actor.Role, action, own) {
		return apperrors.ErrForbidden
	}
	return nil
}

// notFound maps gorm.ErrRecordNotFound to nf and wraps anything else.
func notFound(err error, nf *apperrors.Error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nf
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rejectChain refuses client-supplied custody chains. JSON null counts as absent.
func rejectChain(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return apperrors.ErrChainImmutable
}
