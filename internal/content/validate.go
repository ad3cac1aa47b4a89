package content

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/stemforge/stem-forge/internal/battle"
	"github.com/stemforge/stem-forge/internal/domain"
)

// ErrInvalidContent is returned when challenge content fails validation.
var ErrInvalidContent = errors.New("invalid challenge content")

var validate = validator.New()

// ValidationError is a single content problem.
type ValidationError struct {
	Challenge string
	Field     string
	Problem   string
}

func (e ValidationError) Error() string {
	if e.Challenge == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Problem)
	}
	return fmt.Sprintf("challenge %s: %s: %s", e.Challenge, e.Field, e.Problem)
}

// ValidationErrors collects every problem found in a content set.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks a challenge list. The returned error wraps ErrInvalidContent
// and a ValidationErrors value.
func Validate(challenges []domain.Challenge) error {
	var errs ValidationErrors
	if len(challenges) == 0 {
		errs = append(errs, ValidationError{Field: "challenges", Problem: "no challenges defined"})
	}

	seen := make(map[string]bool, len(challenges))
	for i, c := range challenges {
		name := c.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if c.ID != "" {
			if seen[c.ID] {
				errs = append(errs, ValidationError{Challenge: name, Field: "id", Problem: "duplicate challenge id"})
			}
			seen[c.ID] = true
		}
		errs = append(errs, validateChallenge(name, c)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidContent, errs)
	}
	return nil
}

func validateChallenge(name string, c domain.Challenge) ValidationErrors {
	var errs ValidationErrors
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return ValidationErrors{{Challenge: name, Field: "challenge", Problem: err.Error()}}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Challenge: name,
				Field:     strings.TrimPrefix(fe.Namespace(), "Challenge."),
				Problem:   describeTag(fe),
			})
		}
	}

	phaseIDs := make(map[string]bool, len(c.Phases))
	questionIDs := make(map[string]bool)
	for pi, p := range c.Phases {
		if p.ID != "" {
			if phaseIDs[p.ID] {
				errs = append(errs, ValidationError{Challenge: name, Field: fmt.Sprintf("Phases[%d].ID", pi), Problem: "duplicate phase id " + p.ID})
			}
			phaseIDs[p.ID] = true
		}
		for qi, q := range p.Questions {
			field := fmt.Sprintf("Phases[%d].Questions[%d]", pi, qi)
			if q.ID != "" {
				if questionIDs[q.ID] {
					errs = append(errs, ValidationError{Challenge: name, Field: field + ".ID", Problem: "duplicate question id " + q.ID})
				}
				questionIDs[q.ID] = true
			}
			if q.Kind == domain.KindMultipleChoice {
				errs = append(errs, validateChoices(name, field, q)...)
			}
		}
	}
	return errs
}

func validateChoices(name, field string, q domain.Question) ValidationErrors {
	if len(q.Options) < 2 {
		return ValidationErrors{{Challenge: name, Field: field + ".Options", Problem: "multiple-choice needs at least two options"}}
	}
	for _, opt := range q.Options {
		if battle.Matches(q, opt) {
			return nil
		}
	}
	return ValidationErrors{{Challenge: name, Field: field + ".CorrectAnswer", Problem: "correct answer is not one of the options"}}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}
