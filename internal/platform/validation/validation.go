// Package validation wraps go-playground/validator with the domain's custom
// tags and converts failures into apperr validation errors keyed by JSON
// field name. The same instance backs echo's Validator and direct service
// calls.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/medipt/medipt/internal/platform/apperr"
)

var (
	acronymRE       = regexp.MustCompile(`^[A-Za-z0-9]{2,15}$`)
	bloodPressureRE = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)
	phoneRE         = regexp.MustCompile(`^\+?\d{9,15}$`)
)

var (
	BloodGroups     = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	Genotypes       = []string{"AA", "AS", "SS", "AC"}
	Genders         = []string{"Male", "Female", "Other"}
	MaritalStatuses = []string{"Single", "Married", "Divorced", "Widowed", "Separated"}
)

// Enums registered by domain packages, looked up at validation time.
var (
	enumMu sync.RWMutex
	enums  = map[string][]string{}
)

// RegisterEnum makes values the accepted set for the named tag. Only tags
// declared in New consult the registry.
func RegisterEnum(tag string, values []string) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enums[tag] = append([]string(nil), values...)
}

func registeredEnum(tag string) []string {
	enumMu.RLock()
	defer enumMu.RUnlock()
	return enums[tag]
}

type Validator struct {
	v *validator.Validate
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

// Default returns the shared validator.
func Default() *Validator {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV
}

// Struct validates s with the shared validator.
func Struct(s any) error {
	return Default().Validate(s)
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "acronym", matchString(acronymRE))
	mustRegister(v, "bloodpressure", matchString(bloodPressureRE))
	mustRegister(v, "phone", matchString(phoneRE))
	mustRegister(v, "bloodgroup", oneOf(BloodGroups))
	mustRegister(v, "genotype", oneOf(Genotypes))
	mustRegister(v, "gender", oneOf(Genders))
	mustRegister(v, "maritalstatus", oneOf(MaritalStatuses))
	mustRegister(v, "caregivertype", func(fl validator.FieldLevel) bool {
		return oneOf(registeredEnum("caregivertype"))(fl)
	})
	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func matchString(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func oneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, v := range values {
			if s == v {
				return true
			}
		}
		return false
	}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i any) error {
	err := v.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = message(fe)
	}
	return apperr.ValidationFields(fields)
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "acronym":
		return "must be 2 to 15 letters or digits"
	case "bloodpressure":
		return "blood pressure must be in the format 'Systolic/Diastolic' (e.g., '120/80')"
	case "phone":
		return "enter a valid phone number"
	case "bloodgroup":
		return "must be one of: " + strings.Join(BloodGroups, " ")
	case "genotype":
		return "must be one of: " + strings.Join(Genotypes, " ")
	case "gender":
		return "must be one of: " + strings.Join(Genders, " ")
	case "maritalstatus":
		return "must be one of: " + strings.Join(MaritalStatuses, " ")
	case "caregivertype":
		return "not a recognised caregiver type"
	case "eqfield":
		return "must match " + fe.Param()
	case "uuid4", "uuid":
		return "must be a valid id"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
