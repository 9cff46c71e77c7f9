package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their env or yaml name so messages point at
// the knob an operator actually sets.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"env", "yaml"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Validate checks settings and sources against the environment and returns
// every problem found, in a stable order: credentials path, project id,
// active source credentials, then setting ranges. It has no side effects
// beyond a stat of the credentials path.
func Validate(settings Settings, sources []DataSource, lookup Lookup) []Problem {
	var problems []Problem

	switch {
	case settings.FirebaseCredentialsPath == "":
		problems = append(problems, Problem{
			Kind:    KindMissingSetting,
			Message: EnvFirebaseCredentialsPath + " environment variable not set",
		})
	case !pathExists(settings.FirebaseCredentialsPath):
		problems = append(problems, Problem{
			Kind:    KindInvalidPath,
			Message: "Firebase credentials file not found at " + settings.FirebaseCredentialsPath,
		})
	}

	if settings.FirebaseProjectID == "" {
		problems = append(problems, Problem{
			Kind:    KindMissingSetting,
			Message: EnvFirebaseProjectID + " environment variable not set",
		})
	}

	for _, src := range sources {
		if !src.Active() {
			continue
		}
		if v, ok := lookup.Lookup(src.CredentialEnvVar()); !ok || v == "" {
			problems = append(problems, Problem{
				Kind:    KindMissingCredential,
				Message: fmt.Sprintf("API key for %s (%s) not found in environment", src.Key(), src.CredentialEnvVar()),
			})
		}
	}

	if err := validate.Struct(settings); err != nil {
		for _, msg := range validationMessages(err) {
			problems = append(problems, Problem{Kind: KindInvalidSetting, Message: msg})
		}
	}

	return problems
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func describeValidation(err error) error {
	return errors.New(strings.Join(validationMessages(err), "; "))
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", field, fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s, got %v", field, fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("%s must be less than %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s, got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
