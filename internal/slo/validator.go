package slo

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validator handles seed file validation
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a new validator with the given schema file
func NewValidator(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	// Load schema from file path
	// The schema will be auto-detected based on $schema field
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDirectory loads and validates all seed files in a directory
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	seeds, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	if len(seeds) == 0 {
		return allErrors
	}

	// Validate each seed document against JSON schema
	for _, seed := range seeds {
		schemaErrors := v.validateSchema(seed.File, seed.Doc)
		allErrors = append(allErrors, schemaErrors...)
	}

	// Apply extra validation rules
	extraErrors := validateExtraRules(seeds)
	allErrors = append(allErrors, extraErrors...)

	return allErrors
}

// validateSchema validates a single seed document against the JSON schema
func (v *Validator) validateSchema(file string, doc *SeedDocument) []ValidationError {
	var errors []ValidationError

	// Convert to a plain structure for schema validation
	yamlBytes, err := yaml.Marshal(doc)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to marshal seed document: %v", err),
		})
		return errors
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(yamlBytes, &jsonData); err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to convert to JSON: %v", err),
		})
		return errors
	}

	// Validate against schema
	if err := v.schema.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errors = append(errors, extractSchemaErrors(file, validationErr)...)
		} else {
			errors = append(errors, ValidationError{
				File:    file,
				Message: err.Error(),
			})
		}
	}

	return errors
}

// extractSchemaErrors converts JSON schema validation errors to ValidationErrors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	// Add the main error
	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, ValidationError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	// Add any nested errors
	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// validateExtraRules applies additional validation rules beyond JSON schema
func validateExtraRules(seeds []SeedWithFile) []ValidationError {
	var errors []ValidationError

	// Check for duplicate (service, metric) pairs across all files
	pairSeen := make(map[string]string)
	for _, seed := range seeds {
		for i, s := range seed.Doc.SLOs {
			pair := s.Service + "/" + s.Metric
			if prevFile, exists := pairSeen[pair]; exists {
				errors = append(errors, ValidationError{
					File:    seed.File,
					Path:    fmt.Sprintf("slos[%d]", i),
					Message: fmt.Sprintf("duplicate pair %q (also in %s)", pair, filepath.Base(prevFile)),
				})
			} else {
				pairSeen[pair] = seed.File
			}

			if _, err := s.Definition(); err != nil {
				errors = append(errors, ValidationError{
					File:    seed.File,
					Path:    fmt.Sprintf("slos[%d]", i),
					Message: err.Error(),
				})
			}
		}

		for i, r := range seed.Doc.SuppressionRules {
			errors = append(errors, validateSeedRule(seed.File, i, r)...)
		}
	}

	return errors
}

// validateSeedRule checks the parts of a suppression rule the schema
// cannot express: paired time fields and clock/day formats.
func validateSeedRule(file string, idx int, r SeedRule) []ValidationError {
	var errors []ValidationError
	path := func(field string) string {
		return fmt.Sprintf("suppressionRules[%d].%s", idx, field)
	}

	if r.Name == "" {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    path("name"),
			Message: "name is required",
		})
	}

	if (r.StartTime == "") != (r.EndTime == "") {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    path("startTime"),
			Message: "startTime and endTime must both be set or both be empty",
		})
	}

	for field, val := range map[string]string{"startTime": r.StartTime, "endTime": r.EndTime} {
		if val != "" && !clockPattern.MatchString(val) {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    path(field),
				Message: fmt.Sprintf("invalid clock time %q, expected HH:MM", val),
			})
		}
	}

	if r.Severity != "" {
		switch r.Severity {
		case "warning", "critical", "emergency":
		default:
			errors = append(errors, ValidationError{
				File:    file,
				Path:    path("severity"),
				Message: fmt.Sprintf("unknown severity %q", r.Severity),
			})
		}
	}

	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    path("daysOfWeek"),
				Message: fmt.Sprintf("day %d out of range 0-6 (0 = Sunday)", d),
			})
		}
	}

	return errors
}
