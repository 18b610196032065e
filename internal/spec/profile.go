// Package spec defines the declarative input surface of the generation
// engine: profile, journey, and trigger specifications.
//
// Specifications arrive as JSON-compatible structured data (YAML or JSON
// files). Loading is two-stage: the raw document is checked against an
// embedded CUE schema, then decoded into typed structs and cross-validated.
// Malformed specs fail fast with a SchemaValidationError before any
// sampling occurs.
package spec

import "github.com/cohortgen/cohortgen/internal/dist"

// ValidationMode controls how attribute constraint violations propagate.
type ValidationMode string

const (
	// ValidationStrict fails the whole batch on any constraint violation.
	ValidationStrict ValidationMode = "strict"
	// ValidationWarn returns entities plus per-entity warnings.
	ValidationWarn ValidationMode = "warn"
	// ValidationNone skips validation entirely.
	ValidationNone ValidationMode = "none"
)

// ProfileSpec is a declarative description of a population. Immutable once
// executed: the executor never writes back into the specification.
type ProfileSpec struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	Generation   GenerationSpec   `json:"generation" yaml:"generation"`
	Demographics DemographicsSpec `json:"demographics" yaml:"demographics"`
	Clinical     *ClinicalSpec    `json:"clinical,omitempty" yaml:"clinical,omitempty"`
	Coverage     []AttributeSpec  `json:"coverage,omitempty" yaml:"coverage,omitempty"`
}

// GenerationSpec controls batch size, target products, and reproducibility.
type GenerationSpec struct {
	Count          int            `json:"count" yaml:"count"`
	Products       []string       `json:"products" yaml:"products"`
	Seed           *int64         `json:"seed,omitempty" yaml:"seed,omitempty"`
	ValidationMode ValidationMode `json:"validation_mode,omitempty" yaml:"validation_mode,omitempty"`
}

// Mode returns the effective validation mode. Unset defaults to warn:
// callers get their cohort plus a report, never silent drops.
func (g GenerationSpec) Mode() ValidationMode {
	if g.ValidationMode == "" {
		return ValidationWarn
	}
	return g.ValidationMode
}

// DemographicsSpec declares the demographic attribute distributions.
type DemographicsSpec struct {
	Age       dist.Spec      `json:"age" yaml:"age"`
	Gender    dist.Spec      `json:"gender" yaml:"gender"`
	Geography *GeographySpec `json:"geography,omitempty" yaml:"geography,omitempty"`
}

// GeographySpec declares geographic attributes, optionally backed by
// empirical reference data: when Region and Datasets are set and the
// executor has a Resolver, resolved distributions override the declared
// ones attribute-by-attribute.
type GeographySpec struct {
	Region     string          `json:"region,omitempty" yaml:"region,omitempty"`
	Datasets   []string        `json:"datasets,omitempty" yaml:"datasets,omitempty"`
	Attributes []AttributeSpec `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ClinicalSpec declares clinical attribute distributions.
type ClinicalSpec struct {
	PrimaryCondition dist.Spec     `json:"primary_condition" yaml:"primary_condition"`
	Comorbidities    []Comorbidity `json:"comorbidities,omitempty" yaml:"comorbidities,omitempty"`
	Severity         *dist.Spec    `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Comorbidity is an independently drawn boolean condition.
type Comorbidity struct {
	Condition   string  `json:"condition" yaml:"condition"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// AttributeSpec names one generated attribute and its distribution.
// Lists of AttributeSpec preserve declaration order, which fixes the
// sampling order for a given seed.
type AttributeSpec struct {
	Name string    `json:"name" yaml:"name"`
	Dist dist.Spec `json:"dist" yaml:"dist"`
}
