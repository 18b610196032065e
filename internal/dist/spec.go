// Package dist provides the distribution library: pure sampling primitives
// over a closed tagged union of distribution variants.
//
// Sampling is side-effect-free given the same random stream: the only state
// a draw consumes is the *rand.Rand passed in. Variants are dispatched by
// Kind through a single switch in Sample so the set stays exhaustively
// checkable (no subclassing, no duck typing).
package dist

import (
	"math"
	"sort"
)

// Kind identifies a distribution variant.
type Kind string

const (
	KindCategorical     Kind = "categorical"
	KindNormal          Kind = "normal"
	KindLogNormal       Kind = "lognormal"
	KindUniform         Kind = "uniform"
	KindAgeBand         Kind = "age_band"
	KindTruncatedNormal Kind = "truncated_normal"
	KindExplicit        Kind = "explicit"
	KindConditional     Kind = "conditional"
	KindFixed           Kind = "fixed"
)

// weightEpsilon is the tolerance for weighted variants summing to 1.
const weightEpsilon = 1e-6

// maxTruncatedRetries bounds rejection sampling for truncated_normal.
const maxTruncatedRetries = 1000

// Spec is a tagged-union distribution specification. Kind selects the
// variant; only the fields for that variant are consulted.
type Spec struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// categorical
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`

	// normal, truncated_normal
	Mean   float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev float64 `json:"stddev,omitempty" yaml:"stddev,omitempty"`

	// normal (optional clamp), uniform (required bounds)
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// lognormal
	Mu    float64 `json:"mu,omitempty" yaml:"mu,omitempty"`
	Sigma float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`

	// truncated_normal
	Lo float64 `json:"lo,omitempty" yaml:"lo,omitempty"`
	Hi float64 `json:"hi,omitempty" yaml:"hi,omitempty"`

	// age_band
	Bands []Band `json:"bands,omitempty" yaml:"bands,omitempty"`

	// explicit
	Values []any `json:"values,omitempty" yaml:"values,omitempty"`

	// conditional
	Rules   []Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	Default *Spec  `json:"default,omitempty" yaml:"default,omitempty"`

	// fixed
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
}

// Band is one age band: uniform over [Lo, Hi) chosen with probability Prob.
type Band struct {
	Lo   float64 `json:"lo" yaml:"lo"`
	Hi   float64 `json:"hi" yaml:"hi"`
	Prob float64 `json:"prob" yaml:"prob"`
}

// Rule is one conditional branch: the first rule whose predicate matches
// the call-time context wins. Exactly one of Value or Dist is consulted.
type Rule struct {
	When  Predicate `json:"when" yaml:"when"`
	Value any       `json:"value,omitempty" yaml:"value,omitempty"`
	Dist  *Spec     `json:"dist,omitempty" yaml:"dist,omitempty"`
}

// Fixed returns the degenerate distribution that always yields v.
// Fixed-day event timings are expressed this way.
func Fixed(v any) Spec {
	return Spec{Kind: KindFixed, Value: v}
}

// Uniform returns a uniform distribution over [lo, hi].
func Uniform(lo, hi float64) Spec {
	return Spec{Kind: KindUniform, Min: &lo, Max: &hi}
}

// Validate checks the variant's structural invariants. It does not consume
// randomness and is safe to call repeatedly.
func (s *Spec) Validate() error {
	switch s.Kind {
	case KindCategorical:
		return s.validateCategorical()
	case KindNormal:
		if s.StdDev < 0 {
			return invalidf(s.Kind, "stddev must be non-negative, got %v", s.StdDev)
		}
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			return invalidf(s.Kind, "min %v > max %v", *s.Min, *s.Max)
		}
		return nil
	case KindLogNormal:
		if s.Sigma < 0 {
			return invalidf(s.Kind, "sigma must be non-negative, got %v", s.Sigma)
		}
		return nil
	case KindUniform:
		if s.Min == nil || s.Max == nil {
			return invalidf(s.Kind, "uniform requires min and max")
		}
		if *s.Min > *s.Max {
			return invalidf(s.Kind, "min %v > max %v", *s.Min, *s.Max)
		}
		return nil
	case KindAgeBand:
		return s.validateAgeBand()
	case KindTruncatedNormal:
		if s.StdDev <= 0 {
			return invalidf(s.Kind, "stddev must be positive, got %v", s.StdDev)
		}
		if s.Lo > s.Hi {
			return invalidf(s.Kind, "lo %v > hi %v", s.Lo, s.Hi)
		}
		return nil
	case KindExplicit:
		if len(s.Values) == 0 {
			return invalidf(s.Kind, "explicit requires a non-empty value list")
		}
		return nil
	case KindConditional:
		return s.validateConditional()
	case KindFixed:
		if s.Value == nil {
			return invalidf(s.Kind, "fixed requires a value")
		}
		return nil
	default:
		return invalidf(s.Kind, "unknown distribution kind %q", s.Kind)
	}
}

func (s *Spec) validateCategorical() error {
	if len(s.Weights) == 0 {
		return invalidf(s.Kind, "categorical requires at least one weight")
	}
	var sum float64
	for label, w := range s.Weights {
		if w < 0 {
			return invalidf(s.Kind, "negative weight %v for label %q", w, label)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightEpsilon {
		return invalidf(s.Kind, "weights sum to %v, want 1 +/- %v", sum, weightEpsilon)
	}
	return nil
}

// validateAgeBand requires bands sorted ascending, non-overlapping, and
// tiling the declared domain exactly (band[i].Hi == band[i+1].Lo).
func (s *Spec) validateAgeBand() error {
	if len(s.Bands) == 0 {
		return invalidf(s.Kind, "age_band requires at least one band")
	}
	var sum float64
	for i, b := range s.Bands {
		if b.Lo >= b.Hi {
			return invalidf(s.Kind, "band %d: lo %v >= hi %v", i, b.Lo, b.Hi)
		}
		if b.Prob < 0 {
			return invalidf(s.Kind, "band %d: negative probability %v", i, b.Prob)
		}
		if i > 0 {
			prev := s.Bands[i-1]
			if b.Lo < prev.Hi {
				return invalidf(s.Kind, "band %d overlaps band %d", i, i-1)
			}
			if b.Lo > prev.Hi {
				return invalidf(s.Kind, "gap between band %d and band %d leaves the domain uncovered", i-1, i)
			}
		}
		sum += b.Prob
	}
	if math.Abs(sum-1) > weightEpsilon {
		return invalidf(s.Kind, "band probabilities sum to %v, want 1 +/- %v", sum, weightEpsilon)
	}
	return nil
}

func (s *Spec) validateConditional() error {
	for i, r := range s.Rules {
		if r.When.Attribute == "" {
			return invalidf(s.Kind, "rule %d: predicate requires an attribute", i)
		}
		if r.Value == nil && r.Dist == nil {
			return invalidf(s.Kind, "rule %d: requires a value or a nested distribution", i)
		}
		if r.Dist != nil {
			if err := r.Dist.Validate(); err != nil {
				return err
			}
		}
	}
	if s.Default != nil {
		return s.Default.Validate()
	}
	return nil
}

// sortedLabels returns categorical labels in byte order so cumulative
// weight walks are independent of map iteration order.
func (s *Spec) sortedLabels() []string {
	labels := make([]string, 0, len(s.Weights))
	for label := range s.Weights {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
