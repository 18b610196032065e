package dist

import (
	"math"
	"math/rand/v2"
)

// Sample draws one value from the distribution using rng.
//
// ctx is the call-time attribute context consulted by conditional rules;
// it may be nil for unconditional variants. Validate is applied before
// drawing so a malformed spec never consumes randomness.
func (s *Spec) Sample(rng *rand.Rand, ctx map[string]any) (any, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.Kind {
	case KindCategorical:
		return s.sampleCategorical(rng), nil
	case KindNormal:
		return s.sampleNormal(rng), nil
	case KindLogNormal:
		return math.Exp(s.Mu + s.Sigma*rng.NormFloat64()), nil
	case KindUniform:
		return *s.Min + rng.Float64()*(*s.Max-*s.Min), nil
	case KindAgeBand:
		return s.sampleAgeBand(rng), nil
	case KindTruncatedNormal:
		return s.sampleTruncatedNormal(rng)
	case KindExplicit:
		return s.Values[rng.IntN(len(s.Values))], nil
	case KindConditional:
		return s.sampleConditional(rng, ctx)
	case KindFixed:
		return s.Value, nil
	default:
		return nil, invalidf(s.Kind, "unknown distribution kind %q", s.Kind)
	}
}

// sampleCategorical walks cumulative weights over byte-ordered labels.
// Label ordering is fixed so the same stream position always yields the
// same label regardless of map iteration order.
func (s *Spec) sampleCategorical(rng *rand.Rand) string {
	u := rng.Float64()
	labels := s.sortedLabels()
	var cum float64
	for _, label := range labels {
		cum += s.Weights[label]
		if u < cum {
			return label
		}
	}
	// Rounding slack at the top of the cumulative walk.
	return labels[len(labels)-1]
}

func (s *Spec) sampleNormal(rng *rand.Rand) float64 {
	v := s.Mean + s.StdDev*rng.NormFloat64()
	if s.Min != nil && v < *s.Min {
		v = *s.Min
	}
	if s.Max != nil && v > *s.Max {
		v = *s.Max
	}
	return v
}

// sampleAgeBand is two-stage: pick a band by its probability in declaration
// order, then draw uniformly within [lo, hi).
func (s *Spec) sampleAgeBand(rng *rand.Rand) float64 {
	u := rng.Float64()
	var cum float64
	band := s.Bands[len(s.Bands)-1]
	for _, b := range s.Bands {
		cum += b.Prob
		if u < cum {
			band = b
			break
		}
	}
	return band.Lo + rng.Float64()*(band.Hi-band.Lo)
}

// sampleTruncatedNormal redraws until the value lands in [lo, hi], with
// bounded retries before failing with SamplingExhausted.
func (s *Spec) sampleTruncatedNormal(rng *rand.Rand) (any, error) {
	for i := 0; i < maxTruncatedRetries; i++ {
		v := s.Mean + s.StdDev*rng.NormFloat64()
		if v >= s.Lo && v <= s.Hi {
			return v, nil
		}
	}
	return nil, exhaustedf(s.Kind, "no draw landed in [%v, %v] after %d attempts (mean=%v, stddev=%v)",
		s.Lo, s.Hi, maxTruncatedRetries, s.Mean, s.StdDev)
}

// sampleConditional evaluates rules in declaration order against ctx; the
// first matching predicate wins. A rule referencing an absent context key is
// treated as unmatched when a default exists, and fails with MissingContext
// otherwise. No rule matching falls back to the default distribution.
func (s *Spec) sampleConditional(rng *rand.Rand, ctx map[string]any) (any, error) {
	for _, rule := range s.Rules {
		matched, err := rule.When.Evaluate(ctx)
		if err != nil {
			if IsMissingContext(err) && s.Default != nil {
				continue
			}
			return nil, err
		}
		if !matched {
			continue
		}
		if rule.Dist != nil {
			return rule.Dist.Sample(rng, ctx)
		}
		return rule.Value, nil
	}
	if s.Default == nil {
		return nil, invalidf(s.Kind, "no rule matched and no default exists")
	}
	return s.Default.Sample(rng, ctx)
}
