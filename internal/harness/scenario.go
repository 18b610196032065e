package harness

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cohortgen/cohortgen/internal/cohort"
	"github.com/cohortgen/cohortgen/internal/spec"
)

// Scenario defines one end-to-end generation scenario: a profile, an
// optional journey and triggers, and assertions over the result.
//
// Scenarios must pin a seed and a start date; a scenario that varies across
// runs cannot be asserted against or golden-compared.
type Scenario struct {
	// Name uniquely identifies this scenario (also the golden file name).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Profile is the inline profile specification.
	Profile yaml.Node `yaml:"profile"`

	// Journey is the optional inline journey specification.
	Journey *yaml.Node `yaml:"journey,omitempty"`

	// Triggers is the optional inline trigger list.
	Triggers *yaml.Node `yaml:"triggers,omitempty"`

	// StartDate anchors timelines (YYYY-MM-DD). Defaults to 2024-01-01.
	StartDate string `yaml:"start_date,omitempty"`

	// Assertions validate the generated cohort.
	Assertions []Assertion `yaml:"assertions"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	return &sc, nil
}

// config lowers the scenario's inline documents into a cohort config,
// running each through the same schema validation as file-based specs.
func (s *Scenario) config() (*cohort.Config, error) {
	profileDoc, err := yaml.Marshal(&s.Profile)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: re-encode profile: %w", s.Name, err)
	}
	p, err := spec.ParseProfile(s.Name+"/profile", profileDoc)
	if err != nil {
		return nil, err
	}
	cfg := &cohort.Config{Profile: p}

	if s.Journey != nil {
		journeyDoc, err := yaml.Marshal(s.Journey)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: re-encode journey: %w", s.Name, err)
		}
		j, err := spec.ParseJourney(s.Name+"/journey", journeyDoc)
		if err != nil {
			return nil, err
		}
		cfg.Journey = j
	}
	if s.Triggers != nil {
		triggerDoc, err := yaml.Marshal(s.Triggers)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: re-encode triggers: %w", s.Name, err)
		}
		ts, err := spec.ParseTriggers(s.Name+"/triggers", triggerDoc)
		if err != nil {
			return nil, err
		}
		cfg.Triggers = ts
	}
	if s.StartDate != "" {
		start, err := time.Parse("2006-01-02", s.StartDate)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: parse start_date: %w", s.Name, err)
		}
		cfg.StartDate = start
	}
	return cfg, nil
}
