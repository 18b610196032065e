package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads, schema-checks, and decodes a profile specification
// from a YAML or JSON file.
func LoadProfile(path string) (*ProfileSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile spec: %w", err)
	}
	return ParseProfile(path, data)
}

// ParseProfile schema-checks and decodes a profile specification document.
func ParseProfile(docName string, data []byte) (*ProfileSpec, error) {
	raw, err := decodeRaw(docName, data)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(docName, "#Profile", raw); err != nil {
		return nil, err
	}

	var p ProfileSpec
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, schemaErr(docName, fmt.Sprintf("decode profile: %v", err))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadJourney reads, schema-checks, and decodes a journey specification.
func LoadJourney(path string) (*JourneySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journey spec: %w", err)
	}
	return ParseJourney(path, data)
}

// ParseJourney schema-checks and decodes a journey specification document.
func ParseJourney(docName string, data []byte) (*JourneySpec, error) {
	raw, err := decodeRaw(docName, data)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(docName, "#Journey", raw); err != nil {
		return nil, err
	}

	var j JourneySpec
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, schemaErr(docName, fmt.Sprintf("decode journey: %v", err))
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// LoadTriggers reads, schema-checks, and decodes a trigger spec document.
func LoadTriggers(path string) ([]TriggerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trigger specs: %w", err)
	}
	return ParseTriggers(path, data)
}

// ParseTriggers schema-checks and decodes a trigger spec document of the
// form {triggers: [...]}.
func ParseTriggers(docName string, data []byte) ([]TriggerSpec, error) {
	raw, err := decodeRaw(docName, data)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(docName, "#Triggers", raw); err != nil {
		return nil, err
	}

	var doc struct {
		Triggers []TriggerSpec `yaml:"triggers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schemaErr(docName, fmt.Sprintf("decode triggers: %v", err))
	}
	for i := range doc.Triggers {
		if err := doc.Triggers[i].Delay.Validate(); err != nil {
			return nil, fmt.Errorf("trigger %d delay: %w", i, err)
		}
	}
	return doc.Triggers, nil
}

// decodeRaw parses YAML (a superset of JSON, so both input formats share
// one path) into the raw JSON-compatible form used for schema checking.
func decodeRaw(docName string, data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, schemaErr(docName, fmt.Sprintf("parse document: %v", err))
	}
	if raw == nil {
		return nil, schemaErr(docName, "document is empty")
	}
	return raw, nil
}
