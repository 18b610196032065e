package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cohortgen/cohortgen/internal/cohort"
)

// Entity type names used when persisting a cohort. Loaders should treat
// unknown types as opaque: the contract is only "grouped by type, keyed by
// id".
const (
	TypeEntity   = "entity"
	TypeTimeline = "timeline"
	TypePerson   = "person"
	TypeReport   = "report"
)

// CohortRecords lowers a generated cohort into the StateManager's record
// shape. Bodies are JSON with HTML escaping disabled and map keys sorted
// (encoding/json default), so repeated saves of the same cohort are
// byte-identical.
func CohortRecords(c *cohort.Cohort) (map[string][]Record, error) {
	out := make(map[string][]Record)

	for _, ent := range c.Entities {
		body, err := marshalBody(ent)
		if err != nil {
			return nil, fmt.Errorf("marshal entity %s: %w", ent.ID, err)
		}
		out[TypeEntity] = append(out[TypeEntity], Record{ID: ent.ID, Body: body})
	}

	products := make([]string, 0, len(c.Timelines))
	for p := range c.Timelines {
		products = append(products, p)
	}
	sort.Strings(products)

	for _, product := range products {
		for _, tl := range c.Timelines[product] {
			body, err := marshalBody(tl)
			if err != nil {
				return nil, fmt.Errorf("marshal timeline %s/%s: %w", product, tl.EntityID, err)
			}
			out[TypeTimeline] = append(out[TypeTimeline], Record{ID: product + "/" + tl.EntityID, Body: body})
		}
	}

	for _, person := range c.Persons {
		body, err := marshalBody(person)
		if err != nil {
			return nil, fmt.Errorf("marshal person %s: %w", person.CoreID, err)
		}
		out[TypePerson] = append(out[TypePerson], Record{ID: person.CoreID, Body: body})
	}

	body, err := marshalBody(c.Report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	out[TypeReport] = append(out[TypeReport], Record{ID: c.ProfileID, Body: body})

	return out, nil
}

// marshalBody encodes v as JSON without HTML escaping and without the
// trailing newline json.Encoder appends.
func marshalBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
