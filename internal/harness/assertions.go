package harness

import (
	"fmt"

	"github.com/cohortgen/cohortgen/internal/cohort"
	"github.com/cohortgen/cohortgen/internal/journey"
)

// Assertion validates one property of a generated cohort.
//
// Supported types:
//
//	entity_count      - Count entities generated
//	attribute_bounds  - Attribute within [Min, Max] on every entity
//	timeline_ordered  - events non-decreasing in scheduled_at, per timeline
//	event_present     - at least Count events of EventType in Product
//	                    (Count defaults to 1), optionally in Status
//	event_between     - every EventType event in Product falls within
//	                    [AfterDay, BeforeDay] of the timeline start
type Assertion struct {
	Type string `yaml:"type"`

	// entity_count
	Count int `yaml:"count,omitempty"`

	// attribute_bounds
	Attribute string   `yaml:"attribute,omitempty"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`

	// event_present / event_between
	Product   string `yaml:"product,omitempty"`
	EventType string `yaml:"event_type,omitempty"`
	Status    string `yaml:"status,omitempty"`
	AfterDay  int    `yaml:"after_day,omitempty"`
	BeforeDay int    `yaml:"before_day,omitempty"`
}

// evaluate applies the assertion to a cohort.
func (a Assertion) evaluate(c *cohort.Cohort) error {
	switch a.Type {
	case "entity_count":
		return assertEntityCount(c, a)
	case "attribute_bounds":
		return assertAttributeBounds(c, a)
	case "timeline_ordered":
		return assertTimelineOrdered(c)
	case "event_present":
		return assertEventPresent(c, a)
	case "event_between":
		return assertEventBetween(c, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertEntityCount(c *cohort.Cohort, a Assertion) error {
	if len(c.Entities) != a.Count {
		return fmt.Errorf("expected %d entities, got %d", a.Count, len(c.Entities))
	}
	return nil
}

func assertAttributeBounds(c *cohort.Cohort, a Assertion) error {
	for _, ent := range c.Entities {
		v, ok := ent.Attributes[a.Attribute]
		if !ok {
			return fmt.Errorf("entity %d has no attribute %q", ent.Index, a.Attribute)
		}
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("entity %d attribute %q is not numeric (%T)", ent.Index, a.Attribute, v)
		}
		if a.Min != nil && f < *a.Min {
			return fmt.Errorf("entity %d: %s = %v below min %v", ent.Index, a.Attribute, f, *a.Min)
		}
		if a.Max != nil && f > *a.Max {
			return fmt.Errorf("entity %d: %s = %v above max %v", ent.Index, a.Attribute, f, *a.Max)
		}
	}
	return nil
}

func assertTimelineOrdered(c *cohort.Cohort) error {
	for product, timelines := range c.Timelines {
		for _, tl := range timelines {
			var prev *journey.TimelineEvent
			for _, ev := range tl.Events {
				if ev.ScheduledAt.IsZero() {
					continue
				}
				if prev != nil && ev.ScheduledAt.Before(prev.ScheduledAt) {
					return fmt.Errorf("%s timeline %s: event %s at %s precedes %s at %s",
						product, tl.EntityID, ev.ID, ev.ScheduledAt, prev.ID, prev.ScheduledAt)
				}
				prev = ev
			}
		}
	}
	return nil
}

func assertEventPresent(c *cohort.Cohort, a Assertion) error {
	want := a.Count
	if want == 0 {
		want = 1
	}
	found := 0
	for _, tl := range c.Timelines[a.Product] {
		for _, ev := range tl.Events {
			if ev.Type != a.EventType {
				continue
			}
			if a.Status != "" && string(ev.Status) != a.Status {
				continue
			}
			found++
		}
	}
	if found < want {
		return fmt.Errorf("expected at least %d %s events in %s, found %d", want, a.EventType, a.Product, found)
	}
	return nil
}

func assertEventBetween(c *cohort.Cohort, a Assertion) error {
	matched := false
	for _, tl := range c.Timelines[a.Product] {
		for _, ev := range tl.Events {
			if ev.Type != a.EventType || ev.ScheduledAt.IsZero() {
				continue
			}
			matched = true
			day := ev.ScheduledAt.Sub(tl.StartDate).Hours() / 24
			if day < float64(a.AfterDay) || day > float64(a.BeforeDay) {
				return fmt.Errorf("%s event %s at day %.2f outside [%d, %d]", a.EventType, ev.ID, day, a.AfterDay, a.BeforeDay)
			}
		}
	}
	if !matched {
		return fmt.Errorf("no %s events found in %s", a.EventType, a.Product)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
