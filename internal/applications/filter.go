package applications

import (
	"fmt"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/schema"
)

// Filter narrows the triage list. Empty fields do not filter.
type Filter struct {
	FromID   string `form:"from_id"`
	Name     string `form:"name"`
	Status   string `form:"status"`
	Handler  string `form:"handler"`
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
}

// matcher is a compiled Filter.
type matcher struct {
	fromID, name    string
	status, handler string
	from, until     time.Time
}

func (f Filter) compile(loc *time.Location) (matcher, error) {
	m := matcher{
		fromID:  strings.ToLower(strings.TrimSpace(f.FromID)),
		name:    strings.ToLower(strings.TrimSpace(f.Name)),
		status:  f.Status,
		handler: f.Handler,
	}
	if f.Status != "" && !schema.ApplicationStatus(f.Status).Valid() {
		return m, Invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.DateFrom != "" {
		d, err := time.ParseInLocation(schema.DateLayout, f.DateFrom, loc)
		if err != nil {
			return m, Invalid("date_from", "date must be YYYY-MM-DD")
		}
		m.from = d
	}
	if f.DateTo != "" {
		d, err := time.ParseInLocation(schema.DateLayout, f.DateTo, loc)
		if err != nil {
			return m, Invalid("date_to", "date must be YYYY-MM-DD")
		}
		// The end bound covers the whole day.
		m.until = d.AddDate(0, 0, 1)
	}
	return m, nil
}

func (m matcher) match(a schema.Application) bool {
	if m.fromID != "" && !strings.Contains(strings.ToLower(a.FromID), m.fromID) {
		return false
	}
	if m.name != "" && !strings.Contains(strings.ToLower(a.Name), m.name) {
		return false
	}
	if m.status != "" && string(a.Status) != m.status {
		return false
	}
	if m.handler != "" && a.Handler() != m.handler {
		return false
	}
	if !m.from.IsZero() && a.CreatedAt.Before(m.from) {
		return false
	}
	if !m.until.IsZero() && !a.CreatedAt.Before(m.until) {
		return false
	}
	return true
}

// Apply returns the applications matching every predicate of f, in input order.
func Apply(apps []schema.Application, f Filter, loc *time.Location) ([]schema.Application, error) {
	if loc == nil {
		loc = time.UTC
	}
	m, err := f.compile(loc)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Application, 0, len(apps))
	for _, a := range apps {
		if m.match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}
