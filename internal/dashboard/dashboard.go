// Package dashboard aggregates attendance records over a day, week or month
// for the staff-management view.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
)

// Window selects the date range around the selected date.
type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

var (
	ErrUnknownWindow = errors.New("window must be today, week or month")
	ErrBadDate       = errors.New("date must be YYYY-MM-DD")
	ErrBadDepartment = errors.New("unknown department")
)

// ParseWindow maps "" to today.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "", WindowToday:
		return WindowToday, nil
	case WindowWeek, WindowMonth:
		return Window(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// Range returns the inclusive first and last day of w around day.
// Weeks run Sunday to Saturday.
func Range(w Window, day time.Time) (from, to time.Time) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case WindowWeek:
		from = day.AddDate(0, 0, -int(day.Weekday()))
		return from, from.AddDate(0, 0, 6)
	case WindowMonth:
		from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, -1)
	default:
		return day, day
	}
}

// Filter is the record-store filter selecting the window's records by date.
func Filter(w Window, day time.Time) recordstore.Filter {
	from, to := Range(w, day)
	if w == WindowToday {
		return recordstore.Where(recordstore.Eq("date", from.Format(schema.DateLayout)))
	}
	return recordstore.Where(
		recordstore.Gte("date", from.Format(schema.DateLayout)),
		recordstore.Lte("date", to.Format(schema.DateLayout)),
	)
}

// Stats summarizes a set of attendance records.
type Stats struct {
	TotalStaff        int     `json:"total_staff"`
	ClockedIn         int     `json:"clocked_in"`
	OnBreak           int     `json:"on_break"`
	ClockedOut        int     `json:"clocked_out"`
	TotalWorkingHours float64 `json:"total_working_hours"`
}

// Compute counts distinct staff and statuses and sums completed hours.
func Compute(recs []schema.AttendanceRecord) Stats {
	var st Stats
	seen := make(map[string]struct{})
	for _, r := range recs {
		seen[r.StaffID] = struct{}{}
		switch r.Status {
		case schema.AttendanceClockedIn:
			st.ClockedIn++
		case schema.AttendanceOnBreak:
			st.OnBreak++
		case schema.AttendanceClockedOut:
			st.ClockedOut++
		}
		if h, ok := CompletedHours(r); ok {
			st.TotalWorkingHours += h
		}
	}
	st.TotalStaff = len(seen)
	return st
}

// CompletedHours is clock-out minus clock-in minus a completed break, floored
// at zero. Records without both clock instants report false.
func CompletedHours(r schema.AttendanceRecord) (float64, bool) {
	if r.ClockInTime == nil || r.ClockOutTime == nil {
		return 0, false
	}
	d := r.ClockOutTime.Sub(*r.ClockInTime)
	if r.BreakStartTime != nil && r.BreakEndTime != nil {
		d -= r.BreakEndTime.Sub(*r.BreakStartTime)
	}
	return math.Max(0, d.Hours()), true
}

// WorkingHoursText renders a record's hours to one decimal, e.g. "8.5h".
// Records still open show the raw span since clock-in, marked in progress.
func WorkingHoursText(r schema.AttendanceRecord, now time.Time) string {
	if r.ClockInTime == nil {
		return "-"
	}
	if r.ClockOutTime == nil {
		return fmt.Sprintf("%.1fh (進行中)", now.Sub(*r.ClockInTime).Hours())
	}
	h, _ := CompletedHours(r)
	return fmt.Sprintf("%.1fh", h)
}

// Row is one attendance record joined with its staff member.
type Row struct {
	schema.AttendanceRecord
	Department   string `json:"department"`
	WorkingHours string `json:"working_hours"`
}

// Dashboard is the aggregated view of one window.
type Dashboard struct {
	Window     Window `json:"window"`
	Date       string `json:"date"`
	From       string `json:"from"`
	To         string `json:"to"`
	Department string `json:"department,omitempty"`
	Stats      Stats  `json:"stats"`
	Rows       []Row  `json:"rows"`
}

// Query selects a dashboard.
type Query struct {
	Window     Window
	Date       string
	Department string
}

// Service loads dashboards from the record store.
type Service struct {
	store recordstore.Reader
	loc   *time.Location
	now   func() time.Time
}

func NewService(store recordstore.Reader, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, now: time.Now}
}

// Load fetches the window's records newest first, joins staff, drops records
// whose staff member is unknown or outside the department, and aggregates.
// An empty date means today.
func (s *Service) Load(ctx context.Context, q Query) (Dashboard, error) {
	now := s.now()
	day := now.In(s.loc)
	if q.Date != "" {
		d, err := time.Parse(schema.DateLayout, q.Date)
		if err != nil {
			return Dashboard{}, fmt.Errorf("%w: %q", ErrBadDate, q.Date)
		}
		day = d
	}
	if q.Department != "" && !schema.ValidDepartment(q.Department) {
		return Dashboard{}, fmt.Errorf("%w: %q", ErrBadDepartment, q.Department)
	}
	if q.Window == "" {
		q.Window = WindowToday
	}

	recs, err := sdk.FindMany[schema.AttendanceRecord](ctx, s.store, schema.CollectionAttendances, recordstore.Query{
		Filter: Filter(q.Window, day),
		Order:  &recordstore.Order{Field: recordstore.FieldCreatedAt, Desc: true},
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("load attendances: %w", err)
	}

	staff, err := sdk.FindMany[schema.Staff](ctx, s.store, schema.CollectionStaff, recordstore.Query{})
	if err != nil {
		return Dashboard{}, fmt.Errorf("load staff: %w", err)
	}
	departments := make(map[string]string, len(staff))
	for _, st := range staff {
		departments[st.ID] = st.Department
	}

	from, to := Range(q.Window, day)
	out := Dashboard{
		Window:     q.Window,
		Date:       day.Format(schema.DateLayout),
		From:       from.Format(schema.DateLayout),
		To:         to.Format(schema.DateLayout),
		Department: q.Department,
		Rows:       []Row{},
	}
	kept := make([]schema.AttendanceRecord, 0, len(recs))
	for _, r := range recs {
		dep, ok := departments[r.StaffID]
		if !ok || (q.Department != "" && dep != q.Department) {
			continue
		}
		kept = append(kept, r)
		out.Rows = append(out.Rows, Row{AttendanceRecord: r, Department: dep, WorkingHours: WorkingHoursText(r, now)})
	}
	out.Stats = Compute(kept)
	return out, nil
}
