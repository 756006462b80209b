// Package attendance implements the daily clock state machine of a staff
// member and the service that persists it through the record store.
package attendance

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/schema"
)

// State is the clock state of one staff member for one day. It extends the
// stored status with not_started, the state of a day without a record.
type State string

const (
	StateNotStarted State = "not_started"
	StateClockedIn  State = State(schema.AttendanceClockedIn)
	StateOnBreak    State = State(schema.AttendanceOnBreak)
	StateClockedOut State = State(schema.AttendanceClockedOut)
)

// Action is a clock action requested by a staff member.
type Action string

const (
	ActionClockIn    Action = "clock-in"
	ActionStartBreak Action = "start-break"
	ActionEndBreak   Action = "end-break"
	ActionClockOut   Action = "clock-out"
)

var (
	// ErrTransitionRejected is returned when an action is not allowed from the current state.
	ErrTransitionRejected = errors.New("transition rejected")
	// ErrUnknownAction is returned by ParseAction.
	ErrUnknownAction = errors.New("unknown clock action")
	// ErrUnknownField is returned by Correct for anything but the four instants.
	ErrUnknownField = errors.New("unknown time field")
	// ErrInvalidTime is returned by Correct when the time is not HH:MM.
	ErrInvalidTime = errors.New("time must be HH:MM")
)

// ParseAction accepts both "clock-in" and "clock_in" spellings.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch a {
	case ActionClockIn, ActionStartBreak, ActionEndBreak, ActionClockOut:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// StateOf returns the clock state of rec; a nil record is not_started.
func StateOf(rec *schema.AttendanceRecord) State {
	if rec == nil {
		return StateNotStarted
	}
	switch rec.Status {
	case schema.AttendanceClockedIn:
		return StateClockedIn
	case schema.AttendanceOnBreak:
		return StateOnBreak
	default:
		return StateClockedOut
	}
}

// Allowed reports whether action may be applied in state s.
func (s State) Allowed(action Action) bool {
	switch action {
	case ActionClockIn:
		return s == StateNotStarted || s == StateClockedOut
	case ActionStartBreak, ActionClockOut:
		return s == StateClockedIn
	case ActionEndBreak:
		return s == StateOnBreak
	}
	return false
}

// Transition applies action to rec at now and returns the updated copy.
// Clocking in from not_started yields a record holding only the clock-in
// instant and status; the caller fills in identity fields. Clocking in again
// after clocking out reopens the day: the other three instants are cleared.
func Transition(rec *schema.AttendanceRecord, action Action, now time.Time) (schema.AttendanceRecord, error) {
	from := StateOf(rec)
	if !from.Allowed(action) {
		return schema.AttendanceRecord{}, fmt.Errorf("%w: %s from %s", ErrTransitionRejected, action, from)
	}

	var next schema.AttendanceRecord
	if rec != nil {
		next = *rec
	}
	t := now.UTC()

	switch action {
	case ActionClockIn:
		next.ClockInTime = &t
		next.ClockOutTime = nil
		next.BreakStartTime = nil
		next.BreakEndTime = nil
		next.Status = schema.AttendanceClockedIn
	case ActionStartBreak:
		// One break pair per record: a second break replaces the first.
		next.BreakStartTime = &t
		next.BreakEndTime = nil
		next.Status = schema.AttendanceOnBreak
	case ActionEndBreak:
		next.BreakEndTime = &t
		next.Status = schema.AttendanceClockedIn
	case ActionClockOut:
		next.ClockOutTime = &t
		next.Status = schema.AttendanceClockedOut
	}
	return next, nil
}

// Elapsed returns the working time of rec observed at now: the span from
// clock-in to clock-out (or now) minus the break, floored at zero. A break
// that has started but not ended counts up to the end of the span.
func Elapsed(rec schema.AttendanceRecord, now time.Time) time.Duration {
	if rec.ClockInTime == nil {
		return 0
	}
	end := now
	if rec.ClockOutTime != nil {
		end = *rec.ClockOutTime
	}

	worked := end.Sub(*rec.ClockInTime)
	switch {
	case rec.BreakStartTime != nil && rec.BreakEndTime != nil:
		worked -= positive(rec.BreakEndTime.Sub(*rec.BreakStartTime))
	case rec.BreakStartTime != nil:
		worked -= positive(end.Sub(*rec.BreakStartTime))
	}
	return positive(worked)
}

// Earnings is floor(hours x rate). Partial yen are never paid.
func Earnings(elapsed time.Duration, hourlyRate int64) int64 {
	return int64(math.Floor(elapsed.Hours() * float64(hourlyRate)))
}

// Progress is the savings progress towards a goal.
type Progress struct {
	Total int64 `json:"total"`
	Goal  int64 `json:"goal"`
	// Ratio may exceed 1; Display is clamped to [0, 1].
	Ratio   float64 `json:"ratio"`
	Display float64 `json:"display"`
}

// SavingsProgress adds today's earnings to the accumulated savings and
// relates the sum to goal. A non-positive goal is treated as 1.
func SavingsProgress(currentSavings, todayEarnings, goal int64) Progress {
	total := currentSavings + todayEarnings
	denom := goal
	if denom <= 0 {
		denom = 1
	}
	ratio := float64(total) / float64(denom)
	return Progress{
		Total:   total,
		Goal:    goal,
		Ratio:   ratio,
		Display: math.Max(0, math.Min(1, ratio)),
	}
}

// Correctable instants, named as in the correction request.
const (
	FieldClockIn    = "clock_in"
	FieldClockOut   = "clock_out"
	FieldBreakStart = "break_start"
	FieldBreakEnd   = "break_end"
)

// Correct overwrites one instant of rec with hhmm on the record's day in loc.
// Nothing else changes: no ordering checks, no status change.
func Correct(rec schema.AttendanceRecord, field, hhmm string, loc *time.Location) (schema.AttendanceRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	tod, err := time.Parse(schema.TimeOfDayLayout, strings.TrimSpace(hhmm))
	if err != nil {
		return rec, fmt.Errorf("%w: %q", ErrInvalidTime, hhmm)
	}
	day, err := time.ParseInLocation(schema.DateLayout, rec.Date, loc)
	if err != nil {
		return rec, fmt.Errorf("record date %q: %w", rec.Date, err)
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, loc).UTC()

	switch strings.TrimSuffix(field, "_time") {
	case FieldClockIn:
		rec.ClockInTime = &t
	case FieldClockOut:
		rec.ClockOutTime = &t
	case FieldBreakStart:
		rec.BreakStartTime = &t
	case FieldBreakEnd:
		rec.BreakEndTime = &t
	default:
		return rec, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return rec, nil
}

// FormatElapsed renders d as hours and minutes, e.g. "8時間30分".
func FormatElapsed(d time.Duration) string {
	m := int64(d / time.Minute)
	return fmt.Sprintf("%d時間%d分", m/60, m%60)
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
