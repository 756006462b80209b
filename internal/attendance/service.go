package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/events"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
	"github.com/sirupsen/logrus"
)

// ErrStaffNotFound is returned for clock actions of an unknown staff member.
var ErrStaffNotFound = errors.New("staff not found")

// StaffDefaults fill in staff money fields that are zero in the master.
type StaffDefaults struct {
	HourlyRate     int64
	SavingsGoal    int64
	CurrentSavings int64
}

// Apply returns s with zero money fields replaced by the defaults.
func (d StaffDefaults) Apply(s schema.Staff) schema.Staff {
	if s.HourlyRate == 0 {
		s.HourlyRate = d.HourlyRate
	}
	if s.SavingsGoal == 0 {
		s.SavingsGoal = d.SavingsGoal
	}
	if s.CurrentSavings == 0 {
		s.CurrentSavings = d.CurrentSavings
	}
	return s
}

// ActionOptions carry optional client input for a clock-in.
type ActionOptions struct {
	WorkLocation string `json:"work_location"`
	Notes        string `json:"notes"`
}

// View is a staff member's day as observed at Now.
type View struct {
	Staff          schema.Staff             `json:"staff"`
	Record         *schema.AttendanceRecord `json:"record"`
	State          State                    `json:"state"`
	ElapsedMinutes int64                    `json:"elapsed_minutes"`
	ElapsedText    string                   `json:"elapsed_text"`
	Earnings       int64                    `json:"earnings"`
	Savings        Progress                 `json:"savings"`
	Now            time.Time                `json:"now"`
	Message        string                   `json:"message,omitempty"`
}

// Service runs clock actions against the record store.
type Service struct {
	store    recordstore.Store
	events   events.Publisher
	logger   *logrus.Logger
	loc      *time.Location
	defaults StaffDefaults

	now   func() time.Time
	locks keyedMutex
}

// NewService builds a Service. Days are cut in loc.
func NewService(store recordstore.Store, pub events.Publisher, logger *logrus.Logger, loc *time.Location, defaults StaffDefaults) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:    store,
		events:   pub,
		logger:   logger,
		loc:      loc,
		defaults: defaults,
		now:      time.Now,
	}
}

// Staff loads one staff member with defaults applied.
func (s *Service) Staff(ctx context.Context, staffID string) (schema.Staff, error) {
	staff, err := sdk.FindOne[schema.Staff](ctx, s.store, schema.CollectionStaff,
		recordstore.Where(recordstore.Eq(recordstore.FieldID, staffID)))
	if errors.Is(err, recordstore.ErrNotFound) {
		return schema.Staff{}, fmt.Errorf("%w: %s", ErrStaffNotFound, staffID)
	}
	if err != nil {
		return schema.Staff{}, fmt.Errorf("load staff %s: %w", staffID, err)
	}
	return s.defaults.Apply(staff), nil
}

// today returns the staff member's record for the current day, or nil.
func (s *Service) today(ctx context.Context, staffID string, now time.Time) (*schema.AttendanceRecord, error) {
	rec, err := sdk.FindOne[schema.AttendanceRecord](ctx, s.store, schema.CollectionAttendances,
		recordstore.Where(
			recordstore.Eq("staff_id", staffID),
			recordstore.Eq("date", now.In(s.loc).Format(schema.DateLayout)),
		))
	if errors.Is(err, recordstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load today's attendance for %s: %w", staffID, err)
	}
	return &rec, nil
}

// Today returns the staff member's current day.
func (s *Service) Today(ctx context.Context, staffID string) (View, error) {
	staff, err := s.Staff(ctx, staffID)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	rec, err := s.today(ctx, staffID, now)
	if err != nil {
		return View{}, err
	}
	return s.view(staff, rec, now), nil
}

// Apply performs a clock action and returns the day as the store confirmed it.
func (s *Service) Apply(ctx context.Context, staffID string, action Action, opts ActionOptions) (View, error) {
	unlock := s.locks.Lock(staffID)
	defer unlock()

	staff, err := s.Staff(ctx, staffID)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	rec, err := s.today(ctx, staffID, now)
	if err != nil {
		return View{}, err
	}

	next, err := Transition(rec, action, now)
	if err != nil {
		return View{}, err
	}

	var saved schema.AttendanceRecord
	if rec == nil {
		location := opts.WorkLocation
		if location == "" {
			location = staff.Department
		}
		fields := instants(next)
		fields["staff_id"] = staff.ID
		fields["staff_name"] = staff.Name
		fields["date"] = now.In(s.loc).Format(schema.DateLayout)
		fields["work_location"] = location
		fields["notes"] = opts.Notes

		saved, err = decode(s.store.Insert(ctx, schema.CollectionAttendances, fields))
	} else {
		patch := instants(next)
		if opts.WorkLocation != "" {
			patch["work_location"] = opts.WorkLocation
		}
		if opts.Notes != "" {
			patch["notes"] = opts.Notes
		}
		saved, err = decode(s.store.Update(ctx, schema.CollectionAttendances, rec.ID, patch))
	}
	if err != nil {
		return View{}, fmt.Errorf("%s for %s: %w", action, staffID, err)
	}

	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:       events.AttendanceClocked,
		Collection: schema.CollectionAttendances,
		RecordID:   saved.ID,
		Data:       map[string]any{"staff_id": staffID, "action": string(action), "status": string(saved.Status)},
	})

	v := s.view(staff, &saved, now)
	v.Message = message(action, staff.Name)
	return v, nil
}

// Correct overwrites one instant of today's record with an operator-supplied
// time of day. Without a record for today there is nothing to correct.
func (s *Service) Correct(ctx context.Context, staffID, field, hhmm string) (View, error) {
	unlock := s.locks.Lock(staffID)
	defer unlock()

	staff, err := s.Staff(ctx, staffID)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	rec, err := s.today(ctx, staffID, now)
	if err != nil {
		return View{}, err
	}
	if rec == nil {
		return View{}, fmt.Errorf("no attendance today for %s: %w", staffID, recordstore.ErrNotFound)
	}

	corrected, err := Correct(*rec, field, hhmm, s.loc)
	if err != nil {
		return View{}, err
	}

	saved, err := decode(s.store.Update(ctx, schema.CollectionAttendances, rec.ID, instants(corrected)))
	if err != nil {
		return View{}, fmt.Errorf("correct %s for %s: %w", field, staffID, err)
	}

	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:       events.AttendanceCorrected,
		Collection: schema.CollectionAttendances,
		RecordID:   saved.ID,
		Data:       map[string]any{"staff_id": staffID, "field": field, "time": hhmm},
	})

	v := s.view(staff, &saved, now)
	v.Message = "打刻時間を更新しました。"
	return v, nil
}

func (s *Service) view(staff schema.Staff, rec *schema.AttendanceRecord, now time.Time) View {
	v := View{
		Staff:  staff,
		Record: rec,
		State:  StateOf(rec),
		Now:    now.UTC(),
	}
	var elapsed time.Duration
	if rec != nil {
		elapsed = Elapsed(*rec, now)
	}
	v.ElapsedMinutes = int64(elapsed / time.Minute)
	v.ElapsedText = FormatElapsed(elapsed)
	v.Earnings = Earnings(elapsed, staff.HourlyRate)
	v.Savings = SavingsProgress(staff.CurrentSavings, v.Earnings, staff.SavingsGoal)
	return v
}

// instants is the patch writing all four instants and the status of rec.
func instants(rec schema.AttendanceRecord) recordstore.Record {
	return recordstore.Record{
		"clock_in_time":    timeValue(rec.ClockInTime),
		"clock_out_time":   timeValue(rec.ClockOutTime),
		"break_start_time": timeValue(rec.BreakStartTime),
		"break_end_time":   timeValue(rec.BreakEndTime),
		"status":           string(rec.Status),
	}
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decode(rec recordstore.Record, err error) (schema.AttendanceRecord, error) {
	if err != nil {
		return schema.AttendanceRecord{}, err
	}
	return recordstore.Decode[schema.AttendanceRecord](rec)
}

func message(action Action, name string) string {
	if name == "" {
		name = "スタッフ"
	}
	switch action {
	case ActionClockIn:
		return name + "さん、本日もよろしくお願いします！"
	case ActionStartBreak:
		return "休憩を開始しました。"
	case ActionEndBreak:
		return "休憩を終了しました。"
	default:
		return "お疲れ様でした！退勤を記録しました。"
	}
}
