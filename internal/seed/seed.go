// Package seed fills a record store with demo staff, applications and past
// attendance so the dashboard has something to show.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/celerix-dev/celerix-staffing/internal/attendance"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
)

type Options struct {
	Staff        int
	Applications int
	// Days of finished attendance before Now.
	Days     int
	Seed     int64
	Now      time.Time
	Location *time.Location
}

type Result struct {
	Staff        int `json:"staff"`
	Applications int `json:"applications"`
	Attendances  int `json:"attendances"`
}

var positions = []string{"スタッフ", "リーダー", "アルバイト", "マネージャー"}

// Run inserts the demo data. The same Seed produces the same people.
func Run(ctx context.Context, store recordstore.Store, opts Options) (Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	f := gofakeit.New(opts.Seed)
	var res Result

	staff := make([]schema.Staff, 0, opts.Staff)
	for i := 0; i < opts.Staff; i++ {
		s, err := sdk.Insert(ctx, store, schema.CollectionStaff, schema.Staff{
			Name:       f.Name(),
			EmployeeID: fmt.Sprintf("S%04d", i+1),
			Department: f.RandomString(schema.Departments),
			Position:   f.RandomString(positions),
			// Zero leaves the configured default in effect.
			HourlyRate:     int64(f.RandomInt([]int{0, 1100, 1200, 1300, 1500})),
			SavingsGoal:    int64(f.Number(3, 10) * 10000),
			CurrentSavings: int64(f.Number(0, 30) * 1000),
		})
		if err != nil {
			return res, fmt.Errorf("seed staff: %w", err)
		}
		staff = append(staff, s)
		res.Staff++
	}

	for i := 0; i < opts.Applications; i++ {
		_, err := sdk.Insert(ctx, store, schema.CollectionApplications, schema.Application{
			FromID:            fmt.Sprintf("camp-%d", f.Number(1, 5)),
			Name:              f.Name(),
			Kana:              f.FirstName(),
			Phone:             f.Phone(),
			Email:             f.Email(),
			Address:           f.Address().Address,
			WorkHistory:       f.JobTitle() + " " + f.Sentence(6),
			DesiredConditions: f.Sentence(8),
			Status:            schema.ApplicationStatuses[f.Number(0, len(schema.ApplicationStatuses)-1)],
		})
		if err != nil {
			return res, fmt.Errorf("seed applications: %w", err)
		}
		res.Applications++
	}

	today := opts.Now.In(opts.Location)
	for d := opts.Days; d >= 1; d-- {
		day := today.AddDate(0, 0, -d)
		for _, s := range staff {
			if f.Number(1, 10) > 8 {
				continue // day off
			}
			rec, err := workday(f, day, opts.Location)
			if err != nil {
				return res, err
			}
			rec.StaffID = s.ID
			rec.StaffName = s.Name
			rec.WorkLocation = s.Department
			if _, err := sdk.Insert(ctx, store, schema.CollectionAttendances, rec); err != nil {
				return res, fmt.Errorf("seed attendance: %w", err)
			}
			res.Attendances++
		}
	}
	return res, nil
}

// workday drives the clock through a full shift on day.
func workday(f *gofakeit.Faker, day time.Time, loc *time.Location) (schema.AttendanceRecord, error) {
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
	}
	start := at(8, f.Number(30, 90))
	steps := []struct {
		action attendance.Action
		at     time.Time
	}{
		{attendance.ActionClockIn, start},
		{attendance.ActionStartBreak, at(12, f.Number(0, 15))},
		{attendance.ActionEndBreak, at(13, f.Number(0, 15))},
		{attendance.ActionClockOut, at(17, f.Number(0, 120))},
	}

	var rec *schema.AttendanceRecord
	for _, st := range steps {
		next, err := attendance.Transition(rec, st.action, st.at)
		if err != nil {
			return schema.AttendanceRecord{}, err
		}
		rec = &next
	}
	rec.Date = day.Format(schema.DateLayout)
	return *rec, nil
}
