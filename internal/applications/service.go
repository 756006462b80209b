// Package applications handles job applications: public submission and the
// administrators' triage workflow.
package applications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/events"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
	"github.com/sirupsen/logrus"
)

// Service reads and writes applications through the record store. Every
// mutation returns the record as the store confirmed it.
type Service struct {
	store  recordstore.Store
	events events.Publisher
	logger *logrus.Logger
	loc    *time.Location
}

func NewService(store recordstore.Store, pub events.Publisher, logger *logrus.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, events: pub, logger: logger, loc: loc}
}

// Location is the time zone date filters are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// List returns the applications matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]schema.Application, error) {
	all, err := sdk.FindMany[schema.Application](ctx, s.store, schema.CollectionApplications, recordstore.Query{
		Order: &recordstore.Order{Field: recordstore.FieldCreatedAt, Desc: true},
	})
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return Apply(all, f, s.loc)
}

// Get returns one application or recordstore.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (schema.Application, error) {
	return sdk.FindOne[schema.Application](ctx, s.store, schema.CollectionApplications,
		recordstore.Where(recordstore.Eq(recordstore.FieldID, id)))
}

// Submit validates the form and stores a new application with status submitted.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (schema.Application, error) {
	if err := Validate(in); err != nil {
		return schema.Application{}, err
	}
	in = in.Trimmed()

	app, err := sdk.Insert(ctx, s.store, schema.CollectionApplications, schema.Application{
		FromID:            in.FromID,
		Name:              in.Name,
		Kana:              in.Kana,
		Phone:             in.Phone,
		Email:             in.Email,
		Address:           in.Address,
		WorkHistory:       in.WorkHistory,
		DesiredConditions: in.DesiredConditions,
		Status:            schema.StatusSubmitted,
	})
	if err != nil {
		return schema.Application{}, fmt.Errorf("submit application: %w", err)
	}

	s.emit(ctx, events.ApplicationSubmitted, app.ID, map[string]any{"from_id": app.FromID})
	return app, nil
}

// UpdateStatus moves an application to status.
func (s *Service) UpdateStatus(ctx context.Context, id string, status schema.ApplicationStatus) (schema.Application, error) {
	if !status.Valid() {
		return schema.Application{}, Invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	app, err := s.update(ctx, id, recordstore.Record{"status": string(status)})
	if err != nil {
		return app, err
	}
	s.emit(ctx, events.ApplicationStatusChanged, id, map[string]any{"status": string(status)})
	return app, nil
}

// UpdateHandler assigns the person in charge. An empty handler unassigns.
func (s *Service) UpdateHandler(ctx context.Context, id, handler string) (schema.Application, error) {
	handler = strings.TrimSpace(handler)
	var value any
	if handler != "" {
		value = handler
	}
	app, err := s.update(ctx, id, recordstore.Record{"person_in_charge": value})
	if err != nil {
		return app, err
	}
	s.emit(ctx, events.ApplicationAssigned, id, map[string]any{"person_in_charge": handler})
	return app, nil
}

// Interview holds the interview fields. Nil fields are left unchanged; empty
// strings clear the field.
type Interview struct {
	Date     *string `json:"interview_date"`
	Time     *string `json:"interview_time"`
	Location *string `json:"interview_location"`
	Notes    *string `json:"interview_notes"`
}

// UpdateInterview writes the interview fields. Only the formats of date and
// time are checked; there is no cross-field rule.
func (s *Service) UpdateInterview(ctx context.Context, id string, in Interview) (schema.Application, error) {
	patch := recordstore.Record{}
	verr := &ValidationError{Fields: map[string]string{}}

	set := func(field string, v *string, layout, msg string) {
		if v == nil {
			return
		}
		val := strings.TrimSpace(*v)
		if val == "" {
			patch[field] = nil
			return
		}
		if layout != "" {
			if _, err := time.Parse(layout, val); err != nil {
				verr.Fields[field] = msg
				return
			}
		}
		patch[field] = val
	}
	set("interview_date", in.Date, schema.DateLayout, "date must be YYYY-MM-DD")
	set("interview_time", in.Time, schema.TimeOfDayLayout, "time must be HH:MM")
	set("interview_location", in.Location, "", "")
	set("interview_notes", in.Notes, "", "")

	if len(verr.Fields) > 0 {
		return schema.Application{}, verr
	}
	if len(patch) == 0 {
		return s.Get(ctx, id)
	}

	app, err := s.update(ctx, id, patch)
	if err != nil {
		return app, err
	}
	s.emit(ctx, events.InterviewScheduled, id, map[string]any{
		"interview_date": app.InterviewDate,
		"interview_time": app.InterviewTime,
	})
	return app, nil
}

func (s *Service) update(ctx context.Context, id string, patch recordstore.Record) (schema.Application, error) {
	app, err := sdk.Update[schema.Application](ctx, s.store, schema.CollectionApplications, id, patch)
	if err != nil {
		return schema.Application{}, fmt.Errorf("update application %s: %w", id, err)
	}
	return app, nil
}

func (s *Service) emit(ctx context.Context, typ, id string, data map[string]any) {
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:       typ,
		Collection: schema.CollectionApplications,
		RecordID:   id,
		Data:       data,
	})
}
