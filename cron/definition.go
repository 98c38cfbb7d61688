package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// Definition declares a recurring workflow start.
type Definition struct {
	// Name is unique across entries.
	Name string

	// Schedule is a five-field cron expression or a descriptor such as
	// "@every 1h", evaluated in UTC.
	Schedule string

	// Workflow is the registered workflow name to start.
	Workflow string

	// Input computes the workflow input from the firing time. When nil the
	// entry's static Payload is used.
	Input func(firedAt time.Time) (any, error)
}

// Register persists def as an enabled entry, or refreshes the schedule of
// an existing entry with the same name. NextRunAt is kept for existing
// entries whose schedule did not change, so restarts do not skip or
// repeat a firing.
func Register(ctx context.Context, s Store, def Definition, now time.Time) (*Entry, error) {
	const op = "cron.Register"
	if def.Name == "" || def.Workflow == "" {
		return nil, sps.Invalidf(op, "name and workflow are required")
	}
	sched, err := ParseSchedule(def.Schedule)
	if err != nil {
		return nil, sps.Invalid(op, fmt.Errorf("schedule %q: %w", def.Schedule, err))
	}
	next := sched.Next(now.UTC())

	existing, err := s.GetCronByName(ctx, def.Name)
	switch {
	case err == nil:
		if existing.Schedule == def.Schedule && existing.Workflow == def.Workflow && existing.NextRunAt != nil {
			return existing, nil
		}
		existing.Schedule = def.Schedule
		existing.Workflow = def.Workflow
		existing.NextRunAt = &next
		existing.UpdatedAt = now.UTC()
		if err := s.UpdateCronEntry(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, sps.ErrCronNotFound):
	default:
		return nil, err
	}

	entry := &Entry{
		Entity:    sps.NewEntity(),
		ID:        id.NewCronID(),
		Name:      def.Name,
		Schedule:  def.Schedule,
		Workflow:  def.Workflow,
		NextRunAt: &next,
		Enabled:   true,
	}
	if err := s.RegisterCron(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Payload returns the JSON input for a firing of entry: def.Input's
// result when def has one, otherwise the entry's stored payload.
func (def Definition) Payload(entry *Entry, firedAt time.Time) ([]byte, error) {
	if def.Input == nil {
		return entry.Payload, nil
	}
	v, err := def.Input(firedAt)
	if err != nil {
		return nil, fmt.Errorf("cron %q: input: %w", def.Name, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cron %q: marshal input: %w", def.Name, err)
	}
	return data, nil
}
