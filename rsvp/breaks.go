package rsvp

import (
	"context"
	"log/slog"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// ScheduleBreak records a break and cancels the scheduled events starting
// inside it. Breaks may not overlap, bounds included.
func (a *Actor) ScheduleBreak(ctx context.Context, in BreakInput) (*Break, error) {
	if err := a.check("schedule break", in); err != nil {
		return nil, err
	}
	start, end := in.StartDate.UTC(), in.EndDate.UTC()

	type result struct {
		brk      *Break
		canceled int
	}
	res, err := mutate(ctx, a, func(st *state) (result, error) {
		for _, b := range st.Breaks {
			if b.overlaps(start, end) {
				return result{}, sps.ErrBreakOverlap
			}
		}

		now := a.clock.Now().UTC()
		b := &Break{
			Entity:    sps.Entity{CreatedAt: now, UpdatedAt: now},
			ID:        id.NewBreakID(),
			StartDate: start,
			EndDate:   end,
			Reason:    in.Reason,
		}
		canceled := 0
		for _, e := range st.Events {
			if e.Status == EventScheduled && b.Contains(e.StartDate) {
				e.Status = EventCanceled
				e.UpdatedAt = now
				canceled++
			}
		}
		st.Breaks = append(st.Breaks, b)
		bc := *b
		return result{brk: &bc, canceled: canceled}, nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("break scheduled",
		slog.String("break_id", res.brk.ID.String()),
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Int("events_canceled", res.canceled),
	)
	return res.brk, nil
}

// GetBreaks returns every break in creation order.
func (a *Actor) GetBreaks(ctx context.Context) ([]Break, error) {
	return read(ctx, a, func(st *state) ([]Break, error) {
		out := make([]Break, len(st.Breaks))
		for i, b := range st.Breaks {
			out[i] = *b
		}
		return out, nil
	})
}
