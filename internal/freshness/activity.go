package freshness

import (
	"context"
	"iter"
	"slices"
	"sync"
)

// DefaultFetchLimit bounds the single activity fetch made per dataset.
const DefaultFetchLimit = 10000

// Stats tracks the longest activity list fetched during a run. It is safe
// for concurrent use; a nil *Stats ignores observations.
type Stats struct {
	mu  sync.Mutex
	max int
}

func (s *Stats) ObserveActivities(n int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if n > s.max {
		s.max = n
	}
	s.mu.Unlock()
}

func (s *Stats) Max() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// Resolver fetches the change history of a dataset in one bounded call.
type Resolver struct {
	Activities ActivityLog
	Limit      int
	Stats      *Stats
}

func (r *Resolver) limit() int {
	if r.Limit <= 0 {
		return DefaultFetchLimit
	}
	return r.Limit
}

// Events returns the fetched events, most recent first. Events beyond the
// fetch limit are never looked at.
func (r *Resolver) Events(ctx context.Context, datasetID string) (iter.Seq[Event], error) {
	limit := r.limit()
	events, err := r.Activities.ActivityList(ctx, datasetID, 0, limit)
	if err != nil {
		return nil, &LookupError{Op: OpActivity, ID: datasetID, Err: err}
	}
	if len(events) > limit {
		events = events[:limit]
	}
	r.Stats.ObserveActivities(len(events))
	return slices.Values(events), nil
}

// within keeps the events that fall strictly inside w.
func within(events iter.Seq[Event], w Window) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for e := range events {
			if w.Contains(e.Timestamp) && !yield(e) {
				return
			}
		}
	}
}

// attributed keeps the events whose editor counts as a human for org.
func attributed(events iter.Seq[Event], a *Attribution, org string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for e := range events {
			if a.Attributable(e.UserID, org) && !yield(e) {
				return
			}
		}
	}
}

func first[T any](seq iter.Seq[T]) (T, bool) {
	for v := range seq {
		return v, true
	}
	var zero T
	return zero, false
}
