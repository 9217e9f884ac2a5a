package freshness

import "context"

type Classifier struct {
	Resolver    *Resolver
	Attribution *Attribution
	Names       *Names
}

func NewClassifier(activities ActivityLog, dir Directory, attribution *Attribution, fetchLimit int) *Classifier {
	return &Classifier{
		Resolver: &Resolver{
			Activities: activities,
			Limit:      fetchLimit,
			Stats:      &Stats{},
		},
		Attribution: attribution,
		Names:       NewNames(dir),
	}
}

// Classify decides whether ds is new or updated within w.
//
// Datasets created at or after the window start are new and their activity
// is never fetched. Older datasets are updated when their most recent
// in-window event by an attributable editor is found within the fetch limit;
// otherwise ok is false and the dataset is left out of the report.
func (c *Classifier) Classify(ctx context.Context, crisis Crisis, w Window, ds Dataset) (cl Classification, ok bool, err error) {
	cl = Classification{Crisis: crisis, Dataset: ds, Status: StatusNew}
	if !ds.CreatedAt.Before(w.Start) {
		return cl, true, nil
	}

	events, err := c.Resolver.Events(ctx, ds.ID)
	if err != nil {
		return Classification{}, false, err
	}
	ev, found := first(attributed(within(events, w), c.Attribution, ds.OrganizationName))
	if !found {
		return Classification{}, false, nil
	}

	name, err := c.Names.Resolve(ctx, ev.UserID)
	if err != nil {
		return Classification{}, false, err
	}

	cl.Status = StatusUpdated
	cl.UpdatedWhen = ev.Stamp()
	cl.UpdatedBy = name
	return cl, true, nil
}

// MaxActivities is the longest activity list fetched so far.
func (c *Classifier) MaxActivities() int {
	return c.Resolver.Stats.Max()
}
