package freshness

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Afrawles/crisisreport/internal/report"
)

// Summary describes how one crisis went.
type Summary struct {
	ID      string
	Name    string
	Query   string
	Matches int
	New     int
	Updated int
	Dropped int
	Skipped int
	Err     error
}

// Rows is the number of report rows the crisis produced.
func (s Summary) Rows() int {
	return s.New + s.Updated
}

type Result struct {
	Rows      []report.Row
	Summaries []Summary
	// MaxActivities is the longest activity list fetched in the run; it is
	// the figure to watch when tuning the fetch limit.
	MaxActivities int
}

// Runner walks every configured crisis, classifies its datasets and gathers
// the report rows in configuration order.
type Runner struct {
	Catalog    Catalog
	Countries  CountryResolver
	Classifier *Classifier
	Days       int
	// Workers bounds concurrent dataset classification. Values below 2 run
	// datasets one at a time.
	Workers  int
	Logger   *slog.Logger
	Recorder Recorder

	// OnCrisis is called once the datasets of a crisis are known.
	OnCrisis func(name string, datasets int)
	// OnDataset is called after each dataset; it must be safe for concurrent
	// use when Workers > 1.
	OnDataset func(name string)
}

type outcome struct {
	cl  Classification
	ok  bool
	err error
}

// Run processes defs in order. Broken crises and failed lookups are logged
// and recorded in the summaries; only context cancellation stops the run.
func (r *Runner) Run(ctx context.Context, defs []Definition) (*Result, error) {
	res := &Result{}

	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sum, rows, err := r.runCrisis(ctx, def)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			sum.Err = err
			r.logger().Error("crisis skipped", "crisis", def.Name, "error", err)
			if r.Recorder != nil {
				r.Recorder.ObserveCrisisError()
			}
		}
		res.Summaries = append(res.Summaries, sum)
		res.Rows = append(res.Rows, rows...)
	}

	res.MaxActivities = r.Classifier.MaxActivities()
	r.logger().Info("longest activity list", "count", res.MaxActivities)
	return res, nil
}

func (r *Runner) runCrisis(ctx context.Context, def Definition) (Summary, []report.Row, error) {
	sum := Summary{ID: def.ID, Name: def.Name}

	crisis, err := def.Crisis()
	if err != nil {
		return sum, nil, err
	}
	window := NewWindow(crisis.StartDate, r.Days)

	query, err := BuildQuery(crisis, window, r.Countries)
	if err != nil {
		return sum, nil, err
	}
	sum.Query = query

	datasets, err := r.Catalog.SearchDatasets(ctx, query)
	if err != nil {
		r.observeLookupFailure(err)
		return sum, nil, &LookupError{Op: OpSearch, ID: crisis.Name, Err: err}
	}
	sum.Matches = len(datasets)
	if r.OnCrisis != nil {
		r.OnCrisis(crisis.Name, len(datasets))
	}

	outcomes, err := r.classifyAll(ctx, crisis, window, datasets)
	if err != nil {
		return sum, nil, err
	}

	var rows []report.Row
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			sum.Skipped++
			r.observeLookupFailure(o.err)
			r.observe("skipped")
			r.logger().Warn("dataset skipped",
				"crisis", crisis.Name,
				"dataset", datasets[i].ID,
				"error", o.err,
			)
		case !o.ok:
			sum.Dropped++
			r.observe("dropped")
		default:
			if o.cl.Status == StatusNew {
				sum.New++
			} else {
				sum.Updated++
			}
			r.observe(string(o.cl.Status))
			rows = append(rows, o.cl.Row())
		}
	}

	r.logger().Info("crisis processed",
		"crisis", crisis.Name,
		"matches", sum.Matches,
		"rows", sum.Rows(),
		"query", query,
	)
	return sum, rows, nil
}

// classifyAll keeps outcomes in catalog order whatever the worker count.
func (r *Runner) classifyAll(ctx context.Context, crisis Crisis, w Window, datasets []Dataset) ([]outcome, error) {
	outcomes := make([]outcome, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Workers, 1))
	for i, ds := range datasets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cl, ok, err := r.Classifier.Classify(gctx, crisis, w, ds)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = outcome{cl: cl, ok: ok, err: err}
			if r.OnDataset != nil {
				r.OnDataset(crisis.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *Runner) observe(status string) {
	if r.Recorder != nil {
		r.Recorder.ObserveDataset(status)
	}
}

func (r *Runner) observeLookupFailure(err error) {
	if r.Recorder == nil {
		return
	}
	var lerr *LookupError
	if errors.As(err, &lerr) {
		r.Recorder.ObserveLookupFailure(lerr.Op)
		return
	}
	r.Recorder.ObserveLookupFailure(OpSearch)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
