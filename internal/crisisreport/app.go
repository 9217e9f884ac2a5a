package crisisreport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Afrawles/crisisreport/internal/config"
	"github.com/Afrawles/crisisreport/internal/country"
	"github.com/Afrawles/crisisreport/internal/freshness"
	"github.com/Afrawles/crisisreport/internal/hdx"
	"github.com/Afrawles/crisisreport/internal/metrics"
	"github.com/Afrawles/crisisreport/internal/report"
	"github.com/Afrawles/crisisreport/internal/store"
)

// Options tune an Application without touching the project file.
type Options struct {
	LogLevel  slog.Level
	LogWriter io.Writer
	Workers   int
	HTTP      hdx.Options
}

type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Catalog  freshness.Catalog
	Activity freshness.ActivityLog
	Users    freshness.Directory
	Health   func(context.Context) error
	Metrics  *metrics.Metrics
	Exporter *report.Exporter
	Archive  *store.Archive
	Workers  int

	// OnCrisis and OnDataset are handed to every run for progress display.
	OnCrisis  func(name string, datasets int)
	OnDataset func(name string)
}

// Outcome is what a finished run produced.
type Outcome struct {
	Result    *freshness.Result
	Published int
	RunID     string
	Exports   []string
	Started   time.Time
	Finished  time.Time
}

func New(cfg *config.Config, opts Options) (*Application, error) {
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.LogLevel,
	}))
	slog.SetDefault(logger)

	base, err := hdx.SiteURL(cfg.HDX.Site)
	if err != nil {
		return nil, err
	}
	client := hdx.NewClient(base, cfg.HDX.APIKey, hdx.UserAgent(cfg.HDX.UserAgent, cfg.HDX.Preprefix), opts.HTTP)
	source := hdx.NewSource(client, logger)
	logger.Info("HDX source initialized", "site", base, "authenticated", cfg.HDX.APIKey != "")

	return &Application{
		Config:   cfg,
		Logger:   logger,
		Catalog:  source,
		Activity: source,
		Users:    source,
		Health:   source.HealthCheck,
		Metrics:  metrics.New(),
		Exporter: report.NewExporter(cfg.Output.Directory),
		Workers:  opts.Workers,
	}, nil
}

// newRunner builds a runner with its own user name cache and activity
// statistics, so nothing carries over between runs.
func (app *Application) newRunner() *freshness.Runner {
	project := app.Config.Project
	attribution := freshness.NewAttribution(project.IgnoreUsers, project.ScraperExceptions())

	return &freshness.Runner{
		Catalog:    app.Catalog,
		Countries:  country.Default(),
		Classifier: freshness.NewClassifier(app.Activity, app.Users, attribution, project.ActivityFetchLimit),
		Days:       project.EndDays,
		Workers:    app.Workers,
		Logger:     app.Logger,
		Recorder:   app.Metrics,
		OnCrisis:   app.OnCrisis,
		OnDataset:  app.OnDataset,
	}
}

// GenerateReport runs every configured crisis and publishes the rows to sink.
// A nil sink skips publishing. Exports, the archive and the metrics push
// follow; their failures are logged and do not fail the run.
func (app *Application) GenerateReport(ctx context.Context, sink report.Sink) (*Outcome, error) {
	project := app.Config.Project
	out := &Outcome{Started: time.Now().UTC()}

	app.Logger.Info("generating report",
		"crises", len(project.CrisisData),
		"enddays", project.EndDays,
		"fetch_limit", project.ActivityFetchLimit,
	)

	if app.Health != nil {
		if err := app.Health(ctx); err != nil {
			return nil, fmt.Errorf("HDX health check failed: %w", err)
		}
	}

	result, err := app.newRunner().Run(ctx, project.Definitions())
	if err != nil {
		app.Logger.Error("failed to generate report", "error", err)
		return nil, err
	}
	out.Result = result

	if sink != nil {
		n, err := report.Publish(sink, result.Rows)
		if err != nil {
			return out, fmt.Errorf("failed to publish report: %w", err)
		}
		out.Published = n
		app.Logger.Info("report published", "rows", n)
	} else {
		app.Logger.Info("dry run, report not published", "rows", len(result.Rows))
	}

	out.Finished = time.Now().UTC()
	app.Metrics.ObserveRun(len(result.Rows), result.MaxActivities, out.Started, out.Finished)

	out.Exports = app.export(result, out.Finished)

	if app.Archive != nil {
		id, err := app.Archive.SaveRun(ctx, store.Run{
			StartedAt:     out.Started,
			FinishedAt:    out.Finished,
			Crises:        len(result.Summaries),
			MaxActivities: result.MaxActivities,
			Rows:          result.Rows,
		})
		if err != nil {
			app.Logger.Error("failed to archive run", "error", err)
		} else {
			out.RunID = id
			app.Logger.Info("run archived", "run", id)
		}
	}

	if url := app.Config.PushgatewayURL; url != "" {
		if err := app.Metrics.Push(ctx, url); err != nil {
			app.Logger.Error("failed to push metrics", "url", url, "error", err)
		}
	}

	stats := report.Statistics(result.Rows)
	app.Logger.Info("report generation complete",
		"total", stats["total"],
		"new", stats["new"],
		"updated", stats["updated"],
	)
	return out, nil
}

func (app *Application) export(result *freshness.Result, at time.Time) []string {
	if len(app.Config.Output.Format) == 0 {
		return nil
	}
	if err := os.MkdirAll(app.Config.Output.Directory, 0755); err != nil {
		app.Logger.Error("failed to create output directory", "error", err)
		return nil
	}

	timestamp := at.Format("20060102_150405")
	var files []string
	for _, format := range app.Config.Output.Format {
		filename := fmt.Sprintf("crisis_datasets_%s.%s", timestamp, format)

		var err error
		switch format {
		case "json":
			err = app.Exporter.ExportJSON(result.Rows, filename)
		case "html":
			err = app.Exporter.ExportHTML(result.Rows, Summaries(result.Summaries), filename, app.Config.Project.EndDays)
		case "csv":
			_, err = report.Publish(report.NewCSVSink(filepath.Join(app.Config.Output.Directory, filename)), result.Rows)
		default:
			continue
		}

		if err != nil {
			app.Logger.Error("failed to export report", "format", format, "error", err)
			continue
		}
		app.Logger.Info("report exported", "format", format, "file", filename)
		files = append(files, filepath.Join(app.Config.Output.Directory, filename))
	}
	return files
}

// Summaries converts run summaries for the report exports.
func Summaries(in []freshness.Summary) []report.CrisisSummary {
	out := make([]report.CrisisSummary, 0, len(in))
	for _, s := range in {
		cs := report.CrisisSummary{
			ID:      s.ID,
			Name:    s.Name,
			Query:   s.Query,
			Matches: s.Matches,
			New:     s.New,
			Updated: s.Updated,
			Dropped: s.Dropped,
			Skipped: s.Skipped,
		}
		if s.Err != nil {
			cs.Error = s.Err.Error()
		}
		out = append(out, cs)
	}
	return out
}

// QueryLine is the catalog filter of one crisis, or why it has none.
type QueryLine struct {
	Name  string
	Query string
	Err   error
}

// Queries builds the catalog filter of every configured crisis without
// calling HDX.
func Queries(project config.ProjectConfig, countries freshness.CountryResolver) []QueryLine {
	defs := project.Definitions()
	lines := make([]QueryLine, 0, len(defs))
	for _, def := range defs {
		line := QueryLine{Name: def.Name}
		crisis, err := def.Crisis()
		if err == nil {
			line.Query, err = freshness.BuildQuery(crisis, freshness.NewWindow(crisis.StartDate, project.EndDays), countries)
		}
		line.Err = err
		lines = append(lines, line)
	}
	return lines
}
