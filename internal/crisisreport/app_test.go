package crisisreport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Afrawles/crisisreport/internal/config"
	"github.com/Afrawles/crisisreport/internal/country"
	"github.com/Afrawles/crisisreport/internal/freshness"
	"github.com/Afrawles/crisisreport/internal/hdx"
	"github.com/Afrawles/crisisreport/internal/metrics"
	"github.com/Afrawles/crisisreport/internal/report"
	"github.com/Afrawles/crisisreport/internal/store"
)

type stubHDX struct {
	datasets []freshness.Dataset
	events   map[string][]freshness.Event
	users    map[string]freshness.User
}

func (s *stubHDX) SearchDatasets(context.Context, string) ([]freshness.Dataset, error) {
	return s.datasets, nil
}

func (s *stubHDX) ActivityList(_ context.Context, id string, _, limit int) ([]freshness.Event, error) {
	events := s.events[id]
	return events[:min(limit, len(events))], nil
}

func (s *stubHDX) ShowUser(_ context.Context, id string) (freshness.User, error) {
	u, ok := s.users[id]
	if !ok {
		return freshness.User{}, errors.New("not found")
	}
	return u, nil
}

type tableSink struct {
	values [][]string
}

func (t *tableSink) Header() ([]string, error) {
	if len(t.values) == 0 {
		return nil, nil
	}
	return t.values[0], nil
}

func (t *tableSink) Clear() error {
	t.values = nil
	return nil
}

func (t *tableSink) Write(_ string, values [][]string) error {
	t.values = values
	return nil
}

func testProject() config.ProjectConfig {
	return config.ProjectConfig{
		EndDays:            30,
		ActivityFetchLimit: 50,
		IgnoreUsers:        []string{"bot"},
		SheetName:          "Crisis datasets",
		CrisisData: config.Crises{
			{Name: "Flood-X", ID: "1", StartDate: "2024-01-01", Countries: []string{"Iraq", "Syrian Arab Republic"}},
			{Name: "Atlantis Quake", ID: "2", StartDate: "2024-01-01", Countries: []string{"Atlantis"}},
		},
	}
}

func newTestApp(t *testing.T) (*Application, *stubHDX) {
	t.Helper()
	stub := &stubHDX{
		datasets: []freshness.Dataset{
			{ID: "d-new", Title: "New map", CreatedAt: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
			{ID: "d-upd", Title: "Old survey", OrganizationName: "iom", CreatedAt: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "d-bot", Title: "Scraped", OrganizationName: "fts", CreatedAt: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
		events: map[string][]freshness.Event{
			"d-upd": {{Timestamp: time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC), UserID: "alice"}},
			"d-bot": {{Timestamp: time.Date(2024, 1, 21, 10, 0, 0, 0, time.UTC), UserID: "bot"}},
		},
		users: map[string]freshness.User{"alice": {ID: "alice", DisplayName: "Alice A"}},
	}

	dir := t.TempDir()
	cfg := &config.Config{
		HDX:     config.HDXConfig{Site: config.DefaultSite, UserAgent: config.DefaultUserAgent},
		Project: testProject(),
		Output:  config.OutputConfig{Directory: dir, Format: []string{"csv", "json", "html"}},
	}

	return &Application{
		Config:   cfg,
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Catalog:  stub,
		Activity: stub,
		Users:    stub,
		Metrics:  metrics.New(),
		Exporter: report.NewExporter(dir),
		Workers:  2,
	}, stub
}

func TestGenerateReport(t *testing.T) {
	app, _ := newTestApp(t)
	archive, err := store.Open(":memory:")
	require.NoError(t, err)
	defer archive.Close()
	app.Archive = archive

	sink := &tableSink{}
	out, err := app.GenerateReport(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Published)
	require.Len(t, sink.values, 3)
	assert.Equal(t, report.DefaultColumns, sink.values[0])
	assert.Equal(t, "d-new", sink.values[1][3])
	assert.Equal(t, "new", sink.values[1][8])
	assert.Equal(t, "d-upd", sink.values[2][3])
	assert.Equal(t, "Alice A", sink.values[2][10])

	require.Len(t, out.Result.Summaries, 2)
	assert.ErrorIs(t, out.Result.Summaries[1].Err, freshness.ErrConfiguration)

	assert.Len(t, out.Exports, 3)
	for _, f := range out.Exports {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}

	require.NotEmpty(t, out.RunID)
	rows, err := archive.Rows(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, out.Result.Rows, rows)

	assert.Equal(t, 2.0, testutil.ToFloat64(app.Metrics.RowsPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.Datasets.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.CrisisErrors))
}

func TestGenerateReportDryRun(t *testing.T) {
	app, _ := newTestApp(t)
	app.Config.Output.Format = nil

	out, err := app.GenerateReport(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, out.Published)
	assert.Len(t, out.Result.Rows, 2)
	assert.Empty(t, out.Exports)
	assert.Empty(t, out.RunID)
}

func TestGenerateReportStopsOnFailedHealthCheck(t *testing.T) {
	app, _ := newTestApp(t)
	app.Health = func(context.Context) error { return errors.New("site down") }

	sink := &tableSink{values: [][]string{{"ID"}, {"kept"}}}
	_, err := app.GenerateReport(context.Background(), sink)
	require.Error(t, err)
	assert.Equal(t, [][]string{{"ID"}, {"kept"}}, sink.values, "sink untouched")
}

func TestRunsDoNotShareNameCache(t *testing.T) {
	app, stub := newTestApp(t)
	app.Config.Output.Format = nil

	_, err := app.GenerateReport(context.Background(), nil)
	require.NoError(t, err)

	stub.users["alice"] = freshness.User{ID: "alice", DisplayName: "Alice Renamed"}
	out, err := app.GenerateReport(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", out.Result.Rows[1][report.ColumnUpdatedBy])
}

func TestNewLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{HDX: config.HDXConfig{Site: "stage"}, Project: testProject()}

	app, err := New(cfg, Options{LogLevel: slog.LevelInfo, LogWriter: &buf, HTTP: hdx.DefaultOptions()})
	require.NoError(t, err)
	assert.NotNil(t, app.Health)
	assert.Contains(t, buf.String(), `"msg":"HDX source initialized"`)

	_, err = New(&config.Config{HDX: config.HDXConfig{Site: "nowhere"}}, Options{LogWriter: io.Discard})
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	lines := Queries(testProject(), country.Default())
	require.Len(t, lines, 2)

	assert.Equal(t, "Flood-X", lines[0].Name)
	assert.NoError(t, lines[0].Err)
	assert.Equal(t,
		"metadata_created:[2000-01-01T00:00:00.000Z TO 2024-01-31T00:00:00Z] AND (groups:irq OR groups:syr)",
		lines[0].Query)

	assert.ErrorIs(t, lines[1].Err, freshness.ErrConfiguration)
	assert.Empty(t, lines[1].Query)
}

func TestSummaries(t *testing.T) {
	in := []freshness.Summary{
		{ID: "1", Name: "Flood-X", Matches: 3, New: 1, Updated: 1, Dropped: 1},
		{ID: "2", Name: "Atlantis Quake", Err: errors.New("bad country")},
	}
	out := Summaries(in)
	require.Len(t, out, 2)
	assert.Equal(t, 3, out[0].Matches)
	assert.Empty(t, out[0].Error)
	assert.Equal(t, "bad country", out[1].Error)
}

func TestExportFileNames(t *testing.T) {
	app, _ := newTestApp(t)
	app.Config.Output.Format = []string{"json"}

	out, err := app.GenerateReport(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, out.Exports, 1)
	assert.Equal(t, app.Config.Output.Directory, filepath.Dir(out.Exports[0]))
	assert.Regexp(t, `^crisis_datasets_\d{8}_\d{6}\.json$`, filepath.Base(out.Exports[0]))
}
