// Package freshness classifies crisis datasets as new or updated within an
// observation window and attributes updates to the editor responsible.
package freshness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Afrawles/crisisreport/internal/report"
)

type Status string

const (
	StatusNew     Status = "new"
	StatusUpdated Status = "updated"
)

// Window is the freshness window of a crisis. Both ends are exclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start time.Time, days int) Window {
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}

func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

// Definition is a crisis entry as it appears in configuration. It is
// validated lazily so one broken crisis does not stop the others.
type Definition struct {
	ID        string
	Name      string
	StartDate string
	Countries []string
}

type Crisis struct {
	ID        string
	Name      string
	StartDate time.Time
	Countries []string
}

func (d Definition) Crisis() (Crisis, error) {
	if strings.TrimSpace(d.ID) == "" {
		return Crisis{}, &ConfigurationError{Crisis: d.Name, Field: "id", Err: errMissing}
	}
	if strings.TrimSpace(d.StartDate) == "" {
		return Crisis{}, &ConfigurationError{Crisis: d.Name, Field: "startdate", Err: errMissing}
	}
	start, err := ParseTimestamp(d.StartDate)
	if err != nil {
		return Crisis{}, &ConfigurationError{Crisis: d.Name, Field: "startdate", Err: err}
	}
	if len(d.Countries) == 0 {
		return Crisis{}, &ConfigurationError{Crisis: d.Name, Field: "countries", Err: errMissing}
	}
	return Crisis{
		ID:        d.ID,
		Name:      d.Name,
		StartDate: start,
		Countries: d.Countries,
	}, nil
}

type Dataset struct {
	ID               string
	Name             string
	Title            string
	URL              string
	OrganizationID   string
	OrganizationName string
	CreatedAt        time.Time
	// Created is the creation timestamp exactly as the catalog reported it.
	Created string
}

type Event struct {
	Timestamp time.Time
	// Raw is the timestamp exactly as the activity service reported it.
	Raw    string
	UserID string
	Type   string
}

func (e Event) Stamp() string {
	if e.Raw != "" {
		return e.Raw
	}
	return isoformat(e.Timestamp)
}

type User struct {
	ID          string
	Name        string
	FullName    string
	DisplayName string
}

// Catalog searches datasets with a faceted filter query.
type Catalog interface {
	SearchDatasets(ctx context.Context, fq string) ([]Dataset, error)
}

// ActivityLog lists change events of a dataset, most recent first.
type ActivityLog interface {
	ActivityList(ctx context.Context, datasetID string, offset, limit int) ([]Event, error)
}

type Directory interface {
	ShowUser(ctx context.Context, userID string) (User, error)
}

type CountryResolver interface {
	ISO3(name string) (string, error)
}

// CountryFunc adapts a plain function to CountryResolver.
type CountryFunc func(name string) (string, error)

func (f CountryFunc) ISO3(name string) (string, error) {
	return f(name)
}

// Recorder receives run events, typically to feed metrics. A nil Recorder is
// allowed everywhere one is accepted.
type Recorder interface {
	ObserveDataset(status string)
	ObserveLookupFailure(op string)
	ObserveCrisisError()
}

// Classification is the outcome for one dataset that made it into the report.
type Classification struct {
	Crisis      Crisis
	Dataset     Dataset
	Status      Status
	UpdatedWhen string
	UpdatedBy   string
}

func (c Classification) Row() report.Row {
	created := c.Dataset.Created
	if created == "" {
		created = isoformat(c.Dataset.CreatedAt)
	}
	return report.Row{
		report.ColumnCrisisID:    c.Crisis.ID,
		report.ColumnCrisisName:  c.Crisis.Name,
		report.ColumnTitle:       c.Dataset.Title,
		report.ColumnDatasetID:   c.Dataset.ID,
		report.ColumnDatasetURL:  c.Dataset.URL,
		report.ColumnOrgName:     c.Dataset.OrganizationName,
		report.ColumnOrgID:       c.Dataset.OrganizationID,
		report.ColumnCreated:     created,
		report.ColumnStatus:      string(c.Status),
		report.ColumnUpdatedWhen: c.UpdatedWhen,
		report.ColumnUpdatedBy:   c.UpdatedBy,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the date and timestamp forms used by the catalog and
// by configuration. Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// isoformat renders t the way the catalog query language expects: seconds
// precision, with microseconds only when they are non-zero.
func isoformat(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format("2006-01-02T15:04:05.000000")
	}
	return t.Format("2006-01-02T15:04:05")
}
