package hdx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Afrawles/crisisreport/internal/freshness"
)

// Source adapts the HDX client to the catalog, activity log and user
// directory the classifier works against.
type Source struct {
	Client *Client
	Logger *slog.Logger
}

func NewSource(client *Client, logger *slog.Logger) *Source {
	return &Source{Client: client, Logger: logger}
}

var (
	_ freshness.Catalog     = (*Source)(nil)
	_ freshness.ActivityLog = (*Source)(nil)
	_ freshness.Directory   = (*Source)(nil)
)

// SearchDatasets drops datasets whose creation time cannot be read; they
// cannot be classified.
func (s *Source) SearchDatasets(ctx context.Context, fq string) ([]freshness.Dataset, error) {
	packages, err := s.Client.SearchPackages(ctx, fq)
	if err != nil {
		return nil, err
	}

	datasets := make([]freshness.Dataset, 0, len(packages))
	for _, p := range packages {
		created, err := freshness.ParseTimestamp(p.MetadataCreated)
		if err != nil {
			s.logger().Warn("dataset skipped", "dataset", p.ID, "error", err)
			continue
		}

		ds := freshness.Dataset{
			ID:        p.ID,
			Name:      p.Name,
			Title:     p.Title,
			URL:       s.Client.DatasetURL(p.Name),
			CreatedAt: created,
			Created:   p.MetadataCreated,
		}
		if p.Organization != nil {
			ds.OrganizationID = p.Organization.ID
			ds.OrganizationName = p.Organization.Name
		}
		datasets = append(datasets, ds)
	}

	return datasets, nil
}

func (s *Source) ActivityList(ctx context.Context, datasetID string, offset, limit int) ([]freshness.Event, error) {
	activities, err := s.Client.ActivityList(ctx, datasetID, offset, limit)
	if err != nil {
		return nil, err
	}

	events := make([]freshness.Event, 0, len(activities))
	for _, a := range activities {
		ts, err := freshness.ParseTimestamp(a.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("activity %s: %w", a.ID, err)
		}
		events = append(events, freshness.Event{
			Timestamp: ts,
			Raw:       a.Timestamp,
			UserID:    a.UserID,
			Type:      a.ActivityType,
		})
	}
	return events, nil
}

func (s *Source) ShowUser(ctx context.Context, userID string) (freshness.User, error) {
	u, err := s.Client.ShowUser(ctx, userID)
	if err != nil {
		return freshness.User{}, err
	}
	return freshness.User{
		ID:          u.ID,
		Name:        u.Name,
		FullName:    u.FullName,
		DisplayName: u.DisplayName,
	}, nil
}

func (s *Source) HealthCheck(ctx context.Context) error {
	return s.Client.HealthCheck(ctx)
}

func (s *Source) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
