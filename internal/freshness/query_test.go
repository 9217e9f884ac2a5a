package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	crisis := Crisis{ID: "7", Name: "Flood-X", StartDate: day("2024-01-01"), Countries: []string{"Iraq", "Syria"}}

	t.Run("date clause and one group per country", func(t *testing.T) {
		q, err := BuildQuery(crisis, NewWindow(crisis.StartDate, 30), testCountries)
		require.NoError(t, err)
		assert.Equal(t,
			"metadata_created:[2000-01-01T00:00:00.000Z TO 2024-01-31T00:00:00Z] AND (groups:irq OR groups:syr)",
			q)
	})

	t.Run("single country has no OR", func(t *testing.T) {
		one := crisis
		one.Countries = []string{"Mozambique"}
		q, err := BuildQuery(one, NewWindow(one.StartDate, 90), testCountries)
		require.NoError(t, err)
		assert.Equal(t,
			"metadata_created:[2000-01-01T00:00:00.000Z TO 2024-03-31T00:00:00Z] AND (groups:moz)",
			q)
	})

	t.Run("microseconds are kept when present", func(t *testing.T) {
		w := Window{Start: crisis.StartDate, End: time.Date(2024, 1, 31, 12, 30, 0, int(250 * time.Millisecond), time.UTC)}
		q, err := BuildQuery(crisis, w, testCountries)
		require.NoError(t, err)
		assert.Contains(t, q, "TO 2024-01-31T12:30:00.250000Z]")
	})

	t.Run("unknown country fails the crisis", func(t *testing.T) {
		bad := crisis
		bad.Countries = []string{"Iraq", "Atlantis"}
		_, err := BuildQuery(bad, NewWindow(bad.StartDate, 30), testCountries)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)

		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "Flood-X", cerr.Crisis)
		assert.Equal(t, "countries", cerr.Field)
		assert.Contains(t, err.Error(), "Atlantis")
	})
}

func TestWindow(t *testing.T) {
	w := NewWindow(day("2024-01-01"), 30)
	assert.Equal(t, day("2024-01-31"), w.End)

	assert.False(t, w.Contains(w.Start), "start is exclusive")
	assert.False(t, w.Contains(w.End), "end is exclusive")
	assert.True(t, w.Contains(w.Start.Add(time.Microsecond)))
	assert.True(t, w.Contains(w.End.Add(-time.Microsecond)))
	assert.False(t, w.Contains(day("2023-12-31")))
	assert.False(t, w.Contains(day("2024-02-01")))
}

func TestDefinitionCrisis(t *testing.T) {
	valid := Definition{ID: "1", Name: "Flood-X", StartDate: "2024-01-01", Countries: []string{"Iraq"}}

	c, err := valid.Crisis()
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-01"), c.StartDate)
	assert.Equal(t, "Flood-X", c.Name)

	tests := []struct {
		name  string
		mod   func(d *Definition)
		field string
	}{
		{"missing id", func(d *Definition) { d.ID = " " }, "id"},
		{"missing start date", func(d *Definition) { d.StartDate = "" }, "startdate"},
		{"bad start date", func(d *Definition) { d.StartDate = "first of May" }, "startdate"},
		{"no countries", func(d *Definition) { d.Countries = nil }, "countries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mod(&d)
			_, err := d.Crisis()
			require.ErrorIs(t, err, ErrConfiguration)

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-20T10:00:00.123456", time.Date(2024, 1, 20, 10, 0, 0, 123456000, time.UTC)},
		{"2024-01-20T10:00:00", time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)},
		{"2024-01-20T10:00:00Z", time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)},
		{"2024-01-20T12:00:00+02:00", time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)},
		{"2024-01-20 10:00:00", time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)},
		{"2024-01-20", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestClassificationRow(t *testing.T) {
	cl := Classification{
		Crisis: Crisis{ID: "7", Name: "Flood-X"},
		Dataset: Dataset{
			ID:               "d1",
			Title:            "Flood extents",
			URL:              "https://data.humdata.org/dataset/flood-extents",
			OrganizationID:   "org-1",
			OrganizationName: "unosat",
			CreatedAt:        at("2023-06-01T08:00:00"),
		},
		Status:      StatusUpdated,
		UpdatedWhen: "2024-01-20T10:00:00.123456",
		UpdatedBy:   "Alice A",
	}

	row := cl.Row()
	assert.Len(t, row, 11)
	assert.Equal(t, "7", row["ID"])
	assert.Equal(t, "Flood-X", row["Crisis name"])
	assert.Equal(t, "unosat", row["org name"])
	assert.Equal(t, "2023-06-01T08:00:00", row["created"], "falls back to the parsed time")
	assert.Equal(t, "updated", row["new or updated"])
	assert.Equal(t, "Alice A", row["updated by"])

	cl.Dataset.Created = "2023-06-01T08:00:00.000001"
	assert.Equal(t, "2023-06-01T08:00:00.000001", cl.Row()["created"])
}
