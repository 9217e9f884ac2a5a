package freshness

import (
	"fmt"
	"strings"
)

// createdFloor is the lower bound of the creation-date clause. The catalog
// has nothing older.
const createdFloor = "2000-01-01T00:00:00.000Z"

// BuildQuery returns the catalog filter for a crisis: datasets created before
// the end of the window that belong to any of the crisis countries. An
// unresolvable country name is a configuration error.
func BuildQuery(c Crisis, w Window, countries CountryResolver) (string, error) {
	groups := make([]string, 0, len(c.Countries))
	for _, name := range c.Countries {
		iso3, err := countries.ISO3(name)
		if err != nil {
			return "", &ConfigurationError{
				Crisis: c.Name,
				Field:  "countries",
				Err:    fmt.Errorf("resolve %q: %w", name, err),
			}
		}
		groups = append(groups, "groups:"+strings.ToLower(iso3))
	}

	return fmt.Sprintf("metadata_created:[%s TO %sZ] AND (%s)",
		createdFloor, isoformat(w.End), strings.Join(groups, " OR ")), nil
}
