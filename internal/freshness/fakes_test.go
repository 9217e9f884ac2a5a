package freshness

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type activityCall struct {
	DatasetID string
	Offset    int
	Limit     int
}

// fakeActivityLog serves events like the activity service: most recent first
// and never more than limit of them.
type fakeActivityLog struct {
	mu     sync.Mutex
	events map[string][]Event
	errs   map[string]error
	calls  []activityCall
}

func newFakeActivityLog() *fakeActivityLog {
	return &fakeActivityLog{events: make(map[string][]Event), errs: make(map[string]error)}
}

func (f *fakeActivityLog) ActivityList(_ context.Context, datasetID string, offset, limit int) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, activityCall{DatasetID: datasetID, Offset: offset, Limit: limit})
	if err := f.errs[datasetID]; err != nil {
		return nil, err
	}
	events := f.events[datasetID]
	if offset >= len(events) {
		return nil, nil
	}
	events = events[offset:]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (f *fakeActivityLog) callsFor(datasetID string) []activityCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []activityCall
	for _, c := range f.calls {
		if c.DatasetID == datasetID {
			out = append(out, c)
		}
	}
	return out
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]User
	errs  map[string]error
	calls map[string]int
}

func newFakeDirectory(users ...User) *fakeDirectory {
	d := &fakeDirectory{
		users: make(map[string]User),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) ShowUser(_ context.Context, userID string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[userID]++
	if err := d.errs[userID]; err != nil {
		return User{}, err
	}
	u, ok := d.users[userID]
	if !ok {
		return User{}, errors.New("user not found")
	}
	return u, nil
}

func (d *fakeDirectory) callCount(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[userID]
}

type fakeCatalog struct {
	mu       sync.Mutex
	datasets map[string][]Dataset // keyed by the first group clause
	errs     map[string]error
	queries  []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{datasets: make(map[string][]Dataset), errs: make(map[string]error)}
}

func (c *fakeCatalog) SearchDatasets(_ context.Context, fq string) ([]Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, fq)
	for group, err := range c.errs {
		if containsGroup(fq, group) {
			return nil, err
		}
	}
	for group, ds := range c.datasets {
		if containsGroup(fq, group) {
			return ds, nil
		}
	}
	return nil, nil
}

func containsGroup(fq, group string) bool {
	return strings.Contains(fq, group)
}

type fakeRecorder struct {
	mu             sync.Mutex
	datasets       map[string]int
	lookupFailures map[string]int
	crisisErrors   int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{datasets: make(map[string]int), lookupFailures: make(map[string]int)}
}

func (r *fakeRecorder) ObserveDataset(status string) {
	r.mu.Lock()
	r.datasets[status]++
	r.mu.Unlock()
}

func (r *fakeRecorder) ObserveLookupFailure(op string) {
	r.mu.Lock()
	r.lookupFailures[op]++
	r.mu.Unlock()
}

func (r *fakeRecorder) ObserveCrisisError() {
	r.mu.Lock()
	r.crisisErrors++
	r.mu.Unlock()
}

var testCountries = CountryFunc(func(name string) (string, error) {
	codes := map[string]string{
		"Iraq":        "IRQ",
		"Syria":       "SYR",
		"Mozambique":  "MOZ",
		"Malawi":      "MWI",
		"Bangladesh":  "BGD",
		"Myanmar":     "MMR",
		"Afghanistan": "AFG",
	}
	if code, ok := codes[name]; ok {
		return code, nil
	}
	return "", errors.New("unknown country")
})

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func event(ts, userID string) Event {
	return Event{Timestamp: at(ts), Raw: ts, UserID: userID, Type: "changed package"}
}
