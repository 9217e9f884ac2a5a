package freshness

import (
	"context"
	"sync"
)

// ScraperException lets an otherwise ignored account count as an editor for
// the listed organizations.
type ScraperException struct {
	UserID        string
	Organizations []string
}

// Attribution decides whose edits are reported. A nil *Attribution accepts
// every editor.
type Attribution struct {
	ignored    map[string]struct{}
	exceptions map[string]map[string]struct{}
}

func NewAttribution(ignored []string, exceptions []ScraperException) *Attribution {
	a := &Attribution{
		ignored:    make(map[string]struct{}, len(ignored)),
		exceptions: make(map[string]map[string]struct{}, len(exceptions)),
	}
	for _, id := range ignored {
		a.ignored[id] = struct{}{}
	}
	for _, ex := range exceptions {
		orgs, ok := a.exceptions[ex.UserID]
		if !ok {
			orgs = make(map[string]struct{}, len(ex.Organizations))
			a.exceptions[ex.UserID] = orgs
		}
		for _, org := range ex.Organizations {
			orgs[org] = struct{}{}
		}
	}
	return a
}

// Attributable reports whether an edit by userID on a dataset owned by org
// is credited. Scraper exceptions are checked before the ignore list.
func (a *Attribution) Attributable(userID, org string) bool {
	if a == nil {
		return true
	}
	if orgs, ok := a.exceptions[userID]; ok {
		if _, ok := orgs[org]; ok {
			return true
		}
	}
	_, ignored := a.ignored[userID]
	return !ignored
}

// DisplayName picks the first non-empty of display name, full name and
// account name.
func DisplayName(u User) string {
	for _, name := range []string{u.DisplayName, u.FullName, u.Name} {
		if name != "" {
			return name
		}
	}
	return ""
}

// Names memoises user id to display name lookups for the lifetime of a run.
// Concurrent misses on the same id may both hit the directory; the last
// writer wins.
type Names struct {
	dir Directory

	mu    sync.RWMutex
	names map[string]string
}

func NewNames(dir Directory) *Names {
	return &Names{dir: dir, names: make(map[string]string)}
}

func (n *Names) Resolve(ctx context.Context, userID string) (string, error) {
	n.mu.RLock()
	name, ok := n.names[userID]
	n.mu.RUnlock()
	if ok {
		return name, nil
	}

	u, err := n.dir.ShowUser(ctx, userID)
	if err != nil {
		return "", &LookupError{Op: OpUser, ID: userID, Err: err}
	}
	name = DisplayName(u)
	if name == "" {
		name = userID
	}

	n.mu.Lock()
	n.names[userID] = name
	n.mu.Unlock()
	return name, nil
}

func (n *Names) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.names)
}
