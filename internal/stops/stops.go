// Package stops holds the fixed stop locations used to position vehicles
// that report standing at a stop without a GPS fix.
package stops

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

type Location struct {
	Lat float64
	Lon float64
}

// Locator looks up the coordinates of a stop.
type Locator interface {
	Location(stopID string) (Location, bool)
}

// Locations is an immutable stop id to location table.
type Locations struct {
	byID map[string]Location
}

func NewLocations(m map[string]Location) Locations {
	byID := make(map[string]Location, len(m))
	for id, loc := range m {
		byID[id] = loc
	}
	return Locations{byID: byID}
}

func (l Locations) Location(stopID string) (Location, bool) {
	loc, ok := l.byID[stopID]
	return loc, ok
}

func (l Locations) Len() int { return len(l.byID) }

// Override is a configured stop. A nil Location is resolved from the sources
// passed to Load.
type Override struct {
	ID       string
	Location *Location
}

// Source resolves coordinates for a set of stop ids. Stops it does not know
// are simply missing from the result.
type Source interface {
	Name() string
	Lookup(ctx context.Context, stopIDs []string) (map[string]Location, error)
}

// Load builds the table from the configured stops. Explicit coordinates win;
// the rest are asked from each source in order until resolved. Stops no
// source knows are logged and left out.
func Load(ctx context.Context, logger *slog.Logger, overrides []Override, sources ...Source) (Locations, error) {
	resolved := make(map[string]Location, len(overrides))
	pending := make(map[string]struct{})
	for _, o := range overrides {
		if o.Location != nil {
			resolved[o.ID] = *o.Location
			delete(pending, o.ID)
			continue
		}
		if _, ok := resolved[o.ID]; !ok {
			pending[o.ID] = struct{}{}
		}
	}

	for _, src := range sources {
		if len(pending) == 0 {
			break
		}
		found, err := src.Lookup(ctx, sortedIDs(pending))
		if err != nil {
			return Locations{}, fmt.Errorf("resolve stops from %s: %w", src.Name(), err)
		}
		for id, loc := range found {
			if _, ok := pending[id]; !ok {
				continue
			}
			resolved[id] = loc
			delete(pending, id)
		}
		logger.Info("stop locations resolved", "source", src.Name(), "count", len(found))
	}

	if len(pending) > 0 {
		logger.Warn("stop locations unresolved", "stops", sortedIDs(pending))
	}
	return Locations{byID: resolved}, nil
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
