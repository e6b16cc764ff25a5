package stops

import (
	"context"
	"fmt"
	"os"

	"github.com/jamespfennell/gtfs"
)

// StaticFeed resolves stop coordinates from a static GTFS zip archive.
type StaticFeed struct {
	Path string
}

func (f StaticFeed) Name() string { return "gtfs:" + f.Path }

func (f StaticFeed) Lookup(_ context.Context, stopIDs []string) (map[string]Location, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}

	wanted := make(map[string]struct{}, len(stopIDs))
	for _, id := range stopIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]Location)
	for _, s := range static.Stops {
		if _, ok := wanted[s.Id]; !ok {
			continue
		}
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		out[s.Id] = Location{Lat: *s.Latitude, Lon: *s.Longitude}
	}
	return out, nil
}
