package gtfsrt

import (
	"errors"
	"fmt"
	"unicode"
)

var ErrInvalidRouteID = errors.New("route id must be at least 4 characters")

// NormalizeRouteID collapses route variants to their base route, e.g.
// "1008 3" to "1008" and "3001Z3" to "3001Z".
func NormalizeRouteID(routeID string) (string, error) {
	r := []rune(routeID)
	switch {
	case len(r) < 4:
		return "", fmt.Errorf("%w: %q", ErrInvalidRouteID, routeID)
	case len(r) <= 5:
		return routeID, nil
	case unicode.IsLetter(r[4]) && !unicode.IsLetter(r[5]):
		return string(r[:5]), nil
	case unicode.Is(unicode.Zs, r[4]):
		return string(r[:4]), nil
	default:
		return routeID, nil
	}
}
