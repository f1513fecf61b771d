package geo

import (
	"fmt"

	"github.com/bradfitz/latlong"
)

// ZoneFinder maps coordinates to an IANA timezone name using an offline
// shapefile lookup.
type ZoneFinder struct{}

func NewZoneFinder() ZoneFinder {
	return ZoneFinder{}
}

// ZoneName returns the timezone name at loc.
func (ZoneFinder) ZoneName(loc Location) (string, error) {
	name := latlong.LookupZoneName(loc.Latitude, loc.Longitude)
	if name == "" {
		return "", fmt.Errorf("%w: no timezone at %.4f,%.4f", ErrLocationNotFound, loc.Latitude, loc.Longitude)
	}
	return name, nil
}
