package traffic

import (
	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/monitoring"
)

// ZoneCategory classifies the behavioral meaning of a zone polygon.
type ZoneCategory string

const (
	ZoneParkingSpot ZoneCategory = "PARKING_SPOT"
	ZoneNoParking   ZoneCategory = "NO_PARKING"
	ZoneRoadLane    ZoneCategory = "ROAD_LANE"
)

// TravelDirection is the legal direction of travel through a road-lane
// zone, expressed against the image's vertical axis.
type TravelDirection string

const (
	// TravelDown means vehicles legally move toward increasing Y.
	TravelDown TravelDirection = "DOWN"
	// TravelUp means vehicles legally move toward decreasing Y.
	TravelUp TravelDirection = "UP"
)

// Zone is a configured polygon region. The polygon is normalized to the
// [0,1]x[0,1] frame-relative space and immutable after load.
type Zone struct {
	Name      string
	Category  ZoneCategory
	Polygon   geom.Polygon
	Direction TravelDirection
}

// ZoneIndex answers point-in-zone queries against pixel coordinates. The
// normalized polygons are resolved to pixel space once per frame size and
// cached; zones with fewer than three vertices are dropped at construction
// with a warning.
type ZoneIndex struct {
	zones  []Zone
	pixel  []geom.Polygon
	width  int
	height int
}

// NewZoneIndex builds an index for the given frame size. Configuration
// order is preserved: Classify returns the first matching zone.
func NewZoneIndex(zones []Zone, width, height int) *ZoneIndex {
	zi := &ZoneIndex{width: width, height: height}
	for _, z := range zones {
		if !z.Polygon.Valid() {
			monitoring.Logf("zone %q dropped: polygon has %d points, need at least 3", z.Name, len(z.Polygon))
			continue
		}
		if z.Direction == "" {
			z.Direction = TravelDown
		}
		zi.zones = append(zi.zones, z)
	}
	zi.resolve(width, height)
	return zi
}

// resolve caches pixel-space polygons for the given frame size.
func (zi *ZoneIndex) resolve(width, height int) {
	zi.width = width
	zi.height = height
	zi.pixel = make([]geom.Polygon, len(zi.zones))
	for i, z := range zi.zones {
		zi.pixel[i] = z.Polygon.Scale(float64(width), float64(height))
	}
}

// Resize re-resolves the cached pixel polygons when the stream dimensions
// change. A no-op if the size is unchanged.
func (zi *ZoneIndex) Resize(width, height int) {
	if width == zi.width && height == zi.height {
		return
	}
	zi.resolve(width, height)
}

// Classify returns the first configured zone whose polygon contains the
// pixel-space point, with inclusive boundary semantics. The second return
// value is false when no zone matches, which is a valid state.
func (zi *ZoneIndex) Classify(p geom.Point) (*Zone, bool) {
	for i := range zi.pixel {
		if zi.pixel[i].Contains(p) {
			return &zi.zones[i], true
		}
	}
	return nil, false
}

// Zones returns the retained zones in configuration order.
func (zi *ZoneIndex) Zones() []Zone { return zi.zones }

// Len returns the number of retained zones.
func (zi *ZoneIndex) Len() int { return len(zi.zones) }
