package coverage

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/campaign-cli/internal/model"
)

// kmPerDegree is the approximate surface distance of one degree of latitude.
const kmPerDegree = 111.32

// densitySpacing holds the minimum distance in kilometers between two
// selected units of the same density class. Dense areas tolerate tight
// packing; sparse areas need wider spacing to avoid overlapping search
// radii.
var densitySpacing = map[model.DensityClass]float64{
	model.DensityVeryHigh: 1.5,
	model.DensityHigh:     2.5,
	model.DensityMedium:   4.0,
	model.DensityLow:      6.0,
	model.DensityUnknown:  3.0,
}

// SpacingFor returns the minimum spacing in kilometers for a density class.
func SpacingFor(d model.DensityClass) float64 {
	if s, ok := densitySpacing[d]; ok {
		return s
	}
	return densitySpacing[model.DensityUnknown]
}

// ThinBySpacing drops units whose centroid falls within the minimum spacing
// of an already-kept higher-ranked unit. The per-density spacing applies
// unless minKM is larger. Units without coordinates are always kept. The
// plan's rank order is preserved and ranks are reassigned after thinning.
func (p *Plan) ThinBySpacing(minKM float64) {
	kept := make([]model.CoverageUnit, 0, len(p.units))
	for _, u := range p.units {
		if u.Lat == 0 && u.Lon == 0 {
			kept = append(kept, u)
			continue
		}

		spacing := SpacingFor(u.Density)
		if minKM > spacing {
			spacing = minKM
		}

		tooClose := false
		for _, k := range kept {
			if k.Lat == 0 && k.Lon == 0 {
				continue
			}
			if distanceKM(u, k) < spacing {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kept = append(kept, u)
		}
	}

	for i := range kept {
		kept[i].Rank = i + 1
	}
	p.units = kept
	p.pos = 0
}

// distanceKM approximates the surface distance between two unit centroids.
// Longitude is scaled by the cosine of the mean latitude before computing
// planar distance, which is accurate to well under a percent at city scale.
func distanceKM(a, b model.CoverageUnit) float64 {
	meanLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	scale := math.Cos(meanLat)
	ca := geom.Coord{a.Lon * scale * kmPerDegree, a.Lat * kmPerDegree}
	cb := geom.Coord{b.Lon * scale * kmPerDegree, b.Lat * kmPerDegree}
	return xy.Distance(ca, cb)
}
