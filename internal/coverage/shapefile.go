package coverage

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-cli/internal/model"
)

// ImportZCTA builds a density table from a Census ZCTA (ZIP Code Tabulation
// Area) shapefile. Every imported unit starts with unknown density; centroids
// come from each shape's bounding box. Curated YAML tables override these
// entries where they exist.
func ImportZCTA(shpPath, region string) (*Table, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "coverage: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	zctaIdx := fieldIndex(reader, "ZCTA5CE20")
	if zctaIdx < 0 {
		// Older vintages name the field by census year.
		zctaIdx = fieldIndex(reader, "ZCTA5CE10")
	}
	if zctaIdx < 0 {
		return nil, eris.New("coverage: shapefile has no ZCTA5CE field")
	}

	table := &Table{Region: region}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		zcta := strings.TrimSpace(reader.Attribute(zctaIdx))
		if zcta == "" {
			skipped++
			continue
		}

		var lat, lon float64
		if shape != nil {
			box := shape.BBox()
			lon = (box.MinX + box.MaxX) / 2
			lat = (box.MinY + box.MaxY) / 2
		}

		table.Units = append(table.Units, Entry{
			UnitID:  zcta,
			Density: model.DensityUnknown,
			Lat:     lat,
			Lon:     lon,
		})
	}

	if skipped > 0 {
		zap.L().Debug("coverage: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	if len(table.Units) == 0 {
		return nil, eris.Errorf("coverage: shapefile %s yielded no units", shpPath)
	}

	zap.L().Info("imported ZCTA shapefile",
		zap.String("region", region),
		zap.Int("units", len(table.Units)),
	)
	return table, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// MergeCurated overlays curated YAML entries onto an imported table. Curated
// entries win on density, expected count, and neighborhood; imported
// centroids are kept when the curated entry has none.
func MergeCurated(imported, curated *Table) *Table {
	if curated == nil || len(curated.Units) == 0 {
		return imported
	}
	if imported == nil || len(imported.Units) == 0 {
		return curated
	}

	merged := &Table{Region: imported.Region}
	curatedByID := make(map[string]Entry, len(curated.Units))
	for _, e := range curated.Units {
		curatedByID[e.UnitID] = e
	}

	for _, e := range imported.Units {
		if c, ok := curatedByID[e.UnitID]; ok {
			if c.Lat == 0 && c.Lon == 0 {
				c.Lat, c.Lon = e.Lat, e.Lon
			}
			merged.Units = append(merged.Units, c)
			delete(curatedByID, e.UnitID)
			continue
		}
		merged.Units = append(merged.Units, e)
	}
	// Curated units outside the shapefile still count.
	for _, e := range curated.Units {
		if _, ok := curatedByID[e.UnitID]; ok {
			merged.Units = append(merged.Units, e)
		}
	}

	return merged
}
