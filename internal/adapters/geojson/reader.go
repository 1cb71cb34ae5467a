// Package geojson reads and writes point collections and sector polygons as
// GeoJSON FeatureCollections.
package geojson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// DefaultSectorNameProperty is the feature property holding a sector's name.
const DefaultSectorNameProperty = "sector"

// ReadObjects decodes a FeatureCollection of points. Any other geometry type
// is rejected with domain.ErrNotPoint. A third coordinate is kept as the
// point's elevation.
func ReadObjects(r io.Reader, source domain.Source) ([]domain.SpatialObject, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	elev := elevations(data, len(fc.Features))

	out := make([]domain.SpatialObject, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, &domain.InputError{Source: source, Index: i, Err: domain.ErrMissingGeometry}
		}
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, &domain.InputError{
				Source: source,
				Index:  i,
				Err:    fmt.Errorf("%w: got %s", domain.ErrNotPoint, f.Geometry.GeoJSONType()),
			}
		}
		obj := domain.SpatialObject{
			Geometry: &domain.Point{X: p.X(), Y: p.Y(), Z: elev[i]},
			Source:   source,
		}
		if len(f.Properties) > 0 {
			obj.Properties = map[string]any(f.Properties.Clone())
		}
		out = append(out, obj)
	}
	return out, nil
}

// elevations returns the third coordinate of every point feature, nil where
// there is none. orb.Point is planar, so positions are read again here.
func elevations(data []byte, n int) []*float64 {
	out := make([]*float64, n)
	var raw struct {
		Features []struct {
			Geometry *struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if json.Unmarshal(data, &raw) != nil || len(raw.Features) != n {
		return out
	}
	for i, f := range raw.Features {
		if f.Geometry == nil || f.Geometry.Type != "Point" {
			continue
		}
		var pos []float64
		if json.Unmarshal(f.Geometry.Coordinates, &pos) == nil && len(pos) >= 3 {
			z := pos[2]
			out[i] = &z
		}
	}
	return out
}

// ReadSectors decodes polygon features. The name comes from nameProp, or the
// feature index when the property is missing.
func ReadSectors(r io.Reader, nameProp string) ([]domain.Sector, error) {
	if nameProp == "" {
		nameProp = DefaultSectorNameProperty
	}
	fc, err := decode(r)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Sector, 0, len(fc.Features))
	for i, f := range fc.Features {
		var area orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			area = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			area = g
		case nil:
			return nil, fmt.Errorf("sector %d: %w", i, domain.ErrMissingGeometry)
		default:
			return nil, fmt.Errorf("sector %d: expected polygon, got %s", i, g.GeoJSONType())
		}
		out = append(out, domain.Sector{Name: sectorName(f, nameProp, i), Area: area})
	}
	return out, nil
}

func sectorName(f *geojson.Feature, prop string, i int) string {
	switch v := f.Properties[prop].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.Itoa(i)
}

func decode(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc, nil
}

// ReadObjectsFile reads ReadObjects from a file.
func ReadObjectsFile(path string, source domain.Source) ([]domain.SpatialObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	objs, err := ReadObjects(f, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return objs, nil
}

// ReadSectorsFile reads ReadSectors from a file.
func ReadSectorsFile(path, nameProp string) ([]domain.Sector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sectors, err := ReadSectors(f, nameProp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sectors, nil
}

// FileSource implements ports.ObjectSource over GeoJSON files. Each side may
// be split across several files; they are concatenated in order.
type FileSource struct {
	GT  []string
	DET []string
}

// LoadObjects reads every file of one side.
func (s FileSource) LoadObjects(ctx context.Context, source domain.Source) ([]domain.SpatialObject, error) {
	paths := s.GT
	if source == domain.SourceDET {
		paths = s.DET
	}
	var out []domain.SpatialObject
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		objs, err := ReadObjectsFile(p, source)
		if err != nil {
			return nil, err
		}
		out = append(out, objs...)
	}
	return out, nil
}
