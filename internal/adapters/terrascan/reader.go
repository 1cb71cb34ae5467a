// Package terrascan reads tree detections exported by TerraScan as
// comma-separated text (one tree per line, sixteen columns, no header).
package terrascan

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/ports"
)

// Position selects which planimetric coordinates locate a tree.
type Position string

const (
	// PositionTrunk uses the trunk easting/northing and the trunk ground z.
	PositionTrunk Position = "trunk"
	// PositionAverage uses the average easting/northing of the point group.
	PositionAverage Position = "average"
)

// Columns in file order, as snake_case property names.
var columns = []string{
	"terrascan_group",
	"point_count",
	"average_easting",
	"average_northing",
	"average_z",
	"ground_z_at_average_xy",
	"trunk_easting",
	"trunk_northing",
	"trunk_ground_z",
	"trunk_diameter",
	"canopy_width",
	"biggest_distance",
	"smallest_distance",
	"length",
	"width",
	"height",
}

const (
	colAvgX   = 2
	colAvgY   = 3
	colAvgZ   = 4
	colTrunkX = 6
	colTrunkY = 7
	colTrunkZ = 8
)

// ErrColumnCount is returned for lines that do not have sixteen fields.
var ErrColumnCount = errors.New("terrascan: expected 16 columns")

// Read parses a TerraScan export. Every column becomes a numeric property.
func Read(r io.Reader, pos Position) ([]domain.SpatialObject, error) {
	xi, yi, zi := colTrunkX, colTrunkY, colTrunkZ
	switch pos {
	case PositionTrunk, "":
	case PositionAverage:
		xi, yi, zi = colAvgX, colAvgY, colAvgZ
	default:
		return nil, fmt.Errorf("%w: unknown position %q", domain.ErrInvalidOptions, pos)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []domain.SpatialObject
	for n := 0; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("terrascan: %w", err)
		}
		if len(rec) != len(columns) {
			return nil, &domain.InputError{Source: domain.SourceDET, Index: n,
				Err: fmt.Errorf("%w, got %d", ErrColumnCount, len(rec))}
		}

		props := make(map[string]any, len(columns))
		vals := make([]float64, len(columns))
		for i, raw := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, &domain.InputError{Source: domain.SourceDET, Index: n,
					Err: fmt.Errorf("column %s: %w", columns[i], err)}
			}
			vals[i] = v
			props[columns[i]] = v
		}
		z := vals[zi]
		out = append(out, domain.SpatialObject{
			Geometry:   &domain.Point{X: vals[xi], Y: vals[yi], Z: &z},
			Source:     domain.SourceDET,
			Properties: props,
		})
	}
	return out, nil
}

// ReadFile reads Read from a file.
func ReadFile(path string, pos Position) ([]domain.SpatialObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	objs, err := Read(f, pos)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return objs, nil
}

// Source implements ports.ObjectSource with ground truth from another source
// and detections from TerraScan files.
type Source struct {
	GT       ports.ObjectSource
	DET      []string
	Position Position
}

// LoadObjects delegates ground truth and reads detections from DET.
func (s Source) LoadObjects(ctx context.Context, source domain.Source) ([]domain.SpatialObject, error) {
	if source == domain.SourceGT {
		return s.GT.LoadObjects(ctx, source)
	}
	var out []domain.SpatialObject
	for _, p := range s.DET {
		objs, err := ReadFile(p, s.Position)
		if err != nil {
			return nil, err
		}
		out = append(out, objs...)
	}
	return out, nil
}
