package geojson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/matching"
)

func TestReadObjectsFile(t *testing.T) {
	objs, err := ReadObjectsFile(filepath.Join("testdata", "gt.geojson"), domain.SourceGT)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, 2600010.0, objs[1].Geometry.X)
	assert.Equal(t, "beech", objs[1].Properties["species"])
	assert.Equal(t, domain.SourceGT, objs[0].Source)
}

func TestReadObjects_RejectsNonPoint(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}},
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}
	]}`
	_, err := ReadObjects(strings.NewReader(body), domain.SourceDET)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotPoint)

	var ie *domain.InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Index)
	assert.Equal(t, domain.SourceDET, ie.Source)
}

func TestReadObjects_NullGeometry(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":null}]}`
	_, err := ReadObjects(strings.NewReader(body), domain.SourceGT)
	assert.ErrorIs(t, err, domain.ErrMissingGeometry)
}

func TestReadObjects_Malformed(t *testing.T) {
	_, err := ReadObjects(strings.NewReader(`{"type":`), domain.SourceGT)
	assert.Error(t, err)
}

func TestReadSectorsFile(t *testing.T) {
	sectors, err := ReadSectorsFile(filepath.Join("testdata", "sectors.geojson"), "")
	require.NoError(t, err)
	require.Len(t, sectors, 2)
	assert.Equal(t, "north", sectors[0].Name)
	assert.Equal(t, "1", sectors[1].Name)
	assert.Len(t, sectors[1].Area, 1)
}

func TestFileSourceEvaluateAndWrite(t *testing.T) {
	src := FileSource{
		GT:  []string{filepath.Join("testdata", "gt.geojson")},
		DET: []string{filepath.Join("testdata", "det.geojson")},
	}
	ctx := context.Background()
	gt, err := src.LoadObjects(ctx, domain.SourceGT)
	require.NoError(t, err)
	det, err := src.LoadObjects(ctx, domain.SourceDET)
	require.NoError(t, err)

	oc, err := matching.Evaluate(ctx, gt, det, matching.Options{ToleranceM: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTagged(&buf, oc.Result.DET))

	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	require.Len(t, fc.Features, 3)

	// Two detections share the oak: each gets half its credit.
	p := fc.Features[0].Properties
	assert.Equal(t, "1/2", p[PropTPCharge])
	assert.Equal(t, "1/2", p[PropFPCharge])
	assert.Equal(t, 0.91, p["score"])
	assert.NotNil(t, p[PropGroupID])
	assert.Len(t, p[PropGeohash], 26)

	// The far detection is a trivial false positive.
	p = fc.Features[2].Properties
	assert.Equal(t, "0", p[PropTPCharge])
	assert.Equal(t, "1", p[PropFPCharge])
	assert.Nil(t, p[PropGroupID])

	buf.Reset()
	require.NoError(t, WriteTagged(&buf, oc.Result.GT))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	assert.Equal(t, "1", fc.Features[0].Properties[PropTPCharge])
	assert.Equal(t, "0", fc.Features[0].Properties[PropFNCharge])
	assert.Equal(t, "1", fc.Features[1].Properties[PropFNCharge])
}

func TestWriteTaggedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tagged.geojson")
	require.NoError(t, WriteTaggedFile(path, nil))

	objs, err := ReadObjectsFile(path, domain.SourceGT)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestReadObjects_Elevation(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2,412.5]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[3,4]}}
	]}`
	objs, err := ReadObjects(strings.NewReader(body), domain.SourceGT)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.NotNil(t, objs[0].Geometry.Z)
	assert.Equal(t, 412.5, *objs[0].Geometry.Z)
	assert.Nil(t, objs[1].Geometry.Z)
}

func TestWriteTagged_KeepsElevation(t *testing.T) {
	z := 412.5
	objs := []domain.TaggedObject{
		{SpatialObject: domain.SpatialObject{ID: "a", Geometry: &domain.Point{X: 1, Y: 2, Z: &z}}, Tag: domain.TagTP},
		{SpatialObject: domain.SpatialObject{ID: "b", Geometry: &domain.Point{X: 3, Y: 4}}, Tag: domain.TagFN},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTagged(&buf, objs))

	back, err := ReadObjects(&buf, domain.SourceGT)
	require.NoError(t, err)
	require.Len(t, back, 2)
	require.NotNil(t, back[0].Geometry.Z)
	assert.Equal(t, z, *back[0].Geometry.Z)
	assert.Nil(t, back[1].Geometry.Z)
	assert.Equal(t, "a", back[0].Properties[PropGeohash])
	assert.Equal(t, string(domain.TagFN), back[1].Properties[PropTag])
}
