package terrascan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/detscore/internal/core/domain"
)

const sample = `# group,count,avg_e,avg_n,avg_z,gz,trunk_e,trunk_n,trunk_gz,dbh,canopy,big,small,len,wid,h
1,523,2600000.50,1200000.25,455.1,440.0,2600000.10,1200000.05,439.8,0.42,6.1,3.2,2.8,6.3,5.9,18.4
2, 311,2600010.00,1200003.00,452.0,441.2,2600010.40,1200002.60,441.0,0.31,4.4,2.5,1.9,4.6,4.1,14.0
`

func TestRead_Trunk(t *testing.T) {
	objs, err := Read(strings.NewReader(sample), PositionTrunk)
	require.NoError(t, err)
	require.Len(t, objs, 2)

	p := objs[0].Geometry
	assert.Equal(t, 2600000.10, p.X)
	assert.Equal(t, 1200000.05, p.Y)
	require.NotNil(t, p.Z)
	assert.Equal(t, 439.8, *p.Z)
	assert.Equal(t, 18.4, objs[0].Properties["height"])
	assert.Equal(t, 311.0, objs[1].Properties["point_count"])
	assert.Equal(t, domain.SourceDET, objs[1].Source)
}

func TestRead_Average(t *testing.T) {
	objs, err := Read(strings.NewReader(sample), PositionAverage)
	require.NoError(t, err)
	assert.Equal(t, 2600010.00, objs[1].Geometry.X)
	assert.Equal(t, 452.0, *objs[1].Geometry.Z)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader("1,2,3\n"), PositionTrunk)
	assert.ErrorIs(t, err, ErrColumnCount)

	bad := strings.Replace(sample, "18.4", "tall", 1)
	_, err = Read(strings.NewReader(bad), PositionTrunk)
	var ie *domain.InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 0, ie.Index)

	_, err = Read(strings.NewReader(sample), "top")
	assert.ErrorIs(t, err, domain.ErrInvalidOptions)
}

type stubSource []domain.SpatialObject

func (s stubSource) LoadObjects(ctx context.Context, source domain.Source) ([]domain.SpatialObject, error) {
	return s, nil
}

func TestSource_DelegatesGroundTruth(t *testing.T) {
	gt := stubSource{{Geometry: &domain.Point{X: 1, Y: 1}}}
	src := Source{GT: gt}
	got, err := src.LoadObjects(context.Background(), domain.SourceGT)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = src.LoadObjects(context.Background(), domain.SourceDET)
	require.NoError(t, err)
	assert.Empty(t, got)
}
