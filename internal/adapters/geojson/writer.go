package geojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// Output property names.
const (
	PropGeohash  = "geohash"
	PropGroupID  = "group_id"
	PropTPCharge = "TP_charge"
	PropFPCharge = "FP_charge"
	PropFNCharge = "FN_charge"
	PropTag      = "tag"
)

// Features converts tagged objects into a FeatureCollection. Charges are
// written as exact fraction strings such as "1/3".
func Features(objs []domain.TaggedObject) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range objs {
		if o.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{o.Geometry.X, o.Geometry.Y})
		for k, v := range o.Properties {
			f.Properties[k] = v
		}
		f.Properties[PropGeohash] = o.ID
		if o.GroupID != nil {
			f.Properties[PropGroupID] = *o.GroupID
		} else {
			f.Properties[PropGroupID] = nil
		}
		if o.Charge.TP != nil {
			f.Properties[PropTPCharge] = o.Charge.TP.RatString()
		}
		if o.Charge.FP != nil {
			f.Properties[PropFPCharge] = o.Charge.FP.RatString()
		}
		if o.Charge.FN != nil {
			f.Properties[PropFNCharge] = o.Charge.FN.RatString()
		}
		if o.Tag != "" {
			f.Properties[PropTag] = string(o.Tag)
		}
		fc.Append(f)
	}
	return fc
}

// pointZ and featureZ encode positions with elevation, which orb.Point
// cannot hold.
type pointZ struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type featureZ struct {
	Type       string             `json:"type"`
	Geometry   pointZ             `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
}

// Marshal encodes tagged objects as a FeatureCollection. Points with an
// elevation get a three-value position.
func Marshal(objs []domain.TaggedObject) ([]byte, error) {
	fc := Features(objs)
	if !hasElevation(objs) {
		return json.Marshal(fc)
	}

	out := struct {
		Type     string     `json:"type"`
		Features []featureZ `json:"features"`
	}{Type: "FeatureCollection", Features: make([]featureZ, 0, len(fc.Features))}
	i := 0
	for _, o := range objs {
		if o.Geometry == nil {
			continue
		}
		pos := []float64{o.Geometry.X, o.Geometry.Y}
		if o.Geometry.Z != nil {
			pos = append(pos, *o.Geometry.Z)
		}
		out.Features = append(out.Features, featureZ{
			Type:       "Feature",
			Geometry:   pointZ{Type: "Point", Coordinates: pos},
			Properties: fc.Features[i].Properties,
		})
		i++
	}
	return json.Marshal(out)
}

func hasElevation(objs []domain.TaggedObject) bool {
	for _, o := range objs {
		if o.Geometry != nil && o.Geometry.Z != nil {
			return true
		}
	}
	return false
}

// WriteTagged encodes tagged objects as GeoJSON.
func WriteTagged(w io.Writer, objs []domain.TaggedObject) error {
	data, err := Marshal(objs)
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteTaggedFile writes tagged objects to path, creating parent directories.
func WriteTaggedFile(path string, objs []domain.TaggedObject) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTagged(f, objs); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
