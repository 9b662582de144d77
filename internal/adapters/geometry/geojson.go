package geometry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// GeoJSONDecoder implements output.LayerDecoder.
type GeoJSONDecoder struct{}

type featureCollection struct {
	Type     string           `json:"type"`
	Features []geojsonFeature `json:"features"`
}

type geojsonFeature struct {
	ID       json.RawMessage `json:"id"`
	Geometry json.RawMessage `json:"geometry"`
}

// DecodeGeoJSON implements output.LayerDecoder. Features with a null
// geometry are kept with a missing geometry so the query reports them as
// invalid.
func (GeoJSONDecoder) DecodeGeoJSON(name string, data []byte, srid int, selection []domain.FeatureID) (output.FeatureLayer, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: decoding feature collection: %v", domain.ErrInvalidGeometry, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: expected FeatureCollection, got %q", domain.ErrInvalidGeometry, fc.Type)
	}

	features := make([]domain.Feature, 0, len(fc.Features))
	seen := domain.NewFeatureIDSet()
	for i, f := range fc.Features {
		id, err := parseFeatureID(f.ID, i+1)
		if err != nil {
			return nil, err
		}
		if seen.Contains(id) {
			return nil, fmt.Errorf("%w: duplicate feature id %d", domain.ErrInvalidGeometry, id)
		}
		seen.Add(id)

		feature := domain.Feature{ID: id, LayerName: name}
		if raw := bytes.TrimSpace(f.Geometry); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			g, err := geom.UnmarshalGeoJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: feature %d: %v", domain.ErrInvalidGeometry, id, err)
			}
			feature.Geometry = NewShape(g)
		}
		features = append(features, feature)
	}

	return NewMemoryLayer(name, srid, LayerGeometryType(features), features, selection), nil
}

// parseFeatureID accepts integral numeric ids and numeric strings. A missing
// id falls back to the 1-based position in the collection.
func parseFeatureID(raw json.RawMessage, position int) (domain.FeatureID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.FeatureID(position), nil
	}

	var n json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: feature id %s", domain.ErrInvalidInput, raw)
		}
		n = json.Number(s)
	} else {
		n = json.Number(raw)
	}

	id, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: feature id %s is not an integer", domain.ErrInvalidInput, raw)
	}
	return domain.FeatureID(id), nil
}
