package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobrunner/spatialquery/internal/domain"
)

func TestParseLayerArg(t *testing.T) {
	tests := []struct {
		in      string
		want    layerArg
		wantErr bool
	}{
		{in: "city.gpkg:sites", want: layerArg{Path: "city.gpkg", Layer: "sites"}},
		{in: "/data/city.gpkg:zones", want: layerArg{Path: "/data/city.gpkg", Layer: "zones"}},
		{in: `C:\data\city.gpkg:zones`, want: layerArg{Path: `C:\data\city.gpkg`, Layer: "zones"}},
		{in: "city.gpkg", wantErr: true},
		{in: "city.gpkg:", wantErr: true},
		{in: ":zones", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLayerArg("target", tt.in)
			if tt.wantErr {
				var verr *domain.ValidationError
				if !errors.As(err, &verr) || verr.Field != "target" {
					t.Errorf("parseLayerArg(%q) error = %v, want ValidationError on target", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parseLayerArg(%q) = %+v, %v; want %+v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestFeatureIDs(t *testing.T) {
	got := featureIDs([]int64{3, 1})
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Errorf("featureIDs() = %v", got)
	}
	if got := featureIDs(nil); len(got) != 0 {
		t.Errorf("featureIDs(nil) = %v", got)
	}
}

func TestNewQueryOutput(t *testing.T) {
	resp := &domain.SpatialQueryResponse{
		Relation:       domain.Disjoint,
		Matched:        []domain.FeatureID{2},
		TargetCount:    3,
		ReferenceCount: 1,
		Digest:         "00ff",
		ProcessingTime: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	if err := writeJSON(&buf, newQueryOutput(resp)); err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc["relation"] != "disjoint" {
		t.Errorf("relation = %v", doc["relation"])
	}
	if doc["processing_time_ms"] != float64(1500) {
		t.Errorf("processing_time_ms = %v", doc["processing_time_ms"])
	}
	if !strings.Contains(buf.String(), `"invalid_target": []`) {
		t.Errorf("empty id lists should render as []:\n%s", buf.String())
	}
}

func TestRunRelations(t *testing.T) {
	tests := []struct {
		target, reference string
		want              []string
		wantErr           error
	}{
		{"POINT", "POLYGON", []string{"intersects", "disjoint", "touches", "crosses", "within"}, nil},
		{"polygon", "point", []string{"intersects", "disjoint", "contains"}, nil},
		{"POINT", "GEOMETRYCOLLECTION", nil, domain.ErrUnsupportedGeometryType},
	}

	for _, tt := range tests {
		t.Run(tt.target+"/"+tt.reference, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.Flags().String("target-type", tt.target, "")
			cmd.Flags().String("reference-type", tt.reference, "")
			var out bytes.Buffer
			cmd.SetOut(&out)

			err := runRelations(cmd, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("runRelations() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if got := strings.Fields(out.String()); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("relations = %v, want %v", got, tt.want)
			}
		})
	}
}
