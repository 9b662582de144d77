package geopackage

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/domain"
)

func TestDecodeBlobRoundTrip(t *testing.T) {
	shape := geometry.MustWKT("POLYGON((0 0,4 0,4 4,0 4,0 0))")
	env := shape.BoundingBox()

	blob := EncodeBlob(25832, shape.WKB(), &env, false)
	header, wkb, err := DecodeBlob(blob)
	if err != nil {
		t.Fatalf("DecodeBlob() error = %v", err)
	}
	if header.SRID != 25832 {
		t.Errorf("SRID = %d, want 25832", header.SRID)
	}
	if header.Empty {
		t.Error("Empty = true")
	}
	if header.Envelope == nil || *header.Envelope != env {
		t.Errorf("Envelope = %v, want %v", header.Envelope, env)
	}

	decoded, err := geometry.FromWKB(wkb)
	if err != nil {
		t.Fatalf("FromWKB() error = %v", err)
	}
	if decoded.BoundingBox() != env {
		t.Errorf("decoded extent = %v", decoded.BoundingBox())
	}
}

func TestDecodeBlobBigEndianWithoutEnvelope(t *testing.T) {
	wkb := geometry.MustWKT("POINT(1 2)").WKB()
	blob := []byte{'G', 'P', 0, 0x00}
	blob = binary.BigEndian.AppendUint32(blob, 4326)
	blob = append(blob, wkb...)

	header, payload, err := DecodeBlob(blob)
	if err != nil {
		t.Fatalf("DecodeBlob() error = %v", err)
	}
	if header.SRID != 4326 || header.Envelope != nil {
		t.Errorf("header = %+v", header)
	}
	if len(payload) != len(wkb) {
		t.Errorf("payload length = %d, want %d", len(payload), len(wkb))
	}
}

func TestDecodeBlobErrors(t *testing.T) {
	valid := EncodeBlob(4326, geometry.MustWKT("POINT(1 2)").WKB(), nil, false)

	tests := []struct {
		name string
		blob []byte
	}{
		{"too short", []byte{'G', 'P'}},
		{"bad magic", append([]byte{'X', 'X'}, valid[2:]...)},
		{"extended type", append([]byte{'G', 'P', 0, 0x21}, valid[4:]...)},
		{"invalid envelope code", append([]byte{'G', 'P', 0, 0x0b}, valid[4:]...)},
		{"truncated envelope", []byte{'G', 'P', 0, 0x03, 0, 0, 0, 0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeBlob(tt.blob); !errors.Is(err, errBlob) {
				t.Errorf("DecodeBlob() error = %v, want errBlob", err)
			}
		})
	}
}

func TestDecodeGeometryEmptyFlag(t *testing.T) {
	blob := EncodeBlob(4326, geometry.MustWKT("POINT EMPTY").WKB(), nil, true)
	g, err := decodeGeometry(blob)
	if err != nil {
		t.Fatalf("decodeGeometry() error = %v", err)
	}
	f := domain.Feature{ID: 1, Geometry: g}
	if f.HasValidGeometry() {
		t.Error("empty blob should not yield a valid geometry")
	}
}
