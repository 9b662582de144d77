package geopackage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// GeoPackage binary header flag bits.
const (
	flagLittleEndian  = 0x01
	flagEnvelopeMask  = 0x0e
	flagEmpty         = 0x10
	flagExtendedType  = 0x20
	blobHeaderMinSize = 8
)

var errBlob = errors.New("gpkg blob")

// BlobHeader is the decoded header of a GeoPackage geometry blob.
type BlobHeader struct {
	Version  byte
	SRID     int32
	Empty    bool
	Envelope *domain.Extent
}

// envelopeSize returns the number of envelope bytes for an indicator code.
func envelopeSize(code byte) (int, error) {
	switch code {
	case 0:
		return 0, nil
	case 1:
		return 32, nil
	case 2, 3:
		return 48, nil
	case 4:
		return 64, nil
	default:
		return 0, fmt.Errorf("%w: invalid envelope indicator %d", errBlob, code)
	}
}

// DecodeBlob splits a GeoPackage geometry blob into its header and the
// standard WKB payload.
func DecodeBlob(b []byte) (BlobHeader, []byte, error) {
	var h BlobHeader
	if len(b) < blobHeaderMinSize {
		return h, nil, fmt.Errorf("%w: %d bytes is shorter than the header", errBlob, len(b))
	}
	if b[0] != 'G' || b[1] != 'P' {
		return h, nil, fmt.Errorf("%w: bad magic %q", errBlob, b[:2])
	}

	h.Version = b[2]
	flags := b[3]
	if flags&flagExtendedType != 0 {
		return h, nil, fmt.Errorf("%w: extended geometry types are not supported", errBlob)
	}
	h.Empty = flags&flagEmpty != 0

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	h.SRID = int32(order.Uint32(b[4:8]))

	envLen, err := envelopeSize((flags & flagEnvelopeMask) >> 1)
	if err != nil {
		return h, nil, err
	}
	if len(b) < blobHeaderMinSize+envLen {
		return h, nil, fmt.Errorf("%w: truncated envelope", errBlob)
	}
	if envLen > 0 {
		env := b[blobHeaderMinSize:]
		f := func(i int) float64 { return math.Float64frombits(order.Uint64(env[i*8:])) }
		// minx, maxx, miny, maxy; NaN marks an empty envelope.
		minX, maxX, minY, maxY := f(0), f(1), f(2), f(3)
		if !math.IsNaN(minX) {
			e := domain.NewExtent(minX, minY, maxX, maxY)
			h.Envelope = &e
		}
	}

	return h, b[blobHeaderMinSize+envLen:], nil
}

// EncodeBlob builds a little-endian GeoPackage blob with an XY envelope.
// A nil envelope writes no envelope.
func EncodeBlob(srid int32, wkb []byte, envelope *domain.Extent, empty bool) []byte {
	flags := byte(flagLittleEndian)
	if envelope != nil {
		flags |= 1 << 1
	}
	if empty {
		flags |= flagEmpty
	}

	out := make([]byte, blobHeaderMinSize, blobHeaderMinSize+32+len(wkb))
	out[0], out[1], out[2], out[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(out[4:], uint32(srid))
	if envelope != nil {
		for _, v := range []float64{envelope.MinX, envelope.MaxX, envelope.MinY, envelope.MaxY} {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		}
	}
	return append(out, wkb...)
}
