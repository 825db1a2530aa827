package geofile

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/geometry"
)

// Header flag bits of a GeoPackage geometry blob.
const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02 // envelope indicator 1 in bits 1-3
	flagEmpty        = 0x10
	envelopeMask     = 0x0e
)

// encodeBlob wraps p as a GeoPackage geometry blob: the "GP" header with
// srs id and xy envelope, followed by a little-endian WKB multipolygon.
func encodeBlob(p geom.Polygon, srsID int) ([]byte, error) {
	body, err := geometry.MarshalWKB(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0)

	minX, minY, maxX, maxY, ok := geometry.Bounds(p)
	if !ok {
		buf.WriteByte(flagLittleEndian | flagEmpty)
		_ = binary.Write(&buf, binary.LittleEndian, int32(srsID))
		buf.Write(body)
		return buf.Bytes(), nil
	}
	buf.WriteByte(flagLittleEndian | flagEnvelopeXY)
	_ = binary.Write(&buf, binary.LittleEndian, int32(srsID))
	for _, v := range []float64{minX, maxX, minY, maxY} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// decodeBlob parses a GeoPackage geometry blob and returns its polygon and
// header srs id. Non-polygonal geometries are rejected.
func decodeBlob(b []byte) (geom.Polygon, int, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, eris.New("geofile: not a geometry blob")
	}
	flags := b[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int(int32(order.Uint32(b[4:8])))

	var envelope int
	switch (flags & envelopeMask) >> 1 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, eris.Errorf("geofile: invalid envelope indicator in flags %#x", flags)
	}
	start := 8 + envelope
	if len(b) < start {
		return nil, 0, eris.New("geofile: truncated geometry blob")
	}
	if flags&flagEmpty != 0 && len(b) == start {
		return nil, srsID, nil
	}
	p, err := geometry.UnmarshalWKB(b[start:])
	if err != nil {
		return nil, 0, err
	}
	return p, srsID, nil
}

// envelopeOf returns the bounding box of all features for gpkg_contents.
func envelopeOf(features []Feature) (minX, minY, maxX, maxY float64, ok bool) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, f := range features {
		x0, y0, x1, y1, has := geometry.Bounds(f.Geometry)
		if !has {
			continue
		}
		ok = true
		minX, minY = min(minX, x0), min(minY, y0)
		maxX, maxY = max(maxX, x1), max(maxY, y1)
	}
	return minX, minY, maxX, maxY, ok
}
