package geopackage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

var errNotGeoPackageBinary = errors.New("missing GP magic")

// gpHeader is the header preceding WKB in a GeoPackage geometry blob.
type gpHeader struct {
	srsID int32
	empty bool
	size  int // header length including the envelope
}

// envelopeSizes maps the envelope contents indicator to its byte length.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

func parseGPHeader(blob []byte) (gpHeader, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return gpHeader{}, errNotGeoPackageBinary
	}

	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 == 1 {
		order = binary.LittleEndian
	}

	envelope, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return gpHeader{}, fmt.Errorf("invalid envelope indicator %d", (flags>>1)&0x07)
	}

	h := gpHeader{
		srsID: int32(order.Uint32(blob[4:8])), //#nosec G115 -- srs_id is a signed 32-bit field
		empty: flags&0x10 != 0,
		size:  8 + envelope,
	}
	if len(blob) < h.size {
		return gpHeader{}, fmt.Errorf("geometry blob truncated: %d bytes, header needs %d", len(blob), h.size)
	}
	return h, nil
}

// decodeGeometry converts a GeoPackage geometry blob to an orb geometry.
// Empty geometries decode to nil.
func decodeGeometry(blob []byte) (orb.Geometry, int32, error) {
	if len(blob) == 0 {
		return nil, 0, nil
	}
	h, err := parseGPHeader(blob)
	if err != nil {
		return nil, 0, err
	}
	if h.empty {
		return nil, h.srsID, nil
	}

	g, err := wkb.Unmarshal(blob[h.size:])
	if err != nil {
		return nil, h.srsID, fmt.Errorf("decoding WKB: %w", err)
	}
	return g, h.srsID, nil
}

// encodeGeometry builds a little-endian GeoPackage blob without envelope.
func encodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 8, 8+len(body))
	blob[0], blob[1] = 'G', 'P'
	blob[3] = 0x01
	binary.LittleEndian.PutUint32(blob[4:8], uint32(srsID)) //#nosec G115 -- round trip of a signed field
	return append(blob, body...), nil
}
