package geotiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// TIFF and GeoTIFF tag numbers read from the first IFD.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagExtraSamples        = 338
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
)

// GeoKey IDs.
const (
	geoKeyGeographicType  = 2048
	geoKeyProjectedCSType = 3072
)

// TIFF field types.
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeFloat    = 11
	typeDouble   = 12
)

var typeSizes = map[uint16]uint32{
	typeByte:     1,
	typeASCII:    1,
	typeShort:    2,
	typeLong:     4,
	typeRational: 8,
	typeFloat:    4,
	typeDouble:   8,
}

var (
	errNotTIFF = errors.New("not a TIFF file")
	errBigTIFF = errors.New("BigTIFF is not supported")
)

// directory holds the fields of the first IFD needed to place and decode
// the image.
type directory struct {
	Order           binary.ByteOrder
	Width           int
	Height          int
	BitsPerSample   []uint32
	SamplesPerPixel int
	Compression     uint32
	Photometric     uint32
	PlanarConfig    uint32
	Predictor       uint32
	SampleFormat    uint32
	ExtraSamples    []uint32
	RowsPerStrip    int
	StripOffsets    []uint32
	StripByteCounts []uint32
	TileWidth       int
	TileLength      int
	TileOffsets     []uint32
	TileByteCounts  []uint32
	PixelScale      []float64 // ScaleX, ScaleY, ScaleZ
	Tiepoint        []float64 // I, J, K, X, Y, Z
	Transformation  []float64 // 4x4 row-major raster to model matrix
	GeoKeys         []uint32
}

// readDirectory parses the header and first IFD of a classic TIFF.
func readDirectory(data []byte) (*directory, error) {
	if len(data) < 8 {
		return nil, errNotTIFF
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errNotTIFF
	}
	switch order.Uint16(data[2:4]) {
	case 42:
	case 43:
		return nil, errBigTIFF
	default:
		return nil, errNotTIFF
	}

	offset := order.Uint32(data[4:8])
	if uint64(offset)+2 > uint64(len(data)) {
		return nil, fmt.Errorf("IFD offset %d beyond end of file", offset)
	}
	count := uint32(order.Uint16(data[offset : offset+2]))
	if uint64(offset)+2+uint64(count)*12 > uint64(len(data)) {
		return nil, fmt.Errorf("IFD with %d entries truncated", count)
	}

	dir := &directory{
		Order:           order,
		SamplesPerPixel: 1,
		Compression:     compressionNone,
		PlanarConfig:    planarChunky,
		Predictor:       predictorNone,
		SampleFormat:    sampleUint,
	}
	for i := uint32(0); i < count; i++ {
		entry := data[offset+2+i*12 : offset+2+(i+1)*12]
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		n := order.Uint32(entry[4:8])

		size, known := typeSizes[typ]
		if !known {
			continue
		}
		raw, err := fieldBytes(data, order, entry[8:12], size, n)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}

		switch tag {
		case tagImageWidth:
			dir.Width = int(first(uints(raw, order, typ, n)))
		case tagImageLength:
			dir.Height = int(first(uints(raw, order, typ, n)))
		case tagBitsPerSample:
			dir.BitsPerSample = uints(raw, order, typ, n)
		case tagCompression:
			dir.Compression = first(uints(raw, order, typ, n))
		case tagPhotometric:
			dir.Photometric = first(uints(raw, order, typ, n))
		case tagSamplesPerPixel:
			dir.SamplesPerPixel = int(first(uints(raw, order, typ, n)))
		case tagPlanarConfig:
			dir.PlanarConfig = first(uints(raw, order, typ, n))
		case tagPredictor:
			dir.Predictor = first(uints(raw, order, typ, n))
		case tagRowsPerStrip:
			dir.RowsPerStrip = int(first(uints(raw, order, typ, n)))
		case tagStripOffsets:
			dir.StripOffsets = uints(raw, order, typ, n)
		case tagStripByteCounts:
			dir.StripByteCounts = uints(raw, order, typ, n)
		case tagTileWidth:
			dir.TileWidth = int(first(uints(raw, order, typ, n)))
		case tagTileLength:
			dir.TileLength = int(first(uints(raw, order, typ, n)))
		case tagTileOffsets:
			dir.TileOffsets = uints(raw, order, typ, n)
		case tagTileByteCounts:
			dir.TileByteCounts = uints(raw, order, typ, n)
		case tagSampleFormat:
			dir.SampleFormat = first(uints(raw, order, typ, n))
		case tagExtraSamples:
			dir.ExtraSamples = uints(raw, order, typ, n)
		case tagModelPixelScale:
			dir.PixelScale = floats(raw, order, typ, n)
		case tagModelTiepoint:
			dir.Tiepoint = floats(raw, order, typ, n)
		case tagModelTransformation:
			dir.Transformation = floats(raw, order, typ, n)
		case tagGeoKeyDirectory:
			dir.GeoKeys = uints(raw, order, typ, n)
		}
	}

	if dir.Width <= 0 || dir.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", dir.Width, dir.Height)
	}
	return dir, nil
}

// fieldBytes returns the value bytes of an entry, inline or at its offset.
func fieldBytes(data []byte, order binary.ByteOrder, value []byte, size, n uint32) ([]byte, error) {
	total := uint64(size) * uint64(n)
	if total <= 4 {
		return value[:total], nil
	}
	off := uint64(order.Uint32(value))
	if off+total > uint64(len(data)) {
		return nil, fmt.Errorf("value at %d with %d bytes beyond end of file", off, total)
	}
	return data[off : off+total], nil
}

func uints(raw []byte, order binary.ByteOrder, typ uint16, n uint32) []uint32 {
	out := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		switch typ {
		case typeByte:
			out = append(out, uint32(raw[i]))
		case typeShort:
			out = append(out, uint32(order.Uint16(raw[i*2:])))
		case typeLong:
			out = append(out, order.Uint32(raw[i*4:]))
		}
	}
	return out
}

func floats(raw []byte, order binary.ByteOrder, typ uint16, n uint32) []float64 {
	out := make([]float64, 0, n)
	for i := uint32(0); i < n; i++ {
		switch typ {
		case typeDouble:
			out = append(out, math.Float64frombits(order.Uint64(raw[i*8:])))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(order.Uint32(raw[i*4:]))))
		case typeRational:
			num, den := order.Uint32(raw[i*8:]), order.Uint32(raw[i*8+4:])
			if den != 0 {
				out = append(out, float64(num)/float64(den))
			}
		}
	}
	return out
}

func first(v []uint32) uint32 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// epsg returns the ProjectedCSTypeGeoKey and GeographicTypeGeoKey values
// stored inline in the key directory.
func (d *directory) epsg() (projected, geographic int) {
	keys := d.GeoKeys
	if len(keys) < 4 {
		return 0, 0
	}
	// Header: KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys.
	numKeys := int(keys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		// A location of zero means the value is stored in the entry itself.
		if keys[base+1] != 0 {
			continue
		}
		switch keys[base] {
		case geoKeyProjectedCSType:
			projected = int(keys[base+3])
		case geoKeyGeographicType:
			geographic = int(keys[base+3])
		}
	}
	return projected, geographic
}

// bbox returns [west, south, east, north] in the raster CRS from the pixel
// scale and tiepoint, or from the model transformation when those are
// missing. ok is false when neither is present.
func (d *directory) bbox() (west, south, east, north float64, ok bool) {
	if len(d.PixelScale) < 2 || len(d.Tiepoint) < 6 {
		return d.transformedBBox()
	}
	scaleX, scaleY := math.Abs(d.PixelScale[0]), math.Abs(d.PixelScale[1])
	if scaleX == 0 || scaleY == 0 {
		return 0, 0, 0, 0, false
	}

	// The tiepoint maps raster (I, J) to model (X, Y).
	originX := d.Tiepoint[3] - d.Tiepoint[0]*scaleX
	originY := d.Tiepoint[4] + d.Tiepoint[1]*scaleY

	west = originX
	north = originY
	east = originX + float64(d.Width)*scaleX
	south = originY - float64(d.Height)*scaleY
	return west, south, east, north, true
}

// transformedBBox maps the four raster corners through the affine part of
// ModelTransformationTag.
func (d *directory) transformedBBox() (west, south, east, north float64, ok bool) {
	m := d.Transformation
	if len(m) < 16 {
		return 0, 0, 0, 0, false
	}
	// X = m0*I + m1*J + m3, Y = m4*I + m5*J + m7.
	if m[0]*m[5]-m[1]*m[4] == 0 {
		return 0, 0, 0, 0, false
	}

	west, south = math.Inf(1), math.Inf(1)
	east, north = math.Inf(-1), math.Inf(-1)
	w, h := float64(d.Width), float64(d.Height)
	for _, p := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x := m[0]*p[0] + m[1]*p[1] + m[3]
		y := m[4]*p[0] + m[5]*p[1] + m[7]
		west, east = math.Min(west, x), math.Max(east, x)
		south, north = math.Min(south, y), math.Max(north, y)
	}
	return west, south, east, north, true
}
