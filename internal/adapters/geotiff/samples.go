package geotiff

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"
)

// Compression schemes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionPackBits     = 32773
	compressionAdobeDeflate = 32946
)

// PlanarConfiguration values.
const (
	planarChunky   = 1
	planarSeparate = 2
)

// Predictor values.
const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// SampleFormat values.
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// maxTilePixels bounds a single decompressed tile.
const maxTilePixels = 1 << 24

// errLayout marks valid TIFF files whose sample layout cannot be read.
var errLayout = errors.New("unsupported sample layout")

func layoutErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errLayout, fmt.Sprintf(format, args...))
}

// sampleFunc converts one stored sample to an 8-bit channel value.
type sampleFunc func(b []byte) uint8

// chunk is one strip or tile of the image.
type chunk struct {
	x, y          int // top-left pixel
	width, height int // stored size; tiles may extend past the image
	band          int // first band held by the chunk
	offset, size  uint32
}

// readSamples decodes every strip or tile of the first image and writes the
// raw per-band samples into c. The photometric interpretation is ignored.
func readSamples(ctx context.Context, data []byte, dir *directory, c *canvas) error {
	bits, err := dir.sampleBits()
	if err != nil {
		return err
	}
	sample, err := sampleReader(dir.Order, bits, dir.SampleFormat)
	if err != nil {
		return err
	}
	if dir.Predictor != predictorNone && dir.Predictor != predictorHorizontal {
		return layoutErrorf("predictor %d", dir.Predictor)
	}
	if dir.Predictor == predictorHorizontal && bits != 8 && bits != 16 {
		return layoutErrorf("horizontal predictor with %d-bit samples", bits)
	}

	chunks, err := dir.chunks()
	if err != nil {
		return err
	}

	perChunk := dir.SamplesPerPixel
	if dir.PlanarConfig == planarSeparate {
		perChunk = 1
	}
	size := bits / 8

	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		rowBytes := ch.width * perChunk * size
		buf, err := dir.inflate(data, ch, rowBytes*ch.height)
		if err != nil {
			return fmt.Errorf("chunk at offset %d: %w", ch.offset, err)
		}
		if dir.Predictor == predictorHorizontal {
			undoDifferencing(buf, rowBytes, perChunk, bits, dir.Order)
		}

		for y := 0; y < ch.height && ch.y+y < dir.Height; y++ {
			row := buf[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < ch.width && ch.x+x < dir.Width; x++ {
				for s := 0; s < perChunk; s++ {
					off := (x*perChunk + s) * size
					c.set(ch.x+x, ch.y+y, ch.band+s, sample(row[off:off+size]))
				}
			}
		}
	}
	return nil
}

// sampleBits returns the common bit depth of all bands.
func (d *directory) sampleBits() (int, error) {
	if len(d.BitsPerSample) == 0 {
		return 0, layoutErrorf("1-bit samples")
	}
	bits := d.BitsPerSample[0]
	for _, b := range d.BitsPerSample[1:] {
		if b != bits {
			return 0, layoutErrorf("mixed bit depths %v", d.BitsPerSample)
		}
	}
	switch bits {
	case 8, 16, 32, 64:
		return int(bits), nil
	}
	return 0, layoutErrorf("%d-bit samples", bits)
}

// chunks lists the strips or tiles in storage order. Separate planes store
// every chunk of band 0 before those of band 1.
func (d *directory) chunks() ([]chunk, error) {
	planes := 1
	switch d.PlanarConfig {
	case planarChunky:
	case planarSeparate:
		planes = d.SamplesPerPixel
	default:
		return nil, layoutErrorf("planar configuration %d", d.PlanarConfig)
	}

	var out []chunk
	if d.TileWidth > 0 && d.TileLength > 0 {
		if int64(d.TileWidth)*int64(d.TileLength) > maxTilePixels {
			return nil, layoutErrorf("%dx%d tiles", d.TileWidth, d.TileLength)
		}
		across := (d.Width + d.TileWidth - 1) / d.TileWidth
		down := (d.Height + d.TileLength - 1) / d.TileLength
		if want := across * down * planes; len(d.TileOffsets) < want {
			return nil, fmt.Errorf("%d tile offsets, want %d", len(d.TileOffsets), want)
		}
		for p := 0; p < planes; p++ {
			for ty := 0; ty < down; ty++ {
				for tx := 0; tx < across; tx++ {
					i := p*across*down + ty*across + tx
					out = append(out, chunk{
						x: tx * d.TileWidth, y: ty * d.TileLength,
						width: d.TileWidth, height: d.TileLength,
						band:   p,
						offset: d.TileOffsets[i], size: at(d.TileByteCounts, i),
					})
				}
			}
		}
		return out, nil
	}

	rows := d.RowsPerStrip
	if rows <= 0 || rows > d.Height {
		rows = d.Height
	}
	strips := (d.Height + rows - 1) / rows
	if want := strips * planes; len(d.StripOffsets) < want {
		return nil, fmt.Errorf("%d strip offsets, want %d", len(d.StripOffsets), want)
	}
	for p := 0; p < planes; p++ {
		for s := 0; s < strips; s++ {
			i := p*strips + s
			out = append(out, chunk{
				y:     s * rows,
				width: d.Width, height: min(rows, d.Height-s*rows),
				band:   p,
				offset: d.StripOffsets[i], size: at(d.StripByteCounts, i),
			})
		}
	}
	return out, nil
}

func at(v []uint32, i int) uint32 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// inflate returns the n decompressed bytes of ch. A missing byte count
// reads up to the end of the file.
func (d *directory) inflate(data []byte, ch chunk, n int) ([]byte, error) {
	start := uint64(ch.offset)
	if start > uint64(len(data)) {
		return nil, fmt.Errorf("offset beyond end of file")
	}
	end := uint64(len(data))
	if ch.size > 0 && start+uint64(ch.size) < end {
		end = start + uint64(ch.size)
	}
	raw := data[start:end]

	switch d.Compression {
	case compressionNone:
		if len(raw) < n {
			return nil, io.ErrUnexpectedEOF
		}
		return append([]byte(nil), raw[:n]...), nil
	case compressionLZW:
		return readFull(lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8), n)
	case compressionDeflate, compressionAdobeDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return readFull(zr, n)
	case compressionPackBits:
		return unpackBits(raw, n)
	}
	return nil, layoutErrorf("compression %d", d.Compression)
}

func readFull(rc io.ReadCloser, n int) ([]byte, error) {
	defer func() { _ = rc.Close() }()
	buf := make([]byte, n)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// unpackBits expands PackBits run-length data until n bytes are produced.
func unpackBits(src []byte, n int) ([]byte, error) {
	dst := make([]byte, 0, n)
	for len(dst) < n {
		if len(src) == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		code := int8(src[0]) //#nosec G115 -- PackBits headers are signed
		src = src[1:]
		switch {
		case code >= 0:
			k := int(code) + 1
			if len(src) < k {
				return nil, io.ErrUnexpectedEOF
			}
			dst = append(dst, src[:k]...)
			src = src[k:]
		case code != -128:
			if len(src) == 0 {
				return nil, io.ErrUnexpectedEOF
			}
			for k := 1 - int(code); k > 0; k-- {
				dst = append(dst, src[0])
			}
			src = src[1:]
		}
	}
	return dst[:n], nil
}

// undoDifferencing reverses the horizontal predictor in place.
func undoDifferencing(buf []byte, rowBytes, perPixel, bits int, order binary.ByteOrder) {
	for row := 0; row+rowBytes <= len(buf); row += rowBytes {
		r := buf[row : row+rowBytes]
		switch bits {
		case 8:
			for i := perPixel; i < len(r); i++ {
				r[i] += r[i-perPixel]
			}
		case 16:
			step := perPixel * 2
			for i := step; i+1 < len(r); i += 2 {
				order.PutUint16(r[i:], order.Uint16(r[i:])+order.Uint16(r[i-step:]))
			}
		}
	}
}

// sampleReader picks the conversion for the bit depth and sample format.
// Values outside 0..255 saturate.
func sampleReader(order binary.ByteOrder, bits int, format uint32) (sampleFunc, error) {
	switch {
	case format == sampleUint && bits == 8:
		return func(b []byte) uint8 { return b[0] }, nil
	case format == sampleUint && bits == 16:
		return func(b []byte) uint8 { return clampInt(int64(order.Uint16(b))) }, nil
	case format == sampleUint && bits == 32:
		return func(b []byte) uint8 { return clampInt(int64(order.Uint32(b))) }, nil
	case format == sampleInt && bits == 8:
		return func(b []byte) uint8 { return clampInt(int64(int8(b[0]))) }, nil //#nosec G115 -- two's complement
	case format == sampleInt && bits == 16:
		return func(b []byte) uint8 { return clampInt(int64(int16(order.Uint16(b)))) }, nil //#nosec G115 -- two's complement
	case format == sampleInt && bits == 32:
		return func(b []byte) uint8 { return clampInt(int64(int32(order.Uint32(b)))) }, nil //#nosec G115 -- two's complement
	case format == sampleFloat && bits == 32:
		return func(b []byte) uint8 { return clampFloat(float64(math.Float32frombits(order.Uint32(b)))) }, nil
	case format == sampleFloat && bits == 64:
		return func(b []byte) uint8 { return clampFloat(math.Float64frombits(order.Uint64(b))) }, nil
	}
	return nil, layoutErrorf("%d-bit samples with sample format %d", bits, format)
}

func clampInt(v int64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v) //#nosec G115 -- bounded above
}

func clampFloat(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
