package pointcloud

import (
	"encoding/binary"
	"math"
)

// PointSize is the encoded size in bytes of a single point: three
// little-endian float32 coordinates.
const PointSize = 12

// maxDecodePoints bounds decode allocations from untrusted input.
// At 12 bytes per point, 1M points is a 12MB blob.
const maxDecodePoints = 1000000

// EncodeBlob encodes a cloud to a compact binary blob of PointSize bytes per
// point. The layout is stable and used for BLOB columns in the run store.
func EncodeBlob(c Cloud) []byte {
	blob := make([]byte, len(c)*PointSize)
	for i, p := range c {
		off := i * PointSize
		binary.LittleEndian.PutUint32(blob[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(blob[off+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(blob[off+8:], math.Float32bits(p.Z))
	}
	return blob
}

// DecodeBlob decodes a blob produced by EncodeBlob. It returns nil if the
// blob is empty, its length is not a multiple of PointSize, or the point
// count is implausibly large.
func DecodeBlob(blob []byte) Cloud {
	if len(blob) == 0 || len(blob)%PointSize != 0 {
		return nil
	}
	n := len(blob) / PointSize
	if n > maxDecodePoints {
		return nil
	}
	c := make(Cloud, n)
	for i := 0; i < n; i++ {
		off := i * PointSize
		c[i] = Point{
			X: math.Float32frombits(binary.LittleEndian.Uint32(blob[off:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(blob[off+4:])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(blob[off+8:])),
		}
	}
	return c
}
