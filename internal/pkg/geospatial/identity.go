package geospatial

import (
	"errors"
	"math"
)

// IdentityLength is the length of every identity returned by Identity.
const IdentityLength = 26

// Quantum is the grid step (in the frame's linear unit) below which two
// locations share an identity.
const Quantum = 1.0 / scale

const scale = 10000

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// ErrNotFinite is returned for NaN or infinite coordinates.
var ErrNotFinite = errors.New("coordinate is not finite")

// ErrOutOfRange is returned for coordinates too large to quantise.
var ErrOutOfRange = errors.New("coordinate out of range")

// maxAbs keeps quantised values inside int64.
const maxAbs = 9e14

// Identity encodes a location as a fixed-length geohash-alphabet string.
//
// Both coordinates are rounded to the Quantum grid, the two 64-bit values are
// bit-interleaved (x first, as geohash does with longitude) and the resulting
// 128 bits are written five at a time. The encoding is injective on the
// grid, ordering independent and identical on every platform.
func Identity(x, y float64) (string, error) {
	if !Finite(x, y) {
		return "", ErrNotFinite
	}
	if math.Abs(x) > maxAbs || math.Abs(y) > maxAbs {
		return "", ErrOutOfRange
	}
	qx := quantise(x)
	qy := quantise(y)

	var bits [16]byte
	for i := 0; i < 64; i++ {
		shift := uint(63 - i)
		setBit(&bits, 2*i, (qx>>shift)&1)
		setBit(&bits, 2*i+1, (qy>>shift)&1)
	}

	out := make([]byte, IdentityLength)
	for c := 0; c < IdentityLength; c++ {
		var v byte
		for b := 0; b < 5; b++ {
			v <<= 1
			pos := c*5 + b
			if pos < 128 && bits[pos/8]&(0x80>>uint(pos%8)) != 0 {
				v |= 1
			}
		}
		out[c] = base32[v]
	}
	return string(out), nil
}

// quantise maps a coordinate onto the grid and flips the sign bit so that
// unsigned ordering follows numeric ordering.
func quantise(v float64) uint64 {
	q := int64(math.Round(v * scale))
	return uint64(q) ^ (1 << 63)
}

func setBit(bits *[16]byte, pos int, v uint64) {
	if v == 1 {
		bits[pos/8] |= 0x80 >> uint(pos%8)
	}
}
