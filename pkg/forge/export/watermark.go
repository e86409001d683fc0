package export

import "strings"

const (
	zwSpace  = '​' // encodes a 0 bit
	zwJoiner = '‍' // encodes a 1 bit
)

// Watermark derives an invisible marker from the first 16 hex digits of
// a dataset hash. Each digit becomes four zero-width characters, one
// per bit, so the marker survives copy and paste while staying
// invisible to readers.
func Watermark(datasetHash string) string {
	prefix := datasetHash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	var b strings.Builder
	b.Grow(len(prefix) * 4 * 3)
	for _, c := range prefix {
		nibble := hexVal(c)
		for bit := 3; bit >= 0; bit-- {
			if nibble&(1<<bit) != 0 {
				b.WriteRune(zwJoiner)
			} else {
				b.WriteRune(zwSpace)
			}
		}
	}
	return b.String()
}

// ExtractWatermark recovers the hash prefix from marked text, returning
// the empty string when no complete marker is present.
func ExtractWatermark(text string) string {
	bits := make([]byte, 0, 64)
	for _, r := range text {
		switch r {
		case zwSpace:
			bits = append(bits, 0)
		case zwJoiner:
			bits = append(bits, 1)
		}
	}
	if len(bits) < 64 {
		return ""
	}
	bits = bits[:64]
	var b strings.Builder
	for i := 0; i < 64; i += 4 {
		nibble := byte(0)
		for _, bit := range bits[i : i+4] {
			nibble = nibble<<1 | bit
		}
		b.WriteByte(hexDigit(nibble))
	}
	return b.String()
}

func hexVal(c rune) byte {
	switch {
	case c >= '0' && c <= '9':
		return byte(c - '0')
	case c >= 'a' && c <= 'f':
		return byte(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return byte(c-'A') + 10
	}
	return 0
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + n - 10
}
