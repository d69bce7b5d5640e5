package compression

import (
	"errors"
	"fmt"
)

const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01

	DefaultLevel = 3
)

var ErrUnknownFrame = errors.New("unknown compression frame")

// Frame prefixes value with a one byte marker, compressing it with zstd when
// compress is set. Values are always framed so a store can be switched between
// compressed and raw without rewriting existing keys.
func Frame(value []byte, compress bool) ([]byte, error) {
	if !compress {
		out := make([]byte, 0, len(value)+1)
		out = append(out, frameRaw)
		return append(out, value...), nil
	}
	compressed, err := ZstdCompressLevel(nil, value, DefaultLevel)
	if err != nil {
		return nil, fmt.Errorf("zstd compress: %w", err)
	}
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, frameZstd)
	return append(out, compressed...), nil
}

func Unframe(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, ErrUnknownFrame
	}
	switch stored[0] {
	case frameRaw:
		return stored[1:], nil
	case frameZstd:
		out, err := ZstdDecompress(nil, stored[1:])
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownFrame, stored[0])
}
