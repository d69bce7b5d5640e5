//go:build cgo
// +build cgo

package compression

import (
	"github.com/DataDog/zstd"
)

func ZstdCompressLevel(dst, src []byte, level int) ([]byte, error) {
	return zstd.CompressLevel(dst, src, level)
}

func ZstdDecompress(dst, src []byte) ([]byte, error) {
	return zstd.Decompress(dst, src)
}
