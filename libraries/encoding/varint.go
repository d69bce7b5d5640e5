package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var ErrVarintOverflow = errors.New("varint overflows 32 bits")

func PutAsVarint(buff *bytes.Buffer, item int64) {
	var varbuf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(varbuf[:], item)
	buff.Write(varbuf[:n])
}

func PutAsUVarint(buff *bytes.Buffer, item uint64) {
	var varbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varbuf[:], item)
	buff.Write(varbuf[:n])
}

func GetAsVarint(buff io.ByteReader) (int64, error) {
	return binary.ReadVarint(buff)
}

func GetAsUVarint(buff io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(buff)
}

// GetAsVaruint32 reads an EOSIO varuint32 (LEB128, at most five bytes).
func GetAsVaruint32(buff io.ByteReader) (uint32, error) {
	v, err := binary.ReadUvarint(buff)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrVarintOverflow
	}
	return uint32(v), nil
}

// GetAsVarint32 reads an EOSIO varint32 (zigzag over varuint32).
func GetAsVarint32(buff io.ByteReader) (int32, error) {
	v, err := GetAsVaruint32(buff)
	if err != nil {
		return 0, err
	}
	return int32(v>>1) ^ -int32(v&1), nil
}
