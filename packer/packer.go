package packer

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Encode serialises v with msgpack.
func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode is the inverse of Encode.
func Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
