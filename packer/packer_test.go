package packer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type resizeJob struct {
	Path   string `msgpack:"path"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
}

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(resizeJob{Path: "/tmp/a.png", Width: 640, Height: 480})
	require.NoError(t, err)

	var got resizeJob
	require.NoError(t, Decode(raw, &got))
	require.Equal(t, resizeJob{Path: "/tmp/a.png", Width: 640, Height: 480}, got)
}

func TestDecode_Garbage(t *testing.T) {
	var got resizeJob
	require.Error(t, Decode([]byte{0xc1}, &got))
}
