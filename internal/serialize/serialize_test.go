package serialize

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	f := &File{
		Memory: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Args:   []byte{9, 9, 9, 9, 9, 9, 9, 9},
		Relocations: []Relocation{
			{Kind: RelocMem, Offset: 0, Target: 8},
			{Kind: RelocArg, Offset: 0, Target: 0},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestReadEmptyRelocations(t *testing.T) {
	f := &File{Memory: []byte{1}, Args: nil}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got.Memory)
	assert.Empty(t, got.Args)
	assert.Empty(t, got.Relocations)
}
