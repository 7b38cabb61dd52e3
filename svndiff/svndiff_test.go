package svndiff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeThenApplyRoundTripsFromEmptySource(t *testing.T) {
	target := []byte("hello, svn world")
	delta := Encode(nil, target)
	got, err := Apply(nil, delta)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestEncodeThenApplyRoundTripsWithSource(t *testing.T) {
	source := []byte("the quick brown fox")
	target := []byte("the quick brown fox jumps over the lazy dog")
	delta := Encode(source, target)
	got, err := Apply(source, delta)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestApplyRejectsBadMagic(t *testing.T) {
	_, err := Apply(nil, []byte{0, 0, 0, 0})
	assert.Error(t, err)
}

func TestEncodeDiffThenApplyRoundTripsOnSmallEdit(t *testing.T) {
	source := []byte("the quick brown fox jumps over the lazy dog")
	target := []byte("the quick brown fox leaps over the lazy dog")
	delta := EncodeDiff(source, target)
	got, err := Apply(source, delta)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestEncodeDiffOnIdenticalContentProducesNoNewData(t *testing.T) {
	content := []byte("unchanged content")
	delta := EncodeDiff(content, content)

	r := bytes.NewReader(delta[len(Magic):])
	for i := 0; i < 4; i++ { // source offset, source length, target length, instructions length
		_, err := readInt(r)
		require.NoError(t, err)
	}
	newDataLen, err := readInt(r)
	require.NoError(t, err)
	assert.Equal(t, int64(0), newDataLen)

	got, err := Apply(content, delta)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestApplySourceCopyInstructionReusesSourceBytes(t *testing.T) {
	source := []byte("ABCDEFGH")
	var buf bytes.Buffer
	buf.Write(Magic)
	writeInt(&buf, 0) // source offset
	writeInt(&buf, 8) // source length
	writeInt(&buf, 4) // target view length

	var instr bytes.Buffer
	instr.WriteByte(byte(opSourceCopy<<6) | 4) // copy 4 bytes
	writeInt(&instr, 2)                        // from source offset 2 ("CDEF")

	writeInt(&buf, int64(instr.Len()))
	writeInt(&buf, 0) // new data length
	buf.Write(instr.Bytes())

	got, err := Apply(source, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte("CDEF"), got)
}
