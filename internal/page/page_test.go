package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeafPage_EncodeDecode_RoundTrips(t *testing.T) {
	assert := require.New(t)

	p := NewLeaf()
	p.Cells = []Cell{
		{Key: 10, Value: []byte("Alice")},
		{Key: 20, Value: []byte("Bob")},
	}

	data, err := p.Encode()
	assert.NoError(err)
	assert.LessOrEqual(len(data), 4096)

	decoded, err := Decode(padTo4096(data))
	assert.NoError(err)
	assert.True(decoded.IsLeaf())
	assert.Equal(p.Cells, decoded.Cells)
}

func TestInternalPage_EncodeDecode_RoundTrips(t *testing.T) {
	assert := require.New(t)

	p := NewInternal(2)
	p.Entries = []InternalEntry{
		{Separator: 50, Child: 3},
		{Separator: 100, Child: 4},
	}

	data, err := p.Encode()
	assert.NoError(err)

	decoded, err := Decode(padTo4096(data))
	assert.NoError(err)
	assert.False(decoded.IsLeaf())
	assert.EqualValues(2, decoded.LeftmostChild)
	assert.Equal(p.Entries, decoded.Entries)
	assert.Equal([]uint32{2, 3, 4}, decoded.Children())
}

func TestDecode_AllZeroHeaderIsEmptyLeaf(t *testing.T) {
	assert := require.New(t)

	data := make([]byte, 4096)
	p, err := Decode(data)
	assert.NoError(err)
	assert.True(p.IsLeaf())
	assert.Empty(p.Cells)
}

func TestDecode_HeaderTooShort(t *testing.T) {
	assert := require.New(t)

	_, err := Decode(make([]byte, 5))
	assert.Error(err)
}

func TestDecode_UnknownPageType(t *testing.T) {
	assert := require.New(t)

	data := make([]byte, 4096)
	data[0] = 0xFF
	data[2] = 1 // num_keys = 1, nonzero header so it isn't treated as empty
	_, err := Decode(data)
	assert.Error(err)
}

func TestIsFull_LeafCountsProspectiveCell(t *testing.T) {
	assert := require.New(t)

	p := NewLeaf()
	assert.False(p.IsFull(1, make([]byte, 100)))
	assert.True(p.IsFull(1, make([]byte, 4096)))
}

func TestIsFullWithEntry_InternalCountsProspectiveEntry(t *testing.T) {
	assert := require.New(t)

	p := NewInternal(1)
	for i := 0; i < 680; i++ {
		p.Entries = append(p.Entries, InternalEntry{Separator: uint16(i), Child: uint32(i + 2)})
	}
	assert.True(p.IsFullWithEntry(9999, 9999))
}

func TestEncode_FreeStartMatchesHeaderPlusBody(t *testing.T) {
	assert := require.New(t)

	p := NewLeaf()
	p.Cells = []Cell{{Key: 1, Value: []byte("x")}}
	data, err := p.Encode()
	assert.NoError(err)

	// free_start is the 4 bytes at offset 3..6
	freeStart := int(data[3])<<24 | int(data[4])<<16 | int(data[5])<<8 | int(data[6])
	assert.Equal(len(data), freeStart)
	assert.Equal(HeaderSize+4+1, freeStart)
}

func padTo4096(data []byte) []byte {
	buf := make([]byte, 4096)
	copy(buf, data)
	return buf
}
