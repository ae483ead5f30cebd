package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.tbl")
}

func TestOpen_InitializesRootPageNumber(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	root, err := p.ReadRootPageNumber()
	assert.NoError(err)
	assert.Equal(uint32(1), root)
}

func TestWriteRootPageNumber_RoundTrips(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	assert.NoError(p.WriteRootPageNumber(7))

	root, err := p.ReadRootPageNumber()
	assert.NoError(err)
	assert.Equal(uint32(7), root)
}

func TestReadPage_UnwrittenPageIsZeroed(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	data, err := p.ReadPage(1)
	assert.NoError(err)
	assert.Len(data, PageSize)
	for _, b := range data {
		assert.EqualValues(0, b)
	}
}

func TestWritePage_ThenReadPage_RoundTrips(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	assert.NoError(p.WritePage(3, payload))

	data, err := p.ReadPage(3)
	assert.NoError(err)
	assert.Len(data, PageSize)
	assert.Equal(payload, data[:100])
	for _, b := range data[100:] {
		assert.EqualValues(0, b)
	}
}

func TestWritePage_RejectsOversizeData(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	assert.Panics(func() {
		_ = p.WritePage(1, make([]byte, PageSize+1))
	})
}

func TestReadPage_RejectsInvalidPageNumber(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	assert.Panics(func() {
		_, _ = p.ReadPage(0)
	})
}

func TestAllocatePage_GrowsByFileSize(t *testing.T) {
	assert := require.New(t)

	p, err := Open(tempFile(t), nil)
	assert.NoError(err)
	defer p.Close()

	n, err := p.AllocatePage()
	assert.NoError(err)
	assert.EqualValues(1, n)

	assert.NoError(p.WritePage(1, []byte("leaf")))

	n, err = p.AllocatePage()
	assert.NoError(err)
	assert.EqualValues(2, n)
}

func TestOpen_ReopensExistingFile(t *testing.T) {
	assert := require.New(t)

	name := tempFile(t)

	p1, err := Open(name, nil)
	assert.NoError(err)
	assert.NoError(p1.WriteRootPageNumber(42))
	assert.NoError(p1.Close())

	p2, err := Open(name, nil)
	assert.NoError(err)
	defer p2.Close()

	root, err := p2.ReadRootPageNumber()
	assert.NoError(err)
	assert.EqualValues(42, root)

	_, statErr := os.Stat(name)
	assert.NoError(statErr)
}
