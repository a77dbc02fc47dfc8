package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocZeroed(t *testing.T) {
	a := New()
	b := a.Alloc(16)
	require.Len(t, b, 16)
	for i, v := range b {
		assert.Zero(t, v, "byte %d", i)
	}
}

func TestAllocDistinct(t *testing.T) {
	a := New()
	x := a.Alloc(8)
	y := a.Alloc(8)
	for i := range x {
		x[i] = 0xaa
	}
	for _, v := range y {
		require.Zero(t, v, "allocations overlap")
	}
}

func TestAllocNoAppendClobber(t *testing.T) {
	a := New()
	x := a.Alloc(4)
	y := a.Alloc(4)
	y[0] = 7

	// Appending past x must reallocate, not grow into y's bytes.
	x = append(x, 0xff)
	require.EqualValues(t, 7, y[0])
	require.EqualValues(t, 0xff, x[4])
}

func TestAllocLarge(t *testing.T) {
	a := New()
	big := a.Alloc(minChunk * 5)
	require.Len(t, big, minChunk*5)
	small := a.Alloc(1)
	require.Len(t, small, 1)
}

func TestCopy(t *testing.T) {
	a := New()
	src := []byte{1, 2, 3}
	dst := a.Copy(src)
	require.Equal(t, src, dst)

	src[0] = 9
	assert.EqualValues(t, 1, dst[0], "copy aliases source")

	assert.Nil(t, a.Copy(nil))
}

func TestCopyString(t *testing.T) {
	a := New()
	b := a.CopyString([]byte("hi"))
	require.Equal(t, []byte{'h', 'i', 0}, b)

	// Empty strings still get a terminator, so set and unset differ.
	empty := a.CopyString(nil)
	require.Equal(t, []byte{0}, empty)
}

func TestUsedAndReset(t *testing.T) {
	a := New()
	a.Alloc(100)
	a.Alloc(200)
	require.Equal(t, 300, a.Used())

	a.Reset()
	require.Zero(t, a.Used())

	// Reused chunks must hand out zeroed memory again.
	b := a.Alloc(100)
	for _, v := range b {
		require.Zero(t, v)
	}
}

func TestZeroValueReady(t *testing.T) {
	var a Arena
	b := a.Alloc(10)
	require.Len(t, b, 10)
}
