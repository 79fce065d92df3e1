package t31

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_dleStuffUnstuffRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(rapid.Byte()).Draw(t, "in")

		var stuffed []byte
		stuffed = dleStuff(stuffed, in)
		stuffed = append(stuffed, dle, etx)

		var pending bool
		res := dleUnstuff(&pending, stuffed)

		assert.True(t, res.terminated, "expected a terminator to be consumed")
		assert.Equal(t, in, res.out)
		assert.Equal(t, len(stuffed), res.consumed)
		assert.False(t, pending)
	})
}

func Test_dleUnstuffSubDecodesToTwoLiteralDLEs(t *testing.T) {
	var pending bool
	res := dleUnstuff(&pending, []byte{'a', 'b', dle, sub, 'c'})
	assert.False(t, res.terminated)
	assert.Equal(t, []byte{'a', 'b', dle, dle, 'c'}, res.out)
	assert.Equal(t, 5, res.consumed)
}

func Test_dleUnstuffSplitAcrossCalls(t *testing.T) {
	var pending bool
	res1 := dleUnstuff(&pending, []byte{'a', dle})
	assert.Equal(t, []byte{'a'}, res1.out)
	assert.True(t, pending)

	res2 := dleUnstuff(&pending, []byte{etx})
	assert.True(t, res2.terminated)
	assert.Empty(t, res2.out)
	assert.False(t, pending)
}

func Test_dleStuffDoublesLiteralDLE(t *testing.T) {
	out := dleStuff(nil, []byte{0x01, dle, 0x02})
	assert.Equal(t, []byte{0x01, dle, dle, 0x02}, out)
}
