package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xAAA1")
	tokenB = common.HexToAddress("0xAAA2")
	tokenC = common.HexToAddress("0xAAA3")
	conv1  = common.HexToAddress("0xCCC1")
	conv2  = common.HexToAddress("0xCCC2")
	conv3  = common.HexToAddress("0xCCC3")
	conv4  = common.HexToAddress("0xCCC4")
)

func TestConverterRegistry(t *testing.T) {

	t.Run("register appends tokens on first registration only", func(t *testing.T) {
		r := NewConverterRegistry()

		tokenAdded, err := r.register(tokenA, conv1)
		require.NoError(t, err)
		assert.True(t, tokenAdded)

		tokenAdded, err = r.register(tokenA, conv2)
		require.NoError(t, err)
		assert.False(t, tokenAdded, "second registration must not re-append the token")

		assert.Equal(t, 1, r.tokenCount())
		assert.Equal(t, 2, r.converterCount(tokenA))
		assert.Equal(t, uint64(2), r.version)
	})

	t.Run("register rejects a converter bound anywhere", func(t *testing.T) {
		r := NewConverterRegistry()
		_, err := r.register(tokenA, conv1)
		require.NoError(t, err)

		_, err = r.register(tokenA, conv1)
		require.ErrorIs(t, err, ErrConverterRegistered)

		_, err = r.register(tokenB, conv1)
		require.ErrorIs(t, err, ErrConverterRegistered, "conflict must hold across tokens")

		// Failed registrations leave no trace.
		assert.Equal(t, 1, r.tokenCount())
		assert.Equal(t, 0, r.converterCount(tokenB))
		assert.Equal(t, uint64(1), r.version)
	})

	t.Run("unregister shifts survivors toward the front", func(t *testing.T) {
		r := NewConverterRegistry()
		for _, c := range []common.Address{conv1, conv2, conv3, conv4} {
			_, err := r.register(tokenA, c)
			require.NoError(t, err)
		}

		removed, err := r.unregister(tokenA, 1)
		require.NoError(t, err)
		assert.Equal(t, conv2, removed)

		assert.Equal(t, 3, r.converterCount(tokenA))
		assert.Equal(t, conv1, r.converterAt(tokenA, 0))
		assert.Equal(t, conv3, r.converterAt(tokenA, 1))
		assert.Equal(t, conv4, r.converterAt(tokenA, 2))
		assert.Equal(t, common.Address{}, r.tokenFor(conv2))
	})

	t.Run("unregister is strict about the index", func(t *testing.T) {
		r := NewConverterRegistry()
		_, err := r.register(tokenA, conv1)
		require.NoError(t, err)

		_, err = r.unregister(tokenA, 1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = r.unregister(tokenA, -1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = r.unregister(tokenB, 0)
		require.ErrorIs(t, err, ErrIndexOutOfRange, "unknown token has an empty list")

		assert.Equal(t, uint64(1), r.version, "failed removals must not bump the version")
	})

	t.Run("token survives an emptied list and converters can rebind", func(t *testing.T) {
		r := NewConverterRegistry()
		_, err := r.register(tokenA, conv1)
		require.NoError(t, err)

		removed, err := r.unregister(tokenA, 0)
		require.NoError(t, err)
		require.Equal(t, conv1, removed)

		assert.Equal(t, 1, r.tokenCount(), "emptied tokens stay in the enumeration")
		assert.Equal(t, tokenA, r.tokenAt(0))
		assert.Equal(t, 0, r.converterCount(tokenA))

		// The freed converter can be registered again, under another token.
		_, err = r.register(tokenB, conv1)
		require.NoError(t, err)
		assert.Equal(t, tokenB, r.tokenFor(conv1))
		assert.Equal(t, tokenB, r.tokenAt(1))
	})

	t.Run("lookups are forgiving", func(t *testing.T) {
		r := NewConverterRegistry()
		_, err := r.register(tokenA, conv1)
		require.NoError(t, err)

		assert.Equal(t, common.Address{}, r.converterAt(tokenA, 5))
		assert.Equal(t, common.Address{}, r.converterAt(tokenB, 0))
		assert.Equal(t, common.Address{}, r.tokenFor(conv2))
		assert.Equal(t, common.Address{}, r.tokenAt(9))
		assert.Equal(t, 0, r.converterCount(tokenC))
	})

	t.Run("view is a deep copy", func(t *testing.T) {
		r := NewConverterRegistry()
		_, err := r.register(tokenA, conv1)
		require.NoError(t, err)

		v := r.view()
		require.Len(t, v.Tokens, 1)
		require.Len(t, v.Converters, 1)

		v.Tokens[0] = tokenC
		v.Converters[0][0] = conv4

		assert.Equal(t, tokenA, r.tokenAt(0))
		assert.Equal(t, conv1, r.converterAt(tokenA, 0))
	})
}

func TestNewConverterRegistryFromView(t *testing.T) {
	validView := func() *View {
		return &View{
			Version:    7,
			Tokens:     []common.Address{tokenA, tokenB},
			Converters: [][]common.Address{{conv1, conv2}, {conv3}},
		}
	}

	t.Run("should restore indices, version, and reverse lookups", func(t *testing.T) {
		r, err := NewConverterRegistryFromView(validView())
		require.NoError(t, err)

		assert.Equal(t, uint64(7), r.version)
		assert.Equal(t, 2, r.tokenCount())
		assert.Equal(t, conv2, r.converterAt(tokenA, 1))
		assert.Equal(t, tokenB, r.tokenFor(conv3))
		assert.True(t, r.tokenRegistered[tokenA])
	})

	t.Run("should deep-copy the view data", func(t *testing.T) {
		source := validView()
		r, err := NewConverterRegistryFromView(source)
		require.NoError(t, err)

		source.Tokens[0] = tokenC
		source.Converters[1][0] = conv4

		assert.Equal(t, tokenA, r.tokenAt(0))
		assert.Equal(t, conv3, r.converterAt(tokenB, 0))
	})

	t.Run("should restore a token with an emptied list", func(t *testing.T) {
		r, err := NewConverterRegistryFromView(&View{
			Version:    2,
			Tokens:     []common.Address{tokenA},
			Converters: [][]common.Address{{}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, r.tokenCount())
		assert.Equal(t, 0, r.converterCount(tokenA))
	})

	t.Run("should reject malformed views", func(t *testing.T) {
		cases := []struct {
			name string
			view *View
		}{
			{"nil view", nil},
			{"arity mismatch", &View{Tokens: []common.Address{tokenA}, Converters: [][]common.Address{}}},
			{"zero token", &View{Tokens: []common.Address{{}}, Converters: [][]common.Address{{}}}},
			{"duplicate token", &View{
				Tokens:     []common.Address{tokenA, tokenA},
				Converters: [][]common.Address{{conv1}, {conv2}},
			}},
			{"zero converter", &View{
				Tokens:     []common.Address{tokenA},
				Converters: [][]common.Address{{{}}},
			}},
			{"converter bound twice under one token", &View{
				Tokens:     []common.Address{tokenA},
				Converters: [][]common.Address{{conv1, conv1}},
			}},
			{"converter bound under two tokens", &View{
				Tokens:     []common.Address{tokenA, tokenB},
				Converters: [][]common.Address{{conv1}, {conv1}},
			}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewConverterRegistryFromView(tc.view)
				require.Error(t, err)
			})
		}
	})
}

func TestViewCopy(t *testing.T) {
	v := &View{
		Version:    3,
		Tokens:     []common.Address{tokenA},
		Converters: [][]common.Address{{conv1, conv2}},
	}

	c := v.Copy()
	require.Equal(t, v, c)

	c.Tokens[0] = tokenB
	c.Converters[0][0] = conv3
	c.Version = 9

	assert.Equal(t, tokenA, v.Tokens[0])
	assert.Equal(t, conv1, v.Converters[0][0])
	assert.Equal(t, uint64(3), v.Version)
}
