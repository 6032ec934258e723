package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogKeyPacking(t *testing.T) {
	k, err := NewLogKey(3, 42)
	require.NoError(t, err)
	require.Equal(t, uint16(3), k.Segment())
	require.Equal(t, uint64(42), k.Index())
}

func TestLogKeyOrdering(t *testing.T) {
	a, _ := NewLogKey(1, 100)
	b, _ := NewLogKey(2, 0)
	require.Less(t, a, b, "segment 2 must sort after segment 1 regardless of index")
}

func TestLogKeyIndexOutOfRange(t *testing.T) {
	_, err := NewLogKey(1, uint64(1)<<48)
	require.Error(t, err)
}

func TestLogKeySetRemoveLastElement(t *testing.T) {
	k, _ := NewLogKey(1, 0)
	set := NewLogKeySet(k)
	require.ErrorIs(t, set.Remove(k), ErrLastElement)
	require.Equal(t, 1, set.Len())
}

func TestLogKeySetMax(t *testing.T) {
	a, _ := NewLogKey(1, 5)
	b, _ := NewLogKey(1, 9)
	set := NewLogKeySet(a, b)
	require.Equal(t, b, set.Max())
	require.NoError(t, set.Remove(a))
	require.Equal(t, 1, set.Len())
}
