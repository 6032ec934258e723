package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	cases := []Record{
		{Tombstone: false, Values: []Value{Int(1), String("Alice"), Bytes([]byte{0, 1, 2})}},
		{Tombstone: true, Values: []Value{Int(-42), Null(), Float(3.5)}},
		{Tombstone: false, Values: []Value{String(""), Bytes(nil)}},
	}

	for _, rec := range cases {
		encoded := rec.Serialize()
		decoded, err := Deserialize(encoded)
		require.NoError(t, err)
		require.Equal(t, len(rec.Values), len(decoded.Values))
		require.Equal(t, rec.Tombstone, decoded.Tombstone)
		for i := range rec.Values {
			require.True(t, rec.Values[i].Equal(decoded.Values[i]), "value %d mismatch", i)
		}
	}
}

func TestDeserializeUnknownTag(t *testing.T) {
	_, err := Deserialize([]byte{0, 0xFF})
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestDeserializeTruncated(t *testing.T) {
	rec := Record{Values: []Value{String("hello")}}
	encoded := rec.Serialize()
	_, err := Deserialize(encoded[:len(encoded)-2])
	require.ErrorIs(t, err, ErrTruncated)
}
