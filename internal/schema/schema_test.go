package schema

import (
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/stretchr/testify/require"
)

func s1Schema(t *testing.T) *Schema {
	t.Helper()
	s, err := New([]Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
		{Name: "data", Type: codec.KindBytes},
	}, "id", []string{"name"})
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New([]Field{{Name: "id", Type: codec.KindBytes}}, "id", nil)
	require.Error(t, err)

	_, err = New([]Field{{Name: "id", Type: codec.KindInt}}, "missing", nil)
	require.Error(t, err)
}

func TestValidateRecord(t *testing.T) {
	s := s1Schema(t)

	ok := codec.Record{Values: []codec.Value{codec.Int(1), codec.String("Alice"), codec.Bytes([]byte{1})}}
	require.NoError(t, s.ValidateRecord(ok))

	nullName := codec.Record{Values: []codec.Value{codec.Int(1), codec.Null(), codec.Bytes([]byte{1})}}
	require.NoError(t, s.ValidateRecord(nullName))

	wrongType := codec.Record{Values: []codec.Value{codec.String("nope"), codec.Null(), codec.Bytes(nil)}}
	require.Error(t, s.ValidateRecord(wrongType))

	wrongCount := codec.Record{Values: []codec.Value{codec.Int(1)}}
	require.Error(t, s.ValidateRecord(wrongCount))
}

// S5 from the specification: extending {id:Int} to {id:Int, name:String?,
// data:Bytes} with data non-nullable must fail evolution.
func TestValidateEvolutionRejectsNonNullableAppend(t *testing.T) {
	s := s1Schema(t)
	firstRecord := codec.Record{Values: []codec.Value{codec.Int(1)}}
	require.Error(t, s.ValidateEvolution(firstRecord))
}

func TestValidateEvolutionAcceptsNullableAppend(t *testing.T) {
	s, err := New([]Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
	}, "id", nil)
	require.NoError(t, err)

	firstRecord := codec.Record{Values: []codec.Value{codec.Int(1)}}
	require.NoError(t, s.ValidateEvolution(firstRecord))
}
