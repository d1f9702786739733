package dbv

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumn_UndefinedIsNull(t *testing.T) {
	var s DBString
	assert.False(t, s.IsDefined())
	assert.True(t, s.IsNull())
	assert.False(t, s.HasChanged())
	assert.Nil(t, s.SQLValue())
	assert.Nil(t, s.Ptr())
	assert.Equal(t, "", s.Value())
	_, ok := s.ValueOK()
	assert.False(t, ok)
}

func TestColumn_SetTracksPreviousOnce(t *testing.T) {
	var n DBInteger
	n.load(int64(1))
	assert.False(t, n.HasChanged())

	n.Set(2)
	n.Set(3)
	assert.True(t, n.HasChanged())
	assert.EqualValues(t, 3, n.Value())
	prev, ok := n.Previous()
	require.True(t, ok)
	assert.Equal(t, int64(1), prev)

	n.SetUnchanged()
	assert.False(t, n.HasChanged())
	_, ok = n.Previous()
	assert.False(t, ok)
	assert.EqualValues(t, 3, n.Value())
}

func TestColumn_SetSameValueIsNoChange(t *testing.T) {
	var s DBString
	s.load("A")
	s.Set("A")
	assert.False(t, s.HasChanged())

	var d DBDate
	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	d.load(when)
	d.Set(when.In(time.FixedZone("X", 3600)))
	assert.False(t, d.HasChanged(), "equal instants are the same value")

	var b DBBytes
	b.load([]byte("x"))
	b.Set([]byte("x"))
	assert.False(t, b.HasChanged())
	b.Set([]byte("y"))
	assert.True(t, b.HasChanged())
}

func TestColumn_NullTransitions(t *testing.T) {
	var s DBString
	s.load("A")
	s.SetNull()
	assert.True(t, s.IsNull())
	assert.True(t, s.IsDefined())
	assert.True(t, s.HasChanged())
	prev, ok := s.Previous()
	require.True(t, ok)
	assert.Equal(t, "A", prev)

	var p DBString
	p.load(nil)
	p.Set("B")
	prev, ok = p.Previous()
	require.True(t, ok)
	assert.Nil(t, prev, "previous NULL")

	var q DBInteger
	q.SetPtr(nil)
	assert.True(t, q.IsNull())
	v := int64(4)
	q.SetPtr(&v)
	assert.Equal(t, int64(4), *q.Ptr())
}

func TestColumn_OperatorsClearedBySet(t *testing.T) {
	var s DBString
	s.PermittedPattern("A%")
	assert.True(t, s.HasOperator())
	assert.False(t, s.IsDefined())
	s.Set("B")
	assert.False(t, s.HasOperator())

	s.PermittedValues("X")
	s.RemoveOperator()
	assert.False(t, s.HasOperator())

	s.PermitOnlyNotNull()
	s.Clear()
	assert.False(t, s.HasOperator())
	assert.False(t, s.IsDefined())
}

func TestColumn_TypedSetters(t *testing.T) {
	var n DBInteger
	n.SetInt(42)
	assert.Equal(t, int64(42), n.SQLValue())
	assert.Equal(t, KindInteger, n.Kind())

	var u DBUUID
	u.SetRandom()
	assert.NotEqual(t, uuid.Nil, u.Value())
	assert.Equal(t, KindUUID, u.Kind())

	var b DBBoolean
	b.Set(false)
	v, ok := b.ValueOK()
	assert.True(t, ok)
	assert.False(t, v)
}

func TestColumnKind_String(t *testing.T) {
	assert.Equal(t, "integer", KindInteger.String())
	assert.Equal(t, "date", KindDate.String())
	assert.Equal(t, "unknown", ColumnKind(0).String())
}
