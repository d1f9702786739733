package dbv

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// ColumnKind identifies the SQL type family a column value belongs to.
type ColumnKind uint8

const (
	KindInteger ColumnKind = iota + 1
	KindNumber
	KindString
	KindBoolean
	KindDate
	KindBytes
	KindUUID
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindBytes:
		return "bytes"
	case KindUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// QueryableDatatype is implemented by every column value type (DBInteger,
// DBString, ...). It carries the value, the operator used when the row is an
// example in a query, and the dirty state used by Update.
type QueryableDatatype interface {
	Kind() ColumnKind
	IsNull() bool
	IsDefined() bool
	HasChanged() bool
	SQLValue() any
	state() *qdtState
}

// qdtState is embedded (through column[T]) in every value type.
type qdtState struct {
	value   any
	null    bool
	defined bool
	changed bool

	// prev holds the value before the first change since the last load or
	// SetUnchanged.
	prev     any
	prevNull bool
	hasPrev  bool

	op *operator
}

func (s *qdtState) state() *qdtState { return s }

// IsNull reports whether the value is NULL or was never defined.
func (s *qdtState) IsNull() bool { return !s.defined || s.null }

// IsDefined reports whether a value (possibly NULL) was set or loaded.
func (s *qdtState) IsDefined() bool { return s.defined }

// HasChanged reports whether the value was set since it was loaded or
// last marked unchanged.
func (s *qdtState) HasChanged() bool { return s.changed }

// SQLValue returns the value handed to the driver, nil for NULL.
func (s *qdtState) SQLValue() any {
	if s.IsNull() {
		return nil
	}
	return s.value
}

// Previous returns the value held before the first change. ok is false when
// the value has not changed. A nil value means the previous value was NULL.
func (s *qdtState) Previous() (v any, ok bool) {
	if !s.hasPrev {
		return nil, false
	}
	if s.prevNull {
		return nil, true
	}
	return s.prev, true
}

// SetNull sets the value to NULL.
func (s *qdtState) SetNull() { s.assign(nil, true) }

// SetUnchanged forgets the change history; the current value becomes the
// baseline for the next Update.
func (s *qdtState) SetUnchanged() {
	s.changed = false
	s.hasPrev = false
	s.prev = nil
	s.prevNull = false
}

// Clear undefines the value and removes any operator.
func (s *qdtState) Clear() { *s = qdtState{} }

// PermitOnlyNull restricts matching rows to those where the column is NULL.
func (s *qdtState) PermitOnlyNull() { s.op = &operator{kind: opNull} }

// PermitOnlyNotNull restricts matching rows to those where the column is not NULL.
func (s *qdtState) PermitOnlyNotNull() { s.op = &operator{kind: opNull, negated: true} }

// RemoveOperator drops the operator; a defined value still matches by equality.
func (s *qdtState) RemoveOperator() { s.op = nil }

// HasOperator reports whether an operator restricts the column.
func (s *qdtState) HasOperator() bool { return s.op != nil }

func (s *qdtState) assign(v any, null bool) {
	if s.defined {
		if s.null == null && (null || equalValues(s.value, v)) {
			s.op = nil
			return
		}
		if !s.hasPrev {
			s.prev, s.prevNull, s.hasPrev = s.value, s.null, true
		}
	}
	s.value, s.null, s.defined, s.changed = v, null, true, true
	s.op = nil
}

// load stores a value read from the database.
func (s *qdtState) load(v any) {
	*s = qdtState{value: v, null: v == nil, defined: true}
}

func equalValues(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	if _, ok := b.([]byte); ok {
		return false
	}
	return a == b
}

// column is the typed layer shared by all value types.
type column[T any] struct {
	qdtState
}

// Set defines the value. Setting a different value on a defined column marks
// it changed and records the previous value.
func (c *column[T]) Set(v T) { c.assign(v, false) }

// SetPtr sets the value, or NULL when p is nil.
func (c *column[T]) SetPtr(p *T) {
	if p == nil {
		c.SetNull()
		return
	}
	c.Set(*p)
}

// Value returns the value, or the zero value when NULL or undefined.
func (c *column[T]) Value() T {
	v, _ := c.ValueOK()
	return v
}

// ValueOK returns the value and whether it is non-NULL.
func (c *column[T]) ValueOK() (T, bool) {
	var zero T
	if c.IsNull() {
		return zero, false
	}
	v, ok := c.value.(T)
	return v, ok
}

// Ptr returns a pointer to a copy of the value, nil when NULL.
func (c *column[T]) Ptr() *T {
	v, ok := c.ValueOK()
	if !ok {
		return nil
	}
	return &v
}

// PermittedValues restricts matching rows to the given values. An empty set
// matches nothing.
func (c *column[T]) PermittedValues(vals ...T) {
	c.op = &operator{kind: opIn, values: anySlice(vals)}
}

// ExcludedValues restricts matching rows to values outside the set.
func (c *column[T]) ExcludedValues(vals ...T) {
	c.op = &operator{kind: opIn, values: anySlice(vals), negated: true}
}

func anySlice[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// ordered adds range operators for types with a natural order.
type ordered[T any] struct {
	column[T]
}

// PermittedRange matches lower <= v < upper.
func (c *ordered[T]) PermittedRange(lower, upper T) {
	c.op = rangeOperator(lower, upper, true, false)
}

// PermittedRangeInclusive matches lower <= v <= upper.
func (c *ordered[T]) PermittedRangeInclusive(lower, upper T) {
	c.op = rangeOperator(lower, upper, true, true)
}

// PermittedRangeExclusive matches lower < v < upper.
func (c *ordered[T]) PermittedRangeExclusive(lower, upper T) {
	c.op = rangeOperator(lower, upper, false, false)
}

// ExcludedRange matches values outside [lower, upper).
func (c *ordered[T]) ExcludedRange(lower, upper T) {
	op := rangeOperator(lower, upper, true, false)
	op.negated = true
	c.op = op
}

func (c *ordered[T]) PermittedGreaterThan(v T) {
	c.op = &operator{kind: opRange, lower: v, hasLower: true}
}

func (c *ordered[T]) PermittedGreaterThanOrEqual(v T) {
	c.op = &operator{kind: opRange, lower: v, hasLower: true, lowerIncl: true}
}

func (c *ordered[T]) PermittedLessThan(v T) {
	c.op = &operator{kind: opRange, upper: v, hasUpper: true}
}

func (c *ordered[T]) PermittedLessThanOrEqual(v T) {
	c.op = &operator{kind: opRange, upper: v, hasUpper: true, upperIncl: true}
}

func rangeOperator(lower, upper any, lowerIncl, upperIncl bool) *operator {
	return &operator{
		kind:      opRange,
		lower:     lower,
		upper:     upper,
		hasLower:  true,
		hasUpper:  true,
		lowerIncl: lowerIncl,
		upperIncl: upperIncl,
	}
}

// DBInteger is a 64-bit integer column.
type DBInteger struct{ ordered[int64] }

func (*DBInteger) Kind() ColumnKind { return KindInteger }

// SetInt is Set for plain ints.
func (c *DBInteger) SetInt(v int) { c.Set(int64(v)) }

// DBNumber is a floating point column.
type DBNumber struct{ ordered[float64] }

func (*DBNumber) Kind() ColumnKind { return KindNumber }

// DBString is a character column.
type DBString struct{ ordered[string] }

func (*DBString) Kind() ColumnKind { return KindString }

// PermittedPattern matches values LIKE pattern.
func (c *DBString) PermittedPattern(pattern string) {
	c.op = &operator{kind: opLike, pattern: pattern}
}

// PermittedPatternIgnoreCase matches values LIKE pattern, ignoring case.
func (c *DBString) PermittedPatternIgnoreCase(pattern string) {
	c.op = &operator{kind: opLike, pattern: pattern, ignoreCase: true}
}

// ExcludedPattern matches values NOT LIKE pattern.
func (c *DBString) ExcludedPattern(pattern string) {
	c.op = &operator{kind: opLike, pattern: pattern, negated: true}
}

// PermittedValuesIgnoreCase is PermittedValues with case-insensitive comparison.
func (c *DBString) PermittedValuesIgnoreCase(vals ...string) {
	c.op = &operator{kind: opIn, values: anySlice(vals), ignoreCase: true}
}

// DBBoolean is a boolean column.
type DBBoolean struct{ column[bool] }

func (*DBBoolean) Kind() ColumnKind { return KindBoolean }

// DBDate is a timestamp column.
type DBDate struct{ ordered[time.Time] }

func (*DBDate) Kind() ColumnKind { return KindDate }

// DBBytes is a binary column.
type DBBytes struct{ column[[]byte] }

func (*DBBytes) Kind() ColumnKind { return KindBytes }

// DBUUID is a UUID column, stored in its canonical text form unless the
// dialect has a native type.
type DBUUID struct{ column[uuid.UUID] }

func (*DBUUID) Kind() ColumnKind { return KindUUID }

// SetRandom sets a new random (version 4) UUID.
func (c *DBUUID) SetRandom() { c.Set(uuid.New()) }
