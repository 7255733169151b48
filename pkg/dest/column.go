package dest

import (
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

type ColumnType int

const (
	TypeInt8 ColumnType = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeFixedString
)

// ColumnDesc describes one physical column of a destination table.
type ColumnDesc struct {
	Name      string     `json:"name"`
	Type      ColumnType `json:"type"`
	Nullable  bool       `json:"nullable,omitempty"`
	FixedSize int        `json:"fixed_size,omitempty"` // only for TypeFixedString
}

// Column is one growable typed array of a block. AppendField implements the
// field-to-column coercion policy, anything outside it fails with
// ErrUnsupportedColumnType or ErrLogical.
type Column interface {
	AppendField(f Field) error
	AppendDefault()
	FieldAt(row int) Field
	Rows() int
	Bytes() int
	EmptyClone() Column
}

func NewColumn(desc ColumnDesc) (Column, error) {
	var inner Column
	switch desc.Type {
	case TypeInt8:
		inner = &ColumnInt8{}
	case TypeInt16:
		inner = &ColumnInt16{}
	case TypeInt32:
		inner = &ColumnInt32{}
	case TypeInt64:
		inner = &ColumnInt64{}
	case TypeUInt8:
		inner = &ColumnUInt8{}
	case TypeUInt16:
		inner = &ColumnUInt16{}
	case TypeUInt32:
		inner = &ColumnUInt32{}
	case TypeUInt64:
		inner = &ColumnUInt64{}
	case TypeFloat32:
		inner = &ColumnFloat32{}
	case TypeFloat64:
		inner = &ColumnFloat64{}
	case TypeString:
		inner = &ColumnString{}
	case TypeFixedString:
		if desc.FixedSize <= 0 {
			return nil, xerror.XWrapf(ErrLogical, "fixed string column %s without size", desc.Name)
		}
		inner = &ColumnFixedString{size: desc.FixedSize}
	default:
		return nil, xerror.XWrapf(ErrUnsupportedColumnType, "column %s type %d", desc.Name, desc.Type)
	}

	if desc.Nullable {
		return &ColumnNullable{nested: inner}, nil
	}
	return inner, nil
}

func notNull(f Field) error {
	if f.IsNull() {
		return xerror.XWrapf(ErrLogical, "null field for a non-nullable column")
	}
	return nil
}

type ColumnInt8 struct {
	data []int8
}

func (c *ColumnInt8) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, int8(f.AsUInt64()))
	return nil
}

func (c *ColumnInt8) Append(v int8) { c.data = append(c.data, v) }
func (c *ColumnInt8) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnInt8) FieldAt(row int) Field { return Int64Field(int64(c.data[row])) }
func (c *ColumnInt8) Rows() int { return len(c.data) }
func (c *ColumnInt8) Bytes() int { return len(c.data) }
func (c *ColumnInt8) EmptyClone() Column { return &ColumnInt8{} }

type ColumnInt16 struct {
	data []int16
}

func (c *ColumnInt16) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, int16(f.AsUInt64()))
	return nil
}

func (c *ColumnInt16) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnInt16) FieldAt(row int) Field { return Int64Field(int64(c.data[row])) }
func (c *ColumnInt16) Rows() int { return len(c.data) }
func (c *ColumnInt16) Bytes() int { return len(c.data) * 2 }
func (c *ColumnInt16) EmptyClone() Column { return &ColumnInt16{} }

type ColumnInt32 struct {
	data []int32
}

func (c *ColumnInt32) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	switch f.Kind {
	case FieldUInt64:
		c.data = append(c.data, int32(f.AsUInt64()))
	case FieldInt64:
		// MYSQL_TYPE_INT24 arrives as a 32-bit pattern, sign-extend from bit 23.
		num := int32(f.AsUInt64())
		if num&0x800000 != 0 {
			num |= ^int32(0x00FFFFFF)
		}
		c.data = append(c.data, num)
	default:
		return xerror.XWrapf(ErrLogical, "field %s for an Int32 column", f.Kind)
	}
	return nil
}

func (c *ColumnInt32) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnInt32) FieldAt(row int) Field { return Int64Field(int64(c.data[row])) }
func (c *ColumnInt32) Rows() int { return len(c.data) }
func (c *ColumnInt32) Bytes() int { return len(c.data) * 4 }
func (c *ColumnInt32) EmptyClone() Column { return &ColumnInt32{} }

type ColumnInt64 struct {
	data []int64
}

func (c *ColumnInt64) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, f.AsInt64())
	return nil
}

func (c *ColumnInt64) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnInt64) FieldAt(row int) Field { return Int64Field(c.data[row]) }
func (c *ColumnInt64) Rows() int { return len(c.data) }
func (c *ColumnInt64) Bytes() int { return len(c.data) * 8 }
func (c *ColumnInt64) EmptyClone() Column { return &ColumnInt64{} }

type ColumnUInt8 struct {
	data []uint8
}

func (c *ColumnUInt8) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, uint8(f.AsUInt64()))
	return nil
}

func (c *ColumnUInt8) Append(v uint8) { c.data = append(c.data, v) }
func (c *ColumnUInt8) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnUInt8) FieldAt(row int) Field { return UInt64Field(uint64(c.data[row])) }
func (c *ColumnUInt8) Rows() int { return len(c.data) }
func (c *ColumnUInt8) Bytes() int { return len(c.data) }
func (c *ColumnUInt8) EmptyClone() Column { return &ColumnUInt8{} }

type ColumnUInt16 struct {
	data []uint16
}

func (c *ColumnUInt16) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, uint16(f.AsUInt64()))
	return nil
}

func (c *ColumnUInt16) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnUInt16) FieldAt(row int) Field { return UInt64Field(uint64(c.data[row])) }
func (c *ColumnUInt16) Rows() int { return len(c.data) }
func (c *ColumnUInt16) Bytes() int { return len(c.data) * 2 }
func (c *ColumnUInt16) EmptyClone() Column { return &ColumnUInt16{} }

type ColumnUInt32 struct {
	data []uint32
}

func (c *ColumnUInt32) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, uint32(f.AsUInt64()))
	return nil
}

func (c *ColumnUInt32) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnUInt32) FieldAt(row int) Field { return UInt64Field(uint64(c.data[row])) }
func (c *ColumnUInt32) Rows() int { return len(c.data) }
func (c *ColumnUInt32) Bytes() int { return len(c.data) * 4 }
func (c *ColumnUInt32) EmptyClone() Column { return &ColumnUInt32{} }

type ColumnUInt64 struct {
	data []uint64
}

func (c *ColumnUInt64) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	c.data = append(c.data, f.AsUInt64())
	return nil
}

func (c *ColumnUInt64) Append(v uint64) { c.data = append(c.data, v) }
func (c *ColumnUInt64) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnUInt64) FieldAt(row int) Field { return UInt64Field(c.data[row]) }
func (c *ColumnUInt64) Rows() int { return len(c.data) }
func (c *ColumnUInt64) Bytes() int { return len(c.data) * 8 }
func (c *ColumnUInt64) EmptyClone() Column { return &ColumnUInt64{} }

type ColumnFloat32 struct {
	data []float32
}

func (c *ColumnFloat32) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	if f.Kind != FieldFloat64 {
		return xerror.XWrapf(ErrLogical, "field %s for a Float32 column", f.Kind)
	}
	c.data = append(c.data, float32(f.AsFloat64()))
	return nil
}

func (c *ColumnFloat32) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnFloat32) FieldAt(row int) Field { return Float64Field(float64(c.data[row])) }
func (c *ColumnFloat32) Rows() int { return len(c.data) }
func (c *ColumnFloat32) Bytes() int { return len(c.data) * 4 }
func (c *ColumnFloat32) EmptyClone() Column { return &ColumnFloat32{} }

type ColumnFloat64 struct {
	data []float64
}

func (c *ColumnFloat64) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	if f.Kind != FieldFloat64 {
		return xerror.XWrapf(ErrLogical, "field %s for a Float64 column", f.Kind)
	}
	c.data = append(c.data, f.AsFloat64())
	return nil
}

func (c *ColumnFloat64) AppendDefault() { c.data = append(c.data, 0) }
func (c *ColumnFloat64) FieldAt(row int) Field { return Float64Field(c.data[row]) }
func (c *ColumnFloat64) Rows() int { return len(c.data) }
func (c *ColumnFloat64) Bytes() int { return len(c.data) * 8 }
func (c *ColumnFloat64) EmptyClone() Column { return &ColumnFloat64{} }

type ColumnString struct {
	data  []string
	bytes int
}

func (c *ColumnString) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	if f.Kind != FieldString {
		return xerror.XWrapf(ErrLogical, "field %s for a String column", f.Kind)
	}
	data := f.AsString()
	c.data = append(c.data, data)
	c.bytes += len(data)
	return nil
}

func (c *ColumnString) AppendDefault() { c.data = append(c.data, "") }
func (c *ColumnString) FieldAt(row int) Field { return StringField(c.data[row]) }
func (c *ColumnString) Rows() int { return len(c.data) }
func (c *ColumnString) Bytes() int { return c.bytes }
func (c *ColumnString) EmptyClone() Column { return &ColumnString{} }

type ColumnFixedString struct {
	size  int
	data  []string
	bytes int
}

func (c *ColumnFixedString) AppendField(f Field) error {
	if err := notNull(f); err != nil {
		return err
	}
	if f.Kind != FieldString {
		return xerror.XWrapf(ErrLogical, "field %s for a FixedString column", f.Kind)
	}
	data := f.AsString()
	if len(data) > c.size {
		return xerror.XWrapf(ErrLogical, "fixed string of %d bytes does not fit %d", len(data), c.size)
	}
	// pad with zero bytes up to the fixed size
	if len(data) < c.size {
		padded := make([]byte, c.size)
		copy(padded, data)
		data = string(padded)
	}
	c.data = append(c.data, data)
	c.bytes += c.size
	return nil
}

func (c *ColumnFixedString) AppendDefault() {
	c.data = append(c.data, string(make([]byte, c.size)))
	c.bytes += c.size
}

func (c *ColumnFixedString) FieldAt(row int) Field { return StringField(c.data[row]) }
func (c *ColumnFixedString) Rows() int { return len(c.data) }
func (c *ColumnFixedString) Bytes() int { return c.bytes }
func (c *ColumnFixedString) EmptyClone() Column { return &ColumnFixedString{size: c.size} }

// ColumnNullable wraps another column with a null map. A null field appends
// the nested column's default and marks the map.
type ColumnNullable struct {
	nested  Column
	nullMap []uint8
}

func (c *ColumnNullable) AppendField(f Field) error {
	if f.IsNull() {
		c.nested.AppendDefault()
		c.nullMap = append(c.nullMap, 1)
		return nil
	}

	if err := c.nested.AppendField(f); err != nil {
		return err
	}
	c.nullMap = append(c.nullMap, 0)
	return nil
}

func (c *ColumnNullable) AppendDefault() {
	c.nested.AppendDefault()
	c.nullMap = append(c.nullMap, 1)
}

func (c *ColumnNullable) FieldAt(row int) Field {
	if c.nullMap[row] != 0 {
		return NullField()
	}
	return c.nested.FieldAt(row)
}

func (c *ColumnNullable) Rows() int { return len(c.nullMap) }
func (c *ColumnNullable) Bytes() int { return c.nested.Bytes() + len(c.nullMap) }
func (c *ColumnNullable) EmptyClone() Column { return &ColumnNullable{nested: c.nested.EmptyClone()} }

// NullAt reports whether the row is null, for observers that must distinguish
// a stored default from a stored null.
func (c *ColumnNullable) NullAt(row int) bool { return c.nullMap[row] != 0 }
