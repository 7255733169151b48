package dest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnIntegerTruncation(t *testing.T) {
	tests := []struct {
		name string
		desc ColumnDesc
		in   Field
		want Field
	}{
		{"int8 truncates", ColumnDesc{Name: "c", Type: TypeInt8}, UInt64Field(0x1FF), Int64Field(-1)},
		{"int16 truncates", ColumnDesc{Name: "c", Type: TypeInt16}, UInt64Field(0x1FFFF), Int64Field(-1)},
		{"int64 keeps", ColumnDesc{Name: "c", Type: TypeInt64}, Int64Field(-42), Int64Field(-42)},
		{"uint8 truncates", ColumnDesc{Name: "c", Type: TypeUInt8}, UInt64Field(0x101), UInt64Field(1)},
		{"uint16 truncates", ColumnDesc{Name: "c", Type: TypeUInt16}, UInt64Field(0x10001), UInt64Field(1)},
		{"uint32 truncates", ColumnDesc{Name: "c", Type: TypeUInt32}, UInt64Field(0x100000001), UInt64Field(1)},
		{"uint64 keeps", ColumnDesc{Name: "c", Type: TypeUInt64}, UInt64Field(1 << 63), UInt64Field(1 << 63)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			column, err := NewColumn(tt.desc)
			require.NoError(t, err)
			require.NoError(t, column.AppendField(tt.in))
			assert.True(t, column.FieldAt(0).Equal(tt.want), "got %s, want %s", column.FieldAt(0), tt.want)
		})
	}
}

func TestColumnInt24SignExtension(t *testing.T) {
	column, err := NewColumn(ColumnDesc{Name: "c", Type: TypeInt32})
	require.NoError(t, err)

	// wire value 0x800001 has bit 23 set
	require.NoError(t, column.AppendField(Int64Field(0x800001)))
	assert.Equal(t, int64(-8_388_607), column.FieldAt(0).AsInt64())

	// positive 24-bit values pass through
	require.NoError(t, column.AppendField(Int64Field(0x7FFFFF)))
	assert.Equal(t, int64(8_388_607), column.FieldAt(1).AsInt64())

	// already sign-extended values stay put
	require.NoError(t, column.AppendField(Int64Field(-8_388_607)))
	assert.Equal(t, int64(-8_388_607), column.FieldAt(2).AsInt64())

	// unsigned-tagged values are plain truncation
	require.NoError(t, column.AppendField(UInt64Field(7)))
	assert.Equal(t, int64(7), column.FieldAt(3).AsInt64())
}

func TestColumnFloatNarrowing(t *testing.T) {
	column, err := NewColumn(ColumnDesc{Name: "c", Type: TypeFloat32})
	require.NoError(t, err)
	require.NoError(t, column.AppendField(Float64Field(1.5)))
	assert.Equal(t, 1.5, column.FieldAt(0).AsFloat64())

	err = column.AppendField(Int64Field(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogical))
}

func TestColumnStringVerbatim(t *testing.T) {
	column, err := NewColumn(ColumnDesc{Name: "c", Type: TypeString})
	require.NoError(t, err)
	require.NoError(t, column.AppendField(StringField("\x00raw\xffbytes")))
	assert.Equal(t, "\x00raw\xffbytes", column.FieldAt(0).AsString())
	assert.Equal(t, len("\x00raw\xffbytes"), column.Bytes())
}

func TestColumnFixedStringPads(t *testing.T) {
	column, err := NewColumn(ColumnDesc{Name: "c", Type: TypeFixedString, FixedSize: 4})
	require.NoError(t, err)
	require.NoError(t, column.AppendField(StringField("ab")))
	assert.Equal(t, "ab\x00\x00", column.FieldAt(0).AsString())

	err = column.AppendField(StringField("too long"))
	require.Error(t, err)
}

func TestColumnNullable(t *testing.T) {
	column, err := NewColumn(ColumnDesc{Name: "c", Type: TypeInt32, Nullable: true})
	require.NoError(t, err)

	require.NoError(t, column.AppendField(NullField()))
	require.NoError(t, column.AppendField(Int64Field(7)))

	nullable := column.(*ColumnNullable)
	assert.True(t, nullable.NullAt(0))
	assert.True(t, column.FieldAt(0).IsNull())
	assert.False(t, nullable.NullAt(1))
	assert.Equal(t, int64(7), column.FieldAt(1).AsInt64())
}

func TestColumnNullIntoNonNullable(t *testing.T) {
	column, err := NewColumn(ColumnDesc{Name: "c", Type: TypeInt32})
	require.NoError(t, err)

	err = column.AppendField(NullField())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogical))
}

func TestNewColumnUnsupportedType(t *testing.T) {
	_, err := NewColumn(ColumnDesc{Name: "c", Type: ColumnType(99)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedColumnType))
}
