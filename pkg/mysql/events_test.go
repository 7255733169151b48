package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selectdb/materialize_syncer/pkg/dest"
)

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want dest.Field
	}{
		{"nil", nil, dest.NullField()},
		{"int8", int8(-1), dest.Int64Field(-1)},
		{"int16", int16(-2), dest.Int64Field(-2)},
		{"int32", int32(-3), dest.Int64Field(-3)},
		{"int64", int64(-4), dest.Int64Field(-4)},
		{"uint8", uint8(1), dest.UInt64Field(1)},
		{"uint32", uint32(3), dest.UInt64Field(3)},
		{"uint64", uint64(1 << 63), dest.UInt64Field(1 << 63)},
		{"float32", float32(1.5), dest.Float64Field(1.5)},
		{"float64", float64(2.5), dest.Float64Field(2.5)},
		{"string", "abc", dest.StringField("abc")},
		{"bytes", []byte("xyz"), dest.StringField("xyz")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeValue(tt.in)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestDecodeRowImages(t *testing.T) {
	images := decodeRowImages([][]interface{}{
		{int32(1), "a"},
		{int32(2), nil},
	})
	assert.Len(t, images, 2)
	assert.True(t, images[0][0].Equal(dest.Int64Field(1)))
	assert.True(t, images[0][1].Equal(dest.StringField("a")))
	assert.True(t, images[1][1].IsNull())
}

func TestEventTypesAreSealed(t *testing.T) {
	events := []Event{
		&WriteRowsEvent{},
		&UpdateRowsEvent{},
		&DeleteRowsEvent{},
		&QueryEvent{},
	}
	for _, event := range events {
		assert.NotNil(t, event)
	}
}
