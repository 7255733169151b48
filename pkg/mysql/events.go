package mysql

import (
	"fmt"

	"github.com/selectdb/materialize_syncer/pkg/dest"
)

// The binlog event types the sync core handles form a closed set, everything
// else is skipped inside the client. The translator switches on the concrete
// type.

type Event interface {
	binlogEvent()
}

// WriteRowsEvent carries n inserted row images.
type WriteRowsEvent struct {
	Schema string
	Table  string
	Rows   [][]dest.Field
}

func (*WriteRowsEvent) binlogEvent() {}

// UpdateRowsEvent carries 2n row images arranged as [before, after, ...].
type UpdateRowsEvent struct {
	Schema string
	Table  string
	Rows   [][]dest.Field
}

func (*UpdateRowsEvent) binlogEvent() {}

// DeleteRowsEvent carries n deleted row images.
type DeleteRowsEvent struct {
	Schema string
	Table  string
	Rows   [][]dest.Field
}

func (*DeleteRowsEvent) binlogEvent() {}

// QueryEvent is a DDL statement travelling through the binlog.
type QueryEvent struct {
	Schema string
	Query  string
}

func (*QueryEvent) binlogEvent() {}

// DecodeValue narrows one raw replication value into the tagged field
// representation the destination columns consume.
func DecodeValue(value interface{}) dest.Field {
	switch v := value.(type) {
	case nil:
		return dest.NullField()
	case int8:
		return dest.Int64Field(int64(v))
	case int16:
		return dest.Int64Field(int64(v))
	case int32:
		return dest.Int64Field(int64(v))
	case int64:
		return dest.Int64Field(v)
	case int:
		return dest.Int64Field(int64(v))
	case uint8:
		return dest.UInt64Field(uint64(v))
	case uint16:
		return dest.UInt64Field(uint64(v))
	case uint32:
		return dest.UInt64Field(uint64(v))
	case uint64:
		return dest.UInt64Field(v)
	case uint:
		return dest.UInt64Field(uint64(v))
	case float32:
		return dest.Float64Field(float64(v))
	case float64:
		return dest.Float64Field(v)
	case string:
		return dest.StringField(v)
	case []byte:
		return dest.StringField(string(v))
	default:
		// dates, times and decimals arrive as their string rendering
		return dest.StringField(fmt.Sprintf("%v", v))
	}
}

func decodeRowImages(rows [][]interface{}) [][]dest.Field {
	images := make([][]dest.Field, 0, len(rows))
	for _, row := range rows {
		image := make([]dest.Field, 0, len(row))
		for _, value := range row {
			image = append(image, DecodeValue(value))
		}
		images = append(images, image)
	}
	return images
}
