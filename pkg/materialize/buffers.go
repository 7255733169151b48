package materialize

import (
	"context"

	"github.com/tidwall/btree"

	"github.com/selectdb/materialize_syncer/pkg/dest"
)

const degree = 128

// BufferAndSortingColumns is one table's pending block plus the cached
// positions of its sorting-key columns.
type BufferAndSortingColumns struct {
	Data           *dest.Block
	SortingColumns []int
}

// Buffers holds the pending blocks of all tables between two flushes. It is
// mutated by the single sync worker only, so it carries no lock.
type Buffers struct {
	database string
	data     *btree.Map[string, *BufferAndSortingColumns]

	maxBlockRows     uint64
	maxBlockBytes    uint64
	totalBlocksRows  uint64
	totalBlocksBytes uint64
}

func NewBuffers(database string) *Buffers {
	return &Buffers{
		database: database,
		data:     btree.NewMap[string, *BufferAndSortingColumns](degree),
	}
}

// GetTableDataBuffer returns the table's buffer, lazily built from the
// destination table's current metadata.
func (b *Buffers) GetTableDataBuffer(table string, catalog dest.Catalog) (*BufferAndSortingColumns, error) {
	if buffer, ok := b.data.Get(table); ok {
		return buffer, nil
	}

	destTable, err := catalog.GetTable(b.database, table)
	if err != nil {
		return nil, err
	}

	block := destTable.SampleBlock()
	sortingColumns := make([]int, 0)
	for _, name := range destTable.SortingKeyColumns() {
		position, err := block.PositionByName(name)
		if err != nil {
			return nil, err
		}
		sortingColumns = append(sortingColumns, position)
	}

	buffer := &BufferAndSortingColumns{
		Data:           block,
		SortingColumns: sortingColumns,
	}
	b.data.Set(table, buffer)
	return buffer, nil
}

func (b *Buffers) Add(blockRows, blockBytes, writtenRows, writtenBytes uint64) {
	b.totalBlocksRows += writtenRows
	b.totalBlocksBytes += writtenBytes
	if blockRows > b.maxBlockRows {
		b.maxBlockRows = blockRows
	}
	if blockBytes > b.maxBlockBytes {
		b.maxBlockBytes = blockBytes
	}
}

func (b *Buffers) CheckThresholds(checkBlockRows, checkBlockBytes, checkTotalRows, checkTotalBytes uint64) bool {
	return b.maxBlockRows >= checkBlockRows || b.maxBlockBytes >= checkBlockBytes ||
		b.totalBlocksRows >= checkTotalRows || b.totalBlocksBytes >= checkTotalBytes
}

func (b *Buffers) Empty() bool {
	return b.data.Len() == 0
}

// Totals reports the buffered rows and bytes since the last flush.
func (b *Buffers) Totals() (rows, bytes uint64) {
	return b.totalBlocksRows, b.totalBlocksBytes
}

// Commit streams every buffered block through its table's insert pipeline,
// materialized columns included. Buffers are cleared on success and on
// failure: the durable binlog position did not advance on failure, so the
// events replay into fresh buffers.
func (b *Buffers) Commit(ctx context.Context, executor dest.Executor, catalog dest.Catalog) error {
	var commitErr error
	b.data.Scan(func(table string, buffer *BufferAndSortingColumns) bool {
		out, err := getTableOutput(ctx, executor, catalog, b.database, table, true)
		if err != nil {
			commitErr = err
			return false
		}
		if err := out.WriteBlock(buffer.Data); err != nil {
			commitErr = err
			return false
		}
		return true
	})

	b.clear()
	return commitErr
}

func (b *Buffers) clear() {
	b.data = btree.NewMap[string, *BufferAndSortingColumns](degree)
	b.maxBlockRows = 0
	b.maxBlockBytes = 0
	b.totalBlocksRows = 0
	b.totalBlocksBytes = 0
}
