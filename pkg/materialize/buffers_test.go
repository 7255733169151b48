package materialize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/dest/memory"
)

func newTestEngine(t *testing.T) *memory.Engine {
	engine := memory.NewEngine(t.TempDir())
	engine.CreateDatabase("destdb")
	require.NoError(t, engine.CreateTable("destdb", "t", []dest.ColumnDesc{
		{Name: "id", Type: dest.TypeInt32},
		{Name: "v", Type: dest.TypeString},
	}, []string{"id"}))
	return engine
}

func TestBuffersLazyCreation(t *testing.T) {
	engine := newTestEngine(t)
	buffers := NewBuffers("destdb")

	assert.True(t, buffers.Empty())

	buffer, err := buffers.GetTableDataBuffer("t", engine)
	require.NoError(t, err)
	assert.Equal(t, 4, buffer.Data.Columns())
	assert.Equal(t, []int{0}, buffer.SortingColumns)
	assert.False(t, buffers.Empty())

	// second lookup returns the same buffer
	again, err := buffers.GetTableDataBuffer("t", engine)
	require.NoError(t, err)
	assert.Same(t, buffer, again)

	_, err = buffers.GetTableDataBuffer("missing", engine)
	require.Error(t, err)
}

func TestBuffersCheckThresholds(t *testing.T) {
	buffers := NewBuffers("destdb")

	assert.False(t, buffers.CheckThresholds(10, 1000, 100, 10000))

	buffers.Add(5, 500, 5, 500)
	assert.False(t, buffers.CheckThresholds(10, 1000, 100, 10000))

	// per-block rows threshold
	buffers.Add(10, 500, 5, 0)
	assert.True(t, buffers.CheckThresholds(10, 1000, 100, 10000))

	// totals accumulate across Add calls
	buffers = NewBuffers("destdb")
	buffers.Add(1, 1, 60, 0)
	buffers.Add(1, 1, 60, 0)
	assert.True(t, buffers.CheckThresholds(1000, 1000, 100, 10000))

	rows, bytes := buffers.Totals()
	assert.Equal(t, uint64(120), rows)
	assert.Equal(t, uint64(0), bytes)
}

func TestBuffersCommit(t *testing.T) {
	engine := newTestEngine(t)
	buffers := NewBuffers("destdb")

	buffer, err := buffers.GetTableDataBuffer("t", engine)
	require.NoError(t, err)

	version := uint64(10)
	bytes, err := onWriteOrDeleteData([][]dest.Field{row(1, "a"), row(2, "b")}, buffer.Data, 1, &version)
	require.NoError(t, err)
	buffers.Add(uint64(buffer.Data.Rows()), uint64(buffer.Data.Bytes()), 2, uint64(bytes))

	require.NoError(t, buffers.Commit(context.Background(), engine, engine))

	assert.True(t, buffers.Empty())
	rows, totalBytes := buffers.Totals()
	assert.Equal(t, uint64(0), rows)
	assert.Equal(t, uint64(0), totalBytes)

	collapsed, err := engine.Collapse("destdb", "t")
	require.NoError(t, err)
	assert.Equal(t, 2, collapsed.Rows())
}

func TestBuffersCommitFailureClears(t *testing.T) {
	engine := newTestEngine(t)
	buffers := NewBuffers("destdb")

	buffer, err := buffers.GetTableDataBuffer("t", engine)
	require.NoError(t, err)
	version := uint64(10)
	_, err = onWriteOrDeleteData([][]dest.Field{row(1, "a")}, buffer.Data, 1, &version)
	require.NoError(t, err)

	// the table vanishes before the flush
	require.NoError(t, engine.DropTable("destdb", "t"))

	err = buffers.Commit(context.Background(), engine, engine)
	require.Error(t, err)
	assert.True(t, buffers.Empty())
}
