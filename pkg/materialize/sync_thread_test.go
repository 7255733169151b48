package materialize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/dest/memory"
	"github.com/selectdb/materialize_syncer/pkg/mysql"
)

func newTestSyncThread(t *testing.T, engine *memory.Engine) (*SyncThread, *Metadata) {
	thread := NewSyncThread("test-job", mysql.Spec{
		Host: "127.0.0.1", Port: 3306, User: "root", Database: "srcdb",
	}, "destdb", DefaultSettings(), engine, engine)

	destDatabase, err := engine.GetDatabase("destdb")
	require.NoError(t, err)

	metadata := &Metadata{
		BinlogFile:          "mysql-bin.000001",
		BinlogOffset:        4,
		Version:             10,
		SourceDatabaseName:  "srcdb",
		SourceServerVersion: "8.0.33",
		path:                filepath.Join(destDatabase.MetadataPath(), MetadataFileName),
		needDumpingTables:   make(map[string]string),
	}
	return thread, metadata
}

func writeEvent(table string, rows ...[]dest.Field) *mysql.WriteRowsEvent {
	return &mysql.WriteRowsEvent{Schema: "srcdb", Table: table, Rows: rows}
}

func TestSyncThreadEventFlow(t *testing.T) {
	engine := newTestEngine(t)
	thread, metadata := newTestSyncThread(t, engine)
	buffers := NewBuffers("destdb")

	// 1. INSERT (id=1, v='a')
	require.NoError(t, thread.onEvent(buffers, writeEvent("t", row(1, "a")), metadata))
	assert.Equal(t, uint64(11), metadata.Version)

	// 2. DELETE (id=1)
	require.NoError(t, thread.onEvent(buffers, &mysql.DeleteRowsEvent{
		Schema: "srcdb", Table: "t", Rows: [][]dest.Field{row(1, "a")},
	}, metadata))
	assert.Equal(t, uint64(12), metadata.Version)

	// 3. UPDATE v 'a' -> 'b', id unchanged
	require.NoError(t, thread.onEvent(buffers, &mysql.UpdateRowsEvent{
		Schema: "srcdb", Table: "t", Rows: [][]dest.Field{row(1, "a"), row(1, "b")},
	}, metadata))
	assert.Equal(t, uint64(13), metadata.Version)

	// 4. UPDATE id 1 -> 2, id is the sorting key
	require.NoError(t, thread.onEvent(buffers, &mysql.UpdateRowsEvent{
		Schema: "srcdb", Table: "t", Rows: [][]dest.Field{row(1, "b"), row(2, "b")},
	}, metadata))
	assert.Equal(t, uint64(14), metadata.Version)

	// 5. one event with two inserts
	require.NoError(t, thread.onEvent(buffers, writeEvent("t", row(3, "x"), row(4, "y")), metadata))
	assert.Equal(t, uint64(16), metadata.Version)

	require.NoError(t, thread.flushBuffersData(buffers, metadata))
	assert.True(t, buffers.Empty())

	// after collapse only id=2, id=3, id=4 survive
	collapsed, err := engine.Collapse("destdb", "t")
	require.NoError(t, err)
	require.Equal(t, 3, collapsed.Rows())

	idPos, _ := collapsed.PositionByName("id")
	vPos, _ := collapsed.PositionByName("v")
	assert.Equal(t, int64(2), collapsed.FieldAt(idPos, 0).AsInt64())
	assert.Equal(t, "b", collapsed.FieldAt(vPos, 0).AsString())
	assert.Equal(t, int64(3), collapsed.FieldAt(idPos, 1).AsInt64())
	assert.Equal(t, int64(4), collapsed.FieldAt(idPos, 2).AsInt64())

	// the durable record advanced with the flush
	_, err = os.Stat(metadata.path)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), metadata.Version)
}

func TestSyncThreadQueryEventFlushesAndWidens(t *testing.T) {
	engine := newTestEngine(t)
	engine.Translator = func(e *memory.Engine, database, query string) error {
		return e.AddTableColumn("destdb", "t", dest.ColumnDesc{Name: "w", Type: dest.TypeInt32, Nullable: true})
	}
	thread, metadata := newTestSyncThread(t, engine)
	buffers := NewBuffers("destdb")

	require.NoError(t, thread.onEvent(buffers, writeEvent("t", row(1, "a")), metadata))
	assert.False(t, buffers.Empty())

	// 6. source DDL: buffered data flushes, the table gains column w
	require.NoError(t, thread.onEvent(buffers, &mysql.QueryEvent{
		Schema: "srcdb", Query: "ALTER TABLE t ADD COLUMN w INT",
	}, metadata))
	assert.True(t, buffers.Empty())

	table, err := engine.GetTable("destdb", "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "v", "w"}, table.OrdinaryColumns())

	// subsequent row events carry the new column
	require.NoError(t, thread.onEvent(buffers, writeEvent("t",
		[]dest.Field{dest.Int64Field(5), dest.StringField("z"), dest.Int64Field(7)}), metadata))
	require.NoError(t, thread.flushBuffersData(buffers, metadata))

	collapsed, err := engine.Collapse("destdb", "t")
	require.NoError(t, err)
	require.Equal(t, 2, collapsed.Rows())

	wPos, err := collapsed.PositionByName("w")
	require.NoError(t, err)
	// the pre-DDL row has no w value, the post-DDL row does
	assert.True(t, collapsed.FieldAt(wPos, 0).IsNull())
	assert.Equal(t, int64(7), collapsed.FieldAt(wPos, 1).AsInt64())
}

func TestSyncThreadSkipsUnparseableDDL(t *testing.T) {
	engine := newTestEngine(t)
	thread, metadata := newTestSyncThread(t, engine)
	buffers := NewBuffers("destdb")

	// no translator registered, the executor reports a syntax error and the
	// event is skipped without failing the worker
	require.NoError(t, thread.onEvent(buffers, &mysql.QueryEvent{
		Schema: "srcdb", Query: "CREATE EVENT not_translatable ON SCHEDULE EVERY 1 DAY DO SELECT 1",
	}, metadata))
}

func TestSyncThreadDDLOtherSchemaRoutesEmptyTarget(t *testing.T) {
	engine := newTestEngine(t)
	var gotDatabase string
	engine.Translator = func(e *memory.Engine, database, query string) error {
		gotDatabase = database
		return nil
	}
	thread, metadata := newTestSyncThread(t, engine)
	buffers := NewBuffers("destdb")

	require.NoError(t, thread.onEvent(buffers, &mysql.QueryEvent{
		Schema: "otherdb", Query: "ALTER TABLE t ADD COLUMN w INT",
	}, metadata))
	assert.Equal(t, "", gotDatabase)

	require.NoError(t, thread.onEvent(buffers, &mysql.QueryEvent{
		Schema: "srcdb", Query: "ALTER TABLE t ADD COLUMN w INT",
	}, metadata))
	assert.Equal(t, "destdb", gotDatabase)
}

func TestSyncThreadStateMachine(t *testing.T) {
	engine := newTestEngine(t)
	thread, _ := newTestSyncThread(t, engine)

	assert.Equal(t, StateInit, thread.State())
	thread.setState(StateProbing)
	assert.Equal(t, StateProbing, thread.State())
	assert.Equal(t, "Probing", thread.State().String())
	assert.Equal(t, "Snapshotting", StateSnapshotting.String())
	assert.Equal(t, "Streaming", StateStreaming.String())
	assert.Equal(t, "Cancelled", StateCancelled.String())
	assert.Equal(t, "Failed", StateFailed.String())
}

func TestSyncThreadStopIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	thread, _ := newTestSyncThread(t, engine)

	assert.False(t, thread.isCancelled())
	thread.StopSynchronization()
	thread.StopSynchronization()
	assert.True(t, thread.isCancelled())
}
