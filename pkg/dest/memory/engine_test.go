package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

func newTestEngine(t *testing.T) *Engine {
	engine := NewEngine(t.TempDir())
	engine.CreateDatabase("destdb")
	require.NoError(t, engine.CreateTable("destdb", "t", []dest.ColumnDesc{
		{Name: "id", Type: dest.TypeInt32},
		{Name: "v", Type: dest.TypeString},
	}, []string{"id"}))
	return engine
}

func appendEventRow(t *testing.T, block *dest.Block, id int32, v string, sign int8, version uint64) {
	require.NoError(t, block.AppendRow([]dest.Field{
		dest.Int64Field(int64(id)), dest.StringField(v), dest.Int64Field(int64(sign)), dest.UInt64Field(version),
	}))
}

func TestEngineInsertPipeline(t *testing.T) {
	engine := newTestEngine(t)

	io, err := engine.ExecuteQuery(context.Background(),
		"/*test*/ INSERT INTO `t`(id, v, _sign, _version) VALUES", "destdb", "test")
	require.NoError(t, err)
	require.NotNil(t, io.Out)

	table, err := engine.getTable("destdb", "t")
	require.NoError(t, err)

	block := table.SampleBlock()
	appendEventRow(t, block, 1, "a", 1, 11)
	require.NoError(t, io.Out.WriteBlock(block))
	assert.Equal(t, 1, table.Rows())
}

func TestEngineInsertFillsMaterializedDefaults(t *testing.T) {
	engine := newTestEngine(t)

	io, err := engine.ExecuteQuery(context.Background(), "INSERT INTO `t`(id, v) VALUES", "destdb", "dump")
	require.NoError(t, err)

	// dump blocks carry only the ordinary columns
	block, err := dest.NewBlock([]dest.ColumnDesc{
		{Name: "id", Type: dest.TypeInt32},
		{Name: "v", Type: dest.TypeString},
	})
	require.NoError(t, err)
	require.NoError(t, block.AppendRow([]dest.Field{dest.Int64Field(3), dest.StringField("x")}))
	require.NoError(t, io.Out.WriteBlock(block))

	table, err := engine.getTable("destdb", "t")
	require.NoError(t, err)
	require.Equal(t, 1, table.Rows())

	data := table.data
	signPos, _ := data.PositionByName(dest.SignColumnName)
	versionPos, _ := data.PositionByName(dest.VersionColumnName)
	assert.Equal(t, int64(1), data.FieldAt(signPos, 0).AsInt64())
	assert.Equal(t, uint64(1), data.FieldAt(versionPos, 0).AsUInt64())
}

func TestEngineDropTable(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.ExecuteQuery(context.Background(), "DROP TABLE `destdb`.`t`", "destdb", "clean")
	require.NoError(t, err)

	_, err = engine.GetTable("destdb", "t")
	require.Error(t, err)
}

func TestEngineExternalDDL(t *testing.T) {
	engine := newTestEngine(t)

	// without a translator external DDL is a syntax error, so it is skippable
	_, err := engine.ExecuteQuery(context.Background(),
		"EXTERNAL DDL FROM MySQL(`destdb`, `srcdb`) ALTER TABLE t ADD COLUMN w INT", "destdb", "ddl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dest.ErrSyntax))

	engine.Translator = func(e *Engine, database, query string) error {
		return e.AddTableColumn("destdb", "t", dest.ColumnDesc{Name: "w", Type: dest.TypeInt32, Nullable: true})
	}
	_, err = engine.ExecuteQuery(context.Background(),
		"EXTERNAL DDL FROM MySQL(`destdb`, `srcdb`) ALTER TABLE t ADD COLUMN w INT", "destdb", "ddl")
	require.NoError(t, err)

	table, err := engine.GetTable("destdb", "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "v", "w"}, table.OrdinaryColumns())
}

func TestEngineUnparseableQuery(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.ExecuteQuery(context.Background(), "OPTIMIZE TABLE t", "destdb", "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dest.ErrSyntax))

	var xerr *xerror.XError
	assert.True(t, errors.As(err, &xerr))
}

func TestEngineCollapse(t *testing.T) {
	engine := newTestEngine(t)

	table, err := engine.getTable("destdb", "t")
	require.NoError(t, err)

	block := table.SampleBlock()
	// id=1: inserted, deleted
	appendEventRow(t, block, 1, "a", 1, 11)
	appendEventRow(t, block, 1, "a", -1, 12)
	// id=2: inserted then updated in place
	appendEventRow(t, block, 2, "b", 1, 13)
	appendEventRow(t, block, 2, "c", 1, 14)
	// id=3: alive
	appendEventRow(t, block, 3, "x", 1, 15)

	out := &tableOutput{table: table}
	require.NoError(t, out.WriteBlock(block))

	collapsed, err := engine.Collapse("destdb", "t")
	require.NoError(t, err)
	require.Equal(t, 2, collapsed.Rows())

	idPos, _ := collapsed.PositionByName("id")
	vPos, _ := collapsed.PositionByName("v")
	assert.Equal(t, int64(2), collapsed.FieldAt(idPos, 0).AsInt64())
	assert.Equal(t, "c", collapsed.FieldAt(vPos, 0).AsString())
	assert.Equal(t, int64(3), collapsed.FieldAt(idPos, 1).AsInt64())
	assert.Equal(t, "x", collapsed.FieldAt(vPos, 1).AsString())
}
