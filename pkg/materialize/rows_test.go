package materialize

import (
	"errors"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectdb/materialize_syncer/pkg/dest"
)

func init() {
	log.SetOutput(io.Discard)
}

func newEventBlock(t *testing.T) *dest.Block {
	block, err := dest.NewBlock(append([]dest.ColumnDesc{
		{Name: "id", Type: dest.TypeInt32},
		{Name: "v", Type: dest.TypeString},
	}, dest.TrailerColumns()...))
	require.NoError(t, err)
	return block
}

type emittedRow struct {
	id      int64
	v       string
	sign    int64
	version uint64
}

func emittedRows(t *testing.T, block *dest.Block) []emittedRow {
	idPos, err := block.PositionByName("id")
	require.NoError(t, err)
	vPos, err := block.PositionByName("v")
	require.NoError(t, err)
	signPos, err := block.PositionByName(dest.SignColumnName)
	require.NoError(t, err)
	versionPos, err := block.PositionByName(dest.VersionColumnName)
	require.NoError(t, err)

	rows := make([]emittedRow, 0, block.Rows())
	for i := 0; i < block.Rows(); i++ {
		rows = append(rows, emittedRow{
			id:      block.FieldAt(idPos, i).AsInt64(),
			v:       block.FieldAt(vPos, i).AsString(),
			sign:    block.FieldAt(signPos, i).AsInt64(),
			version: block.FieldAt(versionPos, i).AsUInt64(),
		})
	}
	return rows
}

func row(id int64, v string) []dest.Field {
	return []dest.Field{dest.Int64Field(id), dest.StringField(v)}
}

// the scenarios below run with version starting at 10 and sorting key `id`

func TestOnWriteData(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(10)

	bytes, err := onWriteOrDeleteData([][]dest.Field{row(1, "a")}, block, 1, &version)
	require.NoError(t, err)
	assert.Greater(t, bytes, 0)
	assert.Equal(t, uint64(11), version)
	assert.Equal(t, []emittedRow{{1, "a", 1, 11}}, emittedRows(t, block))
}

func TestOnDeleteData(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(11)

	_, err := onWriteOrDeleteData([][]dest.Field{row(1, "a")}, block, -1, &version)
	require.NoError(t, err)
	assert.Equal(t, []emittedRow{{1, "a", -1, 12}}, emittedRows(t, block))
}

func TestOnUpdateDataSameSortingKey(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(12)

	_, err := onUpdateData([][]dest.Field{row(1, "a"), row(1, "b")}, block, &version, []int{0})
	require.NoError(t, err)
	assert.Equal(t, uint64(13), version)
	assert.Equal(t, []emittedRow{{1, "b", 1, 13}}, emittedRows(t, block))
}

func TestOnUpdateDataChangedSortingKey(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(13)

	_, err := onUpdateData([][]dest.Field{row(1, "b"), row(2, "b")}, block, &version, []int{0})
	require.NoError(t, err)
	assert.Equal(t, uint64(14), version)
	// the cancelled before image and the after image share one version
	assert.Equal(t, []emittedRow{{1, "b", -1, 14}, {2, "b", 1, 14}}, emittedRows(t, block))
}

func TestOnWriteDataBatch(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(14)

	_, err := onWriteOrDeleteData([][]dest.Field{row(3, "x"), row(4, "y")}, block, 1, &version)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), version)
	assert.Equal(t, []emittedRow{{3, "x", 1, 15}, {4, "y", 1, 16}}, emittedRows(t, block))
}

func TestOnUpdateDataOddImageCount(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(10)

	_, err := onUpdateData([][]dest.Field{row(1, "a"), row(1, "b"), row(2, "c")}, block, &version, []int{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dest.ErrLogical))
	assert.Equal(t, uint64(10), version)
}

func TestOnUpdateDataMultiplePairsShareOneVersion(t *testing.T) {
	block := newEventBlock(t)
	version := uint64(20)

	_, err := onUpdateData([][]dest.Field{
		row(1, "a"), row(1, "a2"), // key unchanged
		row(2, "b"), row(3, "b"), // key moved
	}, block, &version, []int{0})
	require.NoError(t, err)
	assert.Equal(t, uint64(21), version)
	assert.Equal(t, []emittedRow{
		{1, "a2", 1, 21},
		{2, "b", -1, 21},
		{3, "b", 1, 21},
	}, emittedRows(t, block))
}

func TestDifferenceSortingKeys(t *testing.T) {
	assert.False(t, differenceSortingKeys(row(1, "a"), row(1, "b"), []int{0}))
	assert.True(t, differenceSortingKeys(row(1, "a"), row(2, "a"), []int{0}))
	assert.True(t, differenceSortingKeys(row(1, "a"), row(1, "b"), []int{0, 1}))
	assert.False(t, differenceSortingKeys(row(1, "a"), row(2, "b"), nil))
}
