package materialize

import (
	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

// writeFieldsToColumn appends the columnIndex-th field of every row image to
// the column. A non-nil mask restricts which images are written.
func writeFieldsToColumn(column dest.Column, rows [][]dest.Field, columnIndex int, mask []bool) error {
	for i, row := range rows {
		if mask != nil && !mask[i] {
			continue
		}
		if columnIndex >= len(row) {
			return xerror.XWrapf(dest.ErrLogical, "row image of %d fields has no column %d", len(row), columnIndex)
		}
		if err := column.AppendField(row[columnIndex]); err != nil {
			return xerror.Wrapf(err, xerror.Dest, "append field to column %d failed", columnIndex)
		}
	}
	return nil
}

// onWriteOrDeleteData translates insert or delete row images, every image
// becomes one row with the given sign and its own bumped version. Returns the
// bytes added to the buffer.
func onWriteOrDeleteData(rows [][]dest.Field, buffer *dest.Block, sign int8, version *uint64) (int, error) {
	prevBytes := buffer.Bytes()

	for column := 0; column < buffer.Columns()-2; column++ {
		if err := writeFieldsToColumn(buffer.ColumnAt(column), rows, column, nil); err != nil {
			return 0, err
		}
	}

	signColumn, err := buffer.SignColumn()
	if err != nil {
		return 0, err
	}
	versionColumn, err := buffer.VersionColumn()
	if err != nil {
		return 0, err
	}
	for range rows {
		*version++
		signColumn.Append(sign)
		versionColumn.Append(*version)
	}

	return buffer.Bytes() - prevBytes, nil
}

func differenceSortingKeys(rowOldData, rowNewData []dest.Field, sortingColumns []int) bool {
	for _, sortingColumnIndex := range sortingColumns {
		if !rowOldData[sortingColumnIndex].Equal(rowNewData[sortingColumnIndex]) {
			return true
		}
	}
	return false
}

// onUpdateData translates an update event: 2n images arranged as
// [before, after, ...]. The after image is always emitted with sign +1, the
// before image only when a sorting-key column changed, as a sign -1 row. The
// whole event gets one bumped version replicated into every emitted row.
func onUpdateData(rows [][]dest.Field, buffer *dest.Block, version *uint64, sortingColumns []int) (int, error) {
	if len(rows)%2 != 0 {
		return 0, xerror.XWrapf(dest.ErrLogical, "update event with %d row images", len(rows))
	}

	prevBytes := buffer.Bytes()
	writeableRowsMask := make([]bool, len(rows))
	for index := 0; index < len(rows); index += 2 {
		writeableRowsMask[index+1] = true
		writeableRowsMask[index] = differenceSortingKeys(rows[index], rows[index+1], sortingColumns)
	}

	for column := 0; column < buffer.Columns()-2; column++ {
		if err := writeFieldsToColumn(buffer.ColumnAt(column), rows, column, writeableRowsMask); err != nil {
			return 0, err
		}
	}

	signColumn, err := buffer.SignColumn()
	if err != nil {
		return 0, err
	}
	versionColumn, err := buffer.VersionColumn()
	if err != nil {
		return 0, err
	}

	*version++
	for index := 0; index < len(rows); index += 2 {
		if !writeableRowsMask[index] {
			signColumn.Append(1)
			versionColumn.Append(*version)
		} else {
			// the sorting key moved, cancel the old row
			signColumn.Append(-1)
			signColumn.Append(1)
			versionColumn.Append(*version)
			versionColumn.Append(*version)
		}
	}

	return buffer.Bytes() - prevBytes, nil
}
