package utils

import (
	"database/sql"
	"strconv"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

// RowParser scans one row of a result set whose column layout is only known
// at runtime, such as SHOW MASTER STATUS or SHOW VARIABLES.
type RowParser struct {
	columns map[string]*sql.RawBytes
}

func NewRowParser() *RowParser {
	return &RowParser{
		columns: make(map[string]*sql.RawBytes),
	}
}

func (r *RowParser) Parse(row *sql.Rows) error {
	cols, err := row.Columns()
	if err != nil {
		return err
	}

	rowData := make([]sql.RawBytes, len(cols))
	rowPointer := make([]interface{}, len(cols))
	for i := range rowPointer {
		rowPointer[i] = &rowData[i]
	}

	if err := row.Scan(rowPointer...); err != nil {
		return err
	}

	for i, colName := range cols {
		r.columns[colName] = rowPointer[i].(*sql.RawBytes)
	}

	return nil
}

func (r *RowParser) GetBytesPointer(columnName string) (*sql.RawBytes, error) {
	resBytes, ok := r.columns[columnName]
	if !ok {
		return nil, xerror.Errorf(xerror.Normal, "column %s is not in this result set", columnName)
	}
	return resBytes, nil
}

func (r *RowParser) GetString(columnName string) (string, error) {
	resBytes, err := r.GetBytesPointer(columnName)
	if err != nil {
		return "", err
	}
	return string(*resBytes), nil
}

func (r *RowParser) GetInt64(columnName string) (int64, error) {
	resString, err := r.GetString(columnName)
	if err != nil {
		return 0, err
	}

	resInt64, err := strconv.ParseInt(resString, 10, 64)
	if err != nil {
		return 0, xerror.Wrapf(err, xerror.Normal, "parse %s as int64 failed", columnName)
	}
	return resInt64, nil
}

func (r *RowParser) GetUInt64(columnName string) (uint64, error) {
	resString, err := r.GetString(columnName)
	if err != nil {
		return 0, err
	}

	resUInt64, err := strconv.ParseUint(resString, 10, 64)
	if err != nil {
		return 0, xerror.Wrapf(err, xerror.Normal, "parse %s as uint64 failed", columnName)
	}
	return resUInt64, nil
}
