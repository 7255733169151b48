package materialize

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
	"github.com/selectdb/materialize_syncer/pkg/xmetrics"
)

// dump blocks are cut at this many rows
const dumpBlockSize = 65505

// errCancelled aborts the snapshot dump so the metadata transaction does not
// commit a half-dumped state.
var errCancelled = xerror.NewWithoutStack(xerror.Normal, "synchronization cancelled")

func backQuoteIfNeed(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// getTableOutput opens an insert pipeline against one destination table.
// Dumps insert the ordinary columns only, flushes include the materialized
// trailer columns.
func getTableOutput(ctx context.Context, executor dest.Executor, catalog dest.Catalog, database, table string, insertMaterialized bool) (dest.BlockOutput, error) {
	destTable, err := catalog.GetTable(database, table)
	if err != nil {
		return nil, err
	}

	var insertColumns []string
	if insertMaterialized {
		insertColumns = destTable.AllPhysicalColumns()
	} else {
		insertColumns = destTable.OrdinaryColumns()
	}

	query := fmt.Sprintf("INSERT INTO %s(%s) VALUES", backQuoteIfNeed(table), strings.Join(insertColumns, ", "))
	comment := "Materialize MySQL step 1: execute dump data"
	io, err := executor.ExecuteQuery(ctx, query, database, comment)
	if err != nil {
		return nil, err
	}
	if io.Out == nil {
		return nil, xerror.XWrapf(dest.ErrLogical, "no output stream for table %s", table)
	}
	return io.Out, nil
}

// cleanOutdatedTables drops every pre-existing table of the destination
// database under the DDL guard.
func cleanOutdatedTables(ctx context.Context, database string, catalog dest.Catalog, executor dest.Executor) error {
	guard, err := catalog.GetDDLGuard(database, "")
	if err != nil {
		return err
	}
	defer guard.Release()

	destDatabase, err := catalog.GetDatabase(database)
	if err != nil {
		return err
	}

	for _, table := range destDatabase.TableNames() {
		comment := "Materialize MySQL step 1: execute MySQL DDL for dump data"
		query := fmt.Sprintf("DROP TABLE %s.%s", backQuoteIfNeed(database), backQuoteIfNeed(table))
		if _, err := executor.ExecuteQuery(ctx, query, database, comment); err != nil {
			return err
		}
	}
	return nil
}

// dumpHeaderBlock builds the dump block shape: the destination table's
// ordinary columns, no trailers.
func dumpHeaderBlock(destTable dest.Table) (*dest.Block, error) {
	sample := destTable.SampleBlock()
	descs := make([]dest.ColumnDesc, 0)
	for _, name := range destTable.OrdinaryColumns() {
		position, err := sample.PositionByName(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, sample.DescAt(position))
	}
	return dest.NewBlock(descs)
}

// scanField parses one dumped value into the field arm its destination
// column consumes. A nil RawBytes is SQL NULL.
func scanField(raw sql.RawBytes, desc dest.ColumnDesc) (dest.Field, error) {
	if raw == nil {
		return dest.NullField(), nil
	}

	text := string(raw)
	switch desc.Type {
	case dest.TypeInt8, dest.TypeInt16, dest.TypeInt32, dest.TypeInt64:
		value, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return dest.Field{}, xerror.Wrapf(err, xerror.Source, "parse %q as integer for column %s failed", text, desc.Name)
		}
		return dest.Int64Field(value), nil
	case dest.TypeUInt8, dest.TypeUInt16, dest.TypeUInt32, dest.TypeUInt64:
		value, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return dest.Field{}, xerror.Wrapf(err, xerror.Source, "parse %q as unsigned for column %s failed", text, desc.Name)
		}
		return dest.UInt64Field(value), nil
	case dest.TypeFloat32, dest.TypeFloat64:
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return dest.Field{}, xerror.Wrapf(err, xerror.Source, "parse %q as float for column %s failed", text, desc.Name)
		}
		return dest.Float64Field(value), nil
	case dest.TypeString, dest.TypeFixedString:
		return dest.StringField(text), nil
	default:
		return dest.Field{}, xerror.XWrapf(dest.ErrUnsupportedColumnType, "column %s type %d", desc.Name, desc.Type)
	}
}

// copyDumpData streams one SELECT * result set into the insert pipeline in
// blocks, honoring the cancellation predicate between rows.
func copyDumpData(rows *sql.Rows, header *dest.Block, out dest.BlockOutput, isCancelled func() bool) error {
	descs := header.Descs()
	block := header.EmptyClone()

	rowData := make([]sql.RawBytes, len(descs))
	rowPointer := make([]interface{}, len(descs))
	for i := range rowPointer {
		rowPointer[i] = &rowData[i]
	}

	for rows.Next() && !isCancelled() {
		if err := rows.Scan(rowPointer...); err != nil {
			return xerror.Wrap(err, xerror.Source, "scan dump row failed")
		}

		for i := range descs {
			field, err := scanField(rowData[i], descs[i])
			if err != nil {
				return err
			}
			if err := block.ColumnAt(i).AppendField(field); err != nil {
				return err
			}
		}

		if block.Rows() >= dumpBlockSize {
			if err := out.WriteBlock(block); err != nil {
				return err
			}
			block = header.EmptyClone()
		}
	}
	if err := rows.Err(); err != nil {
		return xerror.Wrap(err, xerror.Source, "read dump rows failed")
	}
	if isCancelled() {
		return xerror.WithStack(errCancelled)
	}

	if block.Rows() > 0 {
		if err := out.WriteBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// dumpDataForTables creates every destination table through the DDL executor
// and streams its full source contents.
func dumpDataForTables(
	ctx context.Context, conn *sql.Conn, metadata *Metadata, queryPrefix, database, sourceDatabase, jobName string,
	catalog dest.Catalog, executor dest.Executor, isCancelled func() bool,
) error {
	for _, table := range metadata.NeedDumpingTables() {
		if isCancelled() {
			return xerror.WithStack(errCancelled)
		}

		comment := "Materialize MySQL step 1: execute MySQL DDL for dump data"
		if _, err := executor.ExecuteQuery(ctx, queryPrefix+" "+metadata.CreateQuery(table), database, comment); err != nil {
			return xerror.Wrapf(err, xerror.DDL, "create table %s failed", table)
		}

		destTable, err := catalog.GetTable(database, table)
		if err != nil {
			return err
		}
		header, err := dumpHeaderBlock(destTable)
		if err != nil {
			return err
		}
		rawOut, err := getTableOutput(ctx, executor, catalog, database, table, false)
		if err != nil {
			return err
		}
		out := dest.NewCountingBlockOutput(rawOut)

		query := fmt.Sprintf("SELECT * FROM %s.%s", backQuoteIfNeed(sourceDatabase), backQuoteIfNeed(table))
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return xerror.Wrapf(err, xerror.Source, "dump table %s failed", table)
		}

		start := time.Now()
		err = copyDumpData(rows, header, out, isCancelled)
		rows.Close()
		if err != nil {
			return err
		}

		writtenRows, writtenBytes := out.Progress()
		elapsed := time.Since(start).Seconds()
		if elapsed <= 0 {
			elapsed = 1e-9
		}
		xmetrics.DumpTable(jobName, writtenRows)
		log.Infof("Materialize MySQL step 1: dump %s, %d rows, %d bytes in %.2f sec., %.0f rows/sec., %.0f bytes/sec.",
			table, writtenRows, writtenBytes, elapsed,
			float64(writtenRows)/elapsed, float64(writtenBytes)/elapsed)
	}
	return nil
}
