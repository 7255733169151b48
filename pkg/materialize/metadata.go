package materialize

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/selectdb/materialize_syncer/pkg/mysql"
	"github.com/selectdb/materialize_syncer/pkg/utils"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

const MetadataFileName = ".metadata"

// Metadata is the durable record that makes replication progress restartable.
// It is rewritten atomically after every successful flush, so the persisted
// binlog position never runs ahead of the data visible in the destination.
type Metadata struct {
	BinlogFile          string `json:"binlog_file"`
	BinlogOffset        uint64 `json:"binlog_offset"`
	ExecutedGtidSet     string `json:"executed_gtid_set"`
	Version             uint64 `json:"version"`
	SourceDatabaseName  string `json:"source_database_name"`
	SourceServerVersion string `json:"source_server_version"`

	path              string
	needDumpingTables map[string]string
}

// LoadMetadata restores the metadata record, or bootstraps one under a
// consistent snapshot transaction on the given connection. The returned bool
// reports whether that transaction was opened and is still running, the
// caller owns its COMMIT / ROLLBACK.
func LoadMetadata(ctx context.Context, conn *sql.Conn, path, sourceDatabase, serverVersion string) (*Metadata, bool, error) {
	metadata := &Metadata{
		SourceDatabaseName:  sourceDatabase,
		SourceServerVersion: serverVersion,
		path:                path,
		needDumpingTables:   make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, metadata); err != nil {
			return nil, false, xerror.Wrapf(err, xerror.Meta, "corrupted metadata file %s", path)
		}
		metadata.SourceServerVersion = serverVersion
		return metadata, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, xerror.Wrapf(err, xerror.Meta, "read metadata file %s failed", path)
	}

	// First bootstrap: the binlog position, the GTID set and the table list
	// must observe the same point in the binlog.
	if _, err := conn.ExecContext(ctx, "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		return nil, false, xerror.Wrap(err, xerror.Source, "start consistent snapshot failed")
	}

	if err := metadata.fetchMasterStatus(ctx, conn); err != nil {
		return nil, true, err
	}
	if err := metadata.fetchNeedDumpingTables(ctx, conn); err != nil {
		return nil, true, err
	}

	return metadata, true, nil
}

func (m *Metadata) fetchMasterStatus(ctx context.Context, conn *sql.Conn) error {
	rows, err := conn.QueryContext(ctx, "SHOW MASTER STATUS")
	if err != nil {
		return xerror.Wrap(err, xerror.Source, "show master status failed")
	}
	defer rows.Close()

	if !rows.Next() {
		return xerror.New(xerror.Source, "empty master status, is binary logging enabled?")
	}
	parser := utils.NewRowParser()
	if err := parser.Parse(rows); err != nil {
		return xerror.Wrap(err, xerror.Source, "parse master status failed")
	}

	if m.BinlogFile, err = parser.GetString("File"); err != nil {
		return err
	}
	if m.BinlogOffset, err = parser.GetUInt64("Position"); err != nil {
		return err
	}
	// absent before MySQL 5.6
	if gtid, err := parser.GetString("Executed_Gtid_Set"); err == nil {
		m.ExecutedGtidSet = gtid
	}
	return rows.Err()
}

func (m *Metadata) fetchNeedDumpingTables(ctx context.Context, conn *sql.Conn) error {
	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return xerror.Wrap(err, xerror.Source, "show tables failed")
	}

	tables := make([]string, 0)
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			rows.Close()
			return xerror.Wrap(err, xerror.Source, "scan table name failed")
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return xerror.Wrap(err, xerror.Source, "show tables failed")
	}
	rows.Close()

	for _, table := range tables {
		createQuery, err := fetchCreateQuery(ctx, conn, m.SourceDatabaseName, table)
		if err != nil {
			return err
		}
		m.needDumpingTables[table] = createQuery
	}
	return nil
}

func fetchCreateQuery(ctx context.Context, conn *sql.Conn, database, table string) (string, error) {
	query := fmt.Sprintf("SHOW CREATE TABLE %s.%s", backQuoteIfNeed(database), backQuoteIfNeed(table))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return "", xerror.Wrapf(err, xerror.Source, "show create table %s failed", table)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", xerror.Errorf(xerror.Source, "empty result of show create table %s", table)
	}
	parser := utils.NewRowParser()
	if err := parser.Parse(rows); err != nil {
		return "", xerror.Wrapf(err, xerror.Source, "parse show create table %s failed", table)
	}
	createQuery, err := parser.GetString("Create Table")
	if err != nil {
		return "", err
	}
	return createQuery, rows.Err()
}

// NeedDumpingTables returns the snapshot table list in deterministic order.
func (m *Metadata) NeedDumpingTables() []string {
	tables := maps.Keys(m.needDumpingTables)
	slices.Sort(tables)
	return tables
}

func (m *Metadata) CreateQuery(table string) string {
	return m.needDumpingTables[table]
}

// Transaction runs body and persists the record at the new position only if
// body returned normally. Persistence is write-temp plus rename so a crash
// never leaves a half-written record.
func (m *Metadata) Transaction(pos mysql.Position, body func() error) error {
	if err := body(); err != nil {
		return err
	}

	next := *m
	next.BinlogFile = pos.File
	next.BinlogOffset = pos.Offset
	if pos.GtidSet != "" {
		next.ExecutedGtidSet = pos.GtidSet
	}

	data, err := json.MarshalIndent(&next, "", "  ")
	if err != nil {
		return xerror.Wrap(err, xerror.Meta, "marshal metadata failed")
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return xerror.Wrap(err, xerror.Meta, "create metadata directory failed")
	}
	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return xerror.Wrapf(err, xerror.Meta, "write metadata file %s failed", tmpPath)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return xerror.Wrapf(err, xerror.Meta, "rename metadata file %s failed", tmpPath)
	}

	m.BinlogFile = next.BinlogFile
	m.BinlogOffset = next.BinlogOffset
	m.ExecutedGtidSet = next.ExecutedGtidSet
	m.needDumpingTables = make(map[string]string)
	return nil
}

// Position is the current in-memory binlog position.
func (m *Metadata) Position() mysql.Position {
	return mysql.Position{File: m.BinlogFile, Offset: m.BinlogOffset, GtidSet: m.ExecutedGtidSet}
}
