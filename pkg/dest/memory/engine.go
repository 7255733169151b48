package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

// Translator resolves `EXTERNAL DDL FROM MySQL(...)` statements against the
// engine. Returning dest.ErrSyntax marks the statement skippable, any other
// error is fatal to the sync worker.
type Translator func(e *Engine, database, query string) error

// Engine is an in-process merge-on-read destination: catalog, query executor
// and storage in one. It backs tests and local runs, a production deployment
// plugs a real columnar store behind the same interfaces.
type Engine struct {
	mu           sync.Mutex
	metadataRoot string
	databases    map[string]*Database

	Translator Translator
}

func NewEngine(metadataRoot string) *Engine {
	return &Engine{
		metadataRoot: metadataRoot,
		databases:    make(map[string]*Database),
	}
}

type Database struct {
	name         string
	metadataPath string

	mu        sync.Mutex
	ddlMu     sync.Mutex
	tables    map[string]*Table
	exception error
}

func (d *Database) Name() string {
	return d.name
}

func (d *Database) MetadataPath() string {
	return d.metadataPath
}

func (d *Database) TableNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (d *Database) SetException(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exception = err
}

func (d *Database) Exception() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exception
}

type Table struct {
	name       string
	sortingKey []string

	mu   sync.Mutex
	data *dest.Block
}

func (t *Table) SampleBlock() *dest.Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.EmptyClone()
}

func (t *Table) OrdinaryColumns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	descs := t.data.Descs()
	names := make([]string, 0, len(descs))
	for _, desc := range descs {
		if desc.Name == dest.SignColumnName || desc.Name == dest.VersionColumnName {
			continue
		}
		names = append(names, desc.Name)
	}
	return names
}

func (t *Table) AllPhysicalColumns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	descs := t.data.Descs()
	names := make([]string, 0, len(descs))
	for _, desc := range descs {
		names = append(names, desc.Name)
	}
	return names
}

func (t *Table) SortingKeyColumns() []string {
	return append([]string(nil), t.sortingKey...)
}

// Rows returns the raw uncollapsed row count.
func (t *Table) Rows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Rows()
}

type ddlGuard struct {
	db *Database
}

func (g *ddlGuard) Release() {
	g.db.ddlMu.Unlock()
}

func (e *Engine) CreateDatabase(name string) *Database {
	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.databases[name]; ok {
		return db
	}
	db := &Database{
		name:         name,
		metadataPath: filepath.Join(e.metadataRoot, name),
		tables:       make(map[string]*Table),
	}
	e.databases[name] = db
	return db
}

func (e *Engine) GetDatabase(name string) (dest.Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.databases[name]
	if !ok {
		return nil, xerror.Errorf(xerror.Dest, "database %s not found", name)
	}
	return db, nil
}

func (e *Engine) getDatabase(name string) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.databases[name]
	if !ok {
		return nil, xerror.Errorf(xerror.Dest, "database %s not found", name)
	}
	return db, nil
}

func (e *Engine) GetTable(database, table string) (dest.Table, error) {
	t, err := e.getTable(database, table)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) getTable(database, table string) (*Table, error) {
	db, err := e.getDatabase(database)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[table]
	if !ok {
		return nil, xerror.Errorf(xerror.Dest, "table %s.%s not found", database, table)
	}
	return t, nil
}

func (e *Engine) GetDDLGuard(database, table string) (dest.DDLGuard, error) {
	db, err := e.getDatabase(database)
	if err != nil {
		return nil, err
	}
	db.ddlMu.Lock()
	return &ddlGuard{db: db}, nil
}

// CreateTable registers a table from its user-visible columns, the trailer
// columns are appended here.
func (e *Engine) CreateTable(database, table string, descs []dest.ColumnDesc, sortingKey []string) error {
	db, err := e.getDatabase(database)
	if err != nil {
		return err
	}

	physical := append(append([]dest.ColumnDesc(nil), descs...), dest.TrailerColumns()...)
	block, err := dest.NewBlock(physical)
	if err != nil {
		return err
	}
	for _, key := range sortingKey {
		if _, err := block.PositionByName(key); err != nil {
			return err
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[table]; ok {
		return xerror.Errorf(xerror.Dest, "table %s.%s already exists", database, table)
	}
	db.tables[table] = &Table{
		name:       table,
		sortingKey: append([]string(nil), sortingKey...),
		data:       block,
	}
	return nil
}

func (e *Engine) DropTable(database, table string) error {
	db, err := e.getDatabase(database)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[table]; !ok {
		return xerror.Errorf(xerror.Dest, "table %s.%s not found", database, table)
	}
	delete(db.tables, table)
	return nil
}

// AddTableColumn widens a table in place, existing rows take the default.
// The new column goes right before the trailer columns.
func (e *Engine) AddTableColumn(database, table string, desc dest.ColumnDesc) error {
	t, err := e.getTable(database, table)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	oldDescs := t.data.Descs()
	newDescs := make([]dest.ColumnDesc, 0, len(oldDescs)+1)
	newDescs = append(newDescs, oldDescs[:len(oldDescs)-2]...)
	newDescs = append(newDescs, desc)
	newDescs = append(newDescs, oldDescs[len(oldDescs)-2:]...)

	widened, err := dest.NewBlock(newDescs)
	if err != nil {
		return err
	}
	rows := t.data.Rows()
	for i, newDesc := range newDescs {
		column := widened.ColumnAt(i)
		if newDesc.Name == desc.Name {
			for row := 0; row < rows; row++ {
				column.AppendDefault()
			}
			continue
		}
		oldPos, err := t.data.PositionByName(newDesc.Name)
		if err != nil {
			return err
		}
		old := t.data.ColumnAt(oldPos)
		for row := 0; row < rows; row++ {
			if err := column.AppendField(old.FieldAt(row)); err != nil {
				return err
			}
		}
	}

	t.data = widened
	return nil
}

type tableOutput struct {
	table *Table
}

func (o *tableOutput) WriteBlock(block *dest.Block) error {
	t := o.table
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := block.Rows()
	for i, desc := range t.data.Descs() {
		column := t.data.ColumnAt(i)
		pos, err := block.PositionByName(desc.Name)
		if err == nil {
			incoming := block.ColumnAt(pos)
			for row := 0; row < rows; row++ {
				if err := column.AppendField(incoming.FieldAt(row)); err != nil {
					return err
				}
			}
			continue
		}

		// materialized columns absent from dump blocks
		switch desc.Name {
		case dest.SignColumnName:
			sign := column.(*dest.ColumnInt8)
			for row := 0; row < rows; row++ {
				sign.Append(1)
			}
		case dest.VersionColumnName:
			version := column.(*dest.ColumnUInt64)
			for row := 0; row < rows; row++ {
				version.Append(1)
			}
		default:
			for row := 0; row < rows; row++ {
				column.AppendDefault()
			}
		}
	}
	return nil
}

// ExecuteQuery understands the insert pipeline, DROP TABLE, and routes
// external DDL through the Translator hook.
func (e *Engine) ExecuteQuery(ctx context.Context, query, database, comment string) (*dest.BlockIO, error) {
	query = stripComment(query)

	upper := strings.ToUpper(query)
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table := parseObjectName(query[len("INSERT INTO"):])
		t, err := e.getTable(database, table)
		if err != nil {
			return nil, err
		}
		return &dest.BlockIO{Out: &tableOutput{table: t}}, nil

	case strings.HasPrefix(upper, "DROP TABLE"):
		db, table := splitQualifiedName(parseQualifiedName(query[len("DROP TABLE"):]), database)
		if err := e.DropTable(db, table); err != nil {
			return nil, err
		}
		return &dest.BlockIO{}, nil

	case strings.HasPrefix(upper, "EXTERNAL DDL FROM MYSQL"):
		if e.Translator == nil {
			return nil, xerror.XWrapf(dest.ErrSyntax, "no ddl translator registered: %.64s", query)
		}
		if err := e.Translator(e, database, query); err != nil {
			return nil, err
		}
		return &dest.BlockIO{}, nil

	default:
		return nil, xerror.XWrapf(dest.ErrSyntax, "cannot parse query: %.64s", query)
	}
}

// Collapse merges sign-marked rows: per sorting key the highest-version row
// survives unless its sign sums away.
func (e *Engine) Collapse(database, table string) (*dest.Block, error) {
	t, err := e.getTable(database, table)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	data := t.data
	keyPositions := make([]int, 0, len(t.sortingKey))
	for _, key := range t.sortingKey {
		pos, err := data.PositionByName(key)
		if err != nil {
			return nil, err
		}
		keyPositions = append(keyPositions, pos)
	}

	signPos := data.Columns() - 2
	versionPos := data.Columns() - 1

	type group struct {
		maxVersion uint64
		bestRow    int
	}
	groups := make(map[string]*group)
	order := make([]string, 0)

	for row := 0; row < data.Rows(); row++ {
		var sb strings.Builder
		for _, pos := range keyPositions {
			fmt.Fprintf(&sb, "%s|", data.FieldAt(pos, row))
		}
		key := sb.String()

		version := data.FieldAt(versionPos, row).AsUInt64()
		sign := int(data.FieldAt(signPos, row).AsInt64())

		g, ok := groups[key]
		if !ok {
			g = &group{maxVersion: version, bestRow: row}
			groups[key] = g
			order = append(order, key)
			continue
		}
		// highest version survives, on a tie the row-present sign wins
		if version > g.maxVersion || (version == g.maxVersion && sign > 0) {
			g.maxVersion = version
			g.bestRow = row
		}
	}

	collapsed := data.EmptyClone()
	for _, key := range order {
		g := groups[key]
		if data.FieldAt(signPos, g.bestRow).AsInt64() <= 0 {
			continue
		}
		if err := collapsed.AppendRow(data.RowAt(g.bestRow)); err != nil {
			return nil, err
		}
	}
	return collapsed, nil
}

func stripComment(query string) string {
	query = strings.TrimSpace(query)
	if strings.HasPrefix(query, "/*") {
		if end := strings.Index(query, "*/"); end >= 0 {
			query = strings.TrimSpace(query[end+2:])
		}
	}
	return query
}

func parseObjectName(rest string) string {
	rest = strings.TrimSpace(rest)
	end := strings.IndexAny(rest, "( \t")
	if end >= 0 {
		rest = rest[:end]
	}
	return strings.Trim(rest, "`")
}

func parseQualifiedName(rest string) string {
	rest = strings.TrimSpace(rest)
	end := strings.IndexAny(rest, " \t;")
	if end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func splitQualifiedName(name, defaultDatabase string) (database, table string) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 2 {
		return strings.Trim(parts[0], "`"), strings.Trim(parts[1], "`")
	}
	return defaultDatabase, strings.Trim(name, "`")
}
