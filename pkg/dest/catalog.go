package dest

import "context"

// The destination catalog, DDL executor and storage engine are external
// collaborators. The sync core only ever talks to them through the interfaces
// below, queries carry a leading /*comment*/ marker identifying the step.

// BlockOutput is one open insert pipeline.
type BlockOutput interface {
	WriteBlock(block *Block) error
}

// BlockIO is the result of executing a query against the destination.
type BlockIO struct {
	Out BlockOutput
}

// Executor runs queries (inserts, DDL) against the destination database.
// DDL statements arriving from the source binlog are handed over with the
// `EXTERNAL DDL FROM MySQL(...)` prefix and an unparseable statement is
// reported as ErrSyntax.
type Executor interface {
	ExecuteQuery(ctx context.Context, query, database, comment string) (*BlockIO, error)
}

// DDLGuard serializes DDL against one database.
type DDLGuard interface {
	Release()
}

// Table exposes the destination table metadata the sync core needs.
type Table interface {
	// SampleBlock returns an empty block with all physical columns,
	// trailer columns included.
	SampleBlock() *Block
	// OrdinaryColumns excludes materialized columns, this is the dump
	// insert target list.
	OrdinaryColumns() []string
	// AllPhysicalColumns includes the materialized trailer columns.
	AllPhysicalColumns() []string
	SortingKeyColumns() []string
}

// Database is one materialized destination database.
type Database interface {
	Name() string
	// MetadataPath is the directory holding the durable .metadata record.
	MetadataPath() string
	TableNames() []string
	// SetException publishes a replication failure so that user queries
	// against the database surface it.
	SetException(err error)
	Exception() error
}

type Catalog interface {
	GetDatabase(name string) (Database, error)
	GetTable(database, table string) (Table, error)
	GetDDLGuard(database, table string) (DDLGuard, error)
}

// CountingBlockOutput wraps an insert pipeline and tracks written rows and
// bytes for progress logging.
type CountingBlockOutput struct {
	out BlockOutput

	writtenRows  uint64
	writtenBytes uint64
}

func NewCountingBlockOutput(out BlockOutput) *CountingBlockOutput {
	return &CountingBlockOutput{out: out}
}

func (c *CountingBlockOutput) WriteBlock(block *Block) error {
	if err := c.out.WriteBlock(block); err != nil {
		return err
	}
	c.writtenRows += uint64(block.Rows())
	c.writtenBytes += uint64(block.Bytes())
	return nil
}

func (c *CountingBlockOutput) Progress() (rows, bytes uint64) {
	return c.writtenRows, c.writtenBytes
}
