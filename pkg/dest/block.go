package dest

import (
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

const (
	SignColumnName    = "_sign"
	VersionColumnName = "_version"
)

// TrailerColumns returns the two hidden columns every materialized table
// carries behind its user-visible columns.
func TrailerColumns() []ColumnDesc {
	return []ColumnDesc{
		{Name: SignColumnName, Type: TypeInt8},
		{Name: VersionColumnName, Type: TypeUInt64},
	}
}

// Block is a column-major container: one growable typed array per column,
// in destination schema order.
type Block struct {
	descs     []ColumnDesc
	columns   []Column
	positions map[string]int
}

func NewBlock(descs []ColumnDesc) (*Block, error) {
	block := &Block{
		descs:     append([]ColumnDesc(nil), descs...),
		columns:   make([]Column, 0, len(descs)),
		positions: make(map[string]int, len(descs)),
	}
	for i, desc := range descs {
		if _, ok := block.positions[desc.Name]; ok {
			return nil, xerror.XWrapf(ErrLogical, "duplicate column %s", desc.Name)
		}
		column, err := NewColumn(desc)
		if err != nil {
			return nil, err
		}
		block.columns = append(block.columns, column)
		block.positions[desc.Name] = i
	}
	return block, nil
}

func (b *Block) Columns() int {
	return len(b.columns)
}

func (b *Block) Rows() int {
	if len(b.columns) == 0 {
		return 0
	}
	return b.columns[0].Rows()
}

func (b *Block) Bytes() int {
	bytes := 0
	for _, column := range b.columns {
		bytes += column.Bytes()
	}
	return bytes
}

func (b *Block) ColumnAt(pos int) Column {
	return b.columns[pos]
}

func (b *Block) DescAt(pos int) ColumnDesc {
	return b.descs[pos]
}

func (b *Block) Descs() []ColumnDesc {
	return append([]ColumnDesc(nil), b.descs...)
}

func (b *Block) PositionByName(name string) (int, error) {
	pos, ok := b.positions[name]
	if !ok {
		return 0, xerror.XWrapf(ErrLogical, "no column %s in block", name)
	}
	return pos, nil
}

func (b *Block) FieldAt(col, row int) Field {
	return b.columns[col].FieldAt(row)
}

// EmptyClone returns a block with the same schema and no rows.
func (b *Block) EmptyClone() *Block {
	clone := &Block{
		descs:     append([]ColumnDesc(nil), b.descs...),
		columns:   make([]Column, 0, len(b.columns)),
		positions: make(map[string]int, len(b.positions)),
	}
	for i, column := range b.columns {
		clone.columns = append(clone.columns, column.EmptyClone())
		clone.positions[b.descs[i].Name] = i
	}
	return clone
}

// SignColumn returns the sign trailer, always the second to last column.
func (b *Block) SignColumn() (*ColumnInt8, error) {
	if len(b.columns) < 2 {
		return nil, xerror.XWrapf(ErrLogical, "block of %d columns has no trailer", len(b.columns))
	}
	sign, ok := b.columns[len(b.columns)-2].(*ColumnInt8)
	if !ok {
		return nil, xerror.XWrapf(ErrLogical, "sign column is not Int8")
	}
	return sign, nil
}

// VersionColumn returns the version trailer, always the last column.
func (b *Block) VersionColumn() (*ColumnUInt64, error) {
	if len(b.columns) < 2 {
		return nil, xerror.XWrapf(ErrLogical, "block of %d columns has no trailer", len(b.columns))
	}
	version, ok := b.columns[len(b.columns)-1].(*ColumnUInt64)
	if !ok {
		return nil, xerror.XWrapf(ErrLogical, "version column is not UInt64")
	}
	return version, nil
}

// AppendRow appends one row of fields across all columns.
func (b *Block) AppendRow(fields []Field) error {
	if len(fields) != len(b.columns) {
		return xerror.XWrapf(ErrLogical, "row of %d fields for a block of %d columns", len(fields), len(b.columns))
	}
	for i, field := range fields {
		if err := b.columns[i].AppendField(field); err != nil {
			return err
		}
	}
	return nil
}

// RowAt materializes one row of the block.
func (b *Block) RowAt(row int) []Field {
	fields := make([]Field, len(b.columns))
	for i, column := range b.columns {
		fields[i] = column.FieldAt(row)
	}
	return fields
}
