package dest

import "github.com/selectdb/materialize_syncer/pkg/xerror"

var (
	// ErrLogical marks a broken internal invariant, the sync worker must not continue past it.
	ErrLogical = xerror.NewWithoutStack(xerror.Dest, "logical error")

	// ErrUnsupportedColumnType is raised when a row-image field meets a destination column kind outside the supported set.
	ErrUnsupportedColumnType = xerror.NewWithoutStack(xerror.Dest, "unsupported column type")

	// ErrSyntax is how the destination DDL executor reports an unparseable statement. Such statements are skipped.
	ErrSyntax = xerror.NewWithoutStack(xerror.DDL, "syntax error")
)
