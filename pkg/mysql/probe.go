package mysql

import (
	"database/sql"
	"strings"

	"github.com/selectdb/materialize_syncer/pkg/utils"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

// ErrIllegalSourceVariable means the source server is not configured for
// row-based replication with full row images. Fatal, the worker never starts.
var ErrIllegalSourceVariable = xerror.NewWithoutStack(xerror.Source, "illegal mysql variables")

const checkVariablesQuery = "SHOW VARIABLES WHERE " +
	"(Variable_name = 'log_bin' AND upper(Value) = 'ON') " +
	"OR (Variable_name = 'binlog_format' AND upper(Value) = 'ROW') " +
	"OR (Variable_name = 'binlog_row_image' AND upper(Value) = 'FULL') " +
	"OR (Variable_name = 'default_authentication_plugin' AND upper(Value) = 'MYSQL_NATIVE_PASSWORD')"

// requirement order is fixed so the error message is deterministic
var variableRequirements = []struct {
	name    string
	message string
}{
	{"log_bin", "log_bin = 'ON'"},
	{"binlog_format", "binlog_format = 'ROW'"},
	{"binlog_row_image", "binlog_row_image = 'FULL'"},
	{"default_authentication_plugin", "default_authentication_plugin = 'mysql_native_password'"},
}

// CheckVariablesAndGetVersion validates the four replication variables and
// returns the server version string.
func CheckVariablesAndGetVersion(db *sql.DB) (string, error) {
	rows, err := db.Query(checkVariablesQuery)
	if err != nil {
		return "", xerror.Wrap(err, xerror.Source, "show variables failed")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		parser := utils.NewRowParser()
		if err := parser.Parse(rows); err != nil {
			return "", xerror.Wrap(err, xerror.Source, "parse show variables row failed")
		}
		name, err := parser.GetString("Variable_name")
		if err != nil {
			return "", err
		}
		seen[name] = true
	}
	if err := rows.Err(); err != nil {
		return "", xerror.Wrap(err, xerror.Source, "show variables failed")
	}

	if len(seen) != len(variableRequirements) {
		missing := make([]string, 0, len(variableRequirements))
		for _, requirement := range variableRequirements {
			if !seen[requirement.name] {
				missing = append(missing, requirement.message)
			}
		}
		return "", xerror.XWrapf(ErrIllegalSourceVariable,
			"materializing MySQL requires %s", strings.Join(missing, ", "))
	}

	var version string
	if err := db.QueryRow("SELECT version()").Scan(&version); err != nil {
		return "", xerror.Wrap(err, xerror.Source, "get mysql version failed")
	}
	return version, nil
}
