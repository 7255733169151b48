package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyMap(t *testing.T) {
	src := map[string]string{
		"binlog_file": "mysql-bin.000003",
		"gtid":        "uuid:1-5",
	}
	dst := CopyMap(src)
	assert.Equal(t, src, dst)

	dst["binlog_file"] = "mysql-bin.000004"
	assert.Equal(t, "mysql-bin.000003", src["binlog_file"])
}
