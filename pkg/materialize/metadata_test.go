package materialize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectdb/materialize_syncer/pkg/mysql"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

func newTestMetadata(t *testing.T) *Metadata {
	return &Metadata{
		BinlogFile:          "mysql-bin.000001",
		BinlogOffset:        4,
		ExecutedGtidSet:     "uuid:1-5",
		Version:             10,
		SourceDatabaseName:  "srcdb",
		SourceServerVersion: "8.0.33",
		path:                filepath.Join(t.TempDir(), MetadataFileName),
		needDumpingTables:   make(map[string]string),
	}
}

func TestMetadataTransactionPersists(t *testing.T) {
	metadata := newTestMetadata(t)
	metadata.Version = 12

	pos := mysql.Position{File: "mysql-bin.000002", Offset: 1234, GtidSet: "uuid:1-7"}
	bodyRan := false
	require.NoError(t, metadata.Transaction(pos, func() error {
		bodyRan = true
		return nil
	}))
	assert.True(t, bodyRan)
	assert.Equal(t, "mysql-bin.000002", metadata.BinlogFile)
	assert.Equal(t, uint64(1234), metadata.BinlogOffset)

	data, err := os.ReadFile(metadata.path)
	require.NoError(t, err)

	var persisted Metadata
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, "mysql-bin.000002", persisted.BinlogFile)
	assert.Equal(t, uint64(1234), persisted.BinlogOffset)
	assert.Equal(t, "uuid:1-7", persisted.ExecutedGtidSet)
	assert.Equal(t, uint64(12), persisted.Version)
	assert.Equal(t, "srcdb", persisted.SourceDatabaseName)

	// no temp file left behind
	_, err = os.Stat(metadata.path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestMetadataTransactionBodyFailure(t *testing.T) {
	metadata := newTestMetadata(t)

	pos := mysql.Position{File: "mysql-bin.000009", Offset: 9}
	bodyErr := xerror.New(xerror.Dest, "flush failed")
	err := metadata.Transaction(pos, func() error { return bodyErr })
	require.Error(t, err)

	// position unchanged, nothing on disk
	assert.Equal(t, "mysql-bin.000001", metadata.BinlogFile)
	assert.Equal(t, uint64(4), metadata.BinlogOffset)
	_, statErr := os.Stat(metadata.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMetadataTransactionKeepsGtidWhenEmpty(t *testing.T) {
	metadata := newTestMetadata(t)

	pos := mysql.Position{File: "mysql-bin.000002", Offset: 77}
	require.NoError(t, metadata.Transaction(pos, func() error { return nil }))
	assert.Equal(t, "uuid:1-5", metadata.ExecutedGtidSet)
}

func TestMetadataRoundTrip(t *testing.T) {
	metadata := newTestMetadata(t)
	require.NoError(t, metadata.Transaction(metadata.Position(), func() error { return nil }))

	data, err := os.ReadFile(metadata.path)
	require.NoError(t, err)

	var restored Metadata
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, metadata.BinlogFile, restored.BinlogFile)
	assert.Equal(t, metadata.BinlogOffset, restored.BinlogOffset)
	assert.Equal(t, metadata.Version, restored.Version)
	assert.Equal(t, metadata.SourceServerVersion, restored.SourceServerVersion)
}
