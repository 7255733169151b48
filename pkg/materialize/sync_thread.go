package materialize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modern-go/gls"
	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/mysql"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
	"github.com/selectdb/materialize_syncer/pkg/xmetrics"
)

// ProgressFn is notified after every successful flush with the durable
// position and the last handed-out version.
type ProgressFn func(pos mysql.Position, version uint64)

// SyncThread is the background worker owning one materialized database: it
// probes the source, bootstraps the snapshot, then applies binlog events into
// write buffers and flushes them under the metadata transaction. All buffer
// mutation happens on this one goroutine.
type SyncThread struct {
	jobName      string
	databaseName string
	sourceSpec   mysql.Spec
	settings     *Settings

	catalog  dest.Catalog
	executor dest.Executor
	client   *mysql.BinlogClient

	queryPrefix string
	progressFn  ProgressFn

	state atomic.Int32

	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

func NewSyncThread(jobName string, src mysql.Spec, databaseName string, settings *Settings,
	catalog dest.Catalog, executor dest.Executor) *SyncThread {
	ctx, cancel := context.WithCancel(context.Background())
	t := &SyncThread{
		jobName:      jobName,
		databaseName: databaseName,
		sourceSpec:   src,
		settings:     settings,
		catalog:      catalog,
		executor:     executor,
		client:       mysql.NewBinlogClient(src),
		queryPrefix: fmt.Sprintf("EXTERNAL DDL FROM MySQL(%s, %s) ",
			backQuoteIfNeed(databaseName), backQuoteIfNeed(src.Database)),
		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
	}
	t.state.Store(int32(StateInit))
	return t
}

// SetProgressFn must be called before Start.
func (t *SyncThread) SetProgressFn(fn ProgressFn) {
	t.progressFn = fn
}

func (t *SyncThread) State() SyncState {
	return SyncState(t.state.Load())
}

func (t *SyncThread) setState(state SyncState) {
	t.state.Store(int32(state))
}

func (t *SyncThread) isCancelled() bool {
	select {
	case <-t.quit:
		return true
	default:
		return false
	}
}

// StartSynchronization validates the source configuration and launches the
// background worker. An illegal source configuration fails here, before any
// worker exists.
func (t *SyncThread) StartSynchronization() error {
	t.setState(StateProbing)

	db, err := t.sourceSpec.Connect()
	if err != nil {
		t.setState(StateFailed)
		return err
	}
	serverVersion, err := mysql.CheckVariablesAndGetVersion(db)
	if err != nil {
		t.setState(StateFailed)
		return err
	}

	t.wg.Add(1)
	go t.synchronization(serverVersion)
	return nil
}

// StopSynchronization is idempotent and joins the worker. A worker mid-flush
// or mid-DDL finishes that unit first.
func (t *SyncThread) StopSynchronization() {
	t.quitOnce.Do(func() {
		close(t.quit)
		t.cancel()
	})
	t.wg.Wait()
}

func (t *SyncThread) synchronization(serverVersion string) {
	defer t.wg.Done()

	gls.ResetGls(gls.GoID(), map[interface{}]interface{}{})
	gls.Set("job", t.jobName)
	defer gls.DeleteGls(gls.GoID())

	defer t.client.Close()

	metadata, err := t.prepareSynchronized(serverVersion)
	if err != nil {
		t.onWorkerFailed(err)
		return
	}
	if metadata == nil {
		t.setState(StateCancelled)
		return
	}

	t.setState(StateStreaming)
	buffers := NewBuffers(t.databaseName)
	watch := time.Now()

	for !t.isCancelled() {
		maxFlushTime := t.settings.MaxFlushDataTime
		elapsed := uint64(time.Since(watch).Milliseconds())
		timeout := uint64(1)
		if maxFlushTime > elapsed {
			timeout = maxFlushTime - elapsed
		}

		event, err := t.client.ReadOneBinlogEvent(time.Duration(timeout) * time.Millisecond)
		if err != nil {
			if !mysql.IsSourceUnavailable(err) {
				t.onWorkerFailed(err)
				return
			}
			log.Warnf("source unavailable, reconnecting binlog dump: %+v", err)
			t.reconnectBinlogDump()
			continue
		}

		if event != nil {
			if err := t.onEvent(buffers, event, metadata); err != nil {
				t.onWorkerFailed(err)
				return
			}
		}

		if uint64(time.Since(watch).Milliseconds()) > maxFlushTime || buffers.CheckThresholds(
			t.settings.MaxRowsInBuffer, t.settings.MaxBytesInBuffer,
			t.settings.MaxRowsInBuffers, t.settings.MaxBytesInBuffers) {
			watch = time.Now()

			if !buffers.Empty() {
				if err := t.flushBuffersData(buffers, metadata); err != nil {
					t.onWorkerFailed(err)
					return
				}
			}
		}
	}

	t.setState(StateCancelled)
}

// prepareSynchronized loops until the snapshot handover succeeds or the
// worker is cancelled. Source unavailability sleeps and retries, anything
// else is logged and retried as well.
func (t *SyncThread) prepareSynchronized(serverVersion string) (*Metadata, error) {
	t.setState(StateSnapshotting)

	for !t.isCancelled() {
		metadata, err := t.tryPrepareSynchronized(serverVersion)
		if err == nil {
			return metadata, nil
		}

		log.Errorf("prepare synchronization failed: %+v", err)
		if mysql.IsSourceUnavailable(err) {
			// avoid a busy loop while the source is down
			t.sleep(time.Duration(t.settings.MaxWaitTimeWhenMysqlUnavailable) * time.Millisecond)
		}
	}

	return nil, nil
}

func (t *SyncThread) tryPrepareSynchronized(serverVersion string) (*Metadata, error) {
	db, err := t.sourceSpec.Connect()
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(t.ctx)
	if err != nil {
		return nil, xerror.Wrap(err, xerror.Source, "acquire snapshot connection failed")
	}
	defer conn.Close()

	destDatabase, err := t.catalog.GetDatabase(t.databaseName)
	if err != nil {
		return nil, err
	}
	metadataPath := filepath.Join(destDatabase.MetadataPath(), MetadataFileName)

	metadata, openedTransaction, err := LoadMetadata(t.ctx, conn, metadataPath, t.sourceSpec.Database, serverVersion)
	if err != nil {
		if openedTransaction {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
		return nil, err
	}

	if tables := metadata.NeedDumpingTables(); len(tables) > 0 {
		err = metadata.Transaction(metadata.Position(), func() error {
			if err := cleanOutdatedTables(t.ctx, t.databaseName, t.catalog, t.executor); err != nil {
				return err
			}
			return dumpDataForTables(t.ctx, conn, metadata, t.queryPrefix, t.databaseName,
				t.sourceSpec.Database, t.jobName, t.catalog, t.executor, t.isCancelled)
		})
		if err != nil {
			if openedTransaction {
				_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			}
			if errors.Is(err, errCancelled) {
				// the dump aborted mid-way without committing metadata,
				// the next attempt restarts it from scratch
				return nil, nil
			}
			return nil, err
		}
	}

	if openedTransaction {
		if _, err := conn.ExecContext(t.ctx, "COMMIT"); err != nil {
			return nil, xerror.Wrap(err, xerror.Source, "commit snapshot transaction failed")
		}
	}

	if err := t.client.StartBinlogDump(mysql.NextServerId(), t.sourceSpec.Database,
		metadata.BinlogFile, metadata.BinlogOffset); err != nil {
		return nil, err
	}

	log.Infof("synchronization prepared, position: %s, version: %d", metadata.Position(), metadata.Version)
	return metadata, nil
}

func (t *SyncThread) flushBuffersData(buffers *Buffers, metadata *Metadata) error {
	flushedRows, flushedBytes := buffers.Totals()
	pos := t.client.Position()

	err := metadata.Transaction(pos, func() error {
		return buffers.Commit(t.ctx, t.executor, t.catalog)
	})
	if err != nil {
		return err
	}

	xmetrics.FlushBuffers(t.jobName, flushedRows, flushedBytes)
	xmetrics.HandledVersion(t.jobName, metadata.Version)
	if t.progressFn != nil {
		t.progressFn(metadata.Position(), metadata.Version)
	}
	return nil
}

func (t *SyncThread) onEvent(buffers *Buffers, event mysql.Event, metadata *Metadata) error {
	xmetrics.ConsumeEvent(t.jobName)

	switch e := event.(type) {
	case *mysql.WriteRowsEvent:
		buffer, err := buffers.GetTableDataBuffer(e.Table, t.catalog)
		if err != nil {
			return err
		}
		bytes, err := onWriteOrDeleteData(e.Rows, buffer.Data, 1, &metadata.Version)
		if err != nil {
			return err
		}
		buffers.Add(uint64(buffer.Data.Rows()), uint64(buffer.Data.Bytes()), uint64(len(e.Rows)), uint64(bytes))

	case *mysql.UpdateRowsEvent:
		buffer, err := buffers.GetTableDataBuffer(e.Table, t.catalog)
		if err != nil {
			return err
		}
		bytes, err := onUpdateData(e.Rows, buffer.Data, &metadata.Version, buffer.SortingColumns)
		if err != nil {
			return err
		}
		buffers.Add(uint64(buffer.Data.Rows()), uint64(buffer.Data.Bytes()), uint64(len(e.Rows)), uint64(bytes))

	case *mysql.DeleteRowsEvent:
		buffer, err := buffers.GetTableDataBuffer(e.Table, t.catalog)
		if err != nil {
			return err
		}
		bytes, err := onWriteOrDeleteData(e.Rows, buffer.Data, -1, &metadata.Version)
		if err != nil {
			return err
		}
		buffers.Add(uint64(buffer.Data.Rows()), uint64(buffer.Data.Bytes()), uint64(len(e.Rows)), uint64(bytes))

	case *mysql.QueryEvent:
		// the pre-DDL state must be durable before the DDL runs
		if err := t.flushBuffersData(buffers, metadata); err != nil {
			return err
		}

		eventDatabase := ""
		if e.Schema == t.sourceSpec.Database {
			eventDatabase = t.databaseName
		}
		comment := "Materialize MySQL step 2: execute MySQL DDL for sync data"
		if _, err := t.executor.ExecuteQuery(t.ctx, t.queryPrefix+e.Query, eventDatabase, comment); err != nil {
			// an unparseable DDL is skipped, replication proceeds
			if errors.Is(err, dest.ErrSyntax) {
				log.Warnf("skip DDL query %.64s: %+v", e.Query, err)
				return nil
			}
			return err
		}
		xmetrics.HandleDDL(t.jobName)

	default:
		log.Debugf("skip mysql event: %T", event)
	}

	return nil
}

// onWorkerFailed publishes the error on the destination database so user
// queries against it surface the failure. The worker does not restart.
func (t *SyncThread) onWorkerFailed(err error) {
	log.Errorf("synchronization failed: %+v", err)
	t.setState(StateFailed)

	var xerr *xerror.XError
	if errors.As(err, &xerr) {
		xmetrics.AddError(xerr)
	}

	if destDatabase, catalogErr := t.catalog.GetDatabase(t.databaseName); catalogErr == nil {
		destDatabase.SetException(err)
	}
}

// reconnectBinlogDump reopens the dump stream at the client's current
// position, sleeping between attempts until it succeeds or the worker is
// cancelled. Buffered but unflushed events stay in place, the durable
// position is behind them either way.
func (t *SyncThread) reconnectBinlogDump() {
	pos := t.client.Position()
	for !t.isCancelled() {
		t.sleep(time.Duration(t.settings.MaxWaitTimeWhenMysqlUnavailable) * time.Millisecond)
		if t.isCancelled() {
			return
		}
		err := t.client.StartBinlogDump(mysql.NextServerId(), t.sourceSpec.Database, pos.File, pos.Offset)
		if err == nil {
			return
		}
		log.Errorf("reopen binlog dump at %s failed: %+v", pos, err)
	}
}

func (t *SyncThread) sleep(d time.Duration) {
	select {
	case <-t.quit:
	case <-time.After(d):
	}
}
