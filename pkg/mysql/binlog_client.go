package mysql

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

const binlogHeartbeatPeriod = time.Second * 30

// Server ids handed to the master must not collide between workers, a
// process-wide counter on a random base avoids that even under reconnect
// storms.
var serverIdCounter uint32

func init() {
	serverIdCounter = rand.Uint32()
}

// NextServerId returns a fresh 32-bit server id for a binlog dump.
func NextServerId() uint32 {
	id := atomic.AddUint32(&serverIdCounter, 1)
	if id == 0 {
		id = atomic.AddUint32(&serverIdCounter, 1)
	}
	return id
}

// BinlogClient pulls row and query events for one database from the source
// binlog. It is owned by a single sync worker.
type BinlogClient struct {
	spec Spec

	syncer   *replication.BinlogSyncer
	streamer *replication.BinlogStreamer

	database string
	pos      Position
}

func NewBinlogClient(spec Spec) *BinlogClient {
	return &BinlogClient{spec: spec}
}

// StartBinlogDump opens the dump stream from the given position.
func (c *BinlogClient) StartBinlogDump(serverId uint32, database, file string, offset uint64) error {
	c.Close()

	c.database = database
	c.pos = Position{File: file, Offset: offset}

	c.syncer = replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID:        serverId,
		Flavor:          gomysql.MySQLFlavor,
		Host:            c.spec.Host,
		Port:            uint16(c.spec.Port),
		User:            c.spec.User,
		Password:        c.spec.Password,
		HeartbeatPeriod: binlogHeartbeatPeriod,
	})

	streamer, err := c.syncer.StartSync(gomysql.Position{Name: file, Pos: uint32(offset)})
	if err != nil {
		c.Close()
		return xerror.Wrapf(err, xerror.Source, "start binlog dump at %s:%d failed", file, offset)
	}
	c.streamer = streamer

	log.Infof("binlog dump started, server id: %d, position: %s", serverId, c.pos)
	return nil
}

// Position reports the position right after the last event read from the
// stream, events skipped by the client included.
func (c *BinlogClient) Position() Position {
	return c.pos
}

// ReadOneBinlogEvent blocks up to timeout for the next handled event. A
// timeout returns (nil, nil) so the caller can run its flush clock against an
// idle source.
func (c *BinlogClient) ReadOneBinlogEvent(timeout time.Duration) (Event, error) {
	if c.streamer == nil {
		return nil, xerror.New(xerror.Source, "binlog dump is not started")
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), remaining)
		event, err := c.streamer.GetEvent(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			return nil, xerror.Wrap(err, xerror.Source, "read binlog event failed")
		}

		if handled := c.onRawEvent(event); handled != nil {
			return handled, nil
		}
	}
}

// onRawEvent advances the tracked position and narrows the raw event to the
// handled set, nil means skip.
func (c *BinlogClient) onRawEvent(event *replication.BinlogEvent) Event {
	if event.Header.LogPos > 0 {
		c.pos.Offset = uint64(event.Header.LogPos)
	}

	switch data := event.Event.(type) {
	case *replication.RotateEvent:
		c.pos.File = string(data.NextLogName)
		c.pos.Offset = data.Position
		return nil

	case *replication.RowsEvent:
		schema := string(data.Table.Schema)
		table := string(data.Table.Table)
		if schema != c.database {
			log.Debugf("skip rows event of %s.%s", schema, table)
			return nil
		}

		switch event.Header.EventType {
		case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
			return &WriteRowsEvent{Schema: schema, Table: table, Rows: decodeRowImages(data.Rows)}
		case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
			return &UpdateRowsEvent{Schema: schema, Table: table, Rows: decodeRowImages(data.Rows)}
		case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
			return &DeleteRowsEvent{Schema: schema, Table: table, Rows: decodeRowImages(data.Rows)}
		default:
			log.Debugf("skip rows event type %s", event.Header.EventType)
			return nil
		}

	case *replication.QueryEvent:
		query := string(data.Query)
		// transaction control statements are not DDL
		if query == "BEGIN" || query == "COMMIT" || query == "ROLLBACK" {
			return nil
		}
		return &QueryEvent{Schema: string(data.Schema), Query: query}

	case *replication.GTIDEvent, *replication.PreviousGTIDsEvent, *replication.XIDEvent,
		*replication.TableMapEvent, *replication.FormatDescriptionEvent:
		return nil

	default:
		if event.Header.EventType == replication.HEARTBEAT_EVENT {
			return nil
		}
		log.Debugf("skip mysql event: %s", event.Header.EventType)
		return nil
	}
}

func (c *BinlogClient) Close() {
	if c.syncer != nil {
		c.syncer.Close()
		c.syncer = nil
		c.streamer = nil
	}
}
