package mysql

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

const (
	MaxOpenConns    = 0
	MaxIdleConns    = 13
	MaxConnLifeTime = 0
)

// Spec identifies one source MySQL server and the database to replicate.
type Spec struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func (s *Spec) Valid() error {
	if s.Host == "" {
		return xerror.New(xerror.Source, "host is empty")
	}
	if s.Port == 0 {
		return xerror.New(xerror.Source, "port is zero")
	}
	if s.User == "" {
		return xerror.New(xerror.Source, "user is empty")
	}
	if s.Database == "" {
		return xerror.New(xerror.Source, "database is empty")
	}
	return nil
}

func (s *Spec) String() string {
	return fmt.Sprintf("mysql: %s@%s:%d/%s", s.User, s.Host, s.Port, s.Database)
}

func (s *Spec) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", s.User, s.Password, s.Host, s.Port, s.Database)
}

// Connect returns the pooled *sql.DB for this spec.
func (s *Spec) Connect() (*sql.DB, error) {
	return getMysqlDB(s.dsn())
}

type cachedMysqlDbPool struct {
	pool map[string]*sql.DB
	mu   sync.Mutex
}

var cachedSqlDbPool *cachedMysqlDbPool

func init() {
	cachedSqlDbPool = &cachedMysqlDbPool{
		pool: make(map[string]*sql.DB),
	}
}

func getMysqlDB(dsn string) (*sql.DB, error) {
	cachedSqlDbPool.mu.Lock()
	defer cachedSqlDbPool.mu.Unlock()

	if db, ok := cachedSqlDbPool.pool[dsn]; ok {
		return db, nil
	}

	if db, err := sql.Open("mysql", dsn); err != nil {
		return nil, xerror.Wrapf(err, xerror.Source, "connect to mysql failed, host: %s", dsn)
	} else {
		db.SetMaxOpenConns(MaxOpenConns)
		db.SetMaxIdleConns(MaxIdleConns)
		db.SetConnMaxLifetime(MaxConnLifeTime)

		cachedSqlDbPool.pool[dsn] = db
		return db, nil
	}
}
