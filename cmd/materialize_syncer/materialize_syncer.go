package main

import (
	"flag"
	"os"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/dest/memory"
	"github.com/selectdb/materialize_syncer/pkg/materialize"
	"github.com/selectdb/materialize_syncer/pkg/service"
	"github.com/selectdb/materialize_syncer/pkg/storage"
	"github.com/selectdb/materialize_syncer/pkg/utils"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
	"github.com/selectdb/materialize_syncer/pkg/xmetrics"
)

type Syncer struct {
	Host string
	Port int

	Db_type     string
	Db_host     string
	Db_port     int
	Db_user     string
	Db_password string
}

var (
	dbPath  string
	dataDir string
	syncer  Syncer
	version bool
)

func init() {
	flag.BoolVar(&version, "version", false, "The program's version")

	flag.StringVar(&dbPath, "db_dir", "materialize.db", "sqlite3 db file")
	flag.StringVar(&syncer.Db_type, "db_type", "sqlite3", "meta db type")
	flag.StringVar(&syncer.Db_host, "db_host", "127.0.0.1", "meta db host")
	flag.IntVar(&syncer.Db_port, "db_port", 3306, "meta db port")
	flag.StringVar(&syncer.Db_user, "db_user", "root", "meta db user")
	flag.StringVar(&syncer.Db_password, "db_password", "", "meta db password")

	flag.StringVar(&dataDir, "data_dir", "materialize_data", "destination data directory")
	flag.StringVar(&syncer.Host, "host", "127.0.0.1", "syncer host")
	flag.IntVar(&syncer.Port, "port", 9190, "syncer port")
	flag.Parse()

	utils.InitLog()
}

// autoCreateCatalog materializes destination databases on first use, the way
// CREATE DATABASE would in a full deployment.
type autoCreateCatalog struct {
	*memory.Engine
}

func (c autoCreateCatalog) GetDatabase(name string) (dest.Database, error) {
	return c.Engine.CreateDatabase(name), nil
}

func main() {
	if version {
		printVersion()
	}

	log.Infof("materialize syncer start, version: %s", getVersion())

	// Step 1: Check db
	if dbPath == "" {
		log.Fatal("db_dir is empty")
	}
	var db storage.DB
	var err error
	switch syncer.Db_type {
	case "sqlite3":
		db, err = storage.NewSQLiteDB(dbPath)
	case "mysql":
		db, err = storage.NewMysqlDB(syncer.Db_host, syncer.Db_port, syncer.Db_user, syncer.Db_password)
	case "postgresql":
		db, err = storage.NewPostgresqlDB(syncer.Db_host, syncer.Db_port, syncer.Db_user, syncer.Db_password)
	default:
		err = xerror.Errorf(xerror.Normal, "unknown meta db type: %s", syncer.Db_type)
	}
	if err != nil {
		log.Fatalf("new meta db error: %+v", err)
	}

	// Step 2: init destination engine
	engine := memory.NewEngine(dataDir)
	catalog := autoCreateCatalog{Engine: engine}

	// Step 3: create job manager && http service && monitor
	jobManager := materialize.NewJobManager(db, catalog, engine)
	if err := jobManager.Recover(); err != nil {
		log.Fatalf("recover jobs error: %+v", err)
	}
	httpService := service.NewHttpServer(syncer.Host, syncer.Port, db, jobManager)
	monitor := NewMonitor(jobManager)

	// Step 4: http service start
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := httpService.Start(); err != nil {
			log.Errorf("http service stopped: %+v", err)
		}
	}()
	time.Sleep(1 * time.Second) // give the http service time to start, a start error is only logged

	// Step 5: start job manager
	wg.Add(1)
	go func() {
		defer wg.Done()
		jobManager.Start()
	}()

	// Step 6: start monitor
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Start()
	}()

	// Step 7: init metrics
	if err := xmetrics.InitGlobal("materialize-syncer-metrics"); err != nil {
		log.Fatalf("init metrics failed: %+v", err)
	}

	// Step 8: serve signals until shutdown
	signalMux := NewSignalMux(func(sig os.Signal) bool {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
			log.Infof("shutting down")
			monitor.Stop()
			httpService.Stop()
			jobManager.Stop()
			return true
		default:
			return false
		}
	})
	signalMux.Serve()

	wg.Wait()
}
