package materialize

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/mysql"
	"github.com/selectdb/materialize_syncer/pkg/storage"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
	"github.com/selectdb/materialize_syncer/pkg/xmetrics"
)

type JobState int

const (
	JobRunning JobState = 0
	JobStopped JobState = 1
)

func (j JobState) String() string {
	switch j {
	case JobRunning:
		return "running"
	case JobStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Job is one persisted materialize task: a source database replicated into
// one destination database by a dedicated sync thread.
type Job struct {
	Name         string     `json:"name"`
	Src          mysql.Spec `json:"src"`
	DestDatabase string     `json:"dest_database"`
	Settings     *Settings  `json:"settings"`
	State        JobState   `json:"state"`

	catalog  dest.Catalog  `json:"-"`
	executor dest.Executor `json:"-"`
	db       storage.DB    `json:"-"`
	thread   *SyncThread   `json:"-"`
	stop     chan struct{} `json:"-"`
	stopOnce sync.Once     `json:"-"`
}

// JobProgress is the operator-visible pointer persisted in the service meta
// DB. The authoritative record is the database's own .metadata file.
type JobProgress struct {
	SyncState       string `json:"sync_state"`
	BinlogFile      string `json:"binlog_file"`
	BinlogOffset    uint64 `json:"binlog_offset"`
	ExecutedGtidSet string `json:"executed_gtid_set"`
	Version         uint64 `json:"version"`
}

func NewJobFromService(name string, src mysql.Spec, destDatabase string, settings *Settings,
	db storage.DB, catalog dest.Catalog, executor dest.Executor) (*Job, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	job := &Job{
		Name:         name,
		Src:          src,
		DestDatabase: destDatabase,
		Settings:     settings,
		State:        JobRunning,
		catalog:      catalog,
		executor:     executor,
		db:           db,
		stop:         make(chan struct{}),
	}

	if err := job.valid(); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "job is invalid")
	}
	return job, nil
}

func NewJobFromJson(jsonData string, db storage.DB, catalog dest.Catalog, executor dest.Executor) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(jsonData), &job); err != nil {
		return nil, xerror.Wrapf(err, xerror.Normal, "unmarshal json failed, json: %s", jsonData)
	}
	if job.Settings == nil {
		job.Settings = DefaultSettings()
	}
	job.catalog = catalog
	job.executor = executor
	job.db = db
	job.stop = make(chan struct{})
	return &job, nil
}

func (j *Job) valid() error {
	if j.Name == "" {
		return xerror.New(xerror.Normal, "name is empty")
	}

	if exist, err := j.db.IsJobExist(j.Name); err != nil {
		return xerror.Wrap(err, xerror.Normal, "check job exist failed")
	} else if exist {
		return xerror.Errorf(xerror.Normal, "job %s already exist", j.Name)
	}

	if err := j.Src.Valid(); err != nil {
		return xerror.Wrap(err, xerror.Normal, "src spec is invalid")
	}

	if j.DestDatabase == "" {
		return xerror.New(xerror.Normal, "dest database is empty")
	}

	return nil
}

// Persist writes the job spec into the service meta DB.
func (j *Job) Persist() error {
	jsonBytes, err := json.Marshal(j)
	if err != nil {
		return xerror.Wrap(err, xerror.Normal, "marshal job failed")
	}
	return j.db.AddJob(j.Name, string(jsonBytes))
}

// Run starts the sync thread and blocks until the job is stopped.
func (j *Job) Run() error {
	thread := NewSyncThread(j.Name, j.Src, j.DestDatabase, j.Settings, j.catalog, j.executor)
	thread.SetProgressFn(j.updateProgress)
	j.thread = thread

	xmetrics.AddNewJob(j.Name)
	if err := thread.StartSynchronization(); err != nil {
		log.Error("start synchronization failed", zap.Error(err))
		return err
	}

	<-j.stop
	thread.StopSynchronization()
	return nil
}

// Stop requests the job to terminate, Run returns once the worker joined.
func (j *Job) Stop() {
	j.stopOnce.Do(func() {
		close(j.stop)
	})
}

// updateProgress pushes the flushed position into the meta DB, best effort.
func (j *Job) updateProgress(pos mysql.Position, version uint64) {
	progress := JobProgress{
		SyncState:       j.SyncState().String(),
		BinlogFile:      pos.File,
		BinlogOffset:    pos.Offset,
		ExecutedGtidSet: pos.GtidSet,
		Version:         version,
	}
	jsonBytes, err := json.Marshal(&progress)
	if err != nil {
		log.Errorf("marshal job progress failed: %+v", err)
		return
	}
	if err := j.db.UpdateProgress(j.Name, string(jsonBytes)); err != nil {
		log.Errorf("update job progress failed: %+v", err)
	}
}

func (j *Job) SyncState() SyncState {
	if j.thread == nil {
		return StateInit
	}
	return j.thread.State()
}

// JobStatus is the answer of the job_status HTTP endpoint.
type JobStatus struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	ProgressState string `json:"progress_state"`
	Exception     string `json:"exception,omitempty"`
}

func (j *Job) Status() *JobStatus {
	status := &JobStatus{
		Name:          j.Name,
		State:         j.State.String(),
		ProgressState: j.SyncState().String(),
	}
	if destDatabase, err := j.catalog.GetDatabase(j.DestDatabase); err == nil {
		if exception := destDatabase.Exception(); exception != nil {
			status.Exception = exception.Error()
		}
	}
	return status
}
