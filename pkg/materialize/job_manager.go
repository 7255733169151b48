package materialize

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/dest"
	"github.com/selectdb/materialize_syncer/pkg/storage"
	"github.com/selectdb/materialize_syncer/pkg/utils"
	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

// JobManager is thread safe.
type JobManager struct {
	db       storage.DB
	catalog  dest.Catalog
	executor dest.Executor

	jobs map[string]*Job
	lock sync.RWMutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewJobManager(db storage.DB, catalog dest.Catalog, executor dest.Executor) *JobManager {
	return &JobManager{
		db:       db,
		catalog:  catalog,
		executor: executor,
		jobs:     make(map[string]*Job),
		stop:     make(chan struct{}),
	}
}

func (jm *JobManager) Catalog() dest.Catalog {
	return jm.catalog
}

func (jm *JobManager) Executor() dest.Executor {
	return jm.executor
}

// AddJob persists the job and runs it.
func (jm *JobManager) AddJob(job *Job) error {
	jm.lock.Lock()
	defer jm.lock.Unlock()

	if _, ok := jm.jobs[job.Name]; ok {
		return xerror.Errorf(xerror.Normal, "job exist: %s", job.Name)
	}

	if err := job.Persist(); err != nil {
		return err
	}

	jm.jobs[job.Name] = job
	jm.runJob(job)
	return nil
}

// Recover reloads persisted jobs from the meta DB, called once at boot.
func (jm *JobManager) Recover() error {
	jobInfos, err := jm.db.GetAllJobs()
	if err != nil {
		return xerror.Wrap(err, xerror.Normal, "get all jobs failed")
	}

	jm.lock.Lock()
	defer jm.lock.Unlock()
	for jobName, jobInfo := range jobInfos {
		if _, ok := jm.jobs[jobName]; ok {
			continue
		}
		job, err := NewJobFromJson(jobInfo, jm.db, jm.catalog, jm.executor)
		if err != nil {
			log.Errorf("recover job %s failed: %+v", jobName, err)
			continue
		}
		jm.jobs[jobName] = job
	}
	return nil
}

// RemoveJob stops the job and deletes it from the registry.
func (jm *JobManager) RemoveJob(name string) error {
	jm.lock.Lock()
	defer jm.lock.Unlock()

	job, ok := jm.jobs[name]
	if !ok {
		return xerror.Errorf(xerror.Normal, "job not exist: %s", name)
	}

	job.Stop()
	delete(jm.jobs, name)
	return jm.db.RemoveJob(name)
}

func (jm *JobManager) GetJob(name string) (*Job, error) {
	jm.lock.RLock()
	defer jm.lock.RUnlock()

	job, ok := jm.jobs[name]
	if !ok {
		return nil, xerror.Errorf(xerror.Normal, "job not exist: %s", name)
	}
	return job, nil
}

// ListJobs snapshots the registry.
func (jm *JobManager) ListJobs() []*JobStatus {
	jm.lock.RLock()
	jobs := utils.CopyMap(jm.jobs)
	jm.lock.RUnlock()

	statuses := make([]*JobStatus, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status())
	}
	return statuses
}

// Start runs all recovered jobs and blocks until Stop.
func (jm *JobManager) Start() error {
	jm.lock.RLock()
	for _, job := range jm.jobs {
		jm.runJob(job)
	}
	jm.lock.RUnlock()

	<-jm.stop
	return nil
}

// Stop stops all jobs first, then the manager.
func (jm *JobManager) Stop() error {
	jm.lock.RLock()
	for _, job := range jm.jobs {
		job.Stop()
	}
	jm.lock.RUnlock()

	close(jm.stop)
	jm.wg.Wait()
	return nil
}

func (jm *JobManager) runJob(job *Job) {
	jm.wg.Add(1)

	go func() {
		defer jm.wg.Done()
		if err := job.Run(); err != nil {
			log.Errorf("job %s run failed: %+v", job.Name, err)
		}
	}()
}
