package storage

import "errors"

var (
	ErrJobExists    = errors.New("job exists")
	ErrJobNotExists = errors.New("job not exists")
)

const (
	remoteDBName string = "materialize_syncer"
)

// DB is the service meta database: the registry of materialize jobs and
// their operator-visible progress pointers. The authoritative replication
// position lives in each database's own .metadata file, not here.
type DB interface {
	// Add materialize job
	AddJob(jobName string, jobInfo string) error
	// Update materialize job
	UpdateJob(jobName string, jobInfo string) error
	// Remove materialize job
	RemoveJob(jobName string) error
	// Check Job exist
	IsJobExist(jobName string) (bool, error)
	// Get job_info
	GetJobInfo(jobName string) (string, error)
	// Get all job_info
	GetAllJobs() (map[string]string, error)

	// Update sync progress pointer
	UpdateProgress(jobName string, progress string) error
	// IsProgressExist
	IsProgressExist(jobName string) (bool, error)
	// Get sync progress pointer
	GetProgress(jobName string) (string, error)
}
