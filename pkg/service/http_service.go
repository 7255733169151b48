package service

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/materialize"
	"github.com/selectdb/materialize_syncer/pkg/mysql"
	"github.com/selectdb/materialize_syncer/pkg/storage"
	"github.com/selectdb/materialize_syncer/pkg/version"
)

func writeJson(w http.ResponseWriter, data interface{}) {
	if data, err := json.Marshal(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	} else {
		w.Write(data)
	}
}

type HttpService struct {
	port   int
	server *http.Server
	mux    *http.ServeMux

	db         storage.DB
	jobManager *materialize.JobManager
}

func NewHttpServer(host string, port int, db storage.DB, jobManager *materialize.JobManager) *HttpService {
	s := &HttpService{
		port: port,
		mux:  http.NewServeMux(),

		db:         db,
		jobManager: jobManager,
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: s.mux,
	}
	return s
}

type CreateSyncRequest struct {
	// must need all fields required
	Name         string                `json:"name,required"`
	Src          mysql.Spec            `json:"src,required"`
	DestDatabase string                `json:"dest_database,required"`
	Settings     *materialize.Settings `json:"settings,omitempty"`
}

func (r *CreateSyncRequest) String() string {
	return fmt.Sprintf("name: %s, src: %s, dest database: %s", r.Name, r.Src.String(), r.DestDatabase)
}

// versionHandler returns the version as a JSON object with a "version" field.
func (s *HttpService) versionHandler(w http.ResponseWriter, r *http.Request) {
	log.Infof("get version")

	type versionResult struct {
		Version string `json:"version"`
	}

	result := versionResult{Version: version.GetVersion()}
	writeJson(w, result)
}

// createSync creates a new materialize job and adds it to the job manager.
func (s *HttpService) createSync(request *CreateSyncRequest) error {
	log.Infof("create sync %s", request)

	job, err := materialize.NewJobFromService(request.Name, request.Src, request.DestDatabase,
		request.Settings, s.db, s.jobManager.Catalog(), s.jobManager.Executor())
	if err != nil {
		return err
	}

	return s.jobManager.AddJob(job)
}

// HttpServer serving /create_sync by json http rpc
func (s *HttpService) createHandler(w http.ResponseWriter, r *http.Request) {
	log.Infof("create sync")

	var request CreateSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.createSync(&request); err != nil {
		log.Errorf("create sync failed: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type result struct {
		Success bool `json:"success"`
	}
	writeJson(w, result{Success: true})
}

type SyncCommonRequest struct {
	// must need all fields required
	Name string `json:"name,required"`
}

func (s *HttpService) stopHandler(w http.ResponseWriter, r *http.Request) {
	log.Infof("stop sync")

	var request SyncCommonRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.jobManager.RemoveJob(request.Name); err != nil {
		log.Errorf("stop sync failed: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type result struct {
		Success bool `json:"success"`
	}
	writeJson(w, result{Success: true})
}

func (s *HttpService) jobStatusHandler(w http.ResponseWriter, r *http.Request) {
	log.Infof("get job status")

	var request SyncCommonRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.jobManager.GetJob(request.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	type result struct {
		Status   *materialize.JobStatus `json:"status"`
		Progress string                 `json:"progress,omitempty"`
	}
	jobResult := result{Status: job.Status()}
	if progress, err := s.db.GetProgress(request.Name); err == nil {
		jobResult.Progress = progress
	}
	writeJson(w, jobResult)
}

func (s *HttpService) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	log.Infof("list jobs")

	type result struct {
		Jobs []*materialize.JobStatus `json:"jobs"`
	}
	writeJson(w, result{Jobs: s.jobManager.ListJobs()})
}

func (s *HttpService) RegisterHandlers() {
	s.mux.HandleFunc("/version", s.versionHandler)
	s.mux.HandleFunc("/create_sync", s.createHandler)
	s.mux.HandleFunc("/stop_sync", s.stopHandler)
	s.mux.HandleFunc("/job_status", s.jobStatusHandler)
	s.mux.HandleFunc("/list_jobs", s.listJobsHandler)
}

func (s *HttpService) Start() error {
	s.RegisterHandlers()
	log.Infof("http service started on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *HttpService) Stop() error {
	return s.server.Close()
}
