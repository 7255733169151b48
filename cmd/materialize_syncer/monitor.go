package main

import (
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/selectdb/materialize_syncer/pkg/materialize"
)

const (
	MONITOR_DURATION = time.Second * 60
)

type Monitor struct {
	jobManager *materialize.JobManager
	stop       chan struct{}
}

func NewMonitor(jm *materialize.JobManager) *Monitor {
	return &Monitor{
		jobManager: jm,
		stop:       make(chan struct{}),
	}
}

func (m *Monitor) dump() {
	log.Infof("[GOROUTINE] Total = %v", runtime.NumGoroutine())

	mb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	// see: https://golang.org/pkg/runtime/#MemStats
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	liveObjects := stats.Mallocs - stats.Frees
	log.Infof("[MEMORY STATS] Alloc = %v MiB, TotalAlloc = %v MiB, Sys = %v MiB, NumGC = %v, LiveObjects = %v",
		mb(stats.Alloc), mb(stats.TotalAlloc), mb(stats.Sys), stats.NumGC, liveObjects)

	jobs := m.jobManager.ListJobs()
	numJobs := len(jobs)
	numRunning := 0
	numSnapshotting := 0
	numStreaming := 0
	numFailed := 0
	for _, job := range jobs {
		if job.State == "running" {
			numRunning += 1
		}
		switch job.ProgressState {
		case materialize.StateSnapshotting.String():
			numSnapshotting += 1
		case materialize.StateStreaming.String():
			numStreaming += 1
		case materialize.StateFailed.String():
			numFailed += 1
		}
	}

	log.Infof("[JOB STATS] Total = %v, Running = %v, Snapshotting = %v, Streaming = %v, Failed = %v",
		numJobs, numRunning, numSnapshotting, numStreaming, numFailed)
}

func (m *Monitor) Start() {
	ticker := time.NewTicker(MONITOR_DURATION)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			log.Info("monitor stopped")
			return
		case <-ticker.C:
			m.dump()
		}
	}
}

func (m *Monitor) Stop() {
	log.Info("monitor stopping")
	close(m.stop)
}
