package xmetrics

import "github.com/selectdb/materialize_syncer/pkg/xerror"

type IMetricsTag interface {
	Tag() []string
}

type metricsTag struct {
	tags []string
}

// dashboard metrics
type dashboardMetrics struct {
	metricsTag
}

func DashboardMetrics() *dashboardMetrics {
	return &dashboardMetrics{
		metricsTag: metricsTag{[]string{"dashboard"}},
	}
}

func (d *dashboardMetrics) Tag() []string {
	return d.tags
}

func (d *dashboardMetrics) JobNum() IMetricsTag {
	d.tags = append(d.tags, "jobNum")
	return d
}

func (d *dashboardMetrics) EventNum() IMetricsTag {
	d.tags = append(d.tags, "eventNum")
	return d
}

// job metrics
type jobMetrics struct {
	metricsTag
	name string
}

func JobMetrics(jobName string) *jobMetrics {
	return &jobMetrics{
		metricsTag: metricsTag{[]string{"job"}},
		name:       jobName,
	}
}

func (j *jobMetrics) Tag() []string {
	j.tags = append(j.tags, j.name)
	return j.tags
}

func (j *jobMetrics) Version() IMetricsTag {
	j.tags = append(j.tags, "version")
	return j
}

func (j *jobMetrics) FlushNum() IMetricsTag {
	j.tags = append(j.tags, "flushNum")
	return j
}

func (j *jobMetrics) FlushedRows() IMetricsTag {
	j.tags = append(j.tags, "flushedRows")
	return j
}

func (j *jobMetrics) FlushedBytes() IMetricsTag {
	j.tags = append(j.tags, "flushedBytes")
	return j
}

func (j *jobMetrics) DumpedRows() IMetricsTag {
	j.tags = append(j.tags, "dumpedRows")
	return j
}

func (j *jobMetrics) DDLNum() IMetricsTag {
	j.tags = append(j.tags, "ddlNum")
	return j
}

// error metrics
type errorMetrics struct {
	metricsTag
}

func ErrorMetrics(err *xerror.XError) IMetricsTag {
	errMetrics := &errorMetrics{
		metricsTag: metricsTag{[]string{"error", err.Category().Name()}},
	}

	if err.IsRecoverable() {
		errMetrics.tags = append(errMetrics.tags, "recoverable")
	} else if err.IsPanic() {
		errMetrics.tags = append(errMetrics.tags, "panic")
	} else {
		errMetrics.tags = append(errMetrics.tags, "unknown")
	}

	return errMetrics
}

func (e *errorMetrics) Tag() []string {
	return e.tags
}
