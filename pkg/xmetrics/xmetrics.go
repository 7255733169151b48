package xmetrics

import (
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-metrics/prometheus"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

func InitGlobal(serviceName string) error {
	sink, err := prometheus.NewPrometheusSink()
	if err != nil {
		return xerror.Wrap(err, xerror.Normal, "init prometheus sink failed")
	}

	if _, err := metrics.NewGlobal(metrics.DefaultConfig(serviceName), sink); err != nil {
		return xerror.Wrap(err, xerror.Normal, "new global metrics failed")
	}

	return nil
}

func AddError(err *xerror.XError) {
	metrics.IncrCounter(ErrorMetrics(err).Tag(), 1)
}

func AddNewJob(jobName string) {
	metrics.SetGauge(JobMetrics(jobName).Version().Tag(), 0)

	metrics.IncrCounter(DashboardMetrics().JobNum().Tag(), 1)
}

func ConsumeEvent(jobName string) {
	metrics.IncrCounter(DashboardMetrics().EventNum().Tag(), 1)
}

func HandledVersion(jobName string, version uint64) {
	metrics.SetGauge(JobMetrics(jobName).Version().Tag(), float32(version))
}

func FlushBuffers(jobName string, rows, bytes uint64) {
	metrics.IncrCounter(JobMetrics(jobName).FlushNum().Tag(), 1)
	metrics.IncrCounter(JobMetrics(jobName).FlushedRows().Tag(), float32(rows))
	metrics.IncrCounter(JobMetrics(jobName).FlushedBytes().Tag(), float32(bytes))
}

func DumpTable(jobName string, rows uint64) {
	metrics.IncrCounter(JobMetrics(jobName).DumpedRows().Tag(), float32(rows))
}

func HandleDDL(jobName string) {
	metrics.IncrCounter(JobMetrics(jobName).DDLNum().Tag(), 1)
}
