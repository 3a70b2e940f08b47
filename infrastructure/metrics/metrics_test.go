package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordQueryIncrementsCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.RecordQuery("load_application_ir", "ok", 10*time.Millisecond)

	metric := &dto.Metric{}
	counter, err := m.QueriesTotal.GetMetricWithLabelValues("load_application_ir", "ok")
	assert.NoError(t, err)
	assert.NoError(t, counter.Write(metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestRecordMigrationRun(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.RecordMigrationRun("0003_add_behavior_flows", "completed", "checkpoint", time.Second)

	metric := &dto.Metric{}
	counter, err := m.MigrationRunsTotal.GetMetricWithLabelValues("0003_add_behavior_flows", "completed", "checkpoint")
	assert.NoError(t, err)
	assert.NoError(t, counter.Write(metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestGlobalIsSingleton(t *testing.T) {
	global = nil
	a := Global()
	b := Global()
	assert.Same(t, a, b)
}
