package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)

	m.Observe("escrow_auto_release", 250*time.Millisecond, nil)
	m.Observe("escrow_auto_release", time.Second, errors.New("boom"))
	m.Observe("", time.Millisecond, nil)
	m.CycleSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	runs := findMetricFamily(mfs, "supplyhub_cron_job_runs_total")
	if runs == nil {
		t.Fatal("job runs metric missing")
	}
	if got := sampleValue(runs, map[string]string{"job": "escrow_auto_release", "outcome": "ok"}); got != 1 {
		t.Fatalf("expected one ok run, got %v", got)
	}
	if got := sampleValue(runs, map[string]string{"job": "escrow_auto_release", "outcome": "error"}); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
	if got := sampleValue(runs, map[string]string{"job": "unknown", "outcome": "ok"}); got != 1 {
		t.Fatalf("expected empty job name to be labelled unknown, got %v", got)
	}

	duration := findMetricFamily(mfs, "supplyhub_cron_job_duration_seconds")
	if duration == nil {
		t.Fatal("duration metric missing")
	}
	for _, metric := range duration.GetMetric() {
		if labelsMatch(metric.GetLabel(), map[string]string{"job": "escrow_auto_release"}) {
			if metric.GetHistogram().GetSampleCount() != 2 {
				t.Fatalf("expected two duration samples, got %d", metric.GetHistogram().GetSampleCount())
			}
		}
	}

	lastOK := findMetricFamily(mfs, "supplyhub_cron_job_last_success_timestamp_seconds")
	if lastOK == nil || len(lastOK.GetMetric()) != 2 {
		t.Fatalf("expected last success gauge for two jobs, got %v", lastOK)
	}

	skipped := findMetricFamily(mfs, "supplyhub_cron_cycles_skipped_total")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one skipped cycle")
	}
}

func TestNilCronMetricsIsNoop(t *testing.T) {
	var m *CronMetrics
	m.Observe("job", time.Second, nil)
	m.CycleSkipped()
	if NewCronMetrics(nil) != nil {
		t.Fatal("expected nil metrics without a registerer")
	}
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func sampleValue(mf *dto.MetricFamily, labels map[string]string) float64 {
	if mf == nil {
		return -1
	}
	for _, metric := range mf.GetMetric() {
		if labelsMatch(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
