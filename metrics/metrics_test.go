package metrics_test

import (
	"strconv"
	"testing"

	"github.com/antmuse/AntEngine-sub001/metrics"
	"github.com/antmuse/AntEngine-sub001/slab"
)

func TestHeartbeatCountersSatisfyCmdchannelCounters(t *testing.T) {
	r := metrics.New()
	r.HeartbeatSent()
	r.HeartbeatSent()
	r.HeartbeatAcked()
	r.HeartbeatRecv()

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	want := map[string]float64{
		"antengine_cmdchannel_heartbeat_sent_total":  2,
		"antengine_cmdchannel_heartbeat_acked_total": 1,
		"antengine_cmdchannel_heartbeat_recv_total":  1,
	}
	for _, mf := range mfs {
		if exp, ok := want[mf.GetName()]; ok {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != exp {
				t.Errorf("%s = %v, want %v", mf.GetName(), got, exp)
			}
			delete(want, mf.GetName())
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing series: %v", want)
	}
}

func TestSampleEngineDataAccumulatesDeltasOnly(t *testing.T) {
	r := metrics.New()

	d := &slab.EngineData{}
	d.AddBytes(100, true)
	d.AddBytes(50, false)
	r.SampleEngineData(d)

	d.AddBytes(25, true)
	r.SampleEngineData(d)

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "antengine_bytes_in_total" {
			found = true
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 125 {
				t.Errorf("bytes_in_total = %v, want 125", got)
			}
		}
	}
	if !found {
		t.Fatal("antengine_bytes_in_total series not found")
	}
}

func TestSamplePoolStatsPerSlot(t *testing.T) {
	r := metrics.New()
	r.SamplePoolStats(strconv.Itoa(0), slab.PageStat{Total: 4, Used: 2, Requests: 10, Fails: 1})
	r.SamplePoolStats(strconv.Itoa(0), slab.PageStat{Total: 4, Used: 3, Requests: 15, Fails: 1})

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "antengine_slab_pages_used":
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("pages_used = %v, want 3", got)
			}
		case "antengine_slab_requests_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 15 {
				t.Errorf("requests_total = %v, want 15 (cumulative)", got)
			}
		case "antengine_slab_alloc_fails_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Errorf("alloc_fails_total = %v, want 1", got)
			}
		}
	}
}
