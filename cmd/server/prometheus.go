package main

import (
	"github.com/miretskiy/compactsim/simulator"
	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics exports per-store gauges labelled by store title. The byte
// and compaction totals are gauges because they restart from zero with
// every run.
type storeMetrics struct {
	writeAmp        *prometheus.GaugeVec
	readAmp         *prometheus.GaugeVec
	flushBytes      *prometheus.GaugeVec
	compactionBytes *prometheus.GaugeVec
	compactions     *prometheus.GaugeVec
	queueDepth      *prometheus.GaugeVec
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "compactsim",
			Name:      name,
			Help:      help,
		}, []string{"store"})
	}
	m := &storeMetrics{
		writeAmp:        gauge("write_amplification", "Compaction bytes per flushed byte"),
		readAmp:         gauge("read_amplification", "Files a read has to touch"),
		flushBytes:      gauge("flush_bytes", "Bytes flushed in the current run"),
		compactionBytes: gauge("compaction_bytes", "Bytes read and written by compactions in the current run"),
		compactions:     gauge("compactions", "Compactions finished in the current run"),
		queueDepth:      gauge("queue_depth", "Operations waiting in the store queue"),
	}
	reg.MustRegister(m.writeAmp, m.readAmp, m.flushBytes, m.compactionBytes, m.compactions, m.queueDepth)
	return m
}

func (m *storeMetrics) observe(stores []simulator.StoreMetrics) {
	for _, s := range stores {
		m.writeAmp.WithLabelValues(s.Title).Set(s.WriteAmplification)
		m.readAmp.WithLabelValues(s.Title).Set(float64(s.ReadAmplification))
		m.flushBytes.WithLabelValues(s.Title).Set(float64(s.FlushBytes))
		m.compactionBytes.WithLabelValues(s.Title).Set(float64(s.CompactionBytes))
		m.compactions.WithLabelValues(s.Title).Set(float64(s.CompactionCount))
		m.queueDepth.WithLabelValues(s.Title).Set(float64(s.QueueDepth))
	}
}

// forget drops the series of stores that are no longer running.
func (m *storeMetrics) forget(titles []string) {
	for _, title := range titles {
		for _, vec := range []*prometheus.GaugeVec{m.writeAmp, m.readAmp, m.flushBytes, m.compactionBytes, m.compactions, m.queueDepth} {
			vec.DeleteLabelValues(title)
		}
	}
}
