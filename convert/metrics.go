package convert

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanl-asteroid-impact/xrage-format/pqt"
)

// Metrics holds the Prometheus counters of a conversion batch.
type Metrics struct {
	SourcesRead  *prometheus.CounterVec
	RowsWritten  prometheus.Counter
	RowGroups    prometheus.Counter
	FilesWritten prometheus.Counter
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	sourcesRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrage_convert_sources_read_total",
		Help: "Total source snapshots read",
	}, []string{"format"})

	rowsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xrage_convert_rows_written_total",
		Help: "Total rows written to Parquet outputs",
	})

	rowGroups := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xrage_convert_row_groups_total",
		Help: "Total row groups written to Parquet outputs",
	})

	filesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xrage_convert_files_written_total",
		Help: "Total Parquet files written",
	})

	reg.MustRegister(sourcesRead, rowsWritten, rowGroups, filesWritten)

	return &Metrics{
		SourcesRead:  sourcesRead,
		RowsWritten:  rowsWritten,
		RowGroups:    rowGroups,
		FilesWritten: filesWritten,
	}
}

func (m *Metrics) observe(results []pqt.Result) {
	for _, r := range results {
		m.FilesWritten.Inc()
		m.RowsWritten.Add(float64(r.Rows))
		m.RowGroups.Add(float64(r.RowGroups))
	}
}
