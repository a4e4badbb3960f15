package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stream",
		Subsystem: "archive",
		Name:      "entries_total",
		Help:      "Archive entries written",
	})

	bytesArchived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stream",
		Subsystem: "archive",
		Name:      "bytes_total",
		Help:      "Object content bytes copied into archives",
	})

	archiveFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "s3stream",
			Subsystem: "archive",
			Name:      "failures_total",
			Help:      "Archive streams that ended with an error, by kind",
		},
		[]string{"kind"},
	)
)
