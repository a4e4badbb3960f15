package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	partsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stream",
		Subsystem: "upload",
		Name:      "parts_total",
		Help:      "Multipart upload parts sent successfully",
	})

	bytesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stream",
		Subsystem: "upload",
		Name:      "bytes_total",
		Help:      "Bytes sent in multipart upload parts",
	})

	partDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "s3stream",
		Subsystem: "upload",
		Name:      "part_duration_seconds",
		Help:      "Latency of UploadPart calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	uploadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stream",
		Subsystem: "upload",
		Name:      "completed_total",
		Help:      "Multipart uploads completed",
	})

	uploadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "s3stream",
			Subsystem: "upload",
			Name:      "failures_total",
			Help:      "Failed backend calls by operation",
		},
		[]string{"op"}, // initiate, upload-part, complete
	)
)
