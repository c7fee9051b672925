package metrics

import "orderly/logger"

// SinkStats holds counters for a merged book sink.
type SinkStats struct {
	BooksWritten int64
	BytesWritten int64
	ErrorsCount  int64
	// Dropped counts books the sink's subscription discarded.
	Dropped int64
}

// ReportSink emits sink metrics using the provided logger and component name.
func ReportSink(log *logger.Log, component string, stats SinkStats) {
	if log == nil {
		log = logger.GetLogger()
	}

	errorRate := float64(0)
	if stats.BooksWritten+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(stats.BooksWritten+stats.ErrorsCount)
	}
	avgBytes := float64(0)
	if stats.BooksWritten > 0 {
		avgBytes = float64(stats.BytesWritten) / float64(stats.BooksWritten)
	}

	EmitMetric(log, component, "books_written", stats.BooksWritten, "counter", nil)
	EmitMetric(log, component, "bytes_written", stats.BytesWritten, "counter", nil)
	EmitMetric(log, component, "errors_count", stats.ErrorsCount, "counter", nil)
	EmitMetric(log, component, "error_rate", errorRate, "gauge", nil)

	entry := log.WithComponent(component).WithFields(logger.Fields{
		"books_written":  stats.BooksWritten,
		"bytes_written":  stats.BytesWritten,
		"errors_count":   stats.ErrorsCount,
		"error_rate":     errorRate,
		"avg_book_bytes": avgBytes,
		"dropped":        stats.Dropped,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}
	entry.Info(component + " metrics")
}
