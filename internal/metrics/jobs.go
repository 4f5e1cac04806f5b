package metrics

import "time"

// JobCompleted records a successful report generation.
func JobCompleted(reportType string, duration time.Duration) {
	ReportJobsTotal.WithLabelValues(reportType, "completed").Inc()
	ReportJobDuration.WithLabelValues(reportType).Observe(duration.Seconds())
}

// JobFailed records a report job failure.
func JobFailed(reportType string) {
	ReportJobsTotal.WithLabelValues(reportType, "failed").Inc()
}

// ReportGenerated records the size and shape of a finished document.
func ReportGenerated(reportType, format string, rows, sizeBytes int) {
	ReportRows.WithLabelValues(reportType).Observe(float64(rows))
	ReportBytes.WithLabelValues(format).Observe(float64(sizeBytes))
}
