package service

import (
	"github.com/Avi18971911/spanlife/pkg/data_pipeline/model"
	"go.uber.org/zap"
)

// RunReportLogger subscribes to run reports and logs each one, at warn level when the run
// saw anomalies or was cancelled.
type RunReportLogger struct {
	logger *zap.Logger
}

func NewRunReportLogger(logger *zap.Logger) *RunReportLogger {
	return &RunReportLogger{logger: logger}
}

func (rl *RunReportLogger) Handle(report model.RunReport) error {
	summary := report.Summary
	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.Int("schema_version", summary.SchemaVersion),
		zap.Int("opened", summary.Opened),
		zap.Int("closed", summary.Closed),
		zap.Int("intervals", report.Intervals),
		zap.Int("exported", report.Exported),
		zap.Bool("persisted", report.Persisted),
	}
	if summary.Anomalies() == 0 && !summary.Cancelled {
		rl.logger.Info("Construction run report", fields...)
		return nil
	}
	fields = append(fields,
		zap.Int("malformed", summary.Malformed),
		zap.Int("orphans", summary.Orphans),
		zap.Int("dangling_ends", summary.DanglingEnds),
		zap.Int("duplicate_starts", summary.DuplicateStarts),
		zap.Int("duplicate_ends", summary.DuplicateEnds),
		zap.Int("store_errors", summary.StoreErrors),
		zap.Bool("cancelled", summary.Cancelled),
	)
	rl.logger.Warn("Construction run report with anomalies", fields...)
	return nil
}
