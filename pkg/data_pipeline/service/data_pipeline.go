package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Avi18971911/spanlife/pkg/cache"
	"github.com/Avi18971911/spanlife/pkg/data_pipeline/model"
	esService "github.com/Avi18971911/spanlife/pkg/elasticsearch/service"
	"github.com/Avi18971911/spanlife/pkg/event_bus"
	"github.com/Avi18971911/spanlife/pkg/hanging"
	orderingService "github.com/Avi18971911/spanlife/pkg/ordering/service"
	"github.com/Avi18971911/spanlife/pkg/quark"
	spanlifeService "github.com/Avi18971911/spanlife/pkg/spanlife/service"
	"github.com/Avi18971911/spanlife/pkg/sqlite"
	"github.com/Avi18971911/spanlife/pkg/state"
	traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DataPipeline runs one construction over a batch of raw records: order, build, persist, export, publish.
// The database, exporter and bus are optional; a nil one skips its stage.
type DataPipeline struct {
	orderer    orderingService.TransitionOrderer
	db         sqlite.IntervalDB
	exporter   esService.IntervalExportService
	reports    event_bus.TopicBus[model.RunReport]
	maxClosed  int64
	logger     *zap.Logger
}

func NewDataPipeline(
	orderer orderingService.TransitionOrderer,
	db sqlite.IntervalDB,
	exporter esService.IntervalExportService,
	reports event_bus.TopicBus[model.RunReport],
	maxClosed int64,
	logger *zap.Logger,
) *DataPipeline {
	return &DataPipeline{
		orderer:    orderer,
		db:         db,
		exporter:   exporter,
		reports:    reports,
		maxClosed:  maxClosed,
		logger:     logger,
	}
}

// Run builds a fresh store from records. A cancelled build still persists, exports and reports the
// partial store, and the returned error wraps spanlifeService.ErrConstructionCancelled.
func (dp *DataPipeline) Run(ctx context.Context, records []traceModel.RawRecord) (model.RunReport, *state.MemoryStore, error) {
	runID := uuid.New()
	report := model.RunReport{RunID: runID.String()}
	logger := dp.logger.With(zap.String("run_id", report.RunID))

	ordered, err := dp.orderer.Order(ctx, records)
	if err != nil {
		return report, nil, fmt.Errorf("failed to order records: %w", err)
	}

	spanIndex, release, err := dp.newSpanIndex()
	if err != nil {
		return report, nil, fmt.Errorf("failed to create span index: %w", err)
	}
	defer release()

	store := state.NewMemoryStore(quark.NewAttributeTree())
	builder := spanlifeService.NewHierarchyBuilder(store, hanging.NewHangingBufferImpl(), spanIndex, logger)
	summary, buildErr := builder.Run(ctx, ordered.Transitions)
	if buildErr != nil && !errors.Is(buildErr, spanlifeService.ErrConstructionCancelled) {
		return report, store, fmt.Errorf("failed to build span hierarchy: %w", buildErr)
	}
	summary.Malformed = ordered.Dropped
	report.Summary = summary
	report.Intervals = len(store.Intervals())

	// the persisted run stays usable after a cancelled build, so use a context that outlives it
	stageCtx := context.WithoutCancel(ctx)
	if dp.db != nil {
		if err := dp.db.Save(stageCtx, runID, store); err != nil {
			return report, store, fmt.Errorf("failed to persist run: %w", err)
		}
		report.Persisted = true
	}
	if dp.exporter != nil {
		intervals := append(store.Intervals(), store.OngoingIntervals()...)
		exported, err := dp.exporter.Export(stageCtx, runID, store.Tree(), intervals)
		report.Exported = exported
		if err != nil {
			logger.Error("Failed to export intervals", zap.Error(err))
		}
	}
	if dp.reports != nil {
		dp.reports.Publish(report)
	}

	logger.Info("Construction run finished",
		zap.Int("records", len(records)),
		zap.Int("transitions", len(ordered.Transitions)),
		zap.Int("intervals", report.Intervals),
		zap.Int("anomalies", summary.Anomalies()),
	)
	return report, store, buildErr
}

func (dp *DataPipeline) newSpanIndex() (spanlifeService.SpanIndex, func(), error) {
	if dp.maxClosed <= 0 {
		return spanlifeService.NewMapSpanIndex(), func() {}, nil
	}
	closedSpanCache, err := cache.NewClosedSpanCache(dp.maxClosed, dp.logger)
	if err != nil {
		return nil, nil, err
	}
	return closedSpanCache, closedSpanCache.Release, nil
}
