package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Avi18971911/spanlife/pkg/elasticsearch/bootstrapper"
	"github.com/Avi18971911/spanlife/pkg/elasticsearch/client"
	"github.com/Avi18971911/spanlife/pkg/elasticsearch/model"
	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultBatchSize = 500

// IntervalExportService indexes the intervals of a construction run so they can be browsed in Elasticsearch.
type IntervalExportService interface {
	Export(ctx context.Context, runID uuid.UUID, tree *quark.AttributeTree, intervals []state.Interval) (int, error)
}

type IntervalExportServiceImpl struct {
	ac        client.SpanlifeClient
	batchSize int
	logger    *zap.Logger
}

func NewIntervalExportService(ac client.SpanlifeClient, batchSize int, logger *zap.Logger) *IntervalExportServiceImpl {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &IntervalExportServiceImpl{
		ac:        ac,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Export returns the number of intervals indexed. Document ids are derived from the run id and the
// commit position, so exporting the same run twice overwrites rather than duplicates.
func (ies *IntervalExportServiceImpl) Export(
	ctx context.Context,
	runID uuid.UUID,
	tree *quark.AttributeTree,
	intervals []state.Interval,
) (int, error) {
	exported := 0
	for start := 0; start < len(intervals); start += ies.batchSize {
		end := min(start+ies.batchSize, len(intervals))
		documents := make([]model.IntervalDocument, 0, end-start)
		for i := start; i < end; i++ {
			documents = append(documents, toDocument(runID, i, tree, intervals[i]))
		}
		actions := client.IndexActions(documents, func(document model.IntervalDocument) string {
			return document.ID
		})
		if err := ies.ac.BulkIndex(ctx, actions, bootstrapper.IntervalIndexName); err != nil {
			return exported, fmt.Errorf("failed to index intervals %d to %d: %w", start, end, err)
		}
		exported += len(documents)
	}
	ies.logger.Info("Exported intervals to Elasticsearch",
		zap.String("run_id", runID.String()),
		zap.Int("intervals", exported),
	)
	return exported, nil
}

func toDocument(runID uuid.UUID, position int, tree *quark.AttributeTree, interval state.Interval) model.IntervalDocument {
	path := tree.Path(interval.Quark)
	var traceID string
	if len(path) > 0 {
		traceID = path[0]
	}
	document := model.IntervalDocument{
		ID:         runID.String() + "-" + strconv.Itoa(position),
		RunID:      runID.String(),
		TraceID:    traceID,
		Path:       tree.FullPath(interval.Quark),
		Name:       tree.Name(interval.Quark),
		Depth:      tree.Depth(interval.Quark),
		Start:      interval.Start,
		Ongoing:    interval.Ongoing,
		Text:       interval.Value.Text,
		Attributes: interval.Value.Attributes,
	}
	if !interval.Ongoing {
		document.End = interval.End
	}
	return document
}
