package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Avi18971911/spanlife/pkg/data_pipeline/model"
	"github.com/Avi18971911/spanlife/pkg/event_bus"
	orderingModel "github.com/Avi18971911/spanlife/pkg/ordering/model"
	orderingService "github.com/Avi18971911/spanlife/pkg/ordering/service"
	"github.com/Avi18971911/spanlife/pkg/quark"
	spanlifeService "github.com/Avi18971911/spanlife/pkg/spanlife/service"
	"github.com/Avi18971911/spanlife/pkg/sqlite"
	"github.com/Avi18971911/spanlife/pkg/state"
	traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"
	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const traceID = "5b8efff798038103d269b633813fc60c"

func TestDataPipeline_Run(t *testing.T) {
	records := []traceModel.RawRecord{
		fullRecord("b", "a", 10, 90),
		fullRecord("a", "", 0, 100),
		{PayloadErr: errors.New("truncated line")},
		fullRecord("c", "missing", 20, 30),
	}

	t.Run("Should persist, export and publish one run", func(t *testing.T) {
		db, err := sqlite.NewIntervalDB(filepath.Join(t.TempDir(), "spans.db"), spanlifeService.SchemaVersion, zap.NewNop())
		require.NoError(t, err)
		defer db.Close()
		exporter := &fakeExporter{}
		reports := event_bus.NewTopicBus[model.RunReport](EventBus.New(), event_bus.RunReportTopic, zap.NewNop())
		var mu sync.Mutex
		var published []model.RunReport
		require.NoError(t, reports.Subscribe(func(report model.RunReport) error {
			mu.Lock()
			defer mu.Unlock()
			published = append(published, report)
			return nil
		}))
		dp := NewDataPipeline(
			orderingService.NewSortedOrderer(orderingModel.SpanClock, zap.NewNop()),
			db,
			exporter,
			reports,
			0,
			zap.NewNop(),
		)

		report, store, err := dp.Run(context.Background(), records)
		require.NoError(t, err)
		reports.Wait()

		assert.Equal(t, 2, report.Summary.Closed)
		assert.Equal(t, 1, report.Summary.Malformed)
		assert.Equal(t, 1, report.Summary.Orphans)
		assert.Equal(t, 2, report.Intervals)
		assert.True(t, report.Persisted)
		assert.Equal(t, 2, report.Exported)
		_, ok := store.Tree().Find(traceID, state.SpansAttribute, "a", "b")
		assert.True(t, ok)

		snapshot, err := db.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, report.RunID, snapshot.RunID.String())
		assert.Equal(t, store.Intervals(), snapshot.Intervals)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []model.RunReport{report}, published)
	})

	t.Run("Should build the same hierarchy with a bounded span index", func(t *testing.T) {
		unbounded := NewDataPipeline(orderingService.NewSortedOrderer(orderingModel.SpanClock, zap.NewNop()), nil, nil, nil, 0, zap.NewNop())
		bounded := NewDataPipeline(orderingService.NewSortedOrderer(orderingModel.SpanClock, zap.NewNop()), nil, nil, nil, 8, zap.NewNop())

		_, expected, err := unbounded.Run(context.Background(), records)
		require.NoError(t, err)
		report, actual, err := bounded.Run(context.Background(), records)
		require.NoError(t, err)

		assert.Equal(t, expected.Intervals(), actual.Intervals())
		assert.False(t, report.Persisted)
	})

	t.Run("Should report a cancelled build with its partial store", func(t *testing.T) {
		dp := NewDataPipeline(passThrough{}, nil, nil, nil, 0, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, store, err := dp.Run(ctx, records)

		assert.ErrorIs(t, err, spanlifeService.ErrConstructionCancelled)
		assert.True(t, report.Summary.Cancelled)
		require.NotNil(t, store)
		assert.Empty(t, store.Intervals())
	})
}

type fakeExporter struct {
	calls int
}

func (fe *fakeExporter) Export(
	ctx context.Context,
	runID uuid.UUID,
	tree *quark.AttributeTree,
	intervals []state.Interval,
) (int, error) {
	fe.calls++
	return len(intervals), nil
}

// passThrough orders nothing so that cancellation is observed by the builder rather than the orderer.
type passThrough struct{}

func (passThrough) Order(ctx context.Context, records []traceModel.RawRecord) (orderingModel.OrderResult, error) {
	return orderingModel.OrderResult{Transitions: []traceModel.Transition{
		{Kind: traceModel.Start, Timestamp: 0, Record: fullRecord("a", "", 0, 100).Record},
	}}, nil
}

func fullRecord(spanID, parentID string, start, end int64) traceModel.RawRecord {
	return traceModel.RawRecord{
		Kind: traceModel.Full,
		Record: traceModel.Record{
			TraceID:      traceID,
			SpanID:       spanID,
			ParentSpanID: parentID,
			Name:         "op-" + spanID,
			StartTime:    start,
			EndTime:      end,
		},
	}
}
