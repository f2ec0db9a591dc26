package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Avi18971911/spanlife/pkg/config"
	pipelineModel "github.com/Avi18971911/spanlife/pkg/data_pipeline/model"
	"github.com/Avi18971911/spanlife/pkg/data_pipeline/service"
	"github.com/Avi18971911/spanlife/pkg/elasticsearch/bootstrapper"
	"github.com/Avi18971911/spanlife/pkg/elasticsearch/client"
	esService "github.com/Avi18971911/spanlife/pkg/elasticsearch/service"
	"github.com/Avi18971911/spanlife/pkg/event_bus"
	orderingService "github.com/Avi18971911/spanlife/pkg/ordering/service"
	spanlifeService "github.com/Avi18971911/spanlife/pkg/spanlife/service"
	"github.com/Avi18971911/spanlife/pkg/sqlite"
	"github.com/Avi18971911/spanlife/pkg/trace/helper"
	traceService "github.com/Avi18971911/spanlife/pkg/trace/service"
	"github.com/asaskevich/EventBus"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	inputPath := flag.String("input", "", "OTLP JSON traces, one export per line")
	dbPath := flag.String("db", "", "interval database, overrides store.path")
	printTree := flag.Bool("print-tree", false, "log the constructed span trees")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *inputPath == "" {
		logger.Fatal("No input given, pass -input")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input, err := os.Open(*inputPath)
	if err != nil {
		logger.Fatal("Failed to open input", zap.String("path", *inputPath), zap.Error(err))
	}
	defer input.Close()
	records, err := helper.ReadRawRecords(input)
	if err != nil {
		logger.Fatal("Failed to read traces", zap.Error(err))
	}
	logger.Info("Read raw records", zap.Int("records", len(records)))

	db, err := sqlite.NewIntervalDB(cfg.Store.Path, spanlifeService.SchemaVersion, logger)
	if err != nil {
		logger.Fatal("Failed to open interval database", zap.Error(err))
	}
	defer db.Close()
	if err := db.CheckVersion(ctx); err != nil {
		if errors.Is(err, sqlite.ErrSchemaVersionMismatch) {
			logger.Warn("Stored run was built under another schema version, rebuilding", zap.Error(err))
		} else if !errors.Is(err, sqlite.ErrEmptyStore) {
			logger.Fatal("Failed to check interval database", zap.Error(err))
		}
	}

	var exporter esService.IntervalExportService
	if cfg.Elasticsearch.Enabled {
		exporter = newExporter(ctx, cfg.Elasticsearch, logger)
	}

	reports := event_bus.NewTopicBus[pipelineModel.RunReport](EventBus.New(), event_bus.RunReportTopic, logger)
	if err := reports.Subscribe(service.NewRunReportLogger(logger).Handle); err != nil {
		logger.Fatal("Failed to subscribe to run reports", zap.Error(err))
	}
	dataPipeline := service.NewDataPipeline(
		orderingService.NewSortedOrderer(cfg.Clock, logger),
		db,
		exporter,
		reports,
		cfg.SpanIndex.MaxClosed,
		logger,
	)

	_, store, err := dataPipeline.Run(ctx, records)
	reports.Wait()
	if err != nil {
		logger.Error("Construction run did not complete", zap.Error(err))
	}
	if *printTree && store != nil {
		tcs := traceService.NewTreeConstructorService()
		for _, root := range tcs.ConstructTrees(store.Tree(), append(store.Intervals(), store.OngoingIntervals()...)) {
			root.Walk(func(node *traceService.TreeNode, depth int) {
				logger.Info("Span",
					zap.String("trace_id", node.TraceID),
					zap.String("span_id", node.SpanID),
					zap.Int("depth", depth),
					zap.String("name", node.Interval.Value.Text),
					zap.Int64("start", node.Interval.Start),
					zap.Int64("end", node.Interval.End),
				)
			})
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

func newExporter(ctx context.Context, cfg config.ElasticsearchConfig, logger *zap.Logger) esService.IntervalExportService {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Addresses})
	if err != nil {
		logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
	}
	bs := bootstrapper.NewBootstrapper(es, cfg.BootstrapRetries, cfg.BootstrapDelay, logger)
	if err := bs.BootstrapElasticsearch(ctx); err != nil {
		logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
	}
	ac := client.NewSpanlifeClientImpl(es, client.Wait)
	return esService.NewIntervalExportService(ac, cfg.BatchSize, logger)
}
