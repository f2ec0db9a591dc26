package main

import (
	"context"
	"flag"
	"net"
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
	traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"
	traceServer "github.com/Avi18971911/spanlife/pkg/trace/server"
	"github.com/Avi18971911/spanlife/pkg/write_buffer"
	"github.com/asaskevich/EventBus"
	"github.com/elastic/go-elasticsearch/v8"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exporter esService.IntervalExportService
	if cfg.Elasticsearch.Enabled {
		es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Elasticsearch.Addresses})
		if err != nil {
			logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
		}
		bs := bootstrapper.NewBootstrapper(es, cfg.Elasticsearch.BootstrapRetries, cfg.Elasticsearch.BootstrapDelay, logger)
		if err := bs.BootstrapElasticsearch(ctx); err != nil {
			logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
		}
		ac := client.NewSpanlifeClientImpl(es, client.Wait)
		exporter = esService.NewIntervalExportService(ac, cfg.Elasticsearch.BatchSize, logger)
	}

	db, err := sqlite.NewIntervalDB(cfg.Store.Path, spanlifeService.SchemaVersion, logger)
	if err != nil {
		logger.Fatal("Failed to open interval database", zap.Error(err))
	}
	defer db.Close()

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

	listener, err := net.Listen("tcp", cfg.Receiver.Address)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("address", cfg.Receiver.Address), zap.Error(err))
	}

	recordBuffer := write_buffer.NewWriteBufferImpl[traceModel.RawRecord](cfg.Receiver.MaxBuffered, logger)
	srv := grpc.NewServer()
	traceServiceServer := traceServer.NewTraceServiceServerImpl(
		logger,
		recordBuffer,
	)
	protoTrace.RegisterTraceServiceServer(srv, traceServiceServer)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down receiver, building span hierarchy from buffered spans")
		srv.GracefulStop()
	}()

	logger.Info("gRPC service started, listening for OpenTelemetry traces...", zap.String("address", cfg.Receiver.Address))
	if err := srv.Serve(listener); err != nil {
		logger.Fatal("Failed to serve", zap.Error(err))
	}

	// the first signal stopped the receiver; a second one cancels the build
	stop()
	buildCtx, stopBuild := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopBuild()

	records := recordBuffer.Drain()
	if _, _, err := dataPipeline.Run(buildCtx, records); err != nil {
		logger.Error("Construction run did not complete", zap.Error(err))
	}
	reports.Wait()
}
