package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/IliaW/dip-crawler/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	EngineMetrics        *EngineMetrics
	CrawlerMetrics       *CrawlerMetrics
	KafkaProducerMetrics *KafkaProducerMetrics
	Close                func()
}

type EngineMetrics struct {
	RequestCnt       func(count int64)
	RetryCnt         func(count int64)
	FailedRequestCnt func(count int64)
}

type CrawlerMetrics struct {
	ListPageCnt      func(count int64)
	RecordCnt        func(count int64)
	SkippedDetailCnt func(count int64)
}

type KafkaProducerMetrics struct {
	SuccessfullySendMsgCnt func(count int64)
	FailedSendMsgCnt       func(count int64)
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	// Set up request engine metrics
	engineRequestCounter, err := meter.Int64Counter("dip-crawler.engine.requests",
		metric.WithDescription("The number of http attempts issued against the portal"),
		metric.WithUnit("{requests}"))
	engineRetryCounter, err := meter.Int64Counter("dip-crawler.engine.retries",
		metric.WithDescription("The number of attempts that were retried after a transport or status failure"),
		metric.WithUnit("{requests}"))
	engineFailCounter, err := meter.Int64Counter("dip-crawler.engine.fail",
		metric.WithDescription("The number of requests that failed after exhausting the retry budget"),
		metric.WithUnit("{requests}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for the engine.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.EngineMetrics = &EngineMetrics{
		RequestCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				engineRequestCounter.Add(ctx, count)
			}
		},
		RetryCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				engineRetryCounter.Add(ctx, count)
			}
		},
		FailedRequestCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				engineFailCounter.Add(ctx, count)
			}
		},
	}

	// Set up crawler metrics
	crawlerPageCounter, err := meter.Int64Counter("dip-crawler.crawler.list-pages",
		metric.WithDescription("The number of list pages fetched"),
		metric.WithUnit("{pages}"))
	crawlerRecordCounter, err := meter.Int64Counter("dip-crawler.crawler.records",
		metric.WithDescription("The number of records emitted to the item pipeline"),
		metric.WithUnit("{records}"))
	crawlerSkippedCounter, err := meter.Int64Counter("dip-crawler.crawler.skipped-details",
		metric.WithDescription("The number of detail pages skipped due to fetch or parse failures"),
		metric.WithUnit("{pages}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for the crawler.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.CrawlerMetrics = &CrawlerMetrics{
		ListPageCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				crawlerPageCounter.Add(ctx, count)
			}
		},
		RecordCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				crawlerRecordCounter.Add(ctx, count)
			}
		},
		SkippedDetailCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				crawlerSkippedCounter.Add(ctx, count)
			}
		},
	}

	// Set up kafka producer metrics
	kafkaProducerSuccessCounter, err := meter.Int64Counter("dip-crawler.kafka.send.success",
		metric.WithDescription("The number of messages that the kafka producer successfully processed"),
		metric.WithUnit("{messages}"))
	kafkaProducerFailCounter, err := meter.Int64Counter("dip-crawler.kafka.send.fail",
		metric.WithDescription("The number of messages that the kafka producer could not process"),
		metric.WithUnit("{messages}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for kafka producer.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.KafkaProducerMetrics = &KafkaProducerMetrics{
		SuccessfullySendMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaProducerSuccessCounter.Add(ctx, count)
			}
		},
		FailedSendMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaProducerFailCounter.Add(ctx, count)
			}
		},
	}

	// initialize metrics in DataDog for setup UI
	if cfg.TelemetrySettings.Enabled {
		metricsProvider.EngineMetrics.RequestCnt(1)
		metricsProvider.EngineMetrics.RetryCnt(1)
		metricsProvider.EngineMetrics.FailedRequestCnt(1)
		metricsProvider.CrawlerMetrics.ListPageCnt(1)
		metricsProvider.CrawlerMetrics.RecordCnt(1)
		metricsProvider.CrawlerMetrics.SkippedDetailCnt(1)
		metricsProvider.KafkaProducerMetrics.SuccessfullySendMsgCnt(1)
		metricsProvider.KafkaProducerMetrics.FailedSendMsgCnt(1)
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}
