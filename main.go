package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal/aws_s3"
	"github.com/IliaW/dip-crawler/internal/broker"
	"github.com/IliaW/dip-crawler/internal/crawler"
	"github.com/IliaW/dip-crawler/internal/engine"
	"github.com/IliaW/dip-crawler/internal/extract"
	"github.com/IliaW/dip-crawler/internal/model"
	"github.com/IliaW/dip-crawler/internal/persistence"
	"github.com/IliaW/dip-crawler/internal/pipeline"
	"github.com/IliaW/dip-crawler/internal/telemetry"
	"github.com/IliaW/dip-crawler/internal/worker"
	_ "github.com/lib/pq"
	"github.com/lmittmann/tint"
)

var (
	cfg        *config.Config
	db         *sql.DB
	s3         aws_s3.BucketClient
	recordRepo persistence.RecordStorage
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	setupLogger()
	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	if cfg.DbSettings.Enabled {
		db = setupDatabase()
		defer closeDatabase()
		recordRepo = persistence.NewRecordRepository(db)
	}
	if cfg.S3Settings.Enabled {
		s3 = aws_s3.NewS3BucketClient(cfg)
	}
	slog.Info("starting crawl.", slog.String("env", cfg.Env),
		slog.String("search url", cfg.CrawlerSettings.SearchUrl))

	session, err := engine.NewSession(cfg.EngineSettings, cfg.HttpClientSettings)
	if err != nil {
		slog.Error("failed to create session.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err := session.Bootstrap(ctx, cfg.CrawlerSettings.CookieLandingUrl); err != nil {
		slog.Error("failed to acquire session cookie.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	eng := engine.New(session, cfg.EngineSettings, metrics.EngineMetrics)

	threadNum := cfg.EngineSettings.WorkersNum
	if threadNum <= 0 {
		threadNum = 1
	}
	resultChan := make(chan *model.DetailResult, threadNum*2)
	processorChan := make(chan *model.ProcessorTask, threadNum*2)

	kafkaWg := &sync.WaitGroup{}
	var taskSink chan<- *model.ProcessorTask
	if cfg.KafkaSettings.Producer.Enabled {
		kafkaWg.Add(1)
		kafkaProducer := broker.NewKafkaProducer(processorChan, metrics.KafkaProducerMetrics,
			cfg.KafkaSettings.Producer, kafkaWg)
		go kafkaProducer.Run()
		taskSink = processorChan
	}

	workerWg := &sync.WaitGroup{}
	recordWorker := &worker.RecordWorker{
		ResultChan:    resultChan,
		ProcessorChan: taskSink,
		Cfg:           cfg,
		Db:            recordRepo,
		S3:            s3,
		Wg:            workerWg,
	}
	for i := 0; i < threadNum; i++ {
		workerWg.Add(1)
		go recordWorker.Run()
	}

	extractor := extract.NewRecordExtractor(cfg.ExtractSettings)
	pipe := pipeline.NewChannelPipeline(resultChan)
	crawl := crawler.NewCrawler(eng, cfg.CrawlerSettings, extractor, pipe, metrics.CrawlerMetrics)

	summary := crawl.Run(ctx)

	// Graceful shutdown.
	// 1. The crawl is finished (or aborted). Close resultChan
	// 2. Wait till all workers processed the remaining results. Close processorChan
	// 3. Wait till the producer wrote everything to Kafka. Stop Kafka producer
	// 4. Close the database connection
	pipe.Close()
	workerWg.Wait()
	close(processorChan)
	slog.Info("close processorChan.")
	kafkaWg.Wait()

	logSummary(summary)
	if summary.Err != nil {
		os.Exit(1)
	}
}

func logSummary(summary *model.CrawlSummary) {
	attrs := []any{
		slog.Int("list pages", summary.ListPages),
		slog.Int("details fetched", summary.DetailsFetched),
		slog.Int("records emitted", summary.RecordsEmitted),
		slog.Int("details skipped", summary.SkippedDetails),
	}
	switch {
	case summary.Err != nil:
		slog.Error("crawl failed.", append(attrs, slog.String("err", summary.Err.Error()))...)
	case summary.SkippedDetails > 0:
		slog.Warn("crawl finished with partial success.", attrs...)
	default:
		slog.Info("crawl finished.", attrs...)
	}
}

func setupLogger() *slog.Logger {
	envLogLevel := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	err := slogLevel.UnmarshalText([]byte(envLogLevel))
	if err != nil {
		log.Printf("encountenred log level: '%s'. The package does not support custom log levels", envLogLevel)
		slogLevel = slog.LevelDebug
	}
	log.Printf("slog level overwritten to '%v'", slogLevel)
	slog.SetLogLoggerLevel(slogLevel)

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
			NoColor: func() bool {
				if cfg.Env == "local" {
					return false
				}
				return true
			}()}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupDatabase() *sql.DB {
	slog.Info("connecting to the database...")
	connStr := fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cfg.DbSettings.User,
		cfg.DbSettings.Password,
		cfg.DbSettings.Host,
		cfg.DbSettings.Port,
		cfg.DbSettings.Name,
	)
	database, err := sql.Open("postgres", connStr)
	if err != nil {
		slog.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		slog.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			slog.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				slog.Error("failed to establish database connection.")
				os.Exit(1)
			}
			slog.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	slog.Info("connected to the database!")

	return database
}

func closeDatabase() {
	slog.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		slog.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
