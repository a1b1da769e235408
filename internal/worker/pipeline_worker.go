package worker

import (
	"log/slog"
	"sync"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal/aws_s3"
	"github.com/IliaW/dip-crawler/internal/model"
	"github.com/IliaW/dip-crawler/internal/persistence"
)

// RecordWorker drains the item pipeline stream: successful records go to the
// configured sinks (database, s3 archive, kafka), failures are logged and
// counted. Sinks left nil are skipped, so a stdout-only run needs no infra.
type RecordWorker struct {
	ResultChan    <-chan *model.DetailResult
	ProcessorChan chan<- *model.ProcessorTask
	Cfg           *config.Config
	Db            persistence.RecordStorage
	S3            aws_s3.BucketClient
	Wg            *sync.WaitGroup
}

func (w *RecordWorker) Run() {
	defer w.Wg.Done()
	slog.Debug("starting record worker.")

	for result := range w.ResultChan {
		if result.Err != nil {
			slog.Error("skipping failed detail page.", slog.String("url", result.SourceURL),
				slog.Int("page_offset", result.PageOffset), slog.String("err", result.Err.Error()))
			continue
		}
		if err := result.Record.Validate(); err != nil {
			slog.Error("dropping invalid record.", slog.String("url", result.SourceURL),
				slog.String("err", err.Error()))
			continue
		}
		w.saveRecord(result)
	}
}

func (w *RecordWorker) saveRecord(result *model.DetailResult) {
	slog.Debug("saving record.",
		slog.String("url", result.SourceURL),
		slog.Int("page_offset", result.PageOffset),
		slog.Int("position", result.Position),
	)

	var s3Key string
	if w.S3 != nil {
		key, err := w.S3.WriteRecord(result)
		if err != nil {
			slog.Error("failed to archive record to s3.", slog.String("url", result.SourceURL),
				slog.String("err", err.Error()))
		} else {
			s3Key = key
		}
	}

	if w.Db != nil {
		w.Db.Save(result)
	}

	if w.ProcessorChan != nil && s3Key != "" {
		w.ProcessorChan <- &model.ProcessorTask{
			S3Bucket:  w.Cfg.S3Settings.BucketName,
			S3Key:     s3Key,
			SourceURL: result.SourceURL,
		}
	}
}
