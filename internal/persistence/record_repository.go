package persistence

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/IliaW/dip-crawler/internal"
	"github.com/IliaW/dip-crawler/internal/model"
)

type RecordStorage interface {
	Save(*model.DetailResult)
}

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (rr *RecordRepository) Save(result *model.DetailResult) {
	_, err := rr.db.Exec(`INSERT INTO dip_crawler.records
    (url_hash, source_url, page_offset, position, summary, content, tag_words, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (url_hash) DO UPDATE
	SET source_url = EXCLUDED.source_url,
	    page_offset = EXCLUDED.page_offset,
	    position = EXCLUDED.position,
		summary = EXCLUDED.summary,
		content = EXCLUDED.content,
		tag_words = EXCLUDED.tag_words,
		timestamp = EXCLUDED.timestamp;`,
		internal.HashURL(result.SourceURL),
		result.SourceURL,
		result.PageOffset,
		result.Position,
		result.Record.Summary,
		result.Record.Content,
		result.Record.TagWords,
		time.Now().UTC())
	if err != nil {
		slog.Error("failed to save record to database.", slog.String("err", err.Error()))
		return
	}
	slog.Debug("record saved to db.")
}
