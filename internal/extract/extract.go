// Package extract turns parsed detail pages into records. The crawler treats
// it as an opaque collaborator called once per detail page.
package extract

import (
	"errors"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal/document"
	"github.com/IliaW/dip-crawler/internal/model"
)

type RecordExtractor struct {
	cfg *config.ExtractConfig
}

func NewRecordExtractor(cfg *config.ExtractConfig) *RecordExtractor {
	return &RecordExtractor{cfg: cfg}
}

// Extract reads the configured page regions into a Record. The summary region
// must match exactly one node; content and tag words are optional and left
// empty when their query matches nothing.
func (e *RecordExtractor) Extract(doc *document.Document) (*model.Record, error) {
	summary, err := doc.NormalizedText(e.cfg.SummaryQuery)
	if err != nil {
		return nil, err
	}

	content, err := optionalText(doc, e.cfg.ContentQuery)
	if err != nil {
		return nil, err
	}
	tagWords, err := optionalText(doc, e.cfg.TagWordsQuery)
	if err != nil {
		return nil, err
	}

	record := &model.Record{
		Summary:  summary,
		Content:  content,
		TagWords: tagWords,
	}
	return record, record.Validate()
}

// optionalText is NormalizedText that tolerates a missing region. More than
// one match still means the page layout changed underneath us.
func optionalText(doc *document.Document, query string) (string, error) {
	if query == "" {
		return "", nil
	}
	text, err := doc.NormalizedText(query)
	if err != nil {
		var parseErr *document.ParsingError
		if errors.As(err, &parseErr) && parseErr.Kind == document.UnexpectedSchema {
			nodes, qErr := doc.QueryNodes(query)
			if qErr == nil && len(nodes) == 0 {
				return "", nil
			}
		}
		return "", err
	}
	return text, nil
}
