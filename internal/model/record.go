package model

import "errors"

// Record is the structured result extracted from one detail page.
// Summary is mandatory, the rest is kept when the page provides it.
type Record struct {
	Summary  string `json:"summary"`
	Content  string `json:"content,omitempty"`
	TagWords string `json:"tag_words,omitempty"`
}

var ErrMissingSummary = errors.New("record has no summary")

func (r *Record) Validate() error {
	if r.Summary == "" {
		return ErrMissingSummary
	}
	return nil
}

// DetailResult is one element of the item pipeline stream: either a record or
// the error that prevented its extraction. PageOffset and Position identify
// where in the paginated listing the detail link was found.
type DetailResult struct {
	Record     *Record `json:"record,omitempty"`
	SourceURL  string  `json:"source_url"`
	RawHTML    string  `json:"-"`
	PageOffset int     `json:"page_offset"`
	Position   int     `json:"position"`
	Err        error   `json:"-"`
}

// ProcessorTask points downstream consumers at an archived record.
type ProcessorTask struct {
	S3Bucket  string `json:"s3_bucket"`
	S3Key     string `json:"s3_key"`
	SourceURL string `json:"source_url"`
}

// CrawlSummary is the final report of a crawl run. SkippedDetails > 0 with a
// nil Err means partial success, not failure.
type CrawlSummary struct {
	ListPages      int
	DetailsFetched int
	RecordsEmitted int
	SkippedDetails int
	Err            error
}
