package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	netUrl "net/url"
	"os"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal"
	"github.com/IliaW/dip-crawler/internal/model"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
)

type BucketClient interface {
	WriteRecord(*model.DetailResult) (string, error)
}

type S3BucketClient struct {
	client *s3.Client
	cfg    *config.Config
}

func NewS3BucketClient(cfg *config.Config) *S3BucketClient {
	slog.Info("connecting to s3...")

	c, err := connect(cfg)
	if err != nil {
		slog.Error("failed to connect to s3.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &S3BucketClient{
		client: c,
		cfg:    cfg,
	}
}

type archivedRecord struct {
	SourceURL  string        `json:"source_url"`
	PageOffset int           `json:"page_offset"`
	Position   int           `json:"position"`
	Record     *model.Record `json:"record"`
	RawHTML    string        `json:"raw_html,omitempty"`
}

// WriteRecord archives the extracted record together with the raw detail page
// html, keyed by host and url hash.
func (bc *S3BucketClient) WriteRecord(result *model.DetailResult) (string, error) {
	u, err := netUrl.Parse(result.SourceURL)
	if err != nil {
		slog.Error("failed to parse url.", slog.String("url", result.SourceURL), slog.String("err", err.Error()))
		return "", err
	}
	s3Key := fmt.Sprintf("%s/%s/%s/%s", bc.cfg.S3Settings.KeyPrefix, u.Host,
		internal.HashURL(result.SourceURL), "record.json")
	body, err := jsoniter.Marshal(&archivedRecord{
		SourceURL:  result.SourceURL,
		PageOffset: result.PageOffset,
		Position:   result.Position,
		Record:     result.Record,
		RawHTML:    result.RawHTML,
	})
	if err != nil {
		slog.Error("marshaling failed.", slog.String("err", err.Error()))
		return "", err
	}

	_, err = bc.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &bc.cfg.S3Settings.BucketName,
		Key:    &s3Key,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		slog.Error("failed to save record to s3.", slog.String("err", err.Error()))
		return "", err
	}
	slog.Debug("record saved to s3.")

	return s3Key, nil
}

func connect(cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsCfg.LoadDefaultConfig(context.Background(), awsCfg.WithRegion(cfg.S3Settings.Region))
	if err != nil {
		slog.Error("failed to load s3 config.", slog.String("err", err.Error()))
		return nil, err
	}

	if cfg.Env == "local" {
		s3Config.BaseEndpoint = &cfg.S3Settings.AwsBaseEndpoint // for LocalStack
		s3Config.Credentials = crd.NewStaticCredentialsProvider("test", "test", "")
		// LocalStack does not support `virtual host addressing style` that uses s3 by default.
		// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
		// Set 'local' Env variable to use this configuration.
		slog.Warn("test configuration for S3")
		return s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		}), nil
	}

	return s3.NewFromConfig(s3Config), nil
}
