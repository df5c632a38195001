// Package publish uploads build artifacts to S3-compatible object storage.
package publish

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/citypath/internal/config"
)

const defaultRegion = "us-east-1"

// Putter is the subset of the S3 client used for uploads.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads local files under a fixed bucket and key prefix.
type Publisher struct {
	client Putter
	bucket string
	prefix string
	retry  RetryPolicy
}

// Object describes one uploaded file.
type Object struct {
	Path string `json:"path"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// New builds a Publisher backed by an S3 client from the default AWS
// credential chain.
func New(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("publish: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "publish: load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient builds a Publisher over an existing client.
func NewWithClient(client Putter, bucket, prefix string) *Publisher {
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		retry:  DefaultRetryPolicy(),
	}
}

// WithRetry replaces the retry policy.
func (p *Publisher) WithRetry(rp RetryPolicy) *Publisher {
	p.retry = rp
	return p
}

// Key returns the object key for a local file: prefix/<basename>.
func (p *Publisher) Key(file string) string {
	base := filepath.Base(file)
	if p.prefix == "" {
		return base
	}
	return path.Join(p.prefix, base)
}

// Upload puts each file in order and stops at the first failure. Empty
// paths are skipped.
func (p *Publisher) Upload(ctx context.Context, files ...string) ([]Object, error) {
	log := zap.L().With(zap.String("component", "publish"), zap.String("bucket", p.bucket))

	var out []Object
	for _, file := range files {
		if file == "" {
			continue
		}
		obj, err := p.put(ctx, file)
		if err != nil {
			return out, err
		}
		log.Info("published artifact",
			zap.String("path", obj.Path),
			zap.String("key", obj.Key),
			zap.Int64("bytes", obj.Size),
		)
		out = append(out, obj)
	}
	return out, nil
}

func (p *Publisher) put(ctx context.Context, file string) (Object, error) {
	f, err := os.Open(file)
	if err != nil {
		return Object{}, eris.Wrapf(err, "publish: open %s", file)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return Object{}, eris.Wrapf(err, "publish: stat %s", file)
	}

	key := p.Key(file)
	err = p.retry.retry(ctx, key, func(ctx context.Context) error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(p.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
			ContentType:   aws.String(contentType(file)),
		})
		return err
	})
	if err != nil {
		return Object{}, eris.Wrapf(err, "publish: put s3://%s/%s", p.bucket, key)
	}
	return Object{Path: file, Key: key, Size: info.Size()}, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".db", ".sqlite", ".sqlite3":
		return "application/vnd.sqlite3"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
