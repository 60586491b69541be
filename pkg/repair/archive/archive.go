// Package archive uploads turn frames to S3 or any S3-compatible object
// store.
package archive

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/session"
)

// S3Client is the subset of the S3 API the archive uses. *s3.Client
// satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientConfig builds an S3 client for NewClient.
type ClientConfig struct {
	Region    string
	Endpoint  string // set for MinIO, R2 and other S3-compatible stores
	AccessKey string
	SecretKey string
	PathStyle bool
}

// NewClient returns an S3 client with static credentials.
func NewClient(cfg ClientConfig) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
				Source:          "midas",
			}, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Archive stores frames under <prefix>/<session_id>/<turn_id>.<ext>.
type Archive struct {
	client  S3Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates an Archive. prefix may be empty.
func New(client S3Client, bucket, prefix string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Key returns the object key for a turn frame.
func (a *Archive) Key(sessionID, turnID, mediaType string) string {
	name := sessionID + "/" + turnID + extension(mediaType)
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

func extension(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// Put uploads one frame and returns its key.
func (a *Archive) Put(ctx context.Context, sessionID, turnID string, frame camera.Frame) (string, error) {
	mediaType := frame.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	key := a.Key(sessionID, turnID, mediaType)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(frame.Data),
		ContentType:   aws.String(mediaType),
		ContentLength: aws.Int64(int64(len(frame.Data))),
		Metadata: map[string]string{
			"session-id": sessionID,
			"turn-id":    turnID,
		},
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// OnTurn is a session.Hooks.OnTurn callback. Uploads run in the background
// and failures are only logged.
func (a *Archive) OnTurn(r session.TurnReport) {
	if r.Frame == nil || len(r.Frame.Data) == 0 {
		return
	}
	frame := *r.Frame
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		key, err := a.Put(ctx, r.SessionID, r.TurnID, frame)
		if err != nil {
			a.logger.Warn("frame archive failed", "session_id", r.SessionID, "turn_id", r.TurnID, "error", err)
			return
		}
		a.logger.Debug("frame archived", "key", key)
	}()
}

// Wait blocks until pending uploads finish.
func (a *Archive) Wait() {
	a.wg.Wait()
}
