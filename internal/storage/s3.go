// Package storage keeps diary entries as JSON objects in S3-compatible
// object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

const diaryPrefix = "diary"

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "protokb"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for diary operations.
type Client struct {
	minioClient *minio.Client
	bucket      string
	now         func() time.Time
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, apperr.Missing("storage.endpoint")
	}
	if config.Bucket == "" {
		return nil, apperr.Missing("storage.bucket")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
		now:         time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return translate("check bucket", err)
	}
	if exists {
		return nil
	}

	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return translate("create bucket", err)
	}
	return nil
}

// objectName returns the key of the entry for date, validating the date.
func objectName(date string) (string, error) {
	if _, err := time.Parse(models.DiaryDateLayout, date); err != nil {
		return "", fmt.Errorf("date %q is not YYYY-MM-DD: %w", date, apperr.ErrInvalidInput)
	}
	return path.Join(diaryPrefix, date+".json"), nil
}

// PutEntry validates and writes an entry, replacing any entry of the same
// date. UpdatedAt is set to the current time.
func (c *Client) PutEntry(ctx context.Context, entry models.DiaryEntry) (*models.DiaryEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	name, err := objectName(entry.Date)
	if err != nil {
		return nil, err
	}
	entry.UpdatedAt = c.now().UTC()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	_, err = c.minioClient.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return nil, translate("put entry", err)
	}
	return &entry, nil
}

// GetEntry reads the entry for date.
func (c *Client) GetEntry(ctx context.Context, date string) (*models.DiaryEntry, error) {
	name, err := objectName(date)
	if err != nil {
		return nil, err
	}

	object, err := c.minioClient.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate("get entry", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, translate("read entry", err)
	}

	var entry models.DiaryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", date, err)
	}
	return &entry, nil
}

// ListEntries returns the dates with an entry between from and to
// (inclusive, either may be empty), newest first.
func (c *Client) ListEntries(ctx context.Context, from, to string) ([]string, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := objectName(d); err != nil {
			return nil, err
		}
	}

	var dates []string
	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    diaryPrefix + "/",
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, translate("list entries", object.Err)
		}
		date, ok := dateFromKey(object.Key)
		if !ok || (from != "" && date < from) || (to != "" && date > to) {
			continue
		}
		dates = append(dates, date)
	}

	slices.Sort(dates)
	slices.Reverse(dates)
	return dates, nil
}

// DeleteEntry removes the entry for date. Deleting a missing entry is not
// an error.
func (c *Client) DeleteEntry(ctx context.Context, date string) error {
	name, err := objectName(date)
	if err != nil {
		return err
	}
	if err := c.minioClient.RemoveObject(ctx, c.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return translate("delete entry", err)
	}
	return nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

func dateFromKey(key string) (string, bool) {
	name := path.Base(key)
	date, ok := strings.CutSuffix(name, ".json")
	if !ok || path.Dir(key) != diaryPrefix {
		return "", false
	}
	if _, err := time.Parse(models.DiaryDateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

// translate maps S3 error responses onto the application taxonomy.
func translate(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	case resp.StatusCode != 0:
		return fmt.Errorf("%s: %w", op, &apperr.RemoteServiceError{
			Service:    "storage",
			StatusCode: resp.StatusCode,
			Message:    resp.Code + ": " + resp.Message,
		})
	default:
		return fmt.Errorf("%s: %w", op, &apperr.RemoteServiceError{Service: "storage", Message: err.Error()})
	}
}
