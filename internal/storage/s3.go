package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/pkg/config"
)

const (
	// minComposePartSize is the S3 lower bound for every part but the last in a compose
	minComposePartSize = 5 * 1024 * 1024
	// streamPartSize bounds memory for uploads of unknown length
	streamPartSize = 16 * 1024 * 1024
)

// S3Storage implements BlobStorage on an S3-compatible bucket through minio-go
type S3Storage struct {
	client *minio.Client
	bucket string
}

// NewS3Storage connects to the endpoint and ensures the bucket exists
func NewS3Storage(ctx context.Context, cfg *config.StorageConfig) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("created storage bucket")
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("s3 storage initialized")
	return &S3Storage{client: client, bucket: cfg.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// Store uploads content as a single object
func (s *S3Storage) Store(ctx context.Context, path string, content io.Reader, contentType string) error {
	info, err := s.client.PutObject(ctx, s.bucket, path, content, -1, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    streamPartSize,
	})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to put object")
		return fmt.Errorf("failed to put object: %w", err)
	}

	log.Debug().Str("path", path).Int64("size", info.Size).Msg("object stored")
	return nil
}

// Append emulates append on S3. Objects at or above the compose minimum are
// extended server-side; smaller ones are rewritten.
func (s *S3Storage) Append(ctx context.Context, path string, content io.Reader) error {
	stat, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return s.Store(ctx, path, content, "application/octet-stream")
		}
		return fmt.Errorf("failed to stat object: %w", err)
	}

	if stat.Size >= minComposePartSize {
		return s.composeAppend(ctx, path, content)
	}

	existing, err := s.Retrieve(ctx, path)
	if err != nil {
		return err
	}
	defer existing.Close()

	head, err := io.ReadAll(existing)
	if err != nil {
		return fmt.Errorf("failed to read existing object: %w", err)
	}

	return s.Store(ctx, path, io.MultiReader(bytes.NewReader(head), content), stat.ContentType)
}

func (s *S3Storage) composeAppend(ctx context.Context, path string, content io.Reader) error {
	tail := fmt.Sprintf("%s.append.%d", path, time.Now().UnixNano())
	if err := s.Store(ctx, tail, content, "application/octet-stream"); err != nil {
		return err
	}
	defer func() {
		if err := s.client.RemoveObject(context.Background(), s.bucket, tail, minio.RemoveObjectOptions{}); err != nil {
			log.Warn().Err(err).Str("path", tail).Msg("failed to remove append part")
		}
	}()

	_, err := s.client.ComposeObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: path},
		minio.CopySrcOptions{Bucket: s.bucket, Object: path},
		minio.CopySrcOptions{Bucket: s.bucket, Object: tail},
	)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to compose object")
		return fmt.Errorf("failed to compose object: %w", err)
	}
	return nil
}

// Retrieve opens the object for reading
func (s *S3Storage) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject is lazy; Stat surfaces a missing key before the caller reads
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

// Delete removes a single object
func (s *S3Storage) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeletePrefix removes every object under prefix
func (s *S3Storage) DeletePrefix(ctx context.Context, prefix string) error {
	if strings.Trim(prefix, "/") == "" {
		return fmt.Errorf("refusing to delete empty prefix")
	}

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    strings.TrimSuffix(prefix, "/") + "/",
		Recursive: true,
	})

	var result *multierror.Error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		result = multierror.Append(result, fmt.Errorf("%s: %w", rerr.ObjectName, rerr.Err))
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("failed to delete objects")
		return fmt.Errorf("failed to delete prefix: %w", err)
	}
	return nil
}

// Move copies src to dst and deletes src. S3 has no conditional rename, so the
// existence check and copy are not atomic; callers serialize competing moves.
func (s *S3Storage) Move(ctx context.Context, src, dst string) error {
	exists, err := s.Exists(ctx, dst)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.bucket, Object: src},
	)
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return fmt.Errorf("failed to copy object: %w", err)
	}

	return s.Delete(ctx, src)
}

// Exists checks for the object with a HEAD request
func (s *S3Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// GetSize returns the object's size
func (s *S3Storage) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}
	return info.Size, nil
}

// List returns object keys under prefix
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if prefix != "" {
		opts.Prefix = strings.TrimSuffix(prefix, "/") + "/"
	}

	var paths []string
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		paths = append(paths, obj.Key)
	}
	return paths, nil
}
