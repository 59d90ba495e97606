package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/skydrive-app/skydrive/internal/logging"
)

// S3Storage talks to an S3-compatible bucket directly, for setups without
// an rclone binary on the machine. It emits the same listing JSON shape as
// the CLI backend so the indexer does not care which backend it reads.
type S3Storage struct {
	client *s3.Client
	bucket string
	logger logging.Logger
}

// S3Options configures the direct S3 backend. Endpoint is optional and
// enables S3-compatible providers (MinIO, R2); empty AccessKey falls back
// to the ambient AWS credential chain.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func NewS3Storage(ctx context.Context, opts S3Options, logger logging.Logger) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{client: client, bucket: opts.Bucket, logger: logger}, nil
}

func (s *S3Storage) Remote() string { return "s3:" + s.bucket }

// ListAll paginates the whole bucket in the background and streams the
// entries through a pipe as one JSON array, matching the CLI backend's
// output so the same scanner consumes both.
func (s *S3Storage) ListAll(ctx context.Context) (io.ReadCloser, error) {
	pr, pw := io.Pipe()

	go func() {
		enc := json.NewEncoder(pw)
		first := true

		if _, err := pw.Write([]byte("[")); err != nil {
			pw.CloseWithError(err)
			return
		}

		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("list bucket %s: %w", s.bucket, err))
				return
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				e := Entry{
					Path:    key,
					Name:    path.Base(key),
					Size:    aws.ToInt64(obj.Size),
					IsDir:   strings.HasSuffix(key, "/"),
					ModTime: aws.ToTime(obj.LastModified),
				}
				if !first {
					if _, err := pw.Write([]byte(",")); err != nil {
						pw.CloseWithError(err)
						return
					}
				}
				first = false
				if err := enc.Encode(e); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
		}

		if _, err := pw.Write([]byte("]")); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return pr, nil
}

func (s *S3Storage) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	prefix := strings.TrimPrefix(dir, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, cp := range page.CommonPrefixes {
			key := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			entries = append(entries, Entry{Path: key, Name: path.Base(key), IsDir: true})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			entries = append(entries, Entry{
				Path:    key,
				Name:    path.Base(key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return entries, nil
}

func (s *S3Storage) Cat(ctx context.Context, p string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimPrefix(p, "/")),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Storage) CopyTo(ctx context.Context, localFile, remotePath string) error {
	data, err := os.ReadFile(localFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", localFile, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimPrefix(remotePath, "/")),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	return nil
}

// Mkdir is a no-op on S3: folders exist implicitly through object keys.
func (s *S3Storage) Mkdir(ctx context.Context, dir string) error {
	return nil
}

func (s *S3Storage) DeleteFile(ctx context.Context, p string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimPrefix(p, "/")),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}
