package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// s3Store backs s3://bucket/root URIs. Region and credentials are sourced
// from the environment (AWS_REGION, AWS_ACCESS_KEY_ID, ...).
type s3Store struct {
	client *s3.Client
	bucket string
	root   string
}

func newS3Store(ctx context.Context, rest string) (*s3Store, error) {
	bucket, root, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, ieerr.Transport(errors.New("missing bucket"), "s3:// URI must include a bucket")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, ieerr.Transport(err, "load AWS config")
	}
	return &s3Store{client: s3.NewFromConfig(cfg), bucket: bucket, root: root}, nil
}

func (s *s3Store) key(path string) string { return joinPrefix(s.root, path) }

func (s *s3Store) Read(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var nk *types.NoSuchKey
		if errors.As(err, &nk) {
			return nil, ieerr.NotFound("object not found: %s", path)
		}
		return nil, ieerr.Transport(err, "get %s", path)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ieerr.Transport(err, "read body %s", path)
	}
	return data, nil
}

func (s *s3Store) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return ieerr.Transport(err, "put %s", path)
	}
	return nil
}

func (s *s3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return ieerr.Transport(err, "delete %s", path)
	}
	return nil
}

func (s *s3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, ieerr.Transport(err, "head %s", path)
	}
	return true, nil
}

// CreateDir is a no-op on S3: directories are implicit key prefixes.
func (s *s3Store) CreateDir(_ context.Context, _ string) error { return nil }

func (s *s3Store) List(ctx context.Context, prefix string) ([]ListEntry, error) {
	key := joinPrefix(s.root, prefix)
	if key != "" {
		key += "/"
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(key),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, ieerr.Transport(err, "list %s", prefix)
	}
	entries := make([]ListEntry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(obj.Key), key)
		if name == "" {
			continue
		}
		entries = append(entries, ListEntry{Name: name, Mode: ModeFile})
	}
	for _, p := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), key), "/")
		entries = append(entries, ListEntry{Name: name, Mode: ModeDir})
	}
	return entries, nil
}

func (s *s3Store) RemoveAll(ctx context.Context, prefix string) error {
	entries, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		sub := prefix + "/" + e.Name
		if e.Mode == ModeDir {
			if err := s.RemoveAll(ctx, sub); err != nil {
				return err
			}
			continue
		}
		if err := s.Delete(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
