package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// deleteBatchSize is the DeleteObjects per-request limit.
const deleteBatchSize = 1000

const probeKey = "connection-test.txt"

// S3Options configures the AWS session.
type S3Options struct {
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// S3Store implements Store on Amazon S3 and S3-compatible endpoints.
type S3Store struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
}

// NewS3Store opens an AWS session with the default credential chain.
func NewS3Store(opts S3Options) (*S3Store, error) {
	cfg := &aws.Config{Region: aws.String(opts.Region)}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.ForcePathStyle {
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := s3.New(sess)
	return NewS3StoreWithClient(client, s3manager.NewUploaderWithClient(client)), nil
}

// NewS3StoreWithClient wires an existing client and uploader.
func NewS3StoreWithClient(client s3iface.S3API, uploader s3manageriface.UploaderAPI) *S3Store {
	return &S3Store{client: client, uploader: uploader}
}

func (s *S3Store) List(ctx context.Context, prefix URI) ([]Object, error) {
	var out []Object
	err := s.client.ListObjectsPagesWithContext(ctx,
		&s3.ListObjectsInput{
			Bucket: aws.String(prefix.Bucket),
			Prefix: aws.String(prefix.Key),
		},
		func(page *s3.ListObjectsOutput, lastPage bool) bool {
			for _, obj := range page.Contents {
				out = append(out, Object{
					URI:  URI{Scheme: SchemeS3, Bucket: prefix.Bucket, Key: aws.StringValue(obj.Key)},
					Size: aws.Int64Value(obj.Size),
				})
			}
			return !lastPage
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}
	return out, nil
}

func (s *S3Store) Stat(ctx context.Context, u URI) (Object, error) {
	if u.Key == "" || strings.HasSuffix(u.Key, "/") {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, u)
	}
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(u.Key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return Object{}, fmt.Errorf("failed to head %s: %w", u, err)
	}
	return Object{URI: u, Size: aws.Int64Value(head.ContentLength)}, nil
}

// Open streams the object body instead of buffering it.
func (s *S3Store) Open(ctx context.Context, u URI) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(u.Key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return nil, 0, fmt.Errorf("failed to start download stream for %s: %w", u, err)
	}
	return obj.Body, aws.Int64Value(obj.ContentLength), nil
}

// Put uploads body and verifies the object is visible afterwards.
func (s *S3Store) Put(ctx context.Context, u URI, body io.ReadSeeker, meta map[string]string) error {
	var metadata map[string]*string
	if len(meta) > 0 {
		metadata = make(map[string]*string, len(meta))
		for k, v := range meta {
			metadata[k] = aws.String(v)
		}
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:   aws.String(u.Bucket),
		Key:      aws.String(u.Key),
		Body:     body,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to %s: %w", u, err)
	}

	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(u.Key),
	})
	if err != nil {
		return fmt.Errorf("upload verification failed for %s: %w", u, err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, u URI) (bool, error) {
	if _, err := s.Stat(ctx, u); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	out, err := s.client.ListObjectsWithContext(ctx, &s3.ListObjectsInput{
		Bucket:  aws.String(u.Bucket),
		Prefix:  aws.String(u.Dir().Key),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", u, err)
	}
	return len(out.Contents) > 0, nil
}

func (s *S3Store) DeleteAll(ctx context.Context, u URI) (int, error) {
	objs, err := s.List(ctx, u.Dir())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(objs); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(objs))
		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, o := range objs[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(o.URI.Key)})
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(u.Bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete objects under %s: %w", u, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted, fmt.Errorf("failed to delete %d objects under %s, first %s: %s",
				len(out.Errors), u, aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
		deleted += len(ids)
	}
	return deleted, nil
}

// Probe uploads and removes a small object at the bucket root.
func (s *S3Store) Probe(ctx context.Context, u URI) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(probeKey),
		Body:   strings.NewReader("S3 connection test successful"),
	})
	if err != nil {
		return fmt.Errorf("S3 upload test failed: %w", err)
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(probeKey),
	})
	if err != nil {
		return fmt.Errorf("S3 probe cleanup failed: %w", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
