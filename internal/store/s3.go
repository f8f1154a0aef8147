package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"devlog-cache/internal/core"
	"devlog-cache/internal/digest"
	"devlog-cache/internal/policy"
)

// hashMetadataKey is the user-metadata key carrying the content SHA-256, so
// the strong validator survives multipart uploads (whose S3 ETags are not
// content digests).
const hashMetadataKey = "content-sha256"

// S3Options configures an S3Store. Endpoint is set for S3-compatible stores
// such as Cloudflare R2; empty means the default AWS endpoint resolution.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store stores artifacts in an S3-compatible bucket. Objects carry their
// content digest in user metadata and a Cache-Control header chosen from the
// policy table at upload time, so the bucket can also be fronted directly.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store builds an S3Store from options. Credentials fall back to the
// default AWS chain when not set explicitly.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// R2 and most S3-compatible stores want path-style addressing.
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
	}, nil
}

// Put uploads an object. The content digest must be known before the upload
// starts (it travels in object metadata), so when the caller did not supply
// one the body is hashed first: in place for seekable sources, via a spool
// file otherwise. Large bodies go through the multipart upload manager.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, contentHash string) (core.ObjectMeta, error) {
	if err := validateKey(key); err != nil {
		return core.ObjectMeta{}, err
	}

	if contentHash == "" {
		var cleanup func()
		var err error
		contentHash, body, cleanup, err = hashSource(body)
		if err != nil {
			return core.ObjectMeta{}, fmt.Errorf("hashing body for %s: %w", key, err)
		}
		defer cleanup()
	}

	cc := policy.For(contentType).CacheControl()
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(s.fullKey(key)),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cc),
		Metadata:     map[string]string{hashMetadataKey: contentHash},
	})
	if err != nil {
		return core.ObjectMeta{}, classifyS3Error("s3.put", key, err)
	}

	// Confirm the write and pick up the store-assigned timestamp.
	meta, err := s.Head(ctx, key)
	if err != nil {
		return core.ObjectMeta{}, fmt.Errorf("confirming upload of %s: %w", key, err)
	}
	return meta, nil
}

// Head fetches object metadata without the body.
func (s *S3Store) Head(ctx context.Context, key string) (core.ObjectMeta, error) {
	if err := validateKey(key); err != nil {
		return core.ObjectMeta{}, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return core.ObjectMeta{}, classifyS3Error("s3.head", key, err)
	}
	return s.metaFrom(key, out.ContentType, out.ContentLength, out.ETag, out.Metadata, out.LastModified), nil
}

// Get streams an object. The caller closes the returned reader.
func (s *S3Store) Get(ctx context.Context, key string) (core.ObjectMeta, io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return core.ObjectMeta{}, nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return core.ObjectMeta{}, nil, classifyS3Error("s3.get", key, err)
	}
	return s.metaFrom(key, out.ContentType, out.ContentLength, out.ETag, out.Metadata, out.LastModified), out.Body, nil
}

// List pages through keys under prefix using native ListObjectsV2
// continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix, pageToken string) ([]string, string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.fullKey(prefix)),
		MaxKeys: aws.Int32(listPageSize),
	}
	if pageToken != "" {
		in.ContinuationToken = aws.String(pageToken)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, "", classifyS3Error("s3.list", prefix, err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix()))
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return keys, next, nil
}

// ValidateSetup verifies bucket access with a HeadBucket call.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return core.NewError(core.KindFatal, "s3.validate", fmt.Errorf("bucket %s not accessible: %w", s.bucket, err))
	}
	return nil
}

func (s *S3Store) keyPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return strings.TrimSuffix(s.prefix, "/") + "/"
}

func (s *S3Store) fullKey(key string) string {
	return s.keyPrefix() + key
}

func (s *S3Store) metaFrom(key string, contentType *string, size *int64, etag *string, metadata map[string]string, lastModified *time.Time) core.ObjectMeta {
	m := core.ObjectMeta{
		Key:         key,
		ContentType: aws.ToString(contentType),
		Size:        aws.ToInt64(size),
	}
	if lastModified != nil {
		m.UploadedAt = lastModified.UTC()
	}

	// Prefer the recorded content digest; objects uploaded by older tooling
	// fall back to the S3 ETag (an MD5 for single-part uploads).
	if h, ok := metadata[hashMetadataKey]; ok && h != "" {
		m.ETag = h
	} else {
		m.ETag = strings.Trim(aws.ToString(etag), `"`)
	}
	return m
}

// hashSource produces the digest of body and a reader positioned at its
// start. Seekable sources are rewound in place; everything else is spooled
// to a temp file so video-sized payloads never sit in memory.
func hashSource(body io.Reader) (string, io.Reader, func(), error) {
	nop := func() {}

	if seeker, ok := body.(io.ReadSeeker); ok {
		sum, _, err := digest.FromReader(seeker)
		if err != nil {
			return "", nil, nop, err
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return "", nil, nop, fmt.Errorf("rewinding body: %w", err)
		}
		return sum, seeker, nop, nil
	}

	spool, err := os.CreateTemp("", "devlog-cache-spool-*")
	if err != nil {
		return "", nil, nop, fmt.Errorf("creating spool file: %w", err)
	}
	cleanup := func() {
		spool.Close()
		os.Remove(spool.Name())
	}

	sum, _, err := digest.FromReader(io.TeeReader(body, spool))
	if err != nil {
		cleanup()
		return "", nil, nop, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return "", nil, nop, fmt.Errorf("rewinding spool file: %w", err)
	}
	return sum, spool, cleanup, nil
}

// classifyS3Error maps SDK errors onto the core taxonomy: missing keys are
// NotFound, auth and signature problems are Fatal, everything else
// (network, throttling, 5xx) is Transient and retryable.
func classifyS3Error(op, key string, err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return core.NewError(core.KindNotFound, op, fmt.Errorf("object not found: %s", key))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return core.NewError(core.KindNotFound, op, fmt.Errorf("object not found: %s", key))
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
			return core.NewError(core.KindFatal, op, fmt.Errorf("%s: %w", key, err))
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 404:
			return core.NewError(core.KindNotFound, op, fmt.Errorf("object not found: %s", key))
		case 401, 403:
			return core.NewError(core.KindFatal, op, fmt.Errorf("%s: %w", key, err))
		}
	}

	return core.NewError(core.KindTransient, op, fmt.Errorf("%s: %w", key, err))
}

// Compile-time check that S3Store implements core.Store.
var _ core.Store = (*S3Store)(nil)
