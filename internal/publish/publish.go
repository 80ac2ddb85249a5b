// Package publish uploads finished archives to S3 under content-addressed keys.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nguyengg/dzip/digest"
)

// Client is the subset of the S3 API used by Publish.
//
// *s3.Client satisfies this interface.
type Client interface {
	manager.UploadAPIClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// Options customises Publish.
type Options struct {
	// Prefix is prepended to the key.
	Prefix string

	// ExpectedBucketOwner is passed to every S3 call if given.
	ExpectedBucketOwner string

	// StorageClass of the uploaded object, default to S3 standard.
	StorageClass types.StorageClass

	// Logger receives progress messages, default to log.Default.
	Logger *log.Logger

	// UploaderOptions customises the manager.Uploader.
	UploaderOptions func(*manager.Uploader)
}

// Result describes the archive after Publish returns.
type Result struct {
	Bucket string
	Key    string

	// Digest is the content digest of the local archive which is also embedded in the key.
	Digest digest.Digest

	// Skipped is true if an object already existed with the same key so nothing was uploaded.
	Skipped bool
}

// Key returns the content-addressed key of an archive with the given digest.
func Key(prefix string, d digest.Digest) string {
	return prefix + d.Hex + ".zip"
}

// Publish uploads the named archive to s3://bucket/{prefix}{hex}.zip where {hex} is the sha256 of the archive.
//
// Because the key is derived from the content, an existing object with the same key is assumed to be identical and
// the upload is skipped.
func Publish(ctx context.Context, client Client, name, bucket string, optFns ...func(*Options)) (r Result, err error) {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	r.Bucket = bucket
	if r.Digest, err = digest.File(name); err != nil {
		return r, fmt.Errorf("compute digest error: %w", err)
	}
	r.Key = Key(opts.Prefix, r.Digest)

	switch ok, err := exists(ctx, client, bucket, r.Key, opts); {
	case err != nil:
		return r, err
	case ok:
		opts.Logger.Printf(`s3://%s/%s already exists`, bucket, r.Key)
		r.Skipped = true
		return r, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return r, fmt.Errorf("open file error: %w", err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(r.Key),
		Body:         f,
		ContentType:  aws.String("application/zip"),
		Metadata:     map[string]string{"checksum": r.Digest.SRI},
		StorageClass: opts.StorageClass,
	}
	if opts.ExpectedBucketOwner != "" {
		input.ExpectedBucketOwner = aws.String(opts.ExpectedBucketOwner)
	}

	uploader := manager.NewUploader(client, logSuccessfulUploadPart(opts.Logger), func(u *manager.Uploader) {
		if opts.UploaderOptions != nil {
			opts.UploaderOptions(u)
		}
	})
	if _, err = uploader.Upload(ctx, input); err != nil {
		return r, fmt.Errorf("upload to s3 error: %w", err)
	}

	opts.Logger.Printf(`uploaded to s3://%s/%s`, bucket, r.Key)
	return r, nil
}

// exists returns true if HeadObject succeeds and false if S3 reports the key missing.
func exists(ctx context.Context, client Client, bucket, key string, opts *Options) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if opts.ExpectedBucketOwner != "" {
		input.ExpectedBucketOwner = aws.String(opts.ExpectedBucketOwner)
	}

	_, err := client.HeadObject(ctx, input)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, context.Canceled) {
		return false, err
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == 404 {
		return false, nil
	}

	return false, fmt.Errorf("head object error: %w", err)
}
