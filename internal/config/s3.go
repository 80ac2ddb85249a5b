package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates an S3 client from the default AWS configuration chain.
//
// If profile is non-empty, it names the shared config profile to use.
func NewS3Client(ctx context.Context, profile string, optFns ...func(*s3.Options)) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, func(opts *config.LoadOptions) error {
		if profile != "" {
			opts.SharedConfigProfile = profile
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg, optFns...), nil
}
