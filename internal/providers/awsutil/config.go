// Package awsutil loads AWS SDK configuration for the SES and SNS transports.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// LoadConfig builds an aws.Config from transport settings. Auth keys:
// "region" (required), "accessKeyId", "secretAccessKey" and "sessionToken".
// Without static keys the default credential chain applies. The SDK retryer
// is limited to one attempt because dispatch applies its own retry policy.
func LoadConfig(ctx context.Context, settings models.Settings) (aws.Config, error) {
	region := settings.AuthValue("region")
	if region == "" {
		return aws.Config{}, common.NewConfiguration("aws transport: region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	key, secret := settings.AuthValue("accessKeyId"), settings.AuthValue("secretAccessKey")
	if key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, settings.AuthValue("sessionToken")),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, common.NewConfiguration("aws transport: load config: %v", err)
	}
	return cfg, nil
}
