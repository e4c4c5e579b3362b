package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.temporal.io/sdk/client"

	appbootstrap "github.com/wolfman30/leadflow/internal/app/bootstrap"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, dynamodb.ServiceID, s3.ServiceID, sesv2.ServiceID:
					return aws.Endpoint{
						URL:               endpoint,
						PartitionID:       "aws",
						SigningRegion:     cfg.AWSRegion,
						HostnameImmutable: true,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// BuildDeps opens every external client the configuration asks for. The
// returned cleanup closes them in reverse order.
func BuildDeps(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (appbootstrap.Deps, func(), error) {
	var (
		deps    appbootstrap.Deps
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, sqlDB, err := appbootstrap.BuildPostgres(ctx, cfg)
	if err != nil {
		return deps, cleanup, err
	}
	if pool != nil {
		deps.Pool, deps.SQL = pool, sqlDB
		closers = append(closers, pool.Close, func() { _ = sqlDB.Close() })
	}

	if redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		deps.Redis = redisClient
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		cleanup()
		return deps, func() {}, fmt.Errorf("load AWS config: %w", err)
	}
	if !cfg.UseMemoryQueue {
		deps.SQS = sqs.NewFromConfig(awsCfg)
	}
	if cfg.AutomationRunsTable != "" {
		deps.Dynamo = dynamodb.NewFromConfig(awsCfg)
	}
	if cfg.DocumentsBucket != "" {
		deps.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
	}
	if cfg.EmailProvider == "ses" {
		deps.SES = sesv2.NewFromConfig(awsCfg)
	}

	if cfg.UseTemporal() {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		if err != nil {
			cleanup()
			return deps, func() {}, fmt.Errorf("dial temporal: %w", err)
		}
		deps.Temporal = c
		closers = append(closers, c.Close)
	}

	return deps, cleanup, nil
}
