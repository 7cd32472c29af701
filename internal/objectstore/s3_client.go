package objectstore

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cockroachdb/errors"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/errs"
)

// RoleSessionDuration is how long assumed-role credentials stay valid (the STS minimum).
const RoleSessionDuration = 900 // seconds

// NewS3Client builds an S3 client for the configured endpoint using static
// HMAC keys. When cfg.RoleARN is set the keys are only used to assume that
// role and the resulting temporary credentials sign every request.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errs.Configuration("s3Client", errors.New("access key and secret key are required"))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, errs.Configuration("s3Client", errors.Wrap(err, "failed to load AWS config"))
	}

	if cfg.RoleARN != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(&assumeRoleProvider{
			client:   sts.NewFromConfig(awsCfg),
			roleArn:  cfg.RoleARN,
			duration: RoleSessionDuration,
		})
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible endpoints (GCS interoperability, MinIO, R2, ...)
			// rarely support virtual-hosted buckets.
			o.UsePathStyle = true
		}
		// Default CRC trailers are rejected by GCS interoperability.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// STSAPI is the subset of the STS client used for role assumption.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// assumeRoleProvider exchanges the base credentials for temporary
// credentials of roleArn.
type assumeRoleProvider struct {
	client   STSAPI
	roleArn  string
	duration int32
}

// Retrieve implements aws.CredentialsProvider.
func (p *assumeRoleProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	if p.roleArn == "" {
		return aws.Credentials{}, errors.New("role ARN cannot be empty")
	}

	// Session names show up in CloudTrail.
	sessionName := "streamupload-" + strconv.FormatInt(time.Now().Unix(), 10)

	out, err := p.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(p.roleArn),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(p.duration),
	})
	if err != nil {
		return aws.Credentials{}, errors.Wrapf(err, "failed to assume role %s", p.roleArn)
	}
	if out.Credentials == nil {
		return aws.Credentials{}, errors.Newf("assume role %s returned no credentials", p.roleArn)
	}

	return aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Source:          "AssumeRoleProvider",
		CanExpire:       true,
		Expires:         aws.ToTime(out.Credentials.Expiration),
	}, nil
}
