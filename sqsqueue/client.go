package sqsqueue

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

const (
	awsMetaDataURL       string = "http://169.254.169.254/latest/dynamic/instance-identity/"
	awsMetaDataIMDSv2URL string = "http://169.254.169.254/latest/api/token"
	awsTokenHeader       string = "X-aws-ec2-metadata-token-ttl-seconds" //nolint:gosec
	metadataTimeout             = time.Second * 2
)

// NewClient builds the SQS client from the global configuration.
// Static credentials are used when both key and secret are set, otherwise the
// default AWS credentials chain (env, shared files, instance role) applies.
func NewClient(ctx context.Context, conf *Config, log *zap.Logger) (*sqs.Client, error) {
	const op = errors.Op("sqs_new_client")

	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	opts := make([]func(*config.LoadOptions) error, 0, 2)
	if conf.Region != "" {
		opts = append(opts, config.WithRegion(conf.Region))
	}

	switch {
	case conf.Key != "" && conf.Secret != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.Key, conf.Secret, conf.SessionToken)))
	case insideAWS(ctx):
		log.Debug("running inside AWS, using the instance credentials")
	default:
		log.Warn("no static credentials configured and not running inside AWS, relying on the environment credentials")
	}

	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.E(op, err)
	}

	maxAttempts := conf.MaxAttempts
	endpoint := conf.Endpoint

	return sqs.NewFromConfig(awsConf, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}

		o.Retryer = retry.NewStandard(func(opts *retry.StandardOptions) {
			opts.MaxAttempts = maxAttempts
			opts.MaxBackoff = time.Second * 2
		})
	}), nil
}

// insideAWS probes the instance metadata service, IMDSv1 first then IMDSv2
// https://docs.aws.amazon.com/AWSEC2/latest/UserGuide/configuring-instance-metadata-service.html
func insideAWS(ctx context.Context) bool {
	client := &http.Client{
		Timeout: metadataTimeout,
	}

	probe := func(method, url string, header map[string]string) bool {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return false
		}

		for k, v := range header {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return false
		}

		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}

	return probe(http.MethodGet, awsMetaDataURL, nil) ||
		probe(http.MethodPut, awsMetaDataIMDSv2URL, map[string]string{awsTokenHeader: "10"})
}
