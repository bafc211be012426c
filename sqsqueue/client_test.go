package sqsqueue

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient(t *testing.T) {
	cfg := &Config{
		Key:      "api-key",
		Secret:   "api-secret",
		Region:   "eu-west-1",
		Endpoint: "http://127.0.0.1:9324",
	}
	require.NoError(t, cfg.InitDefault())

	client, err := NewClient(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	opts := client.Options()
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.Equal(t, "http://127.0.0.1:9324", aws.ToString(opts.BaseEndpoint))
	assert.Equal(t, 3, opts.Retryer.MaxAttempts())

	creds, err := opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api-key", creds.AccessKeyID)
	assert.Equal(t, "api-secret", creds.SecretAccessKey)
}
