package sqsqueue

import (
	"context"
	stderr "errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// NonExistentQueue AWS error code
const NonExistentQueue string = "AWS.SimpleQueueService.NonExistentQueue"

// Service creates and resolves queues
type Service struct {
	client API
	log    *zap.Logger
}

func NewService(client API, log *zap.Logger) *Service {
	return &Service{
		client: client,
		log:    log,
	}
}

// CreateQueue creates the queue. Attribute names are converted from snake_case
// to the SQS names, nil attributes are skipped. When the queue already exists
// with the same attributes SQS returns its URL.
func (s *Service) CreateQueue(ctx context.Context, name string, tags map[string]string, attrs map[string]any) (*RemoteQueue, error) {
	const op = errors.Op("sqs_create_queue")

	if tags == nil {
		tags = make(map[string]string)
	}

	attributes := toAwsAttributes(attrs)
	out, err := s.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attributes,
		Tags:       tags,
	})
	if err != nil {
		return nil, errors.E(op, err)
	}

	s.log.Debug("queue created", zap.String("queue", name), zap.Stringp("url", out.QueueUrl), zap.Any("attributes", attributes))
	return newRemoteQueue(s.client, aws.ToString(out.QueueUrl)), nil
}

// GetQueue resolves an existing queue, owned by accountID when it is not empty
func (s *Service) GetQueue(ctx context.Context, name, accountID string) (*RemoteQueue, error) {
	const op = errors.Op("sqs_get_queue")

	in := &sqs.GetQueueUrlInput{QueueName: aws.String(name)}
	if accountID != "" {
		in.QueueOwnerAWSAccountId = aws.String(accountID)
	}

	out, err := s.client.GetQueueUrl(ctx, in)
	if err != nil {
		return nil, errors.E(op, err)
	}

	s.log.Debug("queue resolved", zap.String("queue", name), zap.Stringp("url", out.QueueUrl))
	return newRemoteQueue(s.client, aws.ToString(out.QueueUrl)), nil
}

// Queues lists the queues visible to the client
func (s *Service) Queues(ctx context.Context) ([]*RemoteQueue, error) {
	const op = errors.Op("sqs_list_queues")

	var ret []*RemoteQueue
	p := sqs.NewListQueuesPaginator(s.client, &sqs.ListQueuesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.E(op, err)
		}

		for _, u := range page.QueueUrls {
			ret = append(ret, newRemoteQueue(s.client, u))
		}
	}

	return ret, nil
}

// IsNotFound reports whether err is caused by a queue that does not exist
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var qErr *types.QueueDoesNotExist
	if stderr.As(err, &qErr) {
		return true
	}

	var apiErr smithy.APIError
	if stderr.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case NonExistentQueue, "QueueDoesNotExist":
			return true
		}
	}

	return false
}
