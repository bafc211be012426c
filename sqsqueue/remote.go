package sqsqueue

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/roadrunner-server/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName string = "sqs"

// subresources of a queue
var subresources = []string{"Message"} //nolint:gochecknoglobals

// Operations are the queue operations forwarded as is to SQS. The queue URL is
// filled in, everything else is passed through, errors are not retried.
type Operations interface {
	AddPermission(ctx context.Context, in *sqs.AddPermissionInput, optFns ...func(*sqs.Options)) (*sqs.AddPermissionOutput, error)
	ChangeMessageVisibilityBatch(ctx context.Context, in *sqs.ChangeMessageVisibilityBatchInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error)
	Delete(ctx context.Context, optFns ...func(*sqs.Options)) error
	DeleteMessages(ctx context.Context, in *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	GetAvailableSubresources() []string
	Load(ctx context.Context, optFns ...func(*sqs.Options)) error
	Reload(ctx context.Context, optFns ...func(*sqs.Options)) error
	Purge(ctx context.Context, optFns ...func(*sqs.Options)) error
	ReceiveMessages(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) ([]*Message, error)
	RemovePermission(ctx context.Context, in *sqs.RemovePermissionInput, optFns ...func(*sqs.Options)) (*sqs.RemovePermissionOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessages(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	SetAttributes(ctx context.Context, attributes map[string]string, optFns ...func(*sqs.Options)) error
}

var _ Operations = (*RemoteQueue)(nil)

// RemoteQueue is a resolved SQS queue
type RemoteQueue struct {
	client API
	url    string
	name   string

	mu         sync.RWMutex
	attributes map[string]string
}

func newRemoteQueue(client API, url string) *RemoteQueue {
	return &RemoteQueue{
		client: client,
		url:    url,
		name:   nameFromURL(url),
	}
}

// URL of the queue
func (r *RemoteQueue) URL() string {
	return r.url
}

// Name of the queue, the last element of its URL
func (r *RemoteQueue) Name() string {
	return r.name
}

func (r *RemoteQueue) AddPermission(ctx context.Context, in *sqs.AddPermissionInput, optFns ...func(*sqs.Options)) (*sqs.AddPermissionOutput, error) {
	const op = errors.Op("sqs_add_permission")

	params := withURL(in, r.url, func(p *sqs.AddPermissionInput, u *string) { p.QueueUrl = u })
	out, err := r.client.AddPermission(ctx, params, optFns...)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return out, nil
}

func (r *RemoteQueue) ChangeMessageVisibilityBatch(ctx context.Context, in *sqs.ChangeMessageVisibilityBatchInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error) {
	const op = errors.Op("sqs_change_message_visibility_batch")

	params := withURL(in, r.url, func(p *sqs.ChangeMessageVisibilityBatchInput, u *string) { p.QueueUrl = u })
	out, err := r.client.ChangeMessageVisibilityBatch(ctx, params, optFns...)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return out, nil
}

// Delete deletes the queue itself
func (r *RemoteQueue) Delete(ctx context.Context, optFns ...func(*sqs.Options)) error {
	const op = errors.Op("sqs_delete_queue")

	_, err := r.client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(r.url)}, optFns...)
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

// DeleteMessages deletes a batch of messages
func (r *RemoteQueue) DeleteMessages(ctx context.Context, in *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	const op = errors.Op("sqs_delete_messages")

	params := withURL(in, r.url, func(p *sqs.DeleteMessageBatchInput, u *string) { p.QueueUrl = u })
	out, err := r.client.DeleteMessageBatch(ctx, params, optFns...)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return out, nil
}

func (r *RemoteQueue) GetAvailableSubresources() []string {
	ret := make([]string, len(subresources))
	copy(ret, subresources)
	return ret
}

// Load fetches all the queue attributes and caches them
func (r *RemoteQueue) Load(ctx context.Context, optFns ...func(*sqs.Options)) error {
	const op = errors.Op("sqs_load_queue")

	out, err := r.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(r.url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameAll},
	}, optFns...)
	if err != nil {
		return errors.E(op, err)
	}

	attrs := out.Attributes
	if attrs == nil {
		attrs = make(map[string]string)
	}

	r.mu.Lock()
	r.attributes = attrs
	r.mu.Unlock()

	return nil
}

func (r *RemoteQueue) Reload(ctx context.Context, optFns ...func(*sqs.Options)) error {
	return r.Load(ctx, optFns...)
}

// Purge deletes all the messages of the queue
func (r *RemoteQueue) Purge(ctx context.Context, optFns ...func(*sqs.Options)) error {
	const op = errors.Op("sqs_purge_queue")

	_, err := r.client.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: aws.String(r.url)}, optFns...)
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

// ReceiveMessages performs one ReceiveMessage call
func (r *RemoteQueue) ReceiveMessages(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) ([]*Message, error) {
	const op = errors.Op("sqs_receive_messages")

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer(tracerName).Start(ctx, "sqs_receive_messages", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("queue", r.name))

	params := withURL(in, r.url, func(p *sqs.ReceiveMessageInput, u *string) { p.QueueUrl = u })
	out, err := r.client.ReceiveMessage(ctx, params, optFns...)
	if err != nil {
		span.RecordError(err)
		return nil, errors.E(op, err)
	}

	span.SetAttributes(attribute.Int("messages", len(out.Messages)))

	msgs := make([]*Message, 0, len(out.Messages))
	for i := 0; i < len(out.Messages); i++ {
		msgs = append(msgs, newMessage(r, &out.Messages[i]))
	}

	return msgs, nil
}

func (r *RemoteQueue) RemovePermission(ctx context.Context, in *sqs.RemovePermissionInput, optFns ...func(*sqs.Options)) (*sqs.RemovePermissionOutput, error) {
	const op = errors.Op("sqs_remove_permission")

	params := withURL(in, r.url, func(p *sqs.RemovePermissionInput, u *string) { p.QueueUrl = u })
	out, err := r.client.RemovePermission(ctx, params, optFns...)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return out, nil
}

func (r *RemoteQueue) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	const op = errors.Op("sqs_send_message")

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer(tracerName).Start(ctx, "sqs_send_message", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("queue", r.name))

	params := withURL(in, r.url, func(p *sqs.SendMessageInput, u *string) { p.QueueUrl = u })
	out, err := r.client.SendMessage(ctx, params, optFns...)
	if err != nil {
		span.RecordError(err)
		return nil, errors.E(op, err)
	}

	return out, nil
}

// SendMessages sends a batch of messages
func (r *RemoteQueue) SendMessages(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	const op = errors.Op("sqs_send_messages")

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer(tracerName).Start(ctx, "sqs_send_messages", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("queue", r.name))

	params := withURL(in, r.url, func(p *sqs.SendMessageBatchInput, u *string) { p.QueueUrl = u })
	out, err := r.client.SendMessageBatch(ctx, params, optFns...)
	if err != nil {
		span.RecordError(err)
		return nil, errors.E(op, err)
	}

	return out, nil
}

// SetAttributes updates the queue attributes, names use the SQS naming
func (r *RemoteQueue) SetAttributes(ctx context.Context, attributes map[string]string, optFns ...func(*sqs.Options)) error {
	const op = errors.Op("sqs_set_attributes")

	_, err := r.client.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl:   aws.String(r.url),
		Attributes: attributes,
	}, optFns...)
	if err != nil {
		return errors.E(op, err)
	}

	// stale now, the next read loads them again
	r.mu.Lock()
	r.attributes = nil
	r.mu.Unlock()

	return nil
}

// Attributes returns the queue attributes, loading them on first use
func (r *RemoteQueue) Attributes(ctx context.Context) (map[string]string, error) {
	r.mu.RLock()
	attrs := r.attributes
	r.mu.RUnlock()

	if attrs == nil {
		if err := r.Load(ctx); err != nil {
			return nil, err
		}

		r.mu.RLock()
		attrs = r.attributes
		r.mu.RUnlock()
	}

	ret := make(map[string]string, len(attrs))
	for k, v := range attrs {
		ret[k] = v
	}

	return ret, nil
}

// RedrivePolicy returns the dead-letter configuration of the queue, nil if there is none
func (r *RemoteQueue) RedrivePolicy(ctx context.Context) (*Redrive, error) {
	const op = errors.Op("sqs_redrive_policy")

	attrs, err := r.Attributes(ctx)
	if err != nil {
		return nil, err
	}

	data, ok := attrs[RedrivePolicyAWS]
	if !ok || data == "" {
		return nil, nil
	}

	rp, err := parseRedrive(data)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return rp, nil
}

// DeadLetterSourceQueues returns the queues configured to move their failed
// messages to this queue
func (r *RemoteQueue) DeadLetterSourceQueues(ctx context.Context) ([]*RemoteQueue, error) {
	const op = errors.Op("sqs_dead_letter_source_queues")

	var ret []*RemoteQueue
	p := sqs.NewListDeadLetterSourceQueuesPaginator(r.client, &sqs.ListDeadLetterSourceQueuesInput{QueueUrl: aws.String(r.url)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.E(op, err)
		}

		for _, u := range page.QueueUrls {
			ret = append(ret, newRemoteQueue(r.client, u))
		}
	}

	return ret, nil
}

// withURL copies the input, so the caller's value is left untouched, and sets the queue URL
func withURL[T any](in *T, url string, set func(*T, *string)) *T {
	var params T
	if in != nil {
		params = *in
	}

	set(&params, aws.String(url))
	return &params
}
