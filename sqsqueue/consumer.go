package sqsqueue

import (
	"context"
	stderr "errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/roadrunner-server/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// All - get all attribute names
	All string = "All"
	// SQS never returns more than 10 messages per call
	maxMessages    int32 = 10
	releaseTimeout       = time.Second * 10
)

// Handler handles one message. The message is left in the queue unless the
// handler deletes it, so a message is redelivered after its visibility
// timeout when Delete is not called.
type Handler func(ctx context.Context, msg *Message) error

// ReceiveOption customizes the ReceiveMessage calls of the consumption loop
type ReceiveOption func(*sqs.ReceiveMessageInput)

// WithAttributeNames requests the system attributes (All, SentTimestamp...)
func WithAttributeNames(names ...string) ReceiveOption {
	return func(in *sqs.ReceiveMessageInput) {
		in.MessageSystemAttributeNames = make([]types.MessageSystemAttributeName, 0, len(names))
		for _, n := range names {
			in.MessageSystemAttributeNames = append(in.MessageSystemAttributeNames, types.MessageSystemAttributeName(n))
		}
	}
}

// WithMessageAttributeNames requests the user attributes, All for every attribute
func WithMessageAttributeNames(names ...string) ReceiveOption {
	return func(in *sqs.ReceiveMessageInput) {
		in.MessageAttributeNames = names
	}
}

// WithMaxMessages sets the maximum number of messages per poll, in the [1, 10] range
func WithMaxMessages(n int32) ReceiveOption {
	return func(in *sqs.ReceiveMessageInput) {
		switch {
		case n < 1:
			n = 1
		case n > maxMessages:
			n = maxMessages
		}
		in.MaxNumberOfMessages = n
	}
}

// WithWaitTime overrides the long polling duration configured on the queue
func WithWaitTime(seconds int32) ReceiveOption {
	return func(in *sqs.ReceiveMessageInput) {
		in.WaitTimeSeconds = seconds
	}
}

// WithVisibilityTimeout overrides the visibility timeout of the received messages
func WithVisibilityTimeout(seconds int32) ReceiveOption {
	return func(in *sqs.ReceiveMessageInput) {
		in.VisibilityTimeout = seconds
	}
}

// StartConsuming polls the queue until ctx is canceled and hands every message
// to one of Pool() concurrent workers. Polling goes on while the workers run;
// dispatching a message blocks while all of them are busy.
//
// Handler errors and panics are logged and the message is left in the queue.
// With the fail_fast error policy the first one stops the consumption and is
// returned. Receive errors stop the consumption and are returned as well.
// On return, all the dispatched messages have been handled. nil is returned
// when ctx is canceled.
//
// Handlers run with a context that is not canceled when the consumption
// stops, so an in-flight message can still be deleted. Stopping returns the
// stop signal to the handlers that watch it.
func (q *Queue) StartConsuming(ctx context.Context, h Handler, opts ...ReceiveOption) error {
	const op = errors.Op("sqs_start_consuming")

	in := &sqs.ReceiveMessageInput{
		MaxNumberOfMessages: maxMessages,
	}
	for _, opt := range opts {
		opt(in)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hctx := context.WithValue(context.WithoutCancel(ctx), stopKey{}, ctx.Done())

	var (
		wg      sync.WaitGroup
		once    sync.Once
		failErr error
	)

	jobs := make(chan *Message)
	pool := q.cfg.Pool

	for i := 0; i < pool; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				err := q.handle(hctx, h, msg)
				if err == nil {
					q.metrics.handledInc(q.name)
					continue
				}

				q.metrics.failedInc(q.name)
				q.log.Error("message handling failed, the message is left in the queue",
					zap.String("queue", q.name),
					zap.String("ID", msg.ID),
					zap.Int("receive_count", msg.ReceiveCount()),
					zap.Error(err),
				)

				if q.cfg.FailFast() {
					once.Do(func() {
						failErr = err
						cancel()
					})
				}
			}
		}()
	}

	q.log.Debug("consumer started", zap.String("queue", q.name), zap.Int("pool", pool))

	var recvErr error
poll:
	for ctx.Err() == nil {
		msgs, err := q.ReceiveMessages(ctx, in)
		if err != nil {
			// canceled during the long poll
			if ctx.Err() != nil {
				break
			}

			q.logReceiveError(err)
			recvErr = err
			break
		}

		q.metrics.receivedAdd(q.name, len(msgs))

		for i := 0; i < len(msgs); i++ {
			q.log.Debug("receive message", zap.String("queue", q.name), zap.String("ID", msgs[i].ID))

			if ctx.Err() != nil {
				q.release(msgs[i:])
				break poll
			}

			select {
			case jobs <- msgs[i]:
			case <-ctx.Done():
				q.release(msgs[i:])
				break poll
			}
		}
	}

	close(jobs)
	wg.Wait()

	q.log.Debug("consumer stopped", zap.String("queue", q.name))

	switch {
	case failErr != nil:
		return errors.E(op, failErr)
	case recvErr != nil:
		return errors.E(op, recvErr)
	default:
		return nil
	}
}

type stopKey struct{}

// Stopping returns a channel closed when the consumption running the handler
// is stopping. Outside of a handler it is ctx.Done().
func Stopping(ctx context.Context) <-chan struct{} {
	if stop, ok := ctx.Value(stopKey{}).(<-chan struct{}); ok {
		return stop
	}

	return ctx.Done()
}

func (q *Queue) handle(ctx context.Context, h Handler, msg *Message) error {
	ctxspan, span := q.tracer.Tracer(tracerName).Start(q.prop.Extract(ctx, msg.carrier()), "sqs_consume", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("queue", q.name),
		attribute.String("message_id", msg.ID),
		attribute.Int("receive_count", msg.ReceiveCount()),
	)

	q.metrics.inFlightAdd(q.name, 1)
	defer q.metrics.inFlightAdd(q.name, -1)

	err := callHandler(ctxspan, h, msg)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

func callHandler(ctx context.Context, h Handler, msg *Message) (err error) {
	const op = errors.Op("sqs_message_handler")

	defer func() {
		if r := recover(); r != nil {
			err = errors.E(op, errors.Errorf("handler panic: %v", r))
		}
	}()

	return h(ctx, msg)
}

// release makes the messages that were received but not dispatched visible
// again, instead of waiting for their visibility timeout
func (q *Queue) release(msgs []*Message) {
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	entries := make([]types.ChangeMessageVisibilityBatchRequestEntry, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		entries = append(entries, types.ChangeMessageVisibilityBatchRequestEntry{
			Id:                aws.String(strconv.Itoa(i)),
			ReceiptHandle:     aws.String(msgs[i].ReceiptHandle),
			VisibilityTimeout: 0,
		})
	}

	out, err := q.ChangeMessageVisibilityBatch(ctx, &sqs.ChangeMessageVisibilityBatchInput{Entries: entries})
	if err != nil {
		q.log.Warn("failed to release the undispatched messages", zap.String("queue", q.name), zap.Int("count", len(msgs)), zap.Error(err))
		return
	}

	if len(out.Failed) > 0 {
		q.log.Warn("some undispatched messages were not released", zap.String("queue", q.name), zap.Int("failed", len(out.Failed)))
	}
}

func (q *Queue) logReceiveError(err error) {
	var apiErr smithy.APIError
	if stderr.As(err, &apiErr) {
		q.log.Error("receive message", zap.String("queue", q.name), zap.String("error code", apiErr.ErrorCode()), zap.String("message", apiErr.ErrorMessage()), zap.String("error fault", apiErr.ErrorFault().String()))
		return
	}

	q.log.Error("receive message", zap.String("queue", q.name), zap.Error(err))
}
