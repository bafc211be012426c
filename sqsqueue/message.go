package sqsqueue

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/roadrunner-server/errors"
	"go.opentelemetry.io/otel/propagation"
)

const (
	StringType              string = "String"
	NumberType              string = "Number"
	BinaryType              string = "Binary"
	ApproximateReceiveCount string = "ApproximateReceiveCount"
	MessageGroupID          string = "MessageGroupId"
)

// Message is a message received from a queue. It stays in the queue until
// Delete is called, and is delivered again once its visibility timeout expires.
type Message struct {
	// ID is the SQS message id
	ID string
	// ReceiptHandle identifies this delivery of the message
	ReceiptHandle string
	// Body of the message
	Body string
	// MD5OfBody as computed by SQS
	MD5OfBody string
	// Attributes are the system attributes (SentTimestamp, ApproximateReceiveCount...)
	Attributes map[string]string
	// MessageAttributes are the user defined attributes
	MessageAttributes map[string]types.MessageAttributeValue

	queue *RemoteQueue
}

func newMessage(q *RemoteQueue, m *types.Message) *Message {
	msg := &Message{
		ID:                aws.ToString(m.MessageId),
		ReceiptHandle:     aws.ToString(m.ReceiptHandle),
		Body:              aws.ToString(m.Body),
		MD5OfBody:         aws.ToString(m.MD5OfBody),
		Attributes:        m.Attributes,
		MessageAttributes: m.MessageAttributes,
		queue:             q,
	}

	if msg.Attributes == nil {
		msg.Attributes = make(map[string]string)
	}

	if msg.MessageAttributes == nil {
		msg.MessageAttributes = make(map[string]types.MessageAttributeValue)
	}

	return msg
}

// Delete acknowledges the message: it is removed from the queue
func (m *Message) Delete(ctx context.Context) error {
	const op = errors.Op("sqs_message_delete")

	_, err := m.queue.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(m.queue.url),
		ReceiptHandle: aws.String(m.ReceiptHandle),
	})
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

// ChangeVisibility hides the message for the next `timeout` seconds. 0 makes it
// visible to the other consumers immediately.
func (m *Message) ChangeVisibility(ctx context.Context, timeout int32) error {
	const op = errors.Op("sqs_message_change_visibility")

	_, err := m.queue.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(m.queue.url),
		ReceiptHandle:     aws.String(m.ReceiptHandle),
		VisibilityTimeout: timeout,
	})
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

// ReceiveCount is the ApproximateReceiveCount system attribute, 0 when not requested
func (m *Message) ReceiveCount() int {
	n, err := strconv.Atoi(m.Attributes[ApproximateReceiveCount])
	if err != nil {
		return 0
	}

	return n
}

// GroupID is the FIFO message group, empty for the standard queues
func (m *Message) GroupID() string {
	return m.Attributes[MessageGroupID]
}

// StringAttributes returns the user attributes as strings. Binary values are
// converted as is, attributes without a data type are skipped.
func (m *Message) StringAttributes() map[string]string {
	ret := make(map[string]string, len(m.MessageAttributes))

	for k, v := range m.MessageAttributes {
		if v.DataType == nil {
			continue
		}

		// Amazon SQS supports the following logical data types: String, Number, and Binary.
		// Custom types are suffixed: Number.float, Binary.png...
		switch baseType(*v.DataType) {
		case BinaryType:
			if v.BinaryValue == nil {
				continue
			}

			ret[k] = string(v.BinaryValue)
		case StringType, NumberType:
			if v.StringValue == nil {
				continue
			}

			ret[k] = *v.StringValue
		}
	}

	return ret
}

// carrier exposes the string attributes to the otel propagators
func (m *Message) carrier() propagation.MapCarrier {
	return propagation.MapCarrier(m.StringAttributes())
}

// StringAttribute builds a String typed message attribute
func StringAttribute(value string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String(StringType), StringValue: aws.String(value)}
}

func baseType(dataType string) string {
	for i := 0; i < len(dataType); i++ {
		if dataType[i] == '.' {
			return dataType[:i]
		}
	}

	return dataType
}
