// Package fakesqs is an in-memory SQS client for the tests. It keeps the
// queue semantics the code depends on: visibility timeouts, receive counts,
// long polling, FIFO group ids and dead-letter sources.
package fakesqs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
)

const (
	// Account is the account owning the queues created without an explicit owner
	Account string = "000000000000"
	region  string = "us-east-1"
	baseURL string = "http://sqs.fake.local"

	defaultVisibility int32 = 30
	pollInterval            = time.Millisecond * 5
)

type message struct {
	id            string
	body          string
	groupID       string
	dedupID       string
	attributes    map[string]types.MessageAttributeValue
	sent          time.Time
	visibleAt     time.Time
	receiveCount  int
	receiptHandle string
}

type queue struct {
	name        string
	account     string
	attributes  map[string]string
	tags        map[string]string
	permissions map[string]struct{}
	messages    []*message
}

func (q *queue) url() string {
	return baseURL + "/" + q.account + "/" + q.name
}

func (q *queue) arn() string {
	return "arn:aws:sqs:" + region + ":" + q.account + ":" + q.name
}

func (q *queue) fifo() bool {
	return q.attributes["FifoQueue"] == "true"
}

// Client implements the SQS client methods used by the sqsqueue package
type Client struct {
	mu      sync.Mutex
	queues  map[string]*queue // by url
	counter int
	now     func() time.Time

	receiveErr error
	sent       []*sqs.SendMessageInput
	calls      map[string]int
}

func New() *Client {
	return &Client{
		queues: make(map[string]*queue),
		now:    time.Now,
		calls:  make(map[string]int),
	}
}

// AddQueue registers a queue owned by account, as if created by someone else
func (c *Client) AddQueue(account, name string, attributes map[string]string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.newQueue(account, name, attributes, nil)
	return q.url()
}

// FailReceive makes every ReceiveMessage call fail with err, nil restores them
func (c *Client) FailReceive(err error) {
	c.mu.Lock()
	c.receiveErr = err
	c.mu.Unlock()
}

// Sent returns the SendMessage inputs, in order
func (c *Client) Sent() []*sqs.SendMessageInput {
	c.mu.Lock()
	defer c.mu.Unlock()

	ret := make([]*sqs.SendMessageInput, len(c.sent))
	copy(ret, c.sent)
	return ret
}

// Calls returns the number of calls of the named operation
func (c *Client) Calls(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[operation]
}

// Len returns the number of messages stored in the queue, visible or not
func (c *Client) Len(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[url]
	if !ok {
		return 0
	}

	return len(q.messages)
}

// Visible returns the number of messages that can be received now
func (c *Client) Visible(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[url]
	if !ok {
		return 0
	}

	now := c.now()
	n := 0
	for _, m := range q.messages {
		if !m.visibleAt.After(now) {
			n++
		}
	}

	return n
}

// ExpireVisibility ends the visibility timeout of every message of the queue
func (c *Client) ExpireVisibility(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[url]
	if !ok {
		return
	}

	now := c.now()
	for _, m := range q.messages {
		m.visibleAt = now
	}
}

// Tags returns the tags the queue was created with
func (c *Client) Tags(url string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[url]
	if !ok {
		return nil
	}

	return q.tags
}

func (c *Client) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["CreateQueue"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := aws.ToString(params.QueueName)
	if name == "" {
		return nil, apiError("MissingParameter", "QueueName is required")
	}

	if strings.HasSuffix(name, ".fifo") != (params.Attributes["FifoQueue"] == "true") {
		return nil, apiError("InvalidParameterValue", "the name of a FIFO queue can only include alphanumeric characters, hyphens, or underscores, must end with .fifo suffix")
	}

	if q, ok := c.queues[c.urlFor(Account, name)]; ok {
		for k, v := range params.Attributes {
			if q.attributes[k] != v {
				return nil, &types.QueueNameExists{Message: aws.String("A queue already exists with the same name and a different value for attribute " + k)}
			}
		}

		return &sqs.CreateQueueOutput{QueueUrl: aws.String(q.url())}, nil
	}

	q := c.newQueue(Account, name, params.Attributes, params.Tags)
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(q.url())}, nil
}

func (c *Client) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) { //nolint:revive,stylecheck
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["GetQueueUrl"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	account := Account
	if params.QueueOwnerAWSAccountId != nil {
		account = *params.QueueOwnerAWSAccountId
	}

	q, ok := c.queues[c.urlFor(account, aws.ToString(params.QueueName))]
	if !ok {
		return nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")}
	}

	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(q.url())}, nil
}

func (c *Client) ListQueues(ctx context.Context, _ *sqs.ListQueuesInput, _ ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["ListQueues"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(c.queues))
	for u := range c.queues {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	return &sqs.ListQueuesOutput{QueueUrls: urls}, nil
}

func (c *Client) ListDeadLetterSourceQueues(ctx context.Context, params *sqs.ListDeadLetterSourceQueuesInput, _ ...func(*sqs.Options)) (*sqs.ListDeadLetterSourceQueuesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["ListDeadLetterSourceQueues"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, q := range c.queues {
		rp, ok := q.attributes["RedrivePolicy"]
		if !ok {
			continue
		}

		var policy struct {
			DeadLetterTargetArn string `json:"deadLetterTargetArn"`
		}
		if json.Unmarshal([]byte(rp), &policy) != nil {
			continue
		}

		if policy.DeadLetterTargetArn == target.arn() {
			urls = append(urls, q.url())
		}
	}
	sort.Strings(urls)

	return &sqs.ListDeadLetterSourceQueuesOutput{QueueUrls: urls}, nil
}

func (c *Client) DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, _ ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["DeleteQueue"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	delete(c.queues, q.url())
	return &sqs.DeleteQueueOutput{}, nil
}

func (c *Client) PurgeQueue(ctx context.Context, params *sqs.PurgeQueueInput, _ ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["PurgeQueue"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	q.messages = nil
	return &sqs.PurgeQueueOutput{}, nil
}

func (c *Client) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["GetQueueAttributes"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	now := c.now()
	visible, notVisible := 0, 0
	for _, m := range q.messages {
		if m.visibleAt.After(now) {
			notVisible++
			continue
		}
		visible++
	}

	all := make(map[string]string, len(q.attributes)+3)
	for k, v := range q.attributes {
		all[k] = v
	}
	all["QueueArn"] = q.arn()
	all["ApproximateNumberOfMessages"] = strconv.Itoa(visible)
	all["ApproximateNumberOfMessagesNotVisible"] = strconv.Itoa(notVisible)

	ret := make(map[string]string)
	for _, n := range params.AttributeNames {
		if n == types.QueueAttributeNameAll {
			ret = all
			break
		}

		if v, ok := all[string(n)]; ok {
			ret[string(n)] = v
		}
	}

	return &sqs.GetQueueAttributesOutput{Attributes: ret}, nil
}

func (c *Client) SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["SetQueueAttributes"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	for k, v := range params.Attributes {
		q.attributes[k] = v
	}

	return &sqs.SetQueueAttributesOutput{}, nil
}

func (c *Client) AddPermission(ctx context.Context, params *sqs.AddPermissionInput, _ ...func(*sqs.Options)) (*sqs.AddPermissionOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["AddPermission"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	q.permissions[aws.ToString(params.Label)] = struct{}{}
	return &sqs.AddPermissionOutput{}, nil
}

func (c *Client) RemovePermission(ctx context.Context, params *sqs.RemovePermissionInput, _ ...func(*sqs.Options)) (*sqs.RemovePermissionOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["RemovePermission"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	label := aws.ToString(params.Label)
	if _, ok := q.permissions[label]; !ok {
		return nil, apiError("InvalidParameterValue", "no permission with the label "+label)
	}

	delete(q.permissions, label)
	return &sqs.RemovePermissionOutput{}, nil
}

func (c *Client) SendMessage(ctx context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["SendMessage"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	m, err := c.enqueue(q, params.MessageBody, params.MessageGroupId, params.MessageDeduplicationId, params.DelaySeconds, params.MessageAttributes)
	if err != nil {
		return nil, err
	}

	in := *params
	c.sent = append(c.sent, &in)

	return &sqs.SendMessageOutput{MessageId: aws.String(m.id)}, nil
}

func (c *Client) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["SendMessageBatch"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	out := &sqs.SendMessageBatchOutput{}
	for _, e := range params.Entries {
		m, err := c.enqueue(q, e.MessageBody, e.MessageGroupId, e.MessageDeduplicationId, e.DelaySeconds, e.MessageAttributes)
		if err != nil {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{Id: e.Id, Code: aws.String("InvalidParameterValue"), Message: aws.String(err.Error()), SenderFault: true})
			continue
		}

		out.Successful = append(out.Successful, types.SendMessageBatchResultEntry{Id: e.Id, MessageId: aws.String(m.id)})
	}

	return out, nil
}

func (c *Client) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	c.mu.Lock()
	c.calls["ReceiveMessage"]++
	if c.receiveErr != nil {
		err := c.receiveErr
		c.mu.Unlock()
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	wait := time.Duration(params.WaitTimeSeconds) * time.Second
	if params.WaitTimeSeconds == 0 {
		if s, errA := strconv.Atoi(q.attributes["ReceiveMessageWaitTimeSeconds"]); errA == nil {
			wait = time.Duration(s) * time.Second
		}
	}
	c.mu.Unlock()

	deadline := time.Now().Add(wait)
	for {
		c.mu.Lock()
		msgs := c.receive(q, params)
		c.mu.Unlock()

		if len(msgs) > 0 || !time.Now().Before(deadline) {
			return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (c *Client) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["DeleteMessage"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	if !q.remove(aws.ToString(params.ReceiptHandle)) {
		return nil, &types.ReceiptHandleIsInvalid{Message: aws.String("The input receipt handle is invalid.")}
	}

	return &sqs.DeleteMessageOutput{}, nil
}

func (c *Client) DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["DeleteMessageBatch"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	out := &sqs.DeleteMessageBatchOutput{}
	for _, e := range params.Entries {
		if !q.remove(aws.ToString(e.ReceiptHandle)) {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{Id: e.Id, Code: aws.String("ReceiptHandleIsInvalid"), SenderFault: true})
			continue
		}

		out.Successful = append(out.Successful, types.DeleteMessageBatchResultEntry{Id: e.Id})
	}

	return out, nil
}

func (c *Client) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["ChangeMessageVisibility"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	m := q.find(aws.ToString(params.ReceiptHandle))
	if m == nil {
		return nil, &types.ReceiptHandleIsInvalid{Message: aws.String("The input receipt handle is invalid.")}
	}

	m.visibleAt = c.now().Add(time.Duration(params.VisibilityTimeout) * time.Second)
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (c *Client) ChangeMessageVisibilityBatch(ctx context.Context, params *sqs.ChangeMessageVisibilityBatchInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["ChangeMessageVisibilityBatch"]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := c.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}

	out := &sqs.ChangeMessageVisibilityBatchOutput{}
	for _, e := range params.Entries {
		m := q.find(aws.ToString(e.ReceiptHandle))
		if m == nil {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{Id: e.Id, Code: aws.String("ReceiptHandleIsInvalid"), SenderFault: true})
			continue
		}

		m.visibleAt = c.now().Add(time.Duration(e.VisibilityTimeout) * time.Second)
		out.Successful = append(out.Successful, types.ChangeMessageVisibilityBatchResultEntry{Id: e.Id})
	}

	return out, nil
}

// -- internals, c.mu held

func (c *Client) urlFor(account, name string) string {
	return baseURL + "/" + account + "/" + name
}

func (c *Client) newQueue(account, name string, attributes, tags map[string]string) *queue {
	q := &queue{
		name:        name,
		account:     account,
		attributes:  make(map[string]string, len(attributes)),
		tags:        make(map[string]string, len(tags)),
		permissions: make(map[string]struct{}),
	}

	for k, v := range attributes {
		q.attributes[k] = v
	}
	for k, v := range tags {
		q.tags[k] = v
	}

	c.queues[q.url()] = q
	return q
}

func (c *Client) queue(url *string) (*queue, error) {
	q, ok := c.queues[aws.ToString(url)]
	if !ok {
		return nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")}
	}

	return q, nil
}

func (c *Client) nextID(prefix string) string {
	c.counter++
	return fmt.Sprintf("%s-%d", prefix, c.counter)
}

func (c *Client) enqueue(q *queue, body, groupID, dedupID *string, delay int32, attrs map[string]types.MessageAttributeValue) (*message, error) {
	if aws.ToString(body) == "" {
		return nil, apiError("MissingParameter", "The request must contain the parameter MessageBody.")
	}

	if q.fifo() {
		if groupID == nil {
			return nil, apiError("MissingParameter", "The request must contain the parameter MessageGroupId.")
		}

		if dedupID == nil && q.attributes["ContentBasedDeduplication"] != "true" {
			return nil, apiError("InvalidParameterValue", "The queue should either have ContentBasedDeduplication enabled or MessageDeduplicationId provided explicitly")
		}
	} else if groupID != nil {
		return nil, apiError("InvalidParameterValue", "The request include parameter that is not valid for this queue type")
	}

	for k, v := range attrs {
		if v.DataType == nil {
			return nil, apiError("InvalidParameterValue", "The message attribute '"+k+"' must contain a non-empty attribute type.")
		}
	}

	now := c.now()
	m := &message{
		id:         c.nextID("msg"),
		body:       *body,
		groupID:    aws.ToString(groupID),
		dedupID:    aws.ToString(dedupID),
		attributes: attrs,
		sent:       now,
		visibleAt:  now.Add(time.Duration(delay) * time.Second),
	}

	q.messages = append(q.messages, m)
	return m, nil
}

func (c *Client) receive(q *queue, params *sqs.ReceiveMessageInput) []types.Message {
	limit := int(params.MaxNumberOfMessages)
	if limit <= 0 {
		limit = 1
	}

	visibility := defaultVisibility
	if v, err := strconv.Atoi(q.attributes["VisibilityTimeout"]); err == nil {
		visibility = int32(v)
	}
	if params.VisibilityTimeout > 0 {
		visibility = params.VisibilityTimeout
	}

	now := c.now()
	var ret []types.Message
	for _, m := range q.messages {
		if len(ret) == limit {
			break
		}

		if m.visibleAt.After(now) {
			continue
		}

		m.receiveCount++
		m.receiptHandle = c.nextID("rh-" + m.id)
		m.visibleAt = now.Add(time.Duration(visibility) * time.Second)

		ret = append(ret, types.Message{
			MessageId:         aws.String(m.id),
			ReceiptHandle:     aws.String(m.receiptHandle),
			Body:              aws.String(m.body),
			Attributes:        systemAttributes(m, params.MessageSystemAttributeNames),
			MessageAttributes: messageAttributes(m, params.MessageAttributeNames),
		})
	}

	return ret
}

func (q *queue) find(receiptHandle string) *message {
	for _, m := range q.messages {
		if m.receiptHandle != "" && m.receiptHandle == receiptHandle {
			return m
		}
	}

	return nil
}

func (q *queue) remove(receiptHandle string) bool {
	for i, m := range q.messages {
		if m.receiptHandle != "" && m.receiptHandle == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return true
		}
	}

	return false
}

func systemAttributes(m *message, names []types.MessageSystemAttributeName) map[string]string {
	all := map[string]string{
		"SenderId":                         "AIDAFAKESENDER",
		"SentTimestamp":                    strconv.FormatInt(m.sent.UnixMilli(), 10),
		"ApproximateReceiveCount":          strconv.Itoa(m.receiveCount),
		"ApproximateFirstReceiveTimestamp": strconv.FormatInt(m.sent.UnixMilli(), 10),
	}
	if m.groupID != "" {
		all["MessageGroupId"] = m.groupID
	}
	if m.dedupID != "" {
		all["MessageDeduplicationId"] = m.dedupID
	}

	ret := make(map[string]string)
	for _, n := range names {
		if n == types.MessageSystemAttributeNameAll {
			return all
		}

		if v, ok := all[string(n)]; ok {
			ret[string(n)] = v
		}
	}

	return ret
}

func messageAttributes(m *message, names []string) map[string]types.MessageAttributeValue {
	ret := make(map[string]types.MessageAttributeValue)
	for _, n := range names {
		if n == "All" || n == ".*" {
			for k, v := range m.attributes {
				ret[k] = v
			}
			return ret
		}

		if v, ok := m.attributes[n]; ok {
			ret[n] = v
		}
	}

	return ret
}

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message, Fault: smithy.FaultClient}
}
