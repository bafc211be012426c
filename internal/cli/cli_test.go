package cli

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/nagareproject/sqs/internal/fakesqs"
	"github.com/nagareproject/sqs/sqsqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newQueue(t *testing.T, fake *fakesqs.Client, cfg *sqsqueue.QueueConfig) *sqsqueue.Queue {
	t.Helper()

	cfg.Creation = true
	cfg.InitDefault()
	require.NoError(t, cfg.Validate())

	q, err := sqsqueue.NewQueue(context.Background(), sqsqueue.NewService(fake, zap.NewNop()), "test", cfg)
	require.NoError(t, err)

	return q
}

func TestReceiveHello(t *testing.T) {
	fake := fakesqs.New()
	q := newQueue(t, fake, &sqsqueue.QueueConfig{QueueName: "orders"})

	require.NoError(t, send(context.Background(), q, "hello", &sendOptions{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- receive(ctx, q, out)
	}()

	// deleted once printed
	require.Eventually(t, func() bool {
		return fake.Len(q.URL()) == 0
	}, time.Second*5, time.Millisecond*10)

	cancel()
	require.NoError(t, <-done)

	s := out.String()
	assert.Contains(t, s, "Listening on <test>...\n- 0 --------------------\nId: msg-1\nAttributes:\n")
	assert.NotContains(t, s, "<orders>")
	assert.Contains(t, s, fmt.Sprintf(" - %-32s: 1\n", "ApproximateReceiveCount"))
	assert.Contains(t, s, "Body: hello\n\n")
	assert.NotContains(t, s, "Message attributes:")
	assert.NotContains(t, s, "- 1 ---")
}

func TestSendAttributes(t *testing.T) {
	fake := fakesqs.New()
	q := newQueue(t, fake, &sqsqueue.QueueConfig{QueueName: "orders"})
	ctx := context.Background()

	require.NoError(t, send(ctx, q, "hello", &sendOptions{attrs: []string{"color=red", "size=large"}}))

	msgs, err := q.ReceiveMessages(ctx, &sqs.ReceiveMessageInput{MessageAttributeNames: []string{sqsqueue.All}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, map[string]types.MessageAttributeValue{
		"color": {DataType: aws.String("String"), StringValue: aws.String("red")},
		"size":  {DataType: aws.String("String"), StringValue: aws.String("large")},
	}, msgs[0].MessageAttributes)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0].MessageGroupId)
	assert.Nil(t, sent[0].MessageDeduplicationId)
}

func TestSendFifo(t *testing.T) {
	fake := fakesqs.New()
	q := newQueue(t, fake, &sqsqueue.QueueConfig{QueueName: "events.fifo", FifoQueue: aws.Bool(true)})
	ctx := context.Background()

	require.NoError(t, send(ctx, q, "hello", &sendOptions{group: "g1"}))
	require.NoError(t, send(ctx, q, "hello", &sendOptions{group: "g1", dedupID: "d-1"}))

	sent := fake.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "g1", aws.ToString(sent[0].MessageGroupId))

	_, err := uuid.Parse(aws.ToString(sent[0].MessageDeduplicationId))
	require.NoError(t, err)
	assert.Equal(t, "d-1", aws.ToString(sent[1].MessageDeduplicationId))

	// SQS requires a group on FIFO queues
	require.Error(t, send(ctx, q, "hello", &sendOptions{}))
}

func TestSendFifoContentDeduplication(t *testing.T) {
	fake := fakesqs.New()
	q := newQueue(t, fake, &sqsqueue.QueueConfig{
		QueueName:                 "events.fifo",
		FifoQueue:                 aws.Bool(true),
		ContentBasedDeduplication: aws.Bool(true),
	})

	require.NoError(t, send(context.Background(), q, "hello", &sendOptions{group: "g1"}))

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0].MessageDeduplicationId)
}

func TestSendLoop(t *testing.T) {
	fake := fakesqs.New()
	q := newQueue(t, fake, &sqsqueue.QueueConfig{QueueName: "orders"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send(ctx, q, "tick", &sendOptions{loop: true, interval: time.Millisecond * 20})
	}()

	require.Eventually(t, func() bool {
		return len(fake.Sent()) >= 3
	}, time.Second*5, time.Millisecond*5)

	// interrupted
	cancel()
	require.NoError(t, <-done)

	n := len(fake.Sent())
	time.Sleep(time.Millisecond * 100)
	require.Len(t, fake.Sent(), n)

	for _, in := range fake.Sent() {
		assert.Equal(t, "tick", aws.ToString(in.MessageBody))
	}
}

func TestSendInvalidAttribute(t *testing.T) {
	fake := fakesqs.New()
	q := newQueue(t, fake, &sqsqueue.QueueConfig{QueueName: "orders"})

	err := send(context.Background(), q, "hello", &sendOptions{attrs: []string{"color"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid attribute")
	assert.Empty(t, fake.Sent())
}

func TestPrintMessage(t *testing.T) {
	out := &bytes.Buffer{}
	p := &printer{out: out, nb: 4}

	err := p.print(&sqsqueue.Message{
		ID: "42",
		Attributes: map[string]string{
			"SentTimestamp":           "1700000000000",
			"ApproximateReceiveCount": "1",
		},
		MessageAttributes: map[string]types.MessageAttributeValue{
			"size":  sqsqueue.StringAttribute("large"),
			"color": sqsqueue.StringAttribute("red"),
			"count": {DataType: aws.String("Number"), StringValue: aws.String("3")},
		},
		Body: "hello",
	})
	require.NoError(t, err)

	expected := "- 4 --------------------\n" +
		"Id: 42\n" +
		"Attributes:\n" +
		" - ApproximateReceiveCount: 1\n" +
		" - SentTimestamp          : 1700000000000\n" +
		"Message attributes:\n" +
		" - color: red (String)\n" +
		" - count: 3 (Number)\n" +
		" - size : large (String)\n" +
		"Body: hello\n" +
		"\n"

	assert.Equal(t, expected, out.String())
	assert.Equal(t, 5, p.nb)
}

func TestNormalizeAttrArgs(t *testing.T) {
	tests := []struct {
		in       []string
		expected []string
	}{
		{
			[]string{"send", "-a", "color", "red", "-a", "size", "large", "orders", "hello"},
			[]string{"send", "--attr=color" + attrSep + "red", "--attr=size" + attrSep + "large", "orders", "hello"},
		},
		{
			// two values whenever they are available
			[]string{"send", "-a", "k=v", "x", "orders", "hello"},
			[]string{"send", "--attr=k=v" + attrSep + "x", "orders", "hello"},
		},
		{
			[]string{"send", "--attr", "query", "a=b", "orders", "hello"},
			[]string{"send", "--attr=query" + attrSep + "a=b", "orders", "hello"},
		},
		{
			[]string{"send", "--attr=color=red", "orders", "hello"},
			[]string{"send", "--attr=color=red", "orders", "hello"},
		},
		{
			[]string{"send", "-g", "g1", "orders", "--", "-a", "x", "y"},
			[]string{"send", "-g", "g1", "orders", "--", "-a", "x", "y"},
		},
		{
			[]string{"send", "orders", "-a"},
			[]string{"send", "orders", "-a"},
		},
		{
			[]string{"send", "orders", "-a", "color=red"},
			[]string{"send", "orders", "-a", "color=red"},
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeAttrArgs(tt.in))
	}
}

func TestParseAttrs(t *testing.T) {
	attrs, err := parseAttrs(attrValues(t, "-a", "query", "a=b", "--attr=color=red"))
	require.NoError(t, err)
	assert.Equal(t, map[string]types.MessageAttributeValue{
		"query": sqsqueue.StringAttribute("a=b"),
		"color": sqsqueue.StringAttribute("red"),
	}, attrs)

	// `-a k=v x` names an attribute `k=v`
	_, err = parseAttrs(attrValues(t, "-a", "k=v", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid attribute "k=v x"`)
}

// attrValues returns the attribute flag values parsed from args
func attrValues(t *testing.T, args ...string) []string {
	t.Helper()

	send, _, err := NewCommand().Find([]string{"send"})
	require.NoError(t, err)
	require.NoError(t, send.ParseFlags(normalizeAttrArgs(args)))

	attrs, err := send.Flags().GetStringArray("attr")
	require.NoError(t, err)

	return attrs
}

func TestSendFlags(t *testing.T) {
	cmd := NewCommand()
	send, _, err := cmd.Find([]string{"send"})
	require.NoError(t, err)

	require.NoError(t, send.ParseFlags(normalizeAttrArgs([]string{"-g", "g1", "-a", "color", "red", "--attr=size=large", "-l", "-d", "d-1", "--interval", "2s"})))

	group, _ := send.Flags().GetString("group")
	attrs, _ := send.Flags().GetStringArray("attr")
	loop, _ := send.Flags().GetBool("loop")
	dedup, _ := send.Flags().GetString("dedup-id")
	interval, _ := send.Flags().GetDuration("interval")

	assert.Equal(t, "g1", group)
	assert.Equal(t, []string{"color" + attrSep + "red", "size=large"}, attrs)
	assert.True(t, loop)
	assert.Equal(t, "d-1", dedup)
	assert.Equal(t, time.Second*2, interval)

	config, _ := cmd.PersistentFlags().GetString("config")
	assert.Equal(t, ".sqs.yaml", config)
}

func TestExecuteErrors(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute(context.Background(), []string{"-c", "testdata/missing.yaml", "send", "orders", "hello"}, stdout, stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")

	stderr.Reset()
	code = Execute(context.Background(), []string{"receive"}, stdout, stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "accepts 1 arg(s), received 0")
}
