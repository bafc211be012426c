package cli

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/nagareproject/sqs/sqsqueue"
	"github.com/roadrunner-server/errors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type sendOptions struct {
	group    string
	attrs    []string
	loop     bool
	dedupID  string
	interval time.Duration
}

func sendCmd(opts *options) *cobra.Command {
	so := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send <queue> <data>",
		Short: "send data to a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(opts, args[0], func(q *sqsqueue.Queue) error {
				return send(cmd.Context(), q, args[1], so)
			})
		},
	}

	cmd.Flags().StringVarP(&so.group, "group", "g", "", "MessageGroupId")
	cmd.Flags().StringArrayVarP(&so.attrs, "attr", "a", nil, "message attribute, as `name value` or --attr=name=value")
	cmd.Flags().BoolVarP(&so.loop, "loop", "l", false, "send <data> once per interval until interrupted")
	cmd.Flags().StringVarP(&so.dedupID, "dedup-id", "d", "", "MessageDeduplicationId, generated for the FIFO queues without content based deduplication")
	cmd.Flags().DurationVar(&so.interval, "interval", time.Second, "interval between two sends of the loop")

	return cmd
}

// send sends body to q once, or once per interval until ctx is canceled
func send(ctx context.Context, q *sqsqueue.Queue, body string, so *sendOptions) error {
	const op = errors.Op("sqs_cli_send")

	attrs, err := parseAttrs(so.attrs)
	if err != nil {
		return errors.E(op, err)
	}

	interval := so.interval
	if interval <= 0 {
		interval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	cfg := q.Config()
	generateID := so.dedupID == "" && cfg.Fifo() && !cfg.ContentDeduplication()

	for {
		// interrupted
		if limiter.Wait(ctx) != nil {
			return nil
		}

		in := &sqs.SendMessageInput{
			MessageBody:       aws.String(body),
			MessageAttributes: attrs,
		}

		if so.group != "" {
			in.MessageGroupId = aws.String(so.group)
		}

		switch {
		case so.dedupID != "":
			in.MessageDeduplicationId = aws.String(so.dedupID)
		case generateID:
			in.MessageDeduplicationId = aws.String(uuid.NewString())
		}

		_, err = q.SendMessage(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.E(op, err)
		}

		if !so.loop {
			return nil
		}
	}
}

// parseAttrs builds one String attribute per flag value, either a normalized
// `name value` pair or `name=value`
func parseAttrs(values []string) (map[string]types.MessageAttributeValue, error) {
	if len(values) == 0 {
		return nil, nil
	}

	ret := make(map[string]types.MessageAttributeValue, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, attrSep)
		if !ok {
			name, value, ok = strings.Cut(v, "=")
		}

		// SQS attribute names never hold a '='
		if !ok || name == "" || strings.Contains(name, "=") {
			return nil, errors.Errorf("invalid attribute %q, expected `name value`", strings.ReplaceAll(v, attrSep, " "))
		}

		ret[name] = sqsqueue.StringAttribute(value)
	}

	return ret, nil
}
