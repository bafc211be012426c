package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/nagareproject/sqs/sqsqueue"
	"github.com/spf13/cobra"
)

func receiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "receive <queue>",
		Short: "receive data from a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(opts, args[0], func(q *sqsqueue.Queue) error {
				return receive(cmd.Context(), q, cmd.OutOrStdout())
			})
		},
	}
}

// printer renders the received messages, numbered from 0
type printer struct {
	mu  sync.Mutex
	out io.Writer
	nb  int
}

// receive prints and deletes every message of q until ctx is canceled
func receive(ctx context.Context, q *sqsqueue.Queue, out io.Writer) error {
	_, err := fmt.Fprintf(out, "Listening on <%s>...\n", q.Name())
	if err != nil {
		return err
	}

	p := &printer{out: out}

	return q.StartConsuming(ctx, p.handle,
		sqsqueue.WithAttributeNames(sqsqueue.All),
		sqsqueue.WithMessageAttributeNames(sqsqueue.All),
	)
}

func (p *printer) handle(ctx context.Context, msg *sqsqueue.Message) error {
	err := p.print(msg)
	if err != nil {
		return err
	}

	return msg.Delete(ctx)
}

func (p *printer) print(msg *sqsqueue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "- %d --------------------\n", p.nb)
	fmt.Fprintf(buf, "Id: %s\n", msg.ID)

	if len(msg.Attributes) > 0 {
		buf.WriteString("Attributes:\n")
		writeSorted(buf, msg.Attributes)
	}

	if len(msg.MessageAttributes) > 0 {
		buf.WriteString("Message attributes:\n")
		writeSorted(buf, renderAttributes(msg.MessageAttributes))
	}

	fmt.Fprintf(buf, "Body: %s\n\n", msg.Body)
	p.nb++

	_, err := p.out.Write(buf.Bytes())
	return err
}

func writeSorted(buf *bytes.Buffer, values map[string]string) {
	keys := make([]string, 0, len(values))
	padding := 0
	for k := range values {
		keys = append(keys, k)
		if len(k) > padding {
			padding = len(k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(buf, " - %s: %s\n", k+strings.Repeat(" ", padding-len(k)), values[k])
	}
}

// renderAttributes formats the user attributes as `value (DataType)`
func renderAttributes(attrs map[string]types.MessageAttributeValue) map[string]string {
	ret := make(map[string]string, len(attrs))

	for k, v := range attrs {
		value := aws.ToString(v.StringValue)
		if v.BinaryValue != nil {
			value = fmt.Sprintf("%x", v.BinaryValue)
		}

		ret[k] = fmt.Sprintf("%s (%s)", value, aws.ToString(v.DataType))
	}

	return ret
}
