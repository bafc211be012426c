// Package cli implements the sqs command line: the receive and send
// subcommands working on the queues of the configuration file.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	sqsPlugin "github.com/nagareproject/sqs"
	"github.com/nagareproject/sqs/sqsqueue"
	"github.com/roadrunner-server/config/v4"
	"github.com/roadrunner-server/endure/v2"
	"github.com/roadrunner-server/errors"
	"github.com/roadrunner-server/logger/v4"
	"github.com/spf13/cobra"
)

const (
	defaultConfig string = ".sqs.yaml"
	configVersion string = "2023.3.0"
	configPrefix  string = "rr"
)

type options struct {
	config string
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand()
	cmd.SetArgs(normalizeAttrArgs(args))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

func NewCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "sqs",
		Short:         "AWS SQS queues",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.config, "config", "c", defaultConfig, "configuration file")

	rootCmd.AddCommand(receiveCmd(opts))
	rootCmd.AddCommand(sendCmd(opts))

	return rootCmd
}

// withQueue serves the sqs plugin for the time of fn
func withQueue(opts *options, name string, fn func(q *sqsqueue.Queue) error) error {
	const op = errors.Op("sqs_cli")

	cont := endure.New(slog.LevelError)
	plugin := &sqsPlugin.Plugin{}

	err := cont.RegisterAll(
		&config.Plugin{
			Path:    opts.config,
			Prefix:  configPrefix,
			Version: configVersion,
		},
		&logger.Plugin{},
		plugin,
	)
	if err != nil {
		return errors.E(op, err)
	}

	err = cont.Init()
	if err != nil {
		return errors.E(op, err)
	}

	_, err = cont.Serve()
	if err != nil {
		return errors.E(op, err)
	}

	defer func() {
		_ = cont.Stop()
	}()

	q, err := plugin.Queue(name)
	if err != nil {
		return errors.E(op, err)
	}

	return fn(q)
}

// attrSep joins the name and the value of a two values attribute flag, so
// that a `=` in the value is kept as is
const attrSep = "\x1f"

// normalizeAttrArgs rewrites the two values form of the attribute flag,
// `-a name value`, into a single flag value. The two values form wins as long
// as two arguments follow the flag: `-a k=v x` is the attribute `k=v` with
// the value `x`. The `name=value` form must be written `--attr=name=value`.
func normalizeAttrArgs(args []string) []string {
	ret := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			ret = append(ret, args[i:]...)
			break
		}

		if (arg != "-a" && arg != "--attr") || i+2 >= len(args) {
			ret = append(ret, arg)
			continue
		}

		ret = append(ret, "--attr="+args[i+1]+attrSep+args[i+2])
		i += 2
	}

	return ret
}
