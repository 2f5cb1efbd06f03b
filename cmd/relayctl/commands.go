package main

import (
	"context"
	"errors"

	"github.com/HsiangNianian/AMonItor/sdk/client"
	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/spf13/cobra"
)

var errUsage = errors.New("invalid usage")

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Talk to a relay server",
		Long:          `Publish, send, broadcast and listen on a relay server over a single WebSocket session`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (HuJSON)")
	root.PersistentFlags().StringVarP(&a.url, "url", "u", "", "relay server URL, overrides the config file")
	root.PersistentFlags().BoolVarP(&a.raw, "raw", "r", false, "print compact JSON")

	root.AddCommand(
		newListenCmd(a),
		newSubscribeCmd(a),
		newPublishCmd(a),
		newSendCmd(a),
		newBroadcastCmd(a),
		newStatusCmd(a),
	)
	return root
}

func newListenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listen [channel...]",
		Short: "Print broadcast, send and publish events",
		Long:  `Subscribes to every given channel and prints incoming events until interrupted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listen(cmd, args)
		},
	}
}

func newSubscribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <channel>",
		Short: "Listen on a single channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				logUsage(cmd)
				return errUsage
			}
			return a.listen(cmd, args)
		},
	}
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <channel> <JSON_payload>",
		Short: "Publish a payload on a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				logUsage(cmd)
				return errUsage
			}
			payload, err := parsePayload(args[1])
			if err != nil {
				return err
			}
			return a.runAction(cmd, func(c *client.Client) (*client.Transaction, error) {
				return c.Publish(args[0], payload)
			})
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <client_id> <JSON_payload>",
		Short: "Send a payload to one client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				logUsage(cmd)
				return errUsage
			}
			payload, err := parsePayload(args[1])
			if err != nil {
				return err
			}
			return a.runAction(cmd, func(c *client.Client) (*client.Transaction, error) {
				return c.Send(args[0], payload)
			})
		},
	}
}

func newBroadcastCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <JSON_payload>",
		Short: "Broadcast a payload to every connected client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				logUsage(cmd)
				return errUsage
			}
			payload, err := parsePayload(args[0])
			if err != nil {
				return err
			}
			return a.runAction(cmd, func(c *client.Client) (*client.Transaction, error) {
				return c.Broadcast(payload)
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <transaction_id>",
		Short: "Show the journaled outcome of a transaction",
		Long:  `Looks the transaction up in the journal; only the redis journal outlives a single command`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				logUsage(cmd)
				return errUsage
			}
			rec, err := a.journal.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.logJSON(cmd, rec)
			return nil
		},
	}
}

// runAction connects, issues one action and prints its ack.
func (a *app) runAction(cmd *cobra.Command, do func(c *client.Client) (*client.Transaction, error)) error {
	ctx := cmd.Context()
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	tx, err := do(c)
	if err != nil {
		return err
	}
	ack, err := a.await(ctx, tx)
	if ack != nil {
		a.logJSON(cmd, ack)
	}
	return err
}

func (a *app) listen(cmd *cobra.Command, channels []string) error {
	ctx := cmd.Context()
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	show := func(env *protocol.Envelope) { a.logJSON(cmd, env) }
	c.On(protocol.ActionBroadcast, show)
	c.On(protocol.ActionSend, show)

	for _, ch := range channels {
		tx, err := c.Subscribe(ch, show)
		if err != nil {
			return err
		}
		if _, err := a.await(ctx, tx); err != nil {
			return err
		}
		a.logger.WithField("channel", ch).Info("subscribed")
	}
	a.logger.WithField("client_id", c.ID()).Info("listening")

	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return c.Err()
	}
}

// execute runs root and prints any failure, including those raised before
// a subcommand runs (unknown command, bad config).
func execute(ctx context.Context, root *cobra.Command) error {
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil && !errors.Is(err, errUsage) {
		if cmd == nil {
			cmd = root
		}
		logError(cmd, err)
	}
	return err
}
