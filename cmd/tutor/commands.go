package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	"github.com/zhouzirui/linear-tutor/internal/service/reply"
	"github.com/zhouzirui/linear-tutor/internal/tui"
)

// errTurnFailed is returned by ask when the tutor answered with an error.
var errTurnFailed = errors.New("turn failed")

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat()
		},
	}
}

func (a *app) runChat() error {
	ctrl, err := a.newController()
	if err != nil {
		return err
	}
	return tui.Run(ctrl)
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.newController()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if err := ctrl.Submit(ctx, strings.Join(args, " "), nil); err != nil {
				return err
			}

			msgs := ctrl.Transcript().Messages()
			if len(msgs) == 0 {
				return errTurnFailed
			}
			last := msgs[len(msgs)-1]
			if last.Role != chat.RoleAssistant {
				return errTurnFailed
			}
			if last.Failed {
				fmt.Fprintln(cmd.ErrOrStderr(), last.Content)
				return errTurnFailed
			}
			fmt.Fprintln(cmd.OutOrStdout(), last.Content)
			if last.Cancelled {
				return context.Canceled
			}
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the relay is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := a.cfg.Timeout
			if timeout == 0 {
				timeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := reply.NewRelaySource(a.cfg.RelayURL, timeout).Health(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s ok\n", a.cfg.RelayURL)
			return nil
		},
	}
}

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the teaching styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, opt := range style.Seed() {
				marker := " "
				if opt.ID == style.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-14s %s\n", marker, opt.ID, opt.Description)
			}
			return nil
		},
	}
}
