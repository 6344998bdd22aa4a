package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/linear-tutor/internal/config"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
	"github.com/zhouzirui/linear-tutor/internal/service/reply"
)

// app carries the resolved client configuration between cobra hooks.
type app struct {
	v       *viper.Viper
	cfg     config.ClientConfig
	logFile *os.File
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.BindClientDefaults(a.v)

	root := &cobra.Command{
		Use:   "tutor",
		Short: "Chat with the Linear Algebra tutor",
		Long: `tutor talks to a Linear Algebra tutor relay.

Examples:
  tutor                                 # open the chat screen
  tutor ask "invert [[1,2],[3,4]]"      # one question, answer on stdout
  tutor ask --style concise "rank of A?"
  tutor health --relay http://localhost:5000`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat()
		},
	}

	flags := root.PersistentFlags()
	flags.String("relay", "", "Relay base URL (default http://localhost:5000)")
	flags.String("transport", "", "Relay transport: json, sse or ws")
	flags.String("style", "", "Teaching style: step-by-step, concise, exam style or intuition")
	flags.Duration("timeout", 0, "Relay request timeout, reading the reply included (HTTP client timeout for json and sse, handshake and frame deadline for ws); 0 disables")
	flags.String("log-file", "", "Write diagnostic logs to this file")
	for key, name := range map[string]string{
		"relay":     "relay",
		"transport": "transport",
		"style":     "style",
		"timeout":   "timeout",
		"log_file":  "log-file",
	} {
		flag := flags.Lookup(name)
		if err := a.v.BindPFlag(key, flag); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newHealthCmd(a),
		newStylesCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.LoadClient(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// The chat screen owns the terminal, so logs go to a file or nowhere.
	if cfg.LogFile == "" {
		log.SetOutput(io.Discard)
		return nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	a.logFile = f
	log.SetOutput(f)
	return nil
}

func (a *app) close() error {
	if a.logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

// newController builds a controller for the configured transport and style.
func (a *app) newController() (*chatservice.Controller, error) {
	st, err := style.Parse(a.cfg.Style)
	if err != nil {
		return nil, err
	}
	src, err := reply.New(a.cfg)
	if err != nil {
		return nil, err
	}
	return chatservice.NewController(chatservice.NewTranscript(), src, st), nil
}
