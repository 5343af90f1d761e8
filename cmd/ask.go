package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramin-sadeghi/briefer/config"
	"github.com/ramin-sadeghi/briefer/internal/brief"
	"github.com/ramin-sadeghi/briefer/internal/engine"
	srv "github.com/ramin-sadeghi/briefer/internal/server"
	"github.com/ramin-sadeghi/briefer/internal/telemetry"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var userID string
	var followUp bool
	var depth string

	var ask = &cobra.Command{
		Use:   "ask [topic]",
		Short: "Run one research brief and print it as markdown",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			eng, cs, err := srv.BuildEngine(ctx, cfg, tele)
			if err != nil {
				return err
			}
			defer cs.Close()

			outcome, err := eng.Run(ctx, engine.Request{
				Identity:    userID,
				Topic:       strings.Join(args, " "),
				FollowUp:    followUp,
				SearchDepth: depth,
			})
			if err != nil {
				return err
			}

			fmt.Println(brief.Markdown(outcome.Brief))
			for _, w := range outcome.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			fmt.Fprintf(os.Stderr, "run %s: %d tokens, $%.4f, %s\n",
				outcome.RunID, outcome.TokensUsed, outcome.CostEstimate, outcome.Elapsed.Round(10*time.Millisecond))
			return nil
		},
	}
	ask.Flags().StringVar(&userID, "user", "cli", "identity for context recall")
	ask.Flags().BoolVar(&followUp, "follow-up", false, "treat as a follow-up to earlier research")
	ask.Flags().StringVar(&depth, "depth", "", "search depth hint passed to the provider")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}
