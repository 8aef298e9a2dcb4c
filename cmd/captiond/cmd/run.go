package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"livecaption-go/internal/config"
	"livecaption-go/pkg/captioner"
)

func newRunCmd() *cobra.Command {
	var bridge bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start audio capture, recognition, and caption processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			factory, err := resolveFactory()
			if err != nil {
				return err
			}

			coord, err := captioner.New(cfg, factory, log)
			if err != nil {
				return fmt.Errorf("initialize pipeline: %w", err)
			}
			defer coord.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if bridge {
				go runHostBridge(ctx, coord, log)
			}

			log.Info("captiond: running", "languages", cfg.LanguageCodes())
			if err := coord.Run(ctx); err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&bridge, "bridge", false, "read commands from stdin and emit caption events as JSON lines on stdout")
	return cmd
}
