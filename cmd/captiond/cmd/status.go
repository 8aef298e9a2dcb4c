package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"livecaption-go/internal/config"
	"livecaption-go/pkg/captioner"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a one-shot status snapshot after briefly initializing the pipeline",
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

			status := coord.Control.Status()
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}
