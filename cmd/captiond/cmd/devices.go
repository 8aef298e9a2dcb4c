package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"livecaption-go/pkg/audio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			if len(devices) == 0 {
				fmt.Println("no input-capable devices found")
				return nil
			}
			for _, d := range devices {
				marker := ""
				if d.IsDefault {
					marker = " (default)"
				}
				fmt.Printf("[%d] %s — %d channel(s), %.0fHz%s\n", d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate, marker)
			}
			return nil
		},
	}
}
