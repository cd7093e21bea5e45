package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/micnode/internal/api"
	"github.com/smazurov/micnode/internal/config"
	"github.com/smazurov/micnode/internal/logging"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var (
		backends string
		wavFiles string
		toneFreq int
		asJSON   bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List recording devices",
		Long:  `Opens the configured audio backends and prints every recording device with its supported sample rates.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: logLevel, Format: "text"})
			logger := logging.GetLogger("audio")

			sources, closeSources, err := OpenSources(SourceOptions{
				Backends:      config.SplitList(backends),
				WAVFiles:      config.SplitList(wavFiles),
				ToneFrequency: toneFreq,
			}, logger)
			if err != nil {
				return err
			}
			defer closeSources()

			data, err := api.GetDevicesData(sources, "")
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tMIN RATE\tMAX RATE")
			for _, d := range data.Devices {
				if d.Error != "" {
					fmt.Fprintf(w, "%s\terror: %s\t\n", d.Name, d.Error)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, rateText(d.MinSampleRate), rateText(d.MaxSampleRate))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&backends, "backends", "portaudio,tone,wav", "Comma-separated audio backends")
	cmd.Flags().StringVar(&wavFiles, "wav-files", "", "Comma-separated WAV files exposed as devices")
	cmd.Flags().IntVar(&toneFreq, "tone-frequency", 440, "Tone generator frequency in Hz")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Logging level")

	return cmd
}

func rateText(rate int) string {
	if rate == 0 {
		return "-"
	}
	return strconv.Itoa(rate)
}
