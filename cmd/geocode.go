package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placegate/pkg/geocode"
)

var (
	geocodeProvider string
	geocodeCountry  string
	geocodeLanguage string
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Geocode an address through the cheapest available upstream",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		e := newEnv(cfg)
		outcome := e.selector.Resolve(cmd.Context(), strings.Join(args, " "), geocode.ResolveOptions{
			Provider: geocodeProvider,
			Geocode: geocode.Options{
				Country:  geocodeCountry,
				Language: geocodeLanguage,
			},
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return eris.Wrap(err, "encode outcome")
		}
		return nil
	},
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeProvider, "provider", "", "pin a specific provider (census, google)")
	geocodeCmd.Flags().StringVar(&geocodeCountry, "country", "", "country hint")
	geocodeCmd.Flags().StringVar(&geocodeLanguage, "language", "", "preferred result language")
	rootCmd.AddCommand(geocodeCmd)
}
