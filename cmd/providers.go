package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List geocoding providers in priority order with live availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := newEnv(cfg)

		type providerStatus struct {
			Name      string `json:"name"`
			Priority  int    `json:"priority"`
			Available bool   `json:"available"`
		}

		var statuses []providerStatus
		for i, p := range e.registry.Providers() {
			statuses = append(statuses, providerStatus{
				Name:      p.Name(),
				Priority:  i + 1,
				Available: p.Available(cmd.Context()),
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(statuses); err != nil {
			return eris.Wrap(err, "encode provider statuses")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
