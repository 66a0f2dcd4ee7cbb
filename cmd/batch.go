package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placegate/pkg/geocode"
)

var batchOutput string

var batchCmd = &cobra.Command{
	Use:   "batch <input.csv>",
	Short: "Bulk-geocode a CSV of US addresses via the free upstream",
	Long:  "Reads rows of id,street,city,state,zip and writes matched coordinates. Bulk work stays on the free tier; unmatched rows come back empty rather than falling over to the paid upstream.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := readBatchCSV(args[0])
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return eris.New("batch: input file has no address rows")
		}

		e := newEnv(cfg)
		results, err := e.census.BatchGeocode(cmd.Context(), addrs)
		if err != nil {
			return err
		}

		out := os.Stdout
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "batch: create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if err := writeBatchCSV(out, addrs, results); err != nil {
			return err
		}

		matched := 0
		for _, r := range results {
			if r.FormattedAddress != "" {
				matched++
			}
		}
		zap.L().Info("batch geocode complete",
			zap.Int("rows", len(addrs)),
			zap.Int("matched", matched))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output CSV path (default stdout)")
	rootCmd.AddCommand(batchCmd)
}

func readBatchCSV(path string) ([]geocode.BatchAddress, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open input file")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var addrs []geocode.BatchAddress
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read input csv")
		}
		if len(rec) < 5 {
			return nil, eris.Errorf("batch: row %d has %d fields, want id,street,city,state,zip", len(addrs)+1, len(rec))
		}
		// Tolerate a header row.
		if len(addrs) == 0 && rec[0] == "id" {
			continue
		}
		addrs = append(addrs, geocode.BatchAddress{
			ID:      rec[0],
			Street:  rec[1],
			City:    rec[2],
			State:   rec[3],
			ZipCode: rec[4],
		})
	}
	return addrs, nil
}

func writeBatchCSV(w io.Writer, addrs []geocode.BatchAddress, results []geocode.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "matched", "latitude", "longitude", "formatted_address"}); err != nil {
		return eris.Wrap(err, "batch: write output header")
	}
	for i, addr := range addrs {
		id := addr.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		row := []string{id, "false", "", "", ""}
		if i < len(results) && results[i].FormattedAddress != "" {
			r := results[i]
			row = []string{
				id, "true",
				strconv.FormatFloat(r.Latitude, 'f', -1, 64),
				strconv.FormatFloat(r.Longitude, 'f', -1, 64),
				r.FormattedAddress,
			}
		}
		if err := writer.Write(row); err != nil {
			return eris.Wrap(err, "batch: write output row")
		}
	}
	writer.Flush()
	return eris.Wrap(writer.Error(), "batch: flush output")
}
