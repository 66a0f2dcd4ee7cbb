package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placegate/pkg/places"
)

var (
	reviewsPageSize  int
	reviewsPageToken string
	reviewsLanguage  string
	reviewsMinRating int
	reviewsChunked   bool
	reviewsAll       bool
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews <place-id>",
	Short: "Fetch aggregated reviews for a place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("reviews"); err != nil {
			return err
		}

		e := newEnv(cfg)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		opts := places.PageOptions{
			PageSize:  reviewsPageSize,
			PageToken: reviewsPageToken,
			Language:  reviewsLanguage,
			MinRating: reviewsMinRating,
		}

		fetch := e.aggregator.GetReviews
		if reviewsChunked {
			fetch = e.aggregator.GetReviewsChunked
		}

		for {
			page := fetch(cmd.Context(), args[0], opts)
			if err := enc.Encode(page); err != nil {
				return eris.Wrap(err, "encode page")
			}
			if !page.Success {
				return eris.Errorf("reviews: %s", page.Error.Message)
			}
			if !reviewsAll || page.Pagination == nil || !page.Pagination.HasMoreReviews {
				return nil
			}
			opts.PageToken = page.Pagination.NextPageToken
		}
	},
}

func init() {
	reviewsCmd.Flags().IntVar(&reviewsPageSize, "page-size", 0, "reviews per page (default from config)")
	reviewsCmd.Flags().StringVar(&reviewsPageToken, "page-token", "", "continuation token from a previous page")
	reviewsCmd.Flags().StringVar(&reviewsLanguage, "language", "", "preferred review language (BCP 47)")
	reviewsCmd.Flags().IntVar(&reviewsMinRating, "min-rating", 0, "only include reviews rated at least this")
	reviewsCmd.Flags().BoolVar(&reviewsChunked, "chunked", false, "use on-demand chunked pagination")
	reviewsCmd.Flags().BoolVar(&reviewsAll, "all", false, "follow the continuation chain to the end")
	rootCmd.AddCommand(reviewsCmd)
}
