package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/pkg/places"
	"github.com/placefeed/curator/pkg/slug"
)

var (
	seedQuery  string
	seedTarget string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ingest records from a place lookup query",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("maintenance"); err != nil {
			return err
		}
		if cfg.Places.Key == "" {
			return eris.New("places key is required (CURATOR_PLACES_KEY)")
		}

		target := model.TargetType(seedTarget)
		switch target {
		case model.TargetPlace, model.TargetLocality, model.TargetEvent:
		default:
			return eris.Errorf("unsupported target type: %s", seedTarget)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		resp, err := initPlaces().TextSearch(ctx, seedQuery)
		if err != nil {
			return eris.Wrap(err, "place lookup")
		}

		existing, err := st.ListDedupKeys(ctx)
		if err != nil {
			return eris.Wrap(err, "list dedup keys")
		}

		records, skipped := seedRecords(resp.Places, existing, target)
		for _, rec := range records {
			if _, err := st.CreateRecord(ctx, rec); err != nil {
				return eris.Wrapf(err, "create record for %s", rec.RawData.Name)
			}
		}

		zap.L().Info("seed complete",
			zap.String("query", seedQuery),
			zap.Int("created", len(records)),
			zap.Int("skipped", skipped),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]int{"created": len(records), "skipped": skipped})
	},
}

// seedRecords converts lookup results into new ingest records. Places
// already queued are skipped, as are duplicate listings within the same
// response whose names differ only in casing, accents or spacing.
func seedRecords(results []places.Place, existing map[string]bool, target model.TargetType) ([]model.IngestRecord, int) {
	var records []model.IngestRecord
	skipped := 0
	seen := make(map[string]bool)

	for _, p := range results {
		name := slug.Normalize(p.DisplayName.Text)
		if p.ID == "" || existing[p.ID] || (name != "" && seen[name]) {
			skipped++
			continue
		}
		seen[name] = true
		records = append(records, model.IngestRecord{
			SourceType: model.SourcePlacesLookup,
			TargetType: target,
			RawData: model.RawData{
				Name:   p.DisplayName.Text,
				Region: p.FormattedAddress,
				Types:  p.Types,
			},
			SourceDedupKey: p.ID,
		})
	}
	return records, skipped
}

func init() {
	seedCmd.Flags().StringVar(&seedQuery, "query", "", "text search query (required)")
	seedCmd.Flags().StringVar(&seedTarget, "target", string(model.TargetPlace), "target type: place, locality or event")
	_ = seedCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(seedCmd)
}
