package maintenance

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/store"
)

// localityTags are source type tags that mark administrative areas rather
// than concrete venues.
var localityTags = map[string]bool{
	"locality":                    true,
	"political":                   true,
	"sublocality":                 true,
	"neighborhood":                true,
	"administrative_area_level_1": true,
	"administrative_area_level_2": true,
	"administrative_area_level_3": true,
	"postal_town":                 true,
}

// establishmentTags mark concrete venues. A record carrying any of these is
// a legitimate place even when it also carries a locality tag.
var establishmentTags = map[string]bool{
	"establishment":     true,
	"point_of_interest": true,
	"food":              true,
	"restaurant":        true,
	"store":             true,
	"lodging":           true,
}

// Scrub examines place records whose type tags say they are really
// localities, misfiled by a broad lookup query. Matches are retagged to the
// locality target type or deleted, per action. Records with any
// establishment tag are never touched.
func (s *Service) Scrub(ctx context.Context, action model.ScrubAction) (model.ScrubResult, error) {
	if action != model.ScrubRetag && action != model.ScrubDelete {
		return model.ScrubResult{}, eris.Errorf("maintenance: unknown scrub action %q", action)
	}

	records, err := s.allRecords(ctx)
	if err != nil {
		return model.ScrubResult{}, err
	}

	var result model.ScrubResult
	for _, rec := range records {
		if rec.TargetType != model.TargetPlace {
			continue
		}
		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "maintenance: scrub interrupted")
		}

		if !isMisfiledLocality(rec.RawData.Types) {
			result.Skipped++
			continue
		}

		if err := s.scrubOne(ctx, rec.ID, action); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				result.Skipped++
				continue
			}
			return result, err
		}
		if action == model.ScrubRetag {
			result.Retagged++
		} else {
			result.Deleted++
		}
	}

	zap.L().Info("maintenance: scrub complete",
		zap.String("action", string(action)),
		zap.Int("retagged", result.Retagged),
		zap.Int("deleted", result.Deleted),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Service) scrubOne(ctx context.Context, id string, action model.ScrubAction) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	if action == model.ScrubRetag {
		return s.store.RetagRecord(ctx, id, model.TargetLocality)
	}
	return s.store.DeleteRecord(ctx, id)
}

// isMisfiledLocality reports whether the tags carry a locality marker and no
// establishment marker.
func isMisfiledLocality(tags []string) bool {
	locality := false
	for _, tag := range tags {
		tag = strings.ToLower(tag)
		if establishmentTags[tag] {
			return false
		}
		if localityTags[tag] {
			locality = true
		}
	}
	return locality
}
