// Package maintenance implements the operational commands that act on the
// record store outside the batch loop: resets, the locality scrub, and
// reimport of published entities.
package maintenance

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/placefeed/curator/internal/locks"
	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/store"
)

// Service performs maintenance operations. It takes the same per-record
// locks as the batch loop, so a reset never interleaves with a stage
// advance on one record.
type Service struct {
	store store.Store
	locks *locks.Keyed
}

// New creates a Service sharing the given keyed locks with the pipeline.
func New(st store.Store, keyed *locks.Keyed) *Service {
	return &Service{store: st, locks: keyed}
}

// SoftReset restarts the pipeline for one record: stage back to new, failure
// state and score cleared, raw data untouched.
func (s *Service) SoftReset(ctx context.Context, id string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	return s.store.ResetSoft(ctx, id)
}

// SoftResetAll resets every record and returns how many were reset. Records
// deleted mid-pass are skipped, not errors.
func (s *Service) SoftResetAll(ctx context.Context) (int, error) {
	records, err := s.allRecords(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return reset, eris.Wrap(ctx.Err(), "maintenance: soft reset interrupted")
		}
		if err := s.SoftReset(ctx, rec.ID); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				continue
			}
			return reset, eris.Wrapf(err, "maintenance: soft reset %s", rec.ID)
		}
		reset++
	}

	zap.L().Info("maintenance: soft reset complete", zap.Int("reset", reset))
	return reset, nil
}

// HardReset deletes every ingest record. Published content entities are
// kept; only the pipeline state is destroyed.
func (s *Service) HardReset(ctx context.Context) (int, error) {
	n, err := s.store.HardDeleteAll(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "maintenance: hard reset")
	}
	zap.L().Warn("maintenance: hard reset complete", zap.Int("deleted", n))
	return n, nil
}

// allRecords pages through the full record table. Paging is snapshot-unsafe
// for concurrent writers, which is fine for maintenance commands that run
// while the batch loop is idle.
func (s *Service) allRecords(ctx context.Context) ([]model.IngestRecord, error) {
	const pageSize = 200

	var all []model.IngestRecord
	for offset := 0; ; offset += pageSize {
		page, err := s.store.ListRecords(ctx, store.RecordFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "maintenance: list records")
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
