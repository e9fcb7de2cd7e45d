// series.go handles series scheduling state: due lookup, leases, and the
// bookkeeping written after a run.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// dateLayout is how a UTC calendar day is passed to DATE columns.
const dateLayout = "2006-01-02"

// ListDueSeries returns active series whose next run is unset or not after now.
func (db *DB) ListDueSeries(ctx context.Context, now time.Time) ([]models.Series, error) {
	var series []models.Series
	err := db.SelectContext(ctx, &series, `
		SELECT * FROM series
		WHERE status = 'active'
		  AND (next_video_at IS NULL OR next_video_at <= $1)
		ORDER BY next_video_at ASC NULLS FIRST`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due series: %w", err)
	}
	return series, nil
}

// GetSeries retrieves a series by ID.
func (db *DB) GetSeries(ctx context.Context, id string) (*models.Series, error) {
	var s models.Series
	if err := db.GetContext(ctx, &s, `SELECT * FROM series WHERE id = $1`, id); err != nil {
		return nil, notFound("series", err)
	}
	return &s, nil
}

// ClaimSeries takes a lease on a series. It returns false when another run
// holds an unexpired lease.
func (db *DB) ClaimSeries(ctx context.Context, id, owner string, now, until time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE series
		SET claimed_by = $2, claimed_until = $4
		WHERE id = $1
		  AND status = 'active'
		  AND (claimed_until IS NULL OR claimed_until < $3)`,
		id, owner, now, until)
	if err != nil {
		return false, fmt.Errorf("failed to claim series: %w", err)
	}
	return affected(res), nil
}

// ReleaseSeries drops a lease without touching the schedule.
func (db *DB) ReleaseSeries(ctx context.Context, id, owner string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE series SET claimed_by = NULL, claimed_until = NULL
		WHERE id = $1 AND claimed_by = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("failed to release series: %w", err)
	}
	return nil
}

// CompleteSeriesRun advances the series schedule and bumps the owner's daily
// counter in one transaction. The counter resets when the stored date is not
// the run's day.
func (db *DB) CompleteSeriesRun(ctx context.Context, run models.SeriesRun) error {
	day := run.Day.UTC().Format(dateLayout)

	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE series
			SET next_video_at = $2,
				last_video_generated_at = $3,
				videos_created = videos_created + 1,
				claimed_by = NULL,
				claimed_until = NULL,
				updated_at = NOW()
			WHERE id = $1 AND claimed_by = $4`,
			run.SeriesID, run.NextVideoAt, run.GeneratedAt, run.LeaseOwner)
		if err != nil {
			return fmt.Errorf("failed to advance series: %w", err)
		}
		if !affected(res) {
			return fmt.Errorf("series %s lease lost", run.SeriesID)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE profiles
			SET videos_created_today = CASE
					WHEN last_video_date = $2::date THEN videos_created_today + 1
					ELSE 1
				END,
				last_video_date = $2::date,
				updated_at = NOW()
			WHERE id = $1`,
			run.UserID, day)
		if err != nil {
			return fmt.Errorf("failed to increment daily video count: %w", err)
		}
		return nil
	})
}

// SetSeriesStatus changes a series' lifecycle state for its owner.
// Completed series cannot be changed and report ErrNotFound.
func (db *DB) SetSeriesStatus(ctx context.Context, id, userID string, status models.SeriesStatus) (*models.Series, error) {
	var s models.Series
	err := db.GetContext(ctx, &s, `
		UPDATE series SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'completed'
		RETURNING *`, id, userID, status)
	if err != nil {
		return nil, notFound("series", err)
	}
	return &s, nil
}
