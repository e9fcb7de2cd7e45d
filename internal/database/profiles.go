// profiles.go handles creator profile operations: quota counters and the
// YouTube connection.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// GetProfile retrieves a profile by user ID.
func (db *DB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := db.GetContext(ctx, &p, `SELECT * FROM profiles WHERE id = $1`, userID); err != nil {
		return nil, notFound("profile", err)
	}
	return &p, nil
}

// ReserveDailyVideo bumps the owner's counter for day only while it is below
// limit. It returns false when the limit was already reached. A counter from
// an earlier day counts as zero.
func (db *DB) ReserveDailyVideo(ctx context.Context, userID string, day time.Time, limit int) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE profiles
		SET videos_created_today = CASE
				WHEN last_video_date = $2::date THEN videos_created_today + 1
				ELSE 1
			END,
			last_video_date = $2::date,
			updated_at = NOW()
		WHERE id = $1
		  AND (last_video_date IS DISTINCT FROM $2::date OR videos_created_today < $3)`,
		userID, day.UTC().Format(dateLayout), limit)
	if err != nil {
		return false, fmt.Errorf("failed to reserve daily video: %w", err)
	}
	return affected(res), nil
}

// ReleaseDailyVideo returns a reservation made for day. It does nothing once
// the day has rolled over.
func (db *DB) ReleaseDailyVideo(ctx context.Context, userID string, day time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE profiles
		SET videos_created_today = videos_created_today - 1, updated_at = NOW()
		WHERE id = $1 AND last_video_date = $2::date AND videos_created_today > 0`,
		userID, day.UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to release daily video: %w", err)
	}
	return nil
}

// UpdateYouTubeTokens stores a refreshed access token. The refresh token is
// only replaced when the provider rotated it.
func (db *DB) UpdateYouTubeTokens(ctx context.Context, userID, accessToken string, expiresAt time.Time, refreshToken *string) error {
	query := `
		UPDATE profiles
		SET youtube_access_token = $2,
			youtube_token_expires_at = $3,
			youtube_refresh_token = COALESCE($4, youtube_refresh_token),
			updated_at = NOW()
		WHERE id = $1`

	res, err := db.ExecContext(ctx, query, userID, accessToken, expiresAt, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to update youtube tokens: %w", err)
	}
	if !affected(res) {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return nil
}

// SaveYouTubeConnection marks a profile connected after a code exchange.
func (db *DB) SaveYouTubeConnection(ctx context.Context, userID string, conn models.YouTubeConnection) error {
	query := `
		UPDATE profiles
		SET youtube_connected = TRUE,
			youtube_access_token = $2,
			youtube_refresh_token = $3,
			youtube_token_expires_at = $4,
			youtube_channel_id = $5,
			youtube_channel_name = $6,
			updated_at = NOW()
		WHERE id = $1`

	res, err := db.ExecContext(ctx, query, userID,
		conn.AccessToken, conn.RefreshToken, conn.ExpiresAt, conn.ChannelID, conn.ChannelName)
	if err != nil {
		return fmt.Errorf("failed to save youtube connection: %w", err)
	}
	if !affected(res) {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ClearYouTubeConnection removes every token and channel field.
func (db *DB) ClearYouTubeConnection(ctx context.Context, userID string) error {
	query := `
		UPDATE profiles
		SET youtube_connected = FALSE,
			youtube_access_token = NULL,
			youtube_refresh_token = NULL,
			youtube_token_expires_at = NULL,
			youtube_channel_id = NULL,
			youtube_channel_name = NULL,
			updated_at = NOW()
		WHERE id = $1`

	if _, err := db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear youtube connection: %w", err)
	}
	return nil
}
