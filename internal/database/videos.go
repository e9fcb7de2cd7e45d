// videos.go handles video lifecycle operations. Render-stage transitions only
// apply to rows still in 'generating'; publish-stage transitions go through
// 'publishing'.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// CreateVideo inserts a new video record.
func (db *DB) CreateVideo(ctx context.Context, v *models.Video) error {
	if v.Hashtags == nil {
		v.Hashtags = pq.StringArray{}
	}
	query := `
		INSERT INTO videos (user_id, series_id, script_id, title, description, hashtags, visual_style, status, job_handle, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return db.QueryRowContext(ctx, query,
		v.UserID, v.SeriesID, v.ScriptID, v.Title, v.Description,
		v.Hashtags, v.VisualStyle, v.Status, v.JobHandle, v.DurationSecs,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetVideo retrieves a single video by ID.
func (db *DB) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video
	if err := db.GetContext(ctx, &v, `SELECT * FROM videos WHERE id = $1`, id); err != nil {
		return nil, notFound("video", err)
	}
	return &v, nil
}

// ListGeneratingVideos returns in-flight renders, oldest first.
func (db *DB) ListGeneratingVideos(ctx context.Context, limit int) ([]models.Video, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var videos []models.Video
	err := db.SelectContext(ctx, &videos, `
		SELECT * FROM videos
		WHERE status = 'generating' AND job_handle IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generating videos: %w", err)
	}
	return videos, nil
}

// MarkVideoReady records a finished render. Returns false if the video had
// already left 'generating'.
func (db *DB) MarkVideoReady(ctx context.Context, id string, out models.RenderOutput, scheduledAt time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE videos
		SET status = 'ready', video_url = $2, thumbnail_url = NULLIF($3, ''),
			duration_seconds = $4, scheduled_at = $5, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'generating'`,
		id, out.VideoURL, out.ThumbnailURL, out.DurationSecs, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark video ready: %w", err)
	}
	return affected(res), nil
}

// MarkRenderFailed records a failed render. Returns false if the video had
// already left 'generating'.
func (db *DB) MarkRenderFailed(ctx context.Context, id, message string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE videos SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'generating'`, id, message)
	if err != nil {
		return false, fmt.Errorf("failed to mark render failed: %w", err)
	}
	return affected(res), nil
}

// ClaimVideoForPublish moves a ready, unpublished video to 'publishing'.
// Exactly one concurrent caller can win.
func (db *DB) ClaimVideoForPublish(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE videos
		SET status = 'publishing', retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'ready' AND youtube_video_id IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim video for publish: %w", err)
	}
	return affected(res), nil
}

// MarkVideoPublished records the platform ID of an uploaded video. A row the
// sweeper already reaped to failed is accepted too: the upload did happen.
func (db *DB) MarkVideoPublished(ctx context.Context, id, publishID string, publishedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE videos
		SET status = 'published', youtube_video_id = $2, published_at = $3,
			error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('publishing', 'failed') AND youtube_video_id IS NULL`,
		id, publishID, publishedAt)
	if err != nil {
		return fmt.Errorf("failed to mark video published: %w", err)
	}
	if !affected(res) {
		return fmt.Errorf("video %s was not publishing", id)
	}
	return nil
}

// MarkVideoFailed records a publish-stage failure. Published videos are never
// downgraded.
func (db *DB) MarkVideoFailed(ctx context.Context, id, message string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE videos SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'published'`, id, message)
	if err != nil {
		return fmt.Errorf("failed to mark video failed: %w", err)
	}
	return nil
}

// ReapStalePublishing fails videos that have sat in 'publishing' since
// before cutoff. A claim that old belongs to a publish that crashed or could
// not record its result; the upload may or may not exist on the channel, so
// the video is not put back in the queue automatically.
func (db *DB) ReapStalePublishing(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	var ids []string
	err := db.SelectContext(ctx, &ids, `
		UPDATE videos SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE status = 'publishing' AND updated_at < $1
		RETURNING id`, cutoff, message)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale publishes: %w", err)
	}
	return ids, nil
}

// UpdateVideoMetadata replaces the title, description and hashtags.
func (db *DB) UpdateVideoMetadata(ctx context.Context, id, title, description string, hashtags []string) error {
	if hashtags == nil {
		hashtags = []string{}
	}
	_, err := db.ExecContext(ctx, `
		UPDATE videos SET title = $2, description = $3, hashtags = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'ready'`, id, title, description, pq.Array(hashtags))
	if err != nil {
		return fmt.Errorf("failed to update video metadata: %w", err)
	}
	return nil
}

// ListPublishCandidates returns ready series videos whose publish time has come.
func (db *DB) ListPublishCandidates(ctx context.Context, now time.Time, limit int) ([]models.PublishCandidate, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.PublishCandidate
	err := db.SelectContext(ctx, &out, `
		SELECT v.*,
			s.topic AS series_topic,
			s.visual_style AS series_visual_style,
			s.voice_persona AS series_voice_persona,
			s.language AS series_language
		FROM videos v
		JOIN series s ON s.id = v.series_id
		WHERE v.status = 'ready'
		  AND v.youtube_video_id IS NULL
		  AND v.series_id IS NOT NULL
		  AND s.status = 'active'
		  AND (v.scheduled_at IS NULL OR v.scheduled_at <= $1)
		ORDER BY v.scheduled_at ASC NULLS FIRST
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list publish candidates: %w", err)
	}
	return out, nil
}

// ListUploadQueue returns a user's videos waiting to publish or retrying.
func (db *DB) ListUploadQueue(ctx context.Context, userID string) ([]models.UploadQueueEntry, error) {
	var out []models.UploadQueueEntry
	err := db.SelectContext(ctx, &out, `
		SELECT id AS video_id, title, status, scheduled_at,
			retry_count AS attempts, error_message AS last_error
		FROM videos
		WHERE user_id = $1
		  AND youtube_video_id IS NULL
		  AND status IN ('ready', 'publishing', 'failed')
		ORDER BY scheduled_at ASC NULLS FIRST
		LIMIT 100`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload queue: %w", err)
	}
	return out, nil
}
