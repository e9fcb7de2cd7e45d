// Package quota decides whether a creator may produce another video today.
//
// The stored counter (videos_created_today) only means something when
// last_video_date is today's UTC date; on any other day it counts as zero.
// That makes the reset at midnight implicit: nothing has to rewrite the row.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// DefaultDailyLimit applies to unknown or empty tiers.
const DefaultDailyLimit = 1

var dailyLimits = map[models.SubscriptionTier]int{
	models.TierStarter: 1,
	models.TierPro:     3,
	models.TierAgency:  10,
}

// DailyLimit returns the number of videos a tier may create per UTC day.
func DailyLimit(tier models.SubscriptionTier) int {
	if n, ok := dailyLimits[tier]; ok {
		return n
	}
	return DefaultDailyLimit
}

// IsSameDay compares the UTC calendar dates of a and b.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// VideosToday returns the effective count for now's UTC day.
func VideosToday(p *models.Profile, now time.Time) int {
	if p == nil || p.LastVideoDate == nil || !IsSameDay(*p.LastVideoDate, now) {
		return 0
	}
	return p.VideosCreatedToday
}

// ProfileStore is the part of the database the tracker reads.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// CounterStore can take a video from the daily quota atomically.
type CounterStore interface {
	ProfileStore
	ReserveDailyVideo(ctx context.Context, userID string, day time.Time, limit int) (bool, error)
	ReleaseDailyVideo(ctx context.Context, userID string, day time.Time) error
}

// ErrReserveUnsupported means the tracker's store cannot write counters.
var ErrReserveUnsupported = errors.New("quota store cannot reserve videos")

// Decision is the result of a quota check.
type Decision struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int
	Tier      models.SubscriptionTier
}

// Tracker reads profiles and applies the tier limits. Only Reserve writes.
type Tracker struct {
	store ProfileStore
	now   func() time.Time
}

// NewTracker creates a tracker backed by store.
func NewTracker(store ProfileStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// SetClock overrides the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// CanCreateVideo checks the owner's remaining quota. If the profile cannot be
// read the answer is "not allowed" together with the error.
func (t *Tracker) CanCreateVideo(ctx context.Context, userID string) (Decision, error) {
	profile, err := t.store.GetProfile(ctx, userID)
	if err != nil {
		log.Printf("⚠️  Quota check failed for user %s: %v", userID, err)
		return Decision{Allowed: false, Limit: DefaultDailyLimit}, fmt.Errorf("quota check: %w", err)
	}

	limit := DailyLimit(profile.SubscriptionTier)
	used := VideosToday(profile, t.now())
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		Tier:      profile.SubscriptionTier,
	}, nil
}

// Reserve takes one video from the owner's quota for today, or reports that
// none is left. The returned release gives the video back and must be called
// if the video is not created. The check and the increment are one
// conditional update, so concurrent callers cannot overshoot the limit.
func (t *Tracker) Reserve(ctx context.Context, userID string) (Decision, func(), error) {
	cs, ok := t.store.(CounterStore)
	if !ok {
		return Decision{Limit: DefaultDailyLimit}, nil, ErrReserveUnsupported
	}

	d, err := t.CanCreateVideo(ctx, userID)
	if err != nil || !d.Allowed {
		return d, nil, err
	}

	day := t.now()
	reserved, err := cs.ReserveDailyVideo(ctx, userID, day, d.Limit)
	if err != nil {
		return Decision{Limit: d.Limit, Tier: d.Tier}, nil, fmt.Errorf("quota reserve: %w", err)
	}
	if !reserved {
		log.Printf("⏭️  Daily limit reached for user %s while reserving", userID)
		return Decision{Used: d.Limit, Limit: d.Limit, Tier: d.Tier}, nil, nil
	}

	d.Used++
	d.Remaining--
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := cs.ReleaseDailyVideo(rctx, userID, day); err != nil {
			log.Printf("⚠️  Failed to release quota for user %s: %v", userID, err)
		}
	}
	return d, release, nil
}
