// Package render submits text-to-video jobs and reports their progress.
//
// Each provider has its own status vocabulary. It is translated into the
// video lifecycle (generating / ready / failed) by a single pure function per
// provider, so the poller never sees provider strings.
package render

import (
	"context"
	"errors"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// Render defaults used when a series does not say otherwise.
const (
	DefaultAspectRatio = "9:16"
	DefaultDuration    = 8
	DefaultResolution  = "720p"
)

// ErrNotConfigured means the provider has no credentials.
var ErrNotConfigured = errors.New("render provider not configured; set FAL_KEY")

// Job is what gets sent to the provider.
type Job struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Duration    int    `json:"duration"`
	Resolution  string `json:"resolution"`
}

// Status is a provider job's state translated into the video lifecycle.
type Status struct {
	State         models.VideoStatus
	Native        string
	QueuePosition *int
	Output        *models.RenderOutput // set when State is ready
	Error         string               // set when State is failed
}

// Provider is an asynchronous text-to-video backend.
type Provider interface {
	// Submit starts a job and returns its opaque handle.
	Submit(ctx context.Context, job Job) (string, error)
	// Status reports where a job is. A transport error means "unknown";
	// callers must not change state because of it.
	Status(ctx context.Context, handle string) (*Status, error)
}

// Configurable is implemented by providers that can report missing
// credentials before any job is sent.
type Configurable interface {
	IsConfigured() bool
}

// IsConfigured reports whether p can take jobs. Providers without the
// method are assumed ready.
func IsConfigured(p Provider) bool {
	if c, ok := p.(Configurable); ok {
		return c.IsConfigured()
	}
	return p != nil
}
