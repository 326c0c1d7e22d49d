package tasks

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
)

// Default pause between items per operation.
const (
	DefaultDeleteDelay  = 100 * time.Millisecond
	DefaultSyncDelay    = 1000 * time.Millisecond
	DefaultPublishDelay = 1000 * time.Millisecond
	DefaultCheckDelay   = 500 * time.Millisecond
)

// Delays holds the pacing of each batch kind.
type Delays struct {
	Delete  time.Duration
	Sync    time.Duration
	Publish time.Duration
	Check   time.Duration
}

// DefaultDelays returns the built-in pacing.
func DefaultDelays() Delays {
	return Delays{
		Delete:  DefaultDeleteDelay,
		Sync:    DefaultSyncDelay,
		Publish: DefaultPublishDelay,
		Check:   DefaultCheckDelay,
	}
}

// DelaysFrom reads pacing from the [batch] config section. Zero values keep the defaults.
func DelaysFrom(cfg *shared.Config) Delays {
	d := DefaultDelays()
	if cfg == nil {
		return d
	}
	if cfg.Batch.DeleteDelayMS > 0 {
		d.Delete = shared.Millis(cfg.Batch.DeleteDelayMS)
	}
	if cfg.Batch.SyncDelayMS > 0 {
		d.Sync = shared.Millis(cfg.Batch.SyncDelayMS)
	}
	if cfg.Batch.PublishDelayMS > 0 {
		d.Publish = shared.Millis(cfg.Batch.PublishDelayMS)
	}
	if cfg.Batch.CheckDelayMS > 0 {
		d.Check = shared.Millis(cfg.Batch.CheckDelayMS)
	}
	return d
}

// Options are per-call overrides for a batch entry point.
//
// A zero Delay uses the operation's configured pacing; a negative one disables it.
type Options struct {
	TaskName string
	Delay    time.Duration
	Progress chan<- ProgressUpdate
}

func (o Options) delay(def time.Duration) time.Duration {
	if o.Delay != 0 {
		return o.Delay
	}
	return def
}

func (o Options) name(def string) string {
	if o.TaskName != "" {
		return o.TaskName
	}
	return def
}

// Batcher runs the platform batch operations (delete, sync, check, publish, QR poll) as
// tracked tasks.
type Batcher struct {
	runner   *Runner
	platform services.Platform
	delays   Delays
	qr       QRSettings
	logger   *log.Logger
}

// QRSettings bounds a QR confirmation poll.
type QRSettings struct {
	Timeout  time.Duration
	Interval time.Duration
}

// NewBatcher creates a batcher running jobs on runner against platform.
func NewBatcher(runner *Runner, platform services.Platform, delays Delays, logger *log.Logger) *Batcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Batcher{
		runner:   runner,
		platform: platform,
		delays:   delays,
		qr:       QRSettings{Timeout: 60 * time.Second, Interval: time.Second},
		logger:   logger,
	}
}

// SetQRSettings overrides the QR poll bounds.
func (b *Batcher) SetQRSettings(s QRSettings) { b.qr = s }

// Registry returns the registry tasks are tracked in.
func (b *Batcher) Registry() *Registry { return b.runner.Registry() }
