package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pior/nntp/internal/verify"
)

// Reporter logs the check rate periodically.
type Reporter struct {
	log       logrus.FieldLogger
	startedAt time.Time
	total     int

	done      atomic.Int64
	available atomic.Int64
	missing   atomic.Int64
	unknown   atomic.Int64
}

func NewReporter(ctx context.Context, log logrus.FieldLogger, total int, interval time.Duration) *Reporter {
	r := &Reporter{
		log:       log,
		startedAt: time.Now(),
		total:     total,
	}
	if interval <= 0 {
		return r
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastTick := time.Now()
		lastCount := int64(0)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				elapsed := time.Since(lastTick)
				lastTick = time.Now()
				current := r.done.Load()
				rate := float64(current-lastCount) / elapsed.Seconds()
				lastCount = current

				r.fields().WithField("rate", int(rate)).Info("progress")
			}
		}
	}()

	return r
}

// Record counts one outcome. It is called from the checking goroutines.
func (r *Reporter) Record(o verify.Outcome) {
	r.done.Add(1)
	switch o.Result {
	case verify.Available:
		r.available.Add(1)
	case verify.Missing:
		r.missing.Add(1)
	default:
		r.unknown.Add(1)
	}
}

func (r *Reporter) fields() logrus.FieldLogger {
	return r.log.WithFields(logrus.Fields{
		"done":      r.done.Load(),
		"total":     r.total,
		"available": r.available.Load(),
		"missing":   r.missing.Load(),
		"unknown":   r.unknown.Load(),
	})
}

// Stop logs the final rate.
func (r *Reporter) Stop() {
	elapsed := time.Since(r.startedAt)
	rate := float64(r.done.Load()) / elapsed.Seconds()

	r.fields().WithFields(logrus.Fields{
		"rate":    int(rate),
		"elapsed": elapsed.Round(time.Millisecond),
	}).Info("finished")
}
