package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/repository"
)

// ReaperJob periodically marks devices that stopped sending heartbeats as
// disconnected, and announces each disconnect on the session change feed.
type ReaperJob struct {
	deviceRepo repository.DeviceRepository
	publisher  events.Publisher
	staleAfter time.Duration
	interval   time.Duration
	done       chan struct{}
}

func NewReaperJob(
	deviceRepo repository.DeviceRepository,
	publisher events.Publisher,
	staleAfter time.Duration,
	interval time.Duration,
) *ReaperJob {
	return &ReaperJob{
		deviceRepo: deviceRepo,
		publisher:  publisher,
		staleAfter: staleAfter,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *ReaperJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("staleAfter", j.staleAfter).Msg("device reaper started")
}

func (j *ReaperJob) Stop() {
	close(j.done)
	log.Info().Msg("device reaper stopped")
}

func (j *ReaperJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.reap()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.reap()
		}
	}
}

func (j *ReaperJob) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stale, err := j.deviceRepo.MarkStale(ctx, time.Now().Add(-j.staleAfter))
	if err != nil {
		log.Error().Err(err).Msg("failed to reap stale devices")
		return
	}

	if len(stale) == 0 {
		return
	}

	log.Info().Int("count", len(stale)).Msg("marked stale devices as disconnected")

	for i := range stale {
		device := &stale[i]
		event, err := events.MembershipChanged(device)
		if err != nil {
			log.Error().Err(err).Str("deviceId", device.ID).Msg("failed to encode membership event")
			continue
		}
		if err := j.publisher.Publish(ctx, device.SessionID, event); err != nil {
			log.Error().Err(err).Str("sessionId", device.SessionID).Msg("failed to publish disconnect event")
		}
	}
}
