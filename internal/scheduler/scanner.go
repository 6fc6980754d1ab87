package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
)

// Renewer runs the renewal body for one watch channel.
type Renewer interface {
	Renew(ctx context.Context, nodeID string) error
}

// Scanner drives durable renewal jobs. The job row is the timer: it survives
// restarts, and the scanner only provides the cadence at which due rows are
// claimed and run. Claiming is atomic in the store, so concurrent scanners
// never run the same job twice.
type Scanner struct {
	jobs    domain.RenewalJobStore
	renewer Renewer
	cron    *cron.Cron
	spec    string
}

type ScannerDependencies struct {
	RenewalJobStore domain.RenewalJobStore
	Renewer         Renewer
	ScanSpec        string
}

func NewScanner(deps ScannerDependencies) *Scanner {
	spec := deps.ScanSpec
	if spec == "" {
		spec = "@every 1m"
	}

	return &Scanner{
		jobs:    deps.RenewalJobStore,
		renewer: deps.Renewer,
		cron:    cron.New(),
		spec:    spec,
	}
}

func (s *Scanner) Start() error {
	if err := s.cron.AddFunc(s.spec, s.scan); err != nil {
		return fmt.Errorf("failed to register renewal scan: %w", err)
	}

	s.cron.Start()
	log.Info().Str("spec", s.spec).Msg("Renewal scanner started")

	return nil
}

func (s *Scanner) Stop() {
	s.cron.Stop()
}

func (s *Scanner) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.RunDue(ctx, time.Now())
}

// RunDue claims and runs every renewal job due at the given instant.
func (s *Scanner) RunDue(ctx context.Context, now time.Time) {
	due, err := s.jobs.ClaimDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to claim due renewal jobs")
		return
	}

	for _, job := range due {
		if err := s.renewer.Renew(ctx, job.NodeID); err != nil {
			log.Error().Err(err).Str("nodeID", job.NodeID).Msg("Renewal failed")
		}
	}
}
