// Package scan runs the receipt-to-draft pipeline for one queued job:
// extract text from the image, normalize it into a draft, and merge the
// draft into the owning form session.
package scan

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/welth/internal/archive"
	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/jobs"
	"github.com/dvloznov/welth/internal/receipt"
	"github.com/dvloznov/welth/internal/reconcile"
)

// CategoryLister is the slice of the persistence surface the scan pipeline
// needs: the taxonomy to resolve draft category names against.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// Service handles scan-receipt jobs. Every failure mode downstream of a
// successful enqueue is absorbed into the form session as an advisory; the
// returned error only annotates the job record.
type Service struct {
	extractor  receipt.Extractor
	sessions   *reconcile.Store
	categories CategoryLister
	archive    *archive.Archive
	log        zerolog.Logger
}

// NewService wires the scan pipeline.
func NewService(extractor receipt.Extractor, sessions *reconcile.Store, categories CategoryLister, arch *archive.Archive, log zerolog.Logger) *Service {
	return &Service{
		extractor:  extractor,
		sessions:   sessions,
		categories: categories,
		archive:    arch,
		log:        log.With().Str("component", "scan").Logger(),
	}
}

// Handle implements jobs.JobHandler for scan-receipt jobs.
func (s *Service) Handle(ctx context.Context, job jobs.Job) error {
	scanJob, ok := job.(*jobs.ScanReceiptJob)
	if !ok {
		return fmt.Errorf("scan: unexpected job type %s", job.GetType())
	}
	return s.process(ctx, scanJob)
}

func (s *Service) process(ctx context.Context, job *jobs.ScanReceiptJob) error {
	log := s.log.With().
		Str("job_id", job.JobID).
		Str("session_id", job.SessionID).
		Logger()

	session, err := s.sessions.Get(job.SessionID, job.UserID)
	if err != nil {
		// The user abandoned the form before the scan landed. Nothing to
		// merge into, nothing to report.
		log.Info().Msg("Form session gone, dropping scan result")
		return fmt.Errorf("scan: session no longer live: %w", err)
	}

	image := job.Image
	if len(image) == 0 && job.ImageGCSURI != "" {
		image, err = s.archive.Fetch(ctx, job.ImageGCSURI)
		if err != nil {
			log.Error().Err(err).Str("uri", job.ImageGCSURI).Msg("Failed to fetch archived receipt image")
			session.FailScan()
			return fmt.Errorf("scan: fetch archived image: %w", err)
		}
	}

	rawText, err := s.extractor.Extract(ctx, image, job.MimeType)
	if err != nil {
		log.Warn().Err(err).Msg("Receipt extraction failed")
		session.FailScan()
		return fmt.Errorf("scan: extract: %w", err)
	}

	draft, warnings, err := receipt.Normalize(rawText, job.CreatedAt)
	if err != nil {
		log.Warn().Err(err).Msg("Extraction output unusable")
		session.FailScan()
		return fmt.Errorf("scan: normalize: %w", err)
	}

	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load categories for draft resolution")
		session.FailScan()
		return fmt.Errorf("scan: list categories: %w", err)
	}

	if !session.ApplyDraft(draft, categories, warnings) {
		// Closed session or empty draft; the session already recorded any
		// advisory it wants the user to see.
		log.Info().Msg("Draft not applied")
		return nil
	}

	log.Info().Int("warnings", len(warnings)).Msg("Receipt draft applied to form session")
	return nil
}
