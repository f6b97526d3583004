package resolver

import (
	"context"
	"log/slog"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"
	"medibot/internal/normalize"
)

// PrescriptionSubmitter sends prescriptions to the intake API and, when that is
// unreachable, writes them straight into the account store.
type PrescriptionSubmitter struct {
	intake   domain.PrescriptionIntake
	accounts domain.AccountStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewPrescriptionSubmitter(intake domain.PrescriptionIntake, accounts domain.AccountStore, logger *slog.Logger) *PrescriptionSubmitter {
	return &PrescriptionSubmitter{intake: intake, accounts: accounts, logger: logger, now: time.Now}
}

// Submit returns the reference id of the stored prescription, or ok=false when both paths
// failed.
func (s *PrescriptionSubmitter) Submit(ctx context.Context, phone normalize.Phone, mediaRef, caption string) (string, bool) {
	if s.intake != nil {
		ref, err := s.intake.Submit(ctx, phone.String(), mediaRef, caption)
		if err == nil && ref != "" {
			return ref, true
		}
		s.logger.Warn("prescription intake failed, storing directly", "error", err)
	}

	if s.accounts == nil {
		return "", false
	}
	metrics.PrescriptionFallbacks.Inc()
	ref, err := s.accounts.SavePrescription(ctx, domain.Prescription{
		Phone:     phone.String(),
		MediaURL:  mediaRef,
		Caption:   caption,
		Status:    "pending",
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("prescription store fallback failed", "error", err)
		return "", false
	}
	return ref, true
}
