package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source provides the reads the gate depends on.
type Source interface {
	ActiveVersions(ctx context.Context) (*types.ActiveVersions, error)
	CurrentAge(ctx context.Context, userID string) (*types.AgeVerification, error)
	CurrentConsent(ctx context.Context, userID string) (*types.ConsentRecord, error)
	LatestRevocation(ctx context.Context, userID string) (*types.AuditEvent, error)
	History(ctx context.Context, docType enum.DocumentType) ([]*types.LegalDocument, error)
}

// Evaluator gathers gate inputs from a source and decides.
type Evaluator struct {
	source Source
	logger *zap.Logger
}

// NewEvaluator creates a new gate evaluator.
func NewEvaluator(source Source, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		source: source,
		logger: logger.Named("gate"),
	}
}

// Evaluate returns the consent status of a user. An unresolved principal fails
// closed. Any read error is returned and the caller must not admit the user.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) (*types.ConsentStatus, error) {
	if userID == "" {
		e.logger.Debug("Evaluated unresolved principal, failing closed")
		return types.FailClosedStatus(), nil
	}

	in, err := e.gather(ctx, userID)
	if err != nil {
		e.logger.Error("Failed to gather gate inputs", zap.String("userID", userID), zap.Error(err))
		return nil, err
	}

	status := Decide(*in)

	e.logger.Debug("Evaluated gate",
		zap.String("userID", userID),
		zap.Bool("needsAgeVerification", status.NeedsAgeVerification),
		zap.Bool("needsTermsAcceptance", status.NeedsTermsAcceptance),
		zap.Bool("needsReacceptance", status.NeedsReacceptance))

	return status, nil
}

// gather fetches all inputs concurrently, then fetches history only for stale document types.
func (e *Evaluator) gather(ctx context.Context, userID string) (*Inputs, error) {
	in := &Inputs{UserID: userID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		active, err := e.source.ActiveVersions(gctx)
		if err != nil {
			return fmt.Errorf("failed to get active documents: %w", err)
		}
		in.Active = active
		return nil
	})
	g.Go(func() error {
		age, err := e.source.CurrentAge(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get age verification: %w", err)
		}
		in.Age = age
		return nil
	})
	g.Go(func() error {
		consent, err := e.source.CurrentConsent(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get consent: %w", err)
		}
		in.Consent = consent
		return nil
	})
	g.Go(func() error {
		revocation, err := e.source.LatestRevocation(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get revocation: %w", err)
		}
		in.Revocation = revocation
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if in.Age == nil || in.Age.NeedsReverification || in.Consent == nil || in.Revoked() {
		return in, nil
	}

	stale := in.StaleTypes()
	if len(stale) == 0 {
		return in, nil
	}

	var mu sync.Mutex
	in.History = make(map[enum.DocumentType][]*types.LegalDocument, len(stale))

	g, gctx = errgroup.WithContext(ctx)
	for _, docType := range stale {
		g.Go(func() error {
			history, err := e.source.History(gctx, docType)
			if err != nil {
				return fmt.Errorf("failed to get %s history: %w", docType, err)
			}

			mu.Lock()
			in.History[docType] = history
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return in, nil
}
