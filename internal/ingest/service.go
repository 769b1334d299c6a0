// Package ingest accepts batches of NF-e documents, deduplicates them by
// access key and persists the accepted ones under the commit lock.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/observability"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Document is one uploaded NF-e file, already base64-decoded.
type Document struct {
	Name    string
	Content []byte
}

// BatchResult reports the outcome counters of one ingestion batch.
type BatchResult struct {
	Accepted   int    `json:"acceptedCount"`
	Duplicates int    `json:"duplicateCount"`
	Errored    int    `json:"erroredCount"`
	Message    string `json:"message"`
}

// Service runs the ingestion pipeline.
type Service struct {
	repo    Repository
	newLock func() shared.Locker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs the ingestion service.
func NewService(repo Repository, newLock func() shared.Locker, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, newLock: newLock, logger: logger, metrics: metrics}
}

// IngestBatch parses and persists a batch of documents. Duplicates (already
// stored, or earlier in this same batch) are skipped without touching the
// store; per-document parse failures are counted and do not abort the batch.
// The whole commit runs under the shared advisory lock.
func (s *Service) IngestBatch(ctx context.Context, docs []Document) (BatchResult, error) {
	if len(docs) == 0 {
		return BatchResult{}, fmt.Errorf("%w: empty batch", shared.ErrValidation)
	}

	lock := s.newLock()
	if err := lock.Acquire(ctx); err != nil {
		return BatchResult{}, err
	}
	defer func() { _ = lock.Release(ctx) }()

	// Known keys are loaded once and threaded through the batch; keys
	// accepted earlier in this batch count as known for later documents.
	known, err := s.repo.ListAccessKeys(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, doc := range docs {
		bundle, err := nfe.Parse(doc.Content)
		if err != nil {
			result.Errored++
			s.logger.Warn("document rejected by parser",
				slog.String("document", doc.Name), slog.Any("error", err))
			continue
		}
		key := bundle.Invoice.AccessKey
		if _, dup := known[key]; dup {
			result.Duplicates++
			continue
		}
		if err := s.persist(ctx, bundle); err != nil {
			result.Errored++
			s.logger.Error("document commit failed",
				slog.String("document", doc.Name), slog.String("access_key", key), slog.Any("error", err))
			continue
		}
		known[key] = struct{}{}
		result.Accepted++
	}

	result.Message = fmt.Sprintf("%d accepted, %d duplicates, %d errors", result.Accepted, result.Duplicates, result.Errored)
	s.metrics.ObserveIngest(result.Accepted, result.Duplicates, result.Errored)
	return result, nil
}

// Reingest replaces a previously stored invoice with a fresh parse of the
// document, deleting the old rows and inserting the new ones in one
// transaction. Recovery path for a partial prior failure.
func (s *Service) Reingest(ctx context.Context, accessKey string, doc Document) error {
	bundle, err := nfe.Parse(doc.Content)
	if err != nil {
		return err
	}
	if bundle.Invoice.AccessKey != accessKey {
		return fmt.Errorf("%w: document access key %s does not match %s",
			shared.ErrValidation, bundle.Invoice.AccessKey, accessKey)
	}

	lock := s.newLock()
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = lock.Release(ctx) }()

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteInvoiceData(ctx, accessKey); err != nil {
			return err
		}
		return insertBundle(ctx, tx, bundle)
	})
}

func (s *Service) persist(ctx context.Context, bundle *nfe.Document) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return insertBundle(ctx, tx, bundle)
	})
}

func insertBundle(ctx context.Context, tx TxRepository, bundle *nfe.Document) error {
	if err := tx.InsertInvoice(ctx, bundle.Invoice); err != nil {
		return err
	}
	if err := tx.InsertLineItems(ctx, bundle.Lines); err != nil {
		return err
	}
	if err := tx.InsertInstallments(ctx, bundle.Installments); err != nil {
		return err
	}
	return tx.InsertTaxTotals(ctx, bundle.Taxes)
}
