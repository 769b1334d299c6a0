package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Gustavohsdd/araujo-ptc/internal/procurement"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// OrderReader is the slice of the procurement service the matcher needs.
type OrderReader interface {
	GetOrderLines(ctx context.Context, orderID, supplier string) ([]procurement.PurchaseOrderLine, error)
}

// Service runs the reconciliation matcher.
type Service struct {
	repo   Repository
	orders OrderReader
	logger *slog.Logger
}

// NewService constructs the reconciliation service.
func NewService(repo Repository, orders OrderReader, logger *slog.Logger) *Service {
	return &Service{repo: repo, orders: orders, logger: logger}
}

// Preview partitions the invoice lines against the order without writing
// anything. Safe to run concurrently; results are advisory.
func (s *Service) Preview(ctx context.Context, input MatchInput) (MatchResult, error) {
	result, _, err := s.partition(ctx, input)
	return result, err
}

// Match partitions and commits the resulting statuses: matched order lines
// become INVOICED, open lines absent from the invoice become CUT, and the
// invoice is marked conciliated and linked to the order. All mutations of one
// order apply in a single write.
func (s *Service) Match(ctx context.Context, input MatchInput) (MatchResult, error) {
	result, commit, err := s.partition(ctx, input)
	if err != nil {
		return MatchResult{}, err
	}
	if err := s.repo.CommitMatch(ctx, commit); err != nil {
		return MatchResult{}, err
	}
	s.logger.Info("order reconciled",
		slog.String("order_id", input.OrderID),
		slog.String("access_key", input.AccessKey),
		slog.Int("matched", len(result.Matched)),
		slog.Int("cut", len(result.CutItems)))
	return result, nil
}

// CreateMapping records an operator-confirmed description-to-item mapping.
func (s *Service) CreateMapping(ctx context.Context, description, itemKey string) error {
	description = strings.TrimSpace(description)
	itemKey = strings.TrimSpace(itemKey)
	if description == "" || itemKey == "" {
		return fmt.Errorf("%w: description and item key are required", shared.ErrValidation)
	}
	return s.repo.UpsertMapping(ctx, Mapping{Description: description, ItemKey: itemKey})
}

func (s *Service) partition(ctx context.Context, input MatchInput) (MatchResult, CommitMatchInput, error) {
	if _, err := s.repo.GetInvoice(ctx, input.AccessKey); err != nil {
		return MatchResult{}, CommitMatchInput{}, fmt.Errorf("load invoice %s: %w", input.AccessKey, err)
	}
	lines, err := s.repo.GetInvoiceLines(ctx, input.AccessKey)
	if err != nil {
		return MatchResult{}, CommitMatchInput{}, err
	}
	orderLines, err := s.orders.GetOrderLines(ctx, input.OrderID, input.Supplier)
	if err != nil {
		return MatchResult{}, CommitMatchInput{}, fmt.Errorf("load order %s/%s: %w", input.OrderID, input.Supplier, err)
	}
	mappings, err := s.repo.ListMappings(ctx)
	if err != nil {
		return MatchResult{}, CommitMatchInput{}, err
	}

	byKey := make(map[string]procurement.PurchaseOrderLine, len(orderLines))
	for _, ol := range orderLines {
		byKey[ol.ProductKey] = ol
	}

	result := MatchResult{OrderID: input.OrderID, Supplier: input.Supplier, AccessKey: input.AccessKey}
	matchedKeys := make(map[string]struct{})
	for _, line := range lines {
		key, mapped := mappings[strings.TrimSpace(line.Description)]
		if !mapped {
			result.UnmatchedLines = append(result.UnmatchedLines, line.Description)
			continue
		}
		if _, onOrder := byKey[key]; !onOrder {
			result.UnmatchedLines = append(result.UnmatchedLines, line.Description)
			continue
		}
		matchedKeys[key] = struct{}{}
		result.Matched = append(result.Matched, LineMatch{
			LineNumber:  line.LineNumber,
			Description: line.Description,
			ItemKey:     key,
		})
	}

	commit := CommitMatchInput{OrderID: input.OrderID, Supplier: input.Supplier, AccessKey: input.AccessKey}
	for _, ol := range orderLines {
		if _, matched := matchedKeys[ol.ProductKey]; matched {
			commit.Invoiced = append(commit.Invoiced, ol.ProductKey)
			continue
		}
		// Only open lines are cut; terminal statuses never regress.
		if !ol.Status.Terminal() {
			result.CutItems = append(result.CutItems, ol.ProductKey)
			commit.Cut = append(commit.Cut, ol.ProductKey)
		}
	}

	return result, commit, nil
}
