package procurement

import (
	"context"
	"fmt"

	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Service exposes purchase-order reads to the rest of the system.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListOpenOrders returns orders with at least one open line.
func (s *Service) ListOpenOrders(ctx context.Context) ([]OrderSummary, error) {
	return s.repo.ListOpenOrders(ctx)
}

// GetOrderLines loads the lines of one order for a supplier.
func (s *Service) GetOrderLines(ctx context.Context, orderID, supplier string) ([]PurchaseOrderLine, error) {
	if orderID == "" || supplier == "" {
		return nil, fmt.Errorf("%w: order id and supplier are required", shared.ErrValidation)
	}
	return s.repo.GetOrderLines(ctx, orderID, supplier)
}
