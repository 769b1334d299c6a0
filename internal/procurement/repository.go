package procurement

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gustavohsdd/araujo-ptc/internal/platform/db"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// RepositoryPort describes the read operations the service and the
// reconciliation matcher need.
type RepositoryPort interface {
	ListOpenOrders(ctx context.Context) ([]OrderSummary, error)
	GetOrderLines(ctx context.Context, orderID, supplier string) ([]PurchaseOrderLine, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

var _ RepositoryPort = (*Repository)(nil)

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOpenOrders returns orders that still have at least one open line.
func (r *Repository) ListOpenOrders(ctx context.Context) ([]OrderSummary, error) {
	const query = `
SELECT order_id, supplier,
       COUNT(*) AS line_count,
       COUNT(*) FILTER (WHERE status = 'OPEN') AS open_count
FROM purchase_order_lines
GROUP BY order_id, supplier
HAVING COUNT(*) FILTER (WHERE status = 'OPEN') > 0
ORDER BY order_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	var out []OrderSummary
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(&s.OrderID, &s.Supplier, &s.LineCount, &s.OpenCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOrderLines returns every line of one (order, supplier) pair. An order
// with no lines is treated as absent.
func (r *Repository) GetOrderLines(ctx context.Context, orderID, supplier string) ([]PurchaseOrderLine, error) {
	const query = `
SELECT order_id, supplier, product_key, quantity_requested, unit_price, status, updated_at
FROM purchase_order_lines
WHERE order_id = $1 AND supplier = $2
ORDER BY product_key`
	rows, err := r.pool.Query(ctx, query, orderID, supplier)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	var lines []PurchaseOrderLine
	for rows.Next() {
		var l PurchaseOrderLine
		if err := rows.Scan(&l.OrderID, &l.Supplier, &l.ProductKey, &l.QuantityRequested, &l.UnitPrice, &l.Status, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, shared.ErrNotFound
	}
	return lines, nil
}
