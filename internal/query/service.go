package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"MarketSettle/internal/ledger"
	"MarketSettle/internal/orders"
)

// Service provides read-only views over settlement state: seller balances,
// transaction history, order status and the review queue.
type Service struct {
	ledger *ledger.Store
	orders *orders.Store
}

func NewService(ledgerStore *ledger.Store, orderStore *orders.Store) *Service {
	return &Service{ledger: ledgerStore, orders: orderStore}
}

// SellerBalance returns the materialized balance alongside the balance
// reconstructed from the transaction log. DriftCents should always be zero;
// a nonzero value means the materialized cache diverged and needs repair.
func (s *Service) SellerBalance(ctx context.Context, sellerID uuid.UUID) (*BalanceView, error) {
	bal, err := s.ledger.Balance(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("seller balance: %w", err)
	}
	reconstructed, err := s.ledger.ReconstructBalance(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reconstruct balance: %w", err)
	}

	return &BalanceView{
		SellerID:            sellerID,
		BalanceCents:        bal.BalanceCents,
		TotalEarnedCents:    bal.TotalEarnedCents,
		ReconstructedCents:  reconstructed,
		DriftCents:          bal.BalanceCents - reconstructed,
		UpdatedAt:           bal.UpdatedAt,
	}, nil
}

// SellerTransactions returns the most recent entries of a seller's ledger.
func (s *Service) SellerTransactions(ctx context.Context, sellerID uuid.UUID, limit int) ([]ledger.BalanceTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txs, err := s.ledger.Transactions(ctx, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("seller transactions: %w", err)
	}
	return txs, nil
}

// OrderStatus returns one order with its line items, or nil when the order
// does not exist.
func (s *Service) OrderStatus(ctx context.Context, orderID uuid.UUID) (*orders.Order, error) {
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	return ord, nil
}

// OrdersUnderReview returns orders flagged during settlement, oldest first.
func (s *Service) OrdersUnderReview(ctx context.Context, limit int) ([]*orders.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	flagged, err := s.orders.UnderReview(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("review queue: %w", err)
	}
	return flagged, nil
}
