package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/swiftride/booking-backend/internal/models"
)

// PaymentRepository handles database operations for payment_transactions
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const transactionColumns = `id, booking_id, user_id, provider, phone, amount,
	currency, seats_purchased, external_ref, provider_ref, status,
	failure_reason, created_at, updated_at, completed_at`

// Create inserts a new pending transaction
func (r *PaymentRepository) Create(txn *models.PaymentTransaction) error {
	txn.ID = uuid.New()
	txn.Status = models.TransactionPending
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt

	query := `
		INSERT INTO payment_transactions (
			id, booking_id, user_id, provider, phone, amount, currency,
			seats_purchased, external_ref, provider_ref, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(query,
		txn.ID, txn.BookingID, txn.UserID, txn.Provider, txn.Phone,
		txn.Amount, txn.Currency, txn.SeatsPurchased, txn.ExternalRef,
		txn.ProviderRef, txn.Status, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

// GetByExternalRef retrieves a transaction by its gateway reference.
// Returns (nil, nil) when not found.
func (r *PaymentRepository) GetByExternalRef(ref string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE external_ref = $1`
	err := r.db.Get(&txn, query, ref)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return &txn, nil
}

// MarkSuccessful transitions a pending transaction to SUCCESSFUL.
// Returns false when the transaction was already terminal.
func (r *PaymentRepository) MarkSuccessful(txnID uuid.UUID) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = 'SUCCESSFUL', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	result, err := r.db.Exec(query, txnID)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction successful: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check transaction update: %w", err)
	}
	return rows > 0, nil
}

// MarkFailed transitions a pending transaction to FAILED with the
// gateway's decline reason. Returns false when already terminal.
func (r *PaymentRepository) MarkFailed(txnID uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = 'FAILED', failure_reason = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = 'PENDING'`

	result, err := r.db.Exec(query, reason, txnID)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check transaction update: %w", err)
	}
	return rows > 0, nil
}

// SetProviderRef records the gateway-issued transaction handle so
// status checks can resume after a restart
func (r *PaymentRepository) SetProviderRef(txnID uuid.UUID, providerRef string) error {
	query := `
		UPDATE payment_transactions
		SET provider_ref = $1, updated_at = NOW()
		WHERE id = $2`

	_, err := r.db.Exec(query, providerRef, txnID)
	if err != nil {
		return fmt.Errorf("failed to set provider ref: %w", err)
	}
	return nil
}

// ListPending retrieves all transactions still awaiting an outcome,
// oldest first
func (r *PaymentRepository) ListPending() ([]*models.PaymentTransaction, error) {
	txns := []*models.PaymentTransaction{}
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE status = 'PENDING' ORDER BY created_at ASC`
	if err := r.db.Select(&txns, query); err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txns, nil
}

// GetLatestByBooking retrieves the most recent transaction for a booking.
// Returns (nil, nil) when the booking has no transactions.
func (r *PaymentRepository) GetLatestByBooking(bookingID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE booking_id = $1 ORDER BY created_at DESC LIMIT 1`
	err := r.db.Get(&txn, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction: %w", err)
	}
	return &txn, nil
}
