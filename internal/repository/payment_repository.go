package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// PaymentRepo persists payments, the escrow wallet singleton and the
// wallet transaction ledger. Money movements run inside one transaction
// that locks the payment row first.
type PaymentRepo struct{ DB *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{DB: db} }

const paymentColumns = `id, reference, booking_id, customer_id, provider_id, amount, tip_amount, currency,
	commission_rate, commission_amount, provider_payout, status, escrow_status, external_transaction_id,
	paid_at, released_at, refunded_at, created_at, updated_at`

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p                            model.Payment
		external                     sql.NullString
		paidAt, releasedAt, refunded sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Reference, &p.BookingID, &p.CustomerID, &p.ProviderID, &p.Amount, &p.TipAmount, &p.Currency,
		&p.CommissionRate, &p.CommissionAmount, &p.ProviderPayout, &p.Status, &p.EscrowStatus, &external,
		&paidAt, &releasedAt, &refunded, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.ExternalTransactionID = external.String
	p.PaidAt = timePtr(paidAt)
	p.ReleasedAt = timePtr(releasedAt)
	p.RefundedAt = timePtr(refunded)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (r *PaymentRepo) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := r.DB.ExecContext(ctx, "INSERT INTO payments ("+paymentColumns+") VALUES ("+placeholders(19)+")",
		p.ID, p.Reference, p.BookingID, p.CustomerID, p.ProviderID, p.Amount, p.TipAmount, p.Currency,
		p.CommissionRate, p.CommissionAmount, p.ProviderPayout, p.Status, p.EscrowStatus, nullString(&p.ExternalTransactionID),
		nullTime(p.PaidAt), nullTime(p.ReleasedAt), nullTime(p.RefundedAt), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id=? LIMIT 1", id))
}

func (r *PaymentRepo) FindPendingPayment(ctx context.Context, bookingID string) (*model.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id=? AND status='pending' ORDER BY created_at DESC, reference DESC LIMIT 1",
		bookingID))
}

func (r *PaymentRepo) SetExternalTransaction(ctx context.Context, paymentID, externalID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE payments SET external_transaction_id=?, updated_at=UTC_TIMESTAMP() WHERE id=?", externalID, paymentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// withPayment runs fn in a transaction holding the payment row lock.
func (r *PaymentRepo) withPayment(ctx context.Context, paymentID string, fn func(tx *sql.Tx, p *model.Payment) (bool, error)) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	p, err := scanPayment(tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id=? FOR UPDATE", paymentID))
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	applied, err := fn(tx, p)
	if err != nil || !applied {
		_ = tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyDeposit moves a pending payment into escrow and the booking to
// paid_to_escrow. A payment that is no longer pending is left alone.
//
// The booking row is locked too, so of two payments confirmed at the same
// time only the first becomes the booking's payment. The other one is
// still recorded as held, leaving the booking untouched, and the service
// refunds it.
func (r *PaymentRepo) ApplyDeposit(ctx context.Context, d model.Deposit) (bool, error) {
	return r.withPayment(ctx, d.PaymentID, func(tx *sql.Tx, p *model.Payment) (bool, error) {
		if p.Status != model.PaymentStatusPending {
			return false, nil
		}
		var backing sql.NullString
		if err := tx.QueryRowContext(ctx,
			"SELECT payment_id FROM bookings WHERE id=? FOR UPDATE", p.BookingID).Scan(&backing); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, ErrNotFound
			}
			return false, fmt.Errorf("lock booking: %w", err)
		}
		at := d.At.UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE payments SET status='paid', escrow_status='held',
			external_transaction_id=COALESCE(NULLIF(?,''), external_transaction_id), paid_at=?, updated_at=? WHERE id=?`,
			d.ExternalID, at, at, p.ID); err != nil {
			return false, fmt.Errorf("deposit payment: %w", err)
		}
		if !backing.Valid || backing.String == p.ID {
			if _, err := tx.ExecContext(ctx, `UPDATE bookings SET payment_id=?, payment_status='paid_to_escrow',
				status=IF(status='pending_payment','pending_acceptance',status), escrow_amount=?,
				customer_chat_token=COALESCE(NULLIF(customer_chat_token,''), ?), updated_at=? WHERE id=?`,
				p.ID, p.Amount, d.CustomerChatToken, at, p.BookingID); err != nil {
				return false, fmt.Errorf("deposit booking: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE escrow_wallet SET total_held=total_held+?, updated_at=? WHERE id=1", p.Amount, at); err != nil {
			return false, fmt.Errorf("deposit wallet: %w", err)
		}
		err := insertTx(ctx, tx, model.WalletTransaction{
			ID: d.TransactionID, Type: model.TxDeposit, Amount: p.Amount,
			BookingID: p.BookingID, PaymentID: p.ID, Description: "Payment deposited to escrow", CreatedAt: at,
		})
		return err == nil, err
	})
}

// ApplyRelease pays held escrow out to the provider and books commission
// and any SLA penalty.
func (r *PaymentRepo) ApplyRelease(ctx context.Context, s model.Settlement) (bool, error) {
	return r.withPayment(ctx, s.PaymentID, func(tx *sql.Tx, p *model.Payment) (bool, error) {
		if p.EscrowStatus != model.EscrowHeld {
			return false, nil
		}
		at := s.At.UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE payments SET status='completed', escrow_status='released',
			commission_rate=?, commission_amount=?, provider_payout=?, released_at=?, updated_at=? WHERE id=?`,
			s.CommissionRate, s.CommissionAmount, s.ProviderPayout, at, at, p.ID); err != nil {
			return false, fmt.Errorf("release payment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE bookings SET payment_status='released_to_provider',
			commission_amount=?, provider_payout_amount=?, updated_at=? WHERE id=?`,
			s.CommissionAmount, s.ProviderPayout, at, p.BookingID); err != nil {
			return false, fmt.Errorf("release booking: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE provider_profiles SET wallet_balance=wallet_balance+? WHERE user_id=?",
			s.ProviderPayout, p.ProviderID); err != nil {
			return false, fmt.Errorf("credit provider: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE escrow_wallet SET total_held=total_held-?,
			total_released=total_released+?, total_commission=total_commission+?, updated_at=? WHERE id=1`,
			p.Amount, s.ProviderPayout, s.CommissionAmount, at); err != nil {
			return false, fmt.Errorf("release wallet: %w", err)
		}
		provider := p.ProviderID
		rows := []model.WalletTransaction{
			{ID: s.TransactionIDs[0], Type: model.TxRelease, Amount: s.ProviderPayout, ProviderID: &provider, Description: "Escrow released to provider"},
			{ID: s.TransactionIDs[1], Type: model.TxCommission, Amount: s.CommissionAmount, Description: "Platform commission"},
		}
		if s.SLAPenalty.IsPositive() {
			rows = append(rows, model.WalletTransaction{ID: s.TransactionIDs[2], Type: model.TxSLAPenalty, Amount: s.SLAPenalty, ProviderID: &provider, Description: "SLA penalty withheld"})
		}
		for _, t := range rows {
			t.BookingID, t.PaymentID, t.CreatedAt = p.BookingID, p.ID, at
			if err := insertTx(ctx, tx, t); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// ApplyRefund hands held escrow back to the customer.
func (r *PaymentRepo) ApplyRefund(ctx context.Context, rf model.Refund) (bool, error) {
	return r.withPayment(ctx, rf.PaymentID, func(tx *sql.Tx, p *model.Payment) (bool, error) {
		if p.EscrowStatus != model.EscrowHeld {
			return false, nil
		}
		at := rf.At.UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE payments SET status='refunded', escrow_status='refunded',
			refunded_at=?, updated_at=? WHERE id=?`, at, at, p.ID); err != nil {
			return false, fmt.Errorf("refund payment: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE bookings SET payment_status='refunded', updated_at=? WHERE id=? AND payment_id=?",
			at, p.BookingID, p.ID); err != nil {
			return false, fmt.Errorf("refund booking: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE escrow_wallet SET total_held=total_held-?, updated_at=? WHERE id=1", p.Amount, at); err != nil {
			return false, fmt.Errorf("refund wallet: %w", err)
		}
		err := insertTx(ctx, tx, model.WalletTransaction{
			ID: rf.TransactionID, Type: model.TxRefund, Amount: p.Amount,
			BookingID: p.BookingID, PaymentID: p.ID, Description: "Escrow refunded to customer", CreatedAt: at,
		})
		return err == nil, err
	})
}

func insertTx(ctx context.Context, tx *sql.Tx, t model.WalletTransaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO wallet_transactions
		(id, type, amount, booking_id, payment_id, provider_id, description, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Type, t.Amount, t.BookingID, t.PaymentID, nullUint(t.ProviderID), t.Description, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert wallet transaction %s: %w", t.Type, err)
	}
	return nil
}

func (r *PaymentRepo) GetEscrowWallet(ctx context.Context) (model.EscrowWallet, error) {
	var w model.EscrowWallet
	err := r.DB.QueryRowContext(ctx,
		"SELECT total_held, total_released, total_commission, updated_at FROM escrow_wallet WHERE id=1").
		Scan(&w.TotalHeld, &w.TotalReleased, &w.TotalCommission, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

// ListWalletTransactions returns ledger rows oldest first, filtered by
// booking when bookingID is set.
func (r *PaymentRepo) ListWalletTransactions(ctx context.Context, bookingID string) ([]model.WalletTransaction, error) {
	q := "SELECT id, type, amount, booking_id, payment_id, provider_id, description, created_at FROM wallet_transactions"
	var args []any
	if bookingID != "" {
		q += " WHERE booking_id=?"
		args = append(args, bookingID)
	}
	q += " ORDER BY created_at, seq"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.WalletTransaction, 0)
	for rows.Next() {
		var (
			t        model.WalletTransaction
			provider sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.BookingID, &t.PaymentID, &provider, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.ProviderID = uintPtr(provider)
		out = append(out, t)
	}
	return out, rows.Err()
}
