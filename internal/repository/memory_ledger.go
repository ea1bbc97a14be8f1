package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

func (m *MemoryStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.bookings[p.BookingID]; !ok {
		return ErrNotFound
	}
	m.payments[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// FindPendingPayment returns the booking's most recent pending payment.
func (m *MemoryStore) FindPendingPayment(ctx context.Context, bookingID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Payment
	for _, p := range m.payments {
		if p.BookingID != bookingID || p.Status != model.PaymentStatusPending {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) ||
			(p.CreatedAt.Equal(found.CreatedAt) && p.Reference > found.Reference) {
			found = p
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

func (m *MemoryStore) SetExternalTransaction(ctx context.Context, paymentID, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	p.ExternalTransactionID = externalID
	p.UpdatedAt = m.now().UTC()
	return nil
}

// ApplyDeposit moves a pending payment into escrow. When the booking is
// already backed by another payment the money is still recorded as held,
// but the booking keeps pointing at its first payment; the caller refunds
// the duplicate.
func (m *MemoryStore) ApplyDeposit(ctx context.Context, d model.Deposit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[d.PaymentID]
	if !ok {
		return false, ErrNotFound
	}
	b, ok := m.bookings[p.BookingID]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	at := d.At.UTC()
	p.Status = model.PaymentStatusPaid
	p.EscrowStatus = model.EscrowHeld
	if d.ExternalID != "" {
		p.ExternalTransactionID = d.ExternalID
	}
	p.PaidAt = &at
	p.UpdatedAt = at

	m.wallet.TotalHeld = m.wallet.TotalHeld.Add(p.Amount)
	m.wallet.UpdatedAt = at
	m.appendTx(d.TransactionID, model.TxDeposit, p.Amount, p, nil, "Payment deposited to escrow", at)
	if b.PaymentID != nil && *b.PaymentID != p.ID {
		return true, nil
	}

	id := p.ID
	b.PaymentID = &id
	b.PaymentStatus = model.PaymentPaidToEscrow
	if b.Status == model.StatusPendingPayment {
		b.Status = model.StatusPendingAcceptance
	}
	b.EscrowAmount = p.Amount
	if b.CustomerChatToken == "" {
		b.CustomerChatToken = d.CustomerChatToken
	}
	b.UpdatedAt = at
	return true, nil
}

// ApplyRelease pays out held escrow according to s.
func (m *MemoryStore) ApplyRelease(ctx context.Context, s model.Settlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[s.PaymentID]
	if !ok {
		return false, ErrNotFound
	}
	b, ok := m.bookings[p.BookingID]
	if !ok {
		return false, ErrNotFound
	}
	if p.EscrowStatus != model.EscrowHeld {
		return false, nil
	}
	at := s.At.UTC()
	p.Status = model.PaymentStatusCompleted
	p.EscrowStatus = model.EscrowReleased
	p.CommissionRate = s.CommissionRate
	p.CommissionAmount = s.CommissionAmount
	p.ProviderPayout = s.ProviderPayout
	p.ReleasedAt = &at
	p.UpdatedAt = at

	b.PaymentStatus = model.PaymentReleasedToProvider
	b.CommissionAmount = s.CommissionAmount
	b.ProviderPayoutAmount = s.ProviderPayout
	b.UpdatedAt = at

	if prov, ok := m.providers[p.ProviderID]; ok {
		prov.WalletBalance = prov.WalletBalance.Add(s.ProviderPayout)
	}
	m.wallet.TotalHeld = m.wallet.TotalHeld.Sub(p.Amount)
	m.wallet.TotalReleased = m.wallet.TotalReleased.Add(s.ProviderPayout)
	m.wallet.TotalCommission = m.wallet.TotalCommission.Add(s.CommissionAmount)
	m.wallet.UpdatedAt = at

	provider := p.ProviderID
	m.appendTx(s.TransactionIDs[0], model.TxRelease, s.ProviderPayout, p, &provider, "Escrow released to provider", at)
	m.appendTx(s.TransactionIDs[1], model.TxCommission, s.CommissionAmount, p, nil, "Platform commission", at)
	if s.SLAPenalty.IsPositive() {
		m.appendTx(s.TransactionIDs[2], model.TxSLAPenalty, s.SLAPenalty, p, &provider, "SLA penalty withheld", at)
	}
	return true, nil
}

// ApplyRefund returns held escrow to the customer. The booking's payment
// status only follows the payment the booking is backed by.
func (m *MemoryStore) ApplyRefund(ctx context.Context, r model.Refund) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[r.PaymentID]
	if !ok {
		return false, ErrNotFound
	}
	b, ok := m.bookings[p.BookingID]
	if !ok {
		return false, ErrNotFound
	}
	if p.EscrowStatus != model.EscrowHeld {
		return false, nil
	}
	at := r.At.UTC()
	p.Status = model.PaymentStatusRefunded
	p.EscrowStatus = model.EscrowRefunded
	p.RefundedAt = &at
	p.UpdatedAt = at

	if b.PaymentID != nil && *b.PaymentID == p.ID {
		b.PaymentStatus = model.PaymentRefunded
		b.UpdatedAt = at
	}

	m.wallet.TotalHeld = m.wallet.TotalHeld.Sub(p.Amount)
	m.wallet.UpdatedAt = at
	m.appendTx(r.TransactionID, model.TxRefund, p.Amount, p, nil, "Escrow refunded to customer", at)
	return true, nil
}

func (m *MemoryStore) GetEscrowWallet(ctx context.Context) (model.EscrowWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallet, nil
}

// ListWalletTransactions returns the ledger rows of one booking, or every
// row when bookingID is empty.
func (m *MemoryStore) ListWalletTransactions(ctx context.Context, bookingID string) ([]model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WalletTransaction, 0)
	for _, t := range m.txs {
		if bookingID == "" || t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) appendTx(id string, typ model.WalletTxType, amount decimal.Decimal, p *model.Payment, provider *uint64, desc string, at time.Time) {
	m.txs = append(m.txs, model.WalletTransaction{
		ID:          id,
		Type:        typ,
		Amount:      amount,
		BookingID:   p.BookingID,
		PaymentID:   p.ID,
		ProviderID:  provider,
		Description: desc,
		CreatedAt:   at,
	})
}
