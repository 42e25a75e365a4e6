package coins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"amora-platform/pkg/utils"

	"github.com/google/uuid"
)

// Service provides coin wallet operations.
//
// Money invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only (immutable)
// - All money operations must be executed in a DB transaction
//
// Balance strategy:
// - Balance is stored in a projection table (coin_balances) updated atomically
//   alongside ledger inserts. Debit checks funds with the projection row locked,
//   so a concurrent charge from another session can never overdraw.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

type Balance struct {
	UserID    string    `json:"user_id"`
	Coins     int64     `json:"coins"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreditRequest struct {
	Coins          int64  `json:"coins"`
	ExternalRef    string `json:"external_ref,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description,omitempty"`
}

type DebitRequest struct {
	Coins          int64  `json:"coins"`
	ExternalRef    string `json:"external_ref,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description,omitempty"`
}

type AdminAdjustRequest struct {
	Coins          int64  `json:"coins"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")
)

func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	return getBalance(ctx, s.db, userID)
}

// CoinBalance satisfies the balance-reader seams in callstore and callsession.
// A missing projection row means the user simply has no coins yet.
func (s *Service) CoinBalance(ctx context.Context, userID string) (int64, error) {
	b, err := s.GetBalance(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return b.Coins, nil
}

func (s *Service) Credit(ctx context.Context, userID string, req CreditRequest) (LedgerEntry, Balance, error) {
	if err := validateMoneyReq(userID, req.Coins, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}

	now := s.clock().UTC()
	ledgerID := uuid.NewString()

	var outLedger LedgerEntry
	var outBal Balance

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Idempotency: if a ledger entry already exists for this user+key, return it.
		if existing, ok, err := findLedgerByIdempotency(ctx, tx, userID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outLedger = existing
			b, err := getBalanceTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			outBal = b
			return nil
		}

		entry := LedgerEntry{
			ID:             ledgerID,
			UserID:         userID,
			Type:           EntryTypeCredit,
			Coins:          req.Coins,
			ExternalRef:    req.ExternalRef,
			IdempotencyKey: req.IdempotencyKey,
			Description:    req.Description,
			CreatedAt:      now,
		}
		if err := insertLedger(ctx, tx, entry); err != nil {
			return err
		}

		b, err := applyBalanceDelta(ctx, tx, userID, req.Coins, now)
		if err != nil {
			return err
		}
		outLedger = entry
		outBal = b
		return nil
	})

	return outLedger, outBal, err
}

// Debit atomically checks funds and posts a debit. The balance row is locked
// for the duration of the transaction, so the check-and-charge cannot race a
// concurrent debit from another session.
func (s *Service) Debit(ctx context.Context, userID string, req DebitRequest) (LedgerEntry, Balance, error) {
	if err := validateMoneyReq(userID, req.Coins, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}

	now := s.clock().UTC()
	ledgerID := uuid.NewString()

	var outLedger LedgerEntry
	var outBal Balance

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if existing, ok, err := findLedgerByIdempotency(ctx, tx, userID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outLedger = existing
			b, err := getBalanceTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			outBal = b
			return nil
		}

		b, err := getBalanceForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInsufficientFunds
			}
			return err
		}
		if b.Coins < req.Coins {
			return ErrInsufficientFunds
		}

		entry := LedgerEntry{
			ID:             ledgerID,
			UserID:         userID,
			Type:           EntryTypeDebit,
			Coins:          -req.Coins,
			ExternalRef:    req.ExternalRef,
			IdempotencyKey: req.IdempotencyKey,
			Description:    req.Description,
			CreatedAt:      now,
		}
		if err := insertLedger(ctx, tx, entry); err != nil {
			return err
		}

		out, err := applyBalanceDelta(ctx, tx, userID, -req.Coins, now)
		if err != nil {
			return err
		}
		outLedger = entry
		outBal = out
		return nil
	})

	return outLedger, outBal, err
}

// ChargeCall posts one metering debit for a connected call. The idempotency key
// is derived from the call id and tick sequence so a retried tick can never
// double-charge. Returns the remaining balance.
func (s *Service) ChargeCall(ctx context.Context, userID, callID string, seq int, amount int64) (int64, error) {
	if callID == "" || seq < 0 {
		return 0, ErrInvalidArgument
	}
	_, bal, err := s.Debit(ctx, userID, DebitRequest{
		Coins:          amount,
		ExternalRef:    callID,
		IdempotencyKey: fmt.Sprintf("call:%s:%d", callID, seq),
		Description:    "voice call",
	})
	if err != nil {
		return 0, err
	}
	return bal.Coins, nil
}

// AdminAdjust posts a signed staff adjustment: positive coins credit the
// user, negative coins claw back. Clawbacks check funds with the balance row
// locked, like any other debit; an adjustment can never overdraw.
func (s *Service) AdminAdjust(ctx context.Context, userID, adminUserID string, req AdminAdjustRequest) (AdminAdjustment, LedgerEntry, Balance, error) {
	if adminUserID == "" || req.Reason == "" {
		return AdminAdjustment{}, LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if userID == "" || req.IdempotencyKey == "" || req.Coins == 0 {
		return AdminAdjustment{}, LedgerEntry{}, Balance{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	adjustmentID := uuid.NewString()
	ledgerID := uuid.NewString()

	var outAdj AdminAdjustment
	var outLedger LedgerEntry
	var outBal Balance

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if existing, ok, err := findLedgerByIdempotency(ctx, tx, userID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outLedger = existing
			b, err := getBalanceTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			outBal = b
			return nil
		}

		entryType := EntryTypeCredit
		if req.Coins < 0 {
			entryType = EntryTypeDebit
			b, err := getBalanceForUpdate(ctx, tx, userID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrInsufficientFunds
				}
				return err
			}
			if b.Coins < -req.Coins {
				return ErrInsufficientFunds
			}
		}

		entry := LedgerEntry{
			ID:             ledgerID,
			UserID:         userID,
			Type:           entryType,
			Coins:          req.Coins,
			ExternalRef:    "admin_adjustment",
			IdempotencyKey: req.IdempotencyKey,
			Description:    req.Reason,
			CreatedAt:      now,
		}
		if err := insertLedger(ctx, tx, entry); err != nil {
			return err
		}

		b, err := applyBalanceDelta(ctx, tx, userID, req.Coins, now)
		if err != nil {
			return err
		}

		adj := AdminAdjustment{
			ID:              adjustmentID,
			UserID:          userID,
			AdminUserID:     adminUserID,
			Reason:          req.Reason,
			Coins:           req.Coins,
			RelatedLedgerID: entry.ID,
			CreatedAt:       now,
		}
		if err := insertAdminAdjustment(ctx, tx, adj); err != nil {
			return err
		}

		outAdj = adj
		outLedger = entry
		outBal = b
		return nil
	})

	return outAdj, outLedger, outBal, err
}

// LedgerForRef returns all entries referencing an external id (e.g. one call).
// The end-of-call summary uses this to reconcile coins-used against the ledger.
func (s *Service) LedgerForRef(ctx context.Context, userID, externalRef string) ([]LedgerEntry, error) {
	if userID == "" || externalRef == "" {
		return nil, ErrInvalidArgument
	}
	return listLedgerByRef(ctx, s.db, userID, externalRef)
}

// Ledger returns the most recent entries for the coin-history view.
func (s *Service) Ledger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return listLedger(ctx, s.db, userID, limit)
}

func validateMoneyReq(userID string, coins int64, idempotencyKey string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	if idempotencyKey == "" {
		return ErrInvalidArgument
	}
	if coins <= 0 {
		return ErrInvalidArgument
	}
	return nil
}
