package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/internal/ledger"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
	"github.com/angelmondragon/supplyhub-backend/pkg/metrics"
)

// DefaultAutoReleaseDays is the release horizon stamped on new escrow records.
const DefaultAutoReleaseDays = 7

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var now = func() time.Time { return time.Now().UTC() }

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns every change to wallet balances and escrow records. Each
// method is one transaction; the *Tx variants join a caller's transaction so
// order and wallet writes commit together.
type Service interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*WalletDTO, error)
	TopUp(ctx context.Context, userID uuid.UUID, input AmountInput) (*WalletDTO, error)
	Withdraw(ctx context.Context, userID uuid.UUID, input AmountInput) (*WalletDTO, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]TransactionDTO, error)
	GetEscrow(ctx context.Context, escrowID uuid.UUID) (*EscrowDTO, error)

	HoldInEscrow(ctx context.Context, input HoldInput) (*EscrowDTO, error)
	ReleaseFromEscrow(ctx context.Context, escrowID, recipientID uuid.UUID) error
	RefundFromEscrow(ctx context.Context, escrowID uuid.UUID, reason string) error
	DisputeEscrow(ctx context.Context, escrowID, actorID uuid.UUID, reason string) error

	HoldInEscrowTx(ctx context.Context, tx *gorm.DB, input HoldInput) (*EscrowDTO, error)
	ReleaseFromEscrowTx(ctx context.Context, tx *gorm.DB, escrowID, recipientID uuid.UUID) error
	RefundFromEscrowTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID, reason string) error
}

type service struct {
	repo    ledger.Repository
	tx      txRunner
	log     *logger.Logger
	metrics *metrics.Engine
}

// NewService wires the wallet service. metrics may be nil.
func NewService(repo ledger.Repository, tx txRunner, log *logger.Logger, m *metrics.Engine) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, log: log, metrics: m}, nil
}

func (s *service) GetWallet(ctx context.Context, userID uuid.UUID) (*WalletDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.repo.EnsureWallet(ctx, userID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initialize wallet")
	}
	wallet, err := s.repo.FindWallet(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return mapWalletDTO(wallet), nil
}

func (s *service) TopUp(ctx context.Context, userID uuid.UUID, input AmountInput) (*WalletDTO, error) {
	if err := validateAmountInput(userID, input); err != nil {
		return nil, err
	}

	var result *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := s.lockActiveWallet(ctx, repo, userID)
		if err != nil {
			return err
		}

		method := input.Method
		entry := &models.WalletTransaction{
			Type:          enums.TransactionTypeDeposit,
			AmountCents:   input.AmountCents,
			PaymentMethod: &method,
			Description:   fmt.Sprintf("Top up via %s", method),
		}
		before := wallet.BalanceCents
		wallet.BalanceCents += input.AmountCents
		wallet.TotalEarningsCents += input.AmountCents
		if err := s.record(ctx, repo, wallet, before, entry); err != nil {
			return err
		}
		result = wallet
		return nil
	})
	s.metrics.WalletOp("top_up", err)
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"amount_cents": input.AmountCents,
	}), "wallet topped up")
	return mapWalletDTO(result), nil
}

func (s *service) Withdraw(ctx context.Context, userID uuid.UUID, input AmountInput) (*WalletDTO, error) {
	if err := validateAmountInput(userID, input); err != nil {
		return nil, err
	}

	var result *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := s.lockActiveWallet(ctx, repo, userID)
		if err != nil {
			return err
		}
		if wallet.BalanceCents < input.AmountCents {
			return insufficientFunds(wallet.BalanceCents, input.AmountCents)
		}

		method := input.Method
		entry := &models.WalletTransaction{
			Type:          enums.TransactionTypeWithdrawal,
			AmountCents:   -input.AmountCents,
			PaymentMethod: &method,
			Description:   fmt.Sprintf("Withdrawal to %s", method),
		}
		before := wallet.BalanceCents
		wallet.BalanceCents -= input.AmountCents
		if err := s.record(ctx, repo, wallet, before, entry); err != nil {
			return err
		}
		result = wallet
		return nil
	})
	s.metrics.WalletOp("withdraw", err)
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"amount_cents": input.AmountCents,
	}), "wallet withdrawal")
	return mapWalletDTO(result), nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]TransactionDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	txns, err := s.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	out := make([]TransactionDTO, 0, len(txns))
	for _, txn := range txns {
		out = append(out, mapTransactionDTO(txn))
	}
	return out, nil
}

func (s *service) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*EscrowDTO, error) {
	escrow, err := s.repo.FindEscrow(ctx, escrowID)
	if err != nil {
		return nil, escrowLoadError(err)
	}
	return mapEscrowDTO(escrow), nil
}

func (s *service) HoldInEscrow(ctx context.Context, input HoldInput) (*EscrowDTO, error) {
	var result *EscrowDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.HoldInEscrowTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ReleaseFromEscrow(ctx context.Context, escrowID, recipientID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReleaseFromEscrowTx(ctx, tx, escrowID, recipientID)
	})
}

func (s *service) RefundFromEscrow(ctx context.Context, escrowID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.RefundFromEscrowTx(ctx, tx, escrowID, reason)
	})
}

// HoldInEscrowTx debits the payer's balance into escrow. It is the only path
// that raises an escrow balance.
func (s *service) HoldInEscrowTx(ctx context.Context, tx *gorm.DB, input HoldInput) (*EscrowDTO, error) {
	escrow, err := s.holdInEscrow(ctx, s.repo.WithTx(tx), input)
	s.metrics.WalletOp("escrow_hold", err)
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"escrow_id":    escrow.ID.String(),
		"order_id":     input.OrderID.String(),
		"amount_cents": input.AmountCents,
	}), "funds held in escrow")
	return mapEscrowDTO(escrow), nil
}

func (s *service) holdInEscrow(ctx context.Context, repo ledger.Repository, input HoldInput) (*models.EscrowRecord, error) {
	if input.PayerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	wallet, err := s.lockActiveWallet(ctx, repo, input.PayerID)
	if err != nil {
		return nil, err
	}
	if wallet.BalanceCents < input.AmountCents {
		return nil, insufficientFunds(wallet.BalanceCents, input.AmountCents)
	}

	releaseAt := now().AddDate(0, 0, DefaultAutoReleaseDays)
	escrow := &models.EscrowRecord{
		PayerID:                      input.PayerID,
		OrderID:                      input.OrderID,
		AmountCents:                  input.AmountCents,
		Status:                       enums.EscrowStatusHeld,
		Description:                  input.Description,
		RequiresDeliveryConfirmation: true,
		AutoReleaseAfterDays:         DefaultAutoReleaseDays,
		AutoReleaseAt:                &releaseAt,
	}
	if err := repo.CreateEscrow(ctx, escrow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow")
	}

	orderID := input.OrderID
	entry := &models.WalletTransaction{
		Type:            enums.TransactionTypeEscrowHold,
		AmountCents:     -input.AmountCents,
		EscrowID:        &escrow.ID,
		RelatedEntityID: &orderID,
		Description:     input.Description,
	}
	before := wallet.BalanceCents
	wallet.BalanceCents -= input.AmountCents
	wallet.EscrowBalanceCents += input.AmountCents
	wallet.TotalSpentCents += input.AmountCents
	if err := s.record(ctx, repo, wallet, before, entry); err != nil {
		return nil, err
	}
	return escrow, nil
}

// ReleaseFromEscrowTx settles a held escrow to recipientID as a balanced pair
// of escrow_release entries. The payer's spendable balance is untouched.
func (s *service) ReleaseFromEscrowTx(ctx context.Context, tx *gorm.DB, escrowID, recipientID uuid.UUID) error {
	err := s.releaseFromEscrow(ctx, s.repo.WithTx(tx), escrowID, recipientID)
	s.metrics.WalletOp("escrow_release", err)
	if err != nil {
		return err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"escrow_id":    escrowID.String(),
		"recipient_id": recipientID.String(),
	}), "escrow released")
	return nil
}

func (s *service) releaseFromEscrow(ctx context.Context, repo ledger.Repository, escrowID, recipientID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	escrow, err := s.lockHeldEscrow(ctx, repo, escrowID)
	if err != nil {
		return err
	}

	wallets, err := s.lockWallets(ctx, repo, escrow.PayerID, recipientID)
	if err != nil {
		return err
	}
	payer, recipient := wallets[escrow.PayerID], wallets[recipientID]
	if payer.EscrowBalanceCents < escrow.AmountCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "escrow balance out of sync")
	}

	payerEntry := &models.WalletTransaction{
		Type:            enums.TransactionTypeEscrowRelease,
		AmountCents:     -escrow.AmountCents,
		EscrowID:        &escrow.ID,
		RelatedEntityID: &escrow.OrderID,
		Description:     "Escrow released to recipient",
	}
	payer.EscrowBalanceCents -= escrow.AmountCents
	if err := s.record(ctx, repo, payer, payer.BalanceCents, payerEntry); err != nil {
		return err
	}

	recipientEntry := &models.WalletTransaction{
		Type:            enums.TransactionTypeEscrowRelease,
		AmountCents:     escrow.AmountCents,
		EscrowID:        &escrow.ID,
		RelatedEntityID: &escrow.OrderID,
		Description:     "Escrow payment received",
	}
	before := recipient.BalanceCents
	recipient.BalanceCents += escrow.AmountCents
	recipient.TotalEarningsCents += escrow.AmountCents
	if err := s.record(ctx, repo, recipient, before, recipientEntry); err != nil {
		return err
	}

	settledAt := now()
	return s.settleEscrow(ctx, repo, escrow.ID, map[string]any{
		"status":       enums.EscrowStatusReleased,
		"recipient_id": recipientID,
		"settled_at":   settledAt,
	})
}

// RefundFromEscrowTx returns held funds to the payer and reverses the spend
// recorded at hold time.
func (s *service) RefundFromEscrowTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID, reason string) error {
	err := s.refundFromEscrow(ctx, s.repo.WithTx(tx), escrowID, reason)
	s.metrics.WalletOp("escrow_refund", err)
	if err != nil {
		return err
	}
	s.log.Info(s.log.WithField(ctx, "escrow_id", escrowID.String()), "escrow refunded")
	return nil
}

func (s *service) refundFromEscrow(ctx context.Context, repo ledger.Repository, escrowID uuid.UUID, reason string) error {
	escrow, err := s.lockHeldEscrow(ctx, repo, escrowID)
	if err != nil {
		return err
	}
	payer, err := repo.LockWallet(ctx, escrow.PayerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if payer.EscrowBalanceCents < escrow.AmountCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "escrow balance out of sync")
	}

	description := "Escrow refunded"
	if reason != "" {
		description = fmt.Sprintf("Escrow refunded: %s", reason)
	}
	entry := &models.WalletTransaction{
		Type:            enums.TransactionTypeRefund,
		AmountCents:     escrow.AmountCents,
		EscrowID:        &escrow.ID,
		RelatedEntityID: &escrow.OrderID,
		Description:     description,
	}
	before := payer.BalanceCents
	payer.BalanceCents += escrow.AmountCents
	payer.EscrowBalanceCents -= escrow.AmountCents
	payer.TotalSpentCents -= escrow.AmountCents
	if err := s.record(ctx, repo, payer, before, entry); err != nil {
		return err
	}

	updates := map[string]any{
		"status":     enums.EscrowStatusRefunded,
		"settled_at": now(),
	}
	if reason != "" {
		updates["reason"] = reason
	}
	return s.settleEscrow(ctx, repo, escrow.ID, updates)
}

// DisputeEscrow freezes a held escrow at the payer's request. Funds stay in
// escrow; a disputed record accepts no further release or refund.
func (s *service) DisputeEscrow(ctx context.Context, escrowID, actorID uuid.UUID, reason string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		escrow, err := s.lockHeldEscrow(ctx, repo, escrowID)
		if err != nil {
			return err
		}
		if escrow.PayerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the payer can dispute an escrow")
		}
		return s.settleEscrow(ctx, repo, escrow.ID, map[string]any{
			"status": enums.EscrowStatusDisputed,
			"reason": reason,
		})
	})
	s.metrics.WalletOp("escrow_dispute", err)
	return err
}

func (s *service) lockActiveWallet(ctx context.Context, repo ledger.Repository, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := repo.LockWallet(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if wallet.Status != enums.WalletStatusActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "Wallet is %s", wallet.Status)
	}
	return wallet, nil
}

// lockWallets locks the given users' wallets in id order so two releases in
// opposite directions cannot deadlock.
func (s *service) lockWallets(ctx context.Context, repo ledger.Repository, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	ordered := make([]uuid.UUID, 0, len(userIDs))
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	wallets := make(map[uuid.UUID]*models.Wallet, len(ordered))
	for _, id := range ordered {
		wallet, err := repo.LockWallet(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		wallets[id] = wallet
	}
	return wallets, nil
}

func (s *service) lockHeldEscrow(ctx context.Context, repo ledger.Repository, escrowID uuid.UUID) (*models.EscrowRecord, error) {
	if escrowID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "escrow id required")
	}
	escrow, err := repo.LockEscrow(ctx, escrowID)
	if err != nil {
		return nil, escrowLoadError(err)
	}
	if escrow.Status != enums.EscrowStatusHeld {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "Escrow is already %s", escrow.Status).
			WithDetails(map[string]any{"escrow_id": escrow.ID, "status": escrow.Status})
	}
	return escrow, nil
}

// record stamps entry with the wallet's before/after snapshot, appends it and
// persists the wallet.
func (s *service) record(ctx context.Context, repo ledger.Repository, wallet *models.Wallet, before int64, entry *models.WalletTransaction) error {
	entry.UserID = wallet.UserID
	entry.BalanceBeforeCents = before
	entry.BalanceAfterCents = wallet.BalanceCents
	entry.Status = enums.TransactionStatusCompleted
	wallet.TransactionCount++

	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transaction")
	}
	if err := repo.SaveWallet(ctx, wallet); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save wallet")
	}
	return nil
}

func (s *service) settleEscrow(ctx context.Context, repo ledger.Repository, escrowID uuid.UUID, updates map[string]any) error {
	if err := repo.UpdateEscrow(ctx, escrowID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update escrow")
	}
	return nil
}

func validateAmountInput(userID uuid.UUID, input AmountInput) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Method.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.Method)
	}
	return nil
}

func insufficientFunds(available, required int64) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientFunds,
		"Insufficient funds. Available: %s, required: %s", formatCents(available), formatCents(required)).
		WithDetails(map[string]any{"available_cents": available, "required_cents": required})
}

func escrowLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
}

func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
