package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Service records wallet credits and summarizes them per period.
type Service interface {
	CreditPlatform(ctx context.Context, tx *gorm.DB, input PlatformCreditInput) (*models.PlatformWalletEntry, error)
	CreditSeller(ctx context.Context, tx *gorm.DB, input SellerCreditInput) (*models.SellerWalletEntry, error)
	SellerSummary(ctx context.Context, sellerID uuid.UUID, year, month int) (*SellerWallet, error)
	PlatformSummary(ctx context.Context, year, month int) (*PlatformWallet, error)
}

type service struct {
	repo Repository
}

// PlatformCreditInput credits the full order total to the platform wallet.
type PlatformCreditInput struct {
	OrderID  uuid.UUID
	Amount   int64
	SettleAt time.Time
}

// SellerCreditInput credits one sub-order's goods price to its seller.
type SellerCreditInput struct {
	SellerID   uuid.UUID
	OrderID    uuid.UUID
	SubOrderID uuid.UUID
	Amount     int64
	SettleAt   time.Time
}

type WalletEntry struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	SubOrderID uuid.UUID `json:"sub_order_id"`
	Amount     int64     `json:"amount"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	CreatedAt  time.Time `json:"created_at"`
}

// SellerWallet is a seller's credits for a period and their sum.
type SellerWallet struct {
	SellerID uuid.UUID       `json:"seller_id"`
	Year     int             `json:"year,omitempty"`
	Month    int             `json:"month,omitempty"`
	Entries  []WalletEntry   `json:"entries"`
	Total    decimal.Decimal `json:"total"`
}

// PlatformWallet sums the platform credits for a period.
type PlatformWallet struct {
	Year   int             `json:"year,omitempty"`
	Month  int             `json:"month,omitempty"`
	Orders int             `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreditPlatform(ctx context.Context, tx *gorm.DB, input PlatformCreditInput) (*models.PlatformWalletEntry, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.Amount < 0 {
		return nil, fmt.Errorf("platform credit cannot be negative")
	}
	at := settledAt(input.SettleAt)
	entry := &models.PlatformWalletEntry{
		ID:        uuid.New(),
		OrderID:   input.OrderID,
		Amount:    input.Amount,
		Month:     int(at.Month()),
		Year:      at.Year(),
		CreatedAt: at,
	}
	if err := s.repo.WithTx(tx).CreatePlatformEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CreditSeller(ctx context.Context, tx *gorm.DB, input SellerCreditInput) (*models.SellerWalletEntry, error) {
	if input.SellerID == uuid.Nil {
		return nil, fmt.Errorf("seller id is required")
	}
	if input.OrderID == uuid.Nil || input.SubOrderID == uuid.Nil {
		return nil, fmt.Errorf("order and sub-order ids are required")
	}
	if input.Amount < 0 {
		return nil, fmt.Errorf("seller credit cannot be negative")
	}
	at := settledAt(input.SettleAt)
	entry := &models.SellerWalletEntry{
		ID:         uuid.New(),
		SellerID:   input.SellerID,
		OrderID:    input.OrderID,
		SubOrderID: input.SubOrderID,
		Amount:     input.Amount,
		Month:      int(at.Month()),
		Year:       at.Year(),
		CreatedAt:  at,
	}
	if err := s.repo.WithTx(tx).CreateSellerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) SellerSummary(ctx context.Context, sellerID uuid.UUID, year, month int) (*SellerWallet, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListSellerEntries(ctx, sellerID, year, month)
	if err != nil {
		return nil, err
	}

	wallet := &SellerWallet{
		SellerID: sellerID,
		Year:     year,
		Month:    month,
		Entries:  make([]WalletEntry, 0, len(rows)),
		Total:    decimal.Zero,
	}
	for _, row := range rows {
		wallet.Entries = append(wallet.Entries, WalletEntry{
			ID:         row.ID,
			OrderID:    row.OrderID,
			SubOrderID: row.SubOrderID,
			Amount:     row.Amount,
			Month:      row.Month,
			Year:       row.Year,
			CreatedAt:  row.CreatedAt,
		})
		wallet.Total = wallet.Total.Add(decimal.NewFromInt(row.Amount))
	}
	return wallet, nil
}

func (s *service) PlatformSummary(ctx context.Context, year, month int) (*PlatformWallet, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListPlatformEntries(ctx, year, month)
	if err != nil {
		return nil, err
	}
	wallet := &PlatformWallet{Year: year, Month: month, Orders: len(rows), Total: decimal.Zero}
	for _, row := range rows {
		wallet.Total = wallet.Total.Add(decimal.NewFromInt(row.Amount))
	}
	return wallet, nil
}

func validatePeriod(year, month int) error {
	if month < 0 || month > 12 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "month %d is out of range", month)
	}
	if year < 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "year %d is out of range", year)
	}
	return nil
}

func settledAt(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}
