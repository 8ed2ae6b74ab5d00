package helpers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/checkout"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// ShippingInput is the raw address captured at placement.
type ShippingInput struct {
	FullName string
	Phone    string
	Address  string
	City     string
	District string
	Ward     string
	Note     string
}

// ValidateShipping trims the address, rejects the first missing field by name
// and checks the phone format.
func ValidateShipping(in ShippingInput) (models.ShippingSnapshot, error) {
	snapshot := models.ShippingSnapshot{
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		City:     strings.TrimSpace(in.City),
		District: strings.TrimSpace(in.District),
		Ward:     strings.TrimSpace(in.Ward),
		Note:     strings.TrimSpace(in.Note),
	}

	required := []struct {
		field string
		value string
	}{
		{"full_name", snapshot.FullName},
		{"phone", snapshot.Phone},
		{"address", snapshot.Address},
		{"city", snapshot.City},
		{"district", snapshot.District},
		{"ward", snapshot.Ward},
	}
	for _, r := range required {
		if r.value == "" {
			return models.ShippingSnapshot{}, pkgerrors.Newf(pkgerrors.CodeValidation, "shipping %s is required", r.field).
				WithDetails(map[string]any{"field": "shipping." + r.field})
		}
	}
	if !checkout.ValidPhone(snapshot.Phone) {
		return models.ShippingSnapshot{}, pkgerrors.Newf(pkgerrors.CodeValidation, "shipping phone %q is not a valid phone number", snapshot.Phone).
			WithDetails(map[string]any{"field": "shipping.phone"})
	}
	return snapshot, nil
}

// LineInput is the minimum a requested line must carry.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

func ValidateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item").
			WithDetails(map[string]any{"field": "items"})
	}
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d].product_id is required", i).
				WithDetails(map[string]any{"field": "items.product_id", "index": i})
		}
		if line.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d].quantity must be greater than zero", i).
				WithDetails(map[string]any{"field": "items.quantity", "index": i})
		}
	}
	return nil
}
