// Package checkout holds the pricing and address rules shared by order
// placement and the HTTP validators.
package checkout

import (
	"regexp"
	"strings"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

// phonePattern accepts Vietnamese mobile numbers in local or +84 form.
var phonePattern = regexp.MustCompile(`^(0|\+84)(3|5|7|8|9)[0-9]{8}$`)

// ValidPhone reports whether value is an accepted shipping phone number.
func ValidPhone(value string) bool {
	return phonePattern.MatchString(strings.TrimSpace(value))
}

// ShippingFee returns the flat fee, or zero once the goods subtotal reaches
// the free-shipping threshold.
func ShippingFee(subtotal int64, cfg config.CheckoutConfig) int64 {
	if cfg.FreeShippingThreshold > 0 && subtotal >= cfg.FreeShippingThreshold {
		return 0
	}
	if cfg.ShippingFee < 0 {
		return 0
	}
	return cfg.ShippingFee
}

// SplitShipping divides fee across n sellers. The remainder goes one unit at a
// time to the first shares so the shares always sum to fee.
func SplitShipping(fee int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	shares := make([]int64, n)
	base := fee / int64(n)
	remainder := fee % int64(n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}
