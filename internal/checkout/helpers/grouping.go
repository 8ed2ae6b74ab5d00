package helpers

import (
	"sort"

	"github.com/google/uuid"
)

// PricedLine is a requested line resolved against the catalog.
type PricedLine struct {
	ProductID       uuid.UUID
	SellerID        uuid.UUID
	ProductName     string
	Quantity        int
	UnitPrice       int64
	DiscountPercent int
	LineTotal       int64
	Color           string
	Size            string
}

// SellerGroup is the set of lines one sub-order will own.
type SellerGroup struct {
	SellerID uuid.UUID
	Lines    []PricedLine
	Subtotal int64
}

// GroupBySeller partitions lines by seller, ordered by seller id so the
// shipping remainder always lands on the same sub-orders. Line order within
// a group follows the input.
func GroupBySeller(lines []PricedLine) []SellerGroup {
	index := make(map[uuid.UUID]int)
	var groups []SellerGroup
	for _, line := range lines {
		i, ok := index[line.SellerID]
		if !ok {
			i = len(groups)
			index[line.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: line.SellerID})
		}
		groups[i].Lines = append(groups[i].Lines, line)
		groups[i].Subtotal += line.LineTotal
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a].SellerID.String() < groups[b].SellerID.String()
	})
	return groups
}

// Subtotal sums the line totals of every group.
func Subtotal(groups []SellerGroup) int64 {
	var total int64
	for _, g := range groups {
		total += g.Subtotal
	}
	return total
}
