// Package pricing computes line and order totals for a cart.
//
// Line tax and order tax are computed independently: the order tax is
// subtotal*rate rounded once at order level, not the sum of rounded line
// taxes. Historical totals depend on this, so the two may differ by a cent.
package pricing

import "github.com/shopspring/decimal"

// Places is the number of fractional digits stored for currency values.
const Places = 2

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type LineTotals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

type Totals struct {
	Lines     []LineTotals
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// CalculateLine prices a single line at the given rate.
func CalculateLine(line Line, rate decimal.Decimal) LineTotals {
	subtotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(Places)
	tax := subtotal.Mul(rate).Round(Places)
	return LineTotals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// Calculate prices every line and the order as a whole. An empty cart yields
// zero totals.
func Calculate(lines []Line, rate decimal.Decimal) Totals {
	totals := Totals{
		Lines:    make([]LineTotals, 0, len(lines)),
		Subtotal: decimal.Zero,
	}
	for _, line := range lines {
		lt := CalculateLine(line, rate)
		totals.Lines = append(totals.Lines, lt)
		totals.Subtotal = totals.Subtotal.Add(lt.Subtotal)
	}
	totals.TaxAmount = totals.Subtotal.Mul(rate).Round(Places)
	totals.Total = totals.Subtotal.Add(totals.TaxAmount)
	return totals
}

// ToMinorUnits converts an amount to the smallest currency unit, rounding
// half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(Places).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Places)
}
