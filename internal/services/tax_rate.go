package services

import (
	"context"
	"fmt"
	"strings"

	"pos_service/internal/models"
	"pos_service/internal/repository"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate applies when the tax_rate setting has never been stored.
const DefaultTaxRate = "0.18"

// TaxRateProvider supplies the venue-wide tax rate in effect right now, as a
// fraction between 0 and 1.
type TaxRateProvider interface {
	Current(ctx context.Context) (decimal.Decimal, error)
}

type settingsTaxRateProvider struct {
	settings repository.SettingsRepository
	fallback string
}

func NewSettingsTaxRateProvider(settings repository.SettingsRepository, fallback string) TaxRateProvider {
	if fallback == "" {
		fallback = DefaultTaxRate
	}
	return &settingsTaxRateProvider{settings: settings, fallback: fallback}
}

func (p *settingsTaxRateProvider) Current(ctx context.Context) (decimal.Decimal, error) {
	value, err := p.settings.GetValue(ctx, models.SettingTaxRate, p.fallback)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get tax rate: %w", err)
	}
	return ParseTaxRate(value)
}

func ParseTaxRate(value string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", value, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("tax rate %s out of range [0, 1]", rate)
	}
	return rate, nil
}

// StaticTaxRate is a fixed-rate provider.
type StaticTaxRate decimal.Decimal

func (r StaticTaxRate) Current(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}
