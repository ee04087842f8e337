package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pos_service/internal/repository"
)

const orderNumberDayLayout = "20060102"

// OrderNumberGenerator hands out ORD-YYYYMMDD-NNN numbers from a per-day
// counter row. Next must run inside the transaction that inserts the order:
// the counter row stays locked until commit, so concurrent creates on the same
// day are serialised and a rolled-back order gives its number back.
type OrderNumberGenerator struct {
	now func() time.Time
}

func NewOrderNumberGenerator(now func() time.Time) *OrderNumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &OrderNumberGenerator{now: now}
}

func (g *OrderNumberGenerator) Next(ctx context.Context, repos *repository.Repositories) (string, error) {
	day := g.now().Format(orderNumberDayLayout)

	seq, ok, err := repos.Sequences.Increment(ctx, day)
	if err != nil {
		return "", fmt.Errorf("failed to allocate order sequence: %w", err)
	}
	if !ok {
		// First order of the day for this counter: continue from any orders
		// already numbered for the day.
		seed, err := g.latestSequence(ctx, repos.Orders, day)
		if err != nil {
			return "", err
		}
		if err := repos.Sequences.Seed(ctx, day, seed); err != nil {
			return "", fmt.Errorf("failed to seed order sequence: %w", err)
		}
		seq, ok, err = repos.Sequences.Increment(ctx, day)
		if err != nil {
			return "", fmt.Errorf("failed to allocate order sequence: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("order sequence for %s missing after seeding", day)
		}
	}

	return FormatOrderNumber(day, seq), nil
}

// Resync lifts the day's counter to the highest number already stored, so
// that a number written outside the counter is never handed out again. It is
// called before Next when a create collided with an existing order.
func (g *OrderNumberGenerator) Resync(ctx context.Context, repos *repository.Repositories) error {
	day := g.now().Format(orderNumberDayLayout)
	highest, err := g.latestSequence(ctx, repos.Orders, day)
	if err != nil {
		return err
	}
	if err := repos.Sequences.Raise(ctx, day, highest); err != nil {
		return fmt.Errorf("failed to resync order sequence: %w", err)
	}
	return nil
}

func (g *OrderNumberGenerator) latestSequence(ctx context.Context, orders repository.OrderRepository, day string) (int, error) {
	prefix := orderNumberPrefix(day)
	latest, err := orders.HighestNumberByPrefix(ctx, prefix)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read latest order number: %w", err)
	}
	seq, ok := ParseOrderSequence(latest.OrderNumber, day)
	if !ok {
		return 0, nil
	}
	return seq, nil
}

func orderNumberPrefix(day string) string {
	return "ORD-" + day + "-"
}

func FormatOrderNumber(day string, seq int) string {
	return fmt.Sprintf("%s%03d", orderNumberPrefix(day), seq)
}

// ParseOrderSequence extracts the trailing sequence of an order number issued
// on day.
func ParseOrderSequence(number, day string) (int, bool) {
	suffix, found := strings.CutPrefix(number, orderNumberPrefix(day))
	if !found || suffix == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
