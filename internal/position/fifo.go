package position

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Layer is the unsold remainder of one buy.
type Layer struct {
	EventID  string
	Date     string
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// sortEvents orders events chronologically, buys before sells on the same
// date, then by id.
func sortEvents(events []domain.InvestmentEvent) []domain.InvestmentEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b domain.InvestmentEvent) int {
		if c := cmp.Compare(a.Date.String(), b.Date.String()); c != 0 {
			return c
		}
		if a.IsBuy() != b.IsBuy() {
			if a.IsBuy() {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return sorted
}

// Replay runs FIFO lot matching over events and returns the layers still held.
// Sells larger than the holdings consume what exists; the excess is ignored.
// Use Oversold to detect it.
func Replay(events []domain.InvestmentEvent) []Layer {
	layers, _ := replay(events)
	return layers
}

// Oversold is the sell quantity replay could not match against earlier buys.
// It is zero for every consistent event stream.
func Oversold(events []domain.InvestmentEvent) decimal.Decimal {
	_, unmatched := replay(events)
	return unmatched
}

func replay(events []domain.InvestmentEvent) ([]Layer, decimal.Decimal) {
	var layers []Layer
	unmatched := decimal.Zero
	for _, e := range sortEvents(events) {
		if e.Quantity.IsZero() {
			continue
		}
		if e.IsBuy() {
			layers = append(layers, Layer{
				EventID:  e.ID,
				Date:     e.Date.String(),
				Quantity: e.Quantity,
				UnitCost: e.UnitPrice,
			})
			continue
		}

		toSell := e.Quantity.Neg()
		for len(layers) > 0 && toSell.IsPositive() {
			if layers[0].Quantity.LessThanOrEqual(toSell) {
				toSell = toSell.Sub(layers[0].Quantity)
				layers = layers[1:]
				continue
			}
			layers[0].Quantity = layers[0].Quantity.Sub(toSell)
			toSell = decimal.Zero
		}
		unmatched = unmatched.Add(toSell)
	}
	return layers, unmatched
}

// Holdings is the total quantity still held after replay.
func Holdings(events []domain.InvestmentEvent) decimal.Decimal {
	total := decimal.Zero
	for _, l := range Replay(events) {
		total = total.Add(l.Quantity)
	}
	return total
}

// CostBasis is the FIFO cost of the quantity still held.
func CostBasis(events []domain.InvestmentEvent) decimal.Decimal {
	total := decimal.Zero
	for _, l := range Replay(events) {
		total = total.Add(l.Quantity.Mul(l.UnitCost))
	}
	return total
}

// RemainingQuantity returns how much of the buy eventID survives FIFO replay
// of events. A sell has nothing remaining and yields zero.
func RemainingQuantity(events []domain.InvestmentEvent, eventID string) (decimal.Decimal, error) {
	var target *domain.InvestmentEvent
	for i := range events {
		if events[i].ID == eventID {
			target = &events[i]
			break
		}
	}
	if target == nil {
		return decimal.Zero, fmt.Errorf("RemainingQuantity: event %s is not part of the replay", eventID)
	}
	if !target.IsBuy() {
		return decimal.Zero, nil
	}

	remaining := decimal.Zero
	for _, l := range Replay(events) {
		if l.EventID == eventID {
			remaining = remaining.Add(l.Quantity)
		}
	}
	return remaining, nil
}
