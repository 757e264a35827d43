package ledger

import "testing"

func TestAccountValidate(t *testing.T) {
	ok := Account{CurrentCash: 100, FrozenCash: 50}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}

	negCash := Account{CurrentCash: -1}
	if err := negCash.Validate(); err == nil {
		t.Error("negative cash accepted")
	}
	negFrozen := Account{FrozenCash: -1}
	if err := negFrozen.Validate(); err == nil {
		t.Error("negative frozen cash accepted")
	}
}

func TestPositionValidate(t *testing.T) {
	ok := Position{Symbol: "BTC", Quantity: 2, AvailableQuantity: 1}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid position rejected: %v", err)
	}

	over := Position{Symbol: "BTC", Quantity: 1, AvailableQuantity: 2}
	if err := over.Validate(); err == nil {
		t.Error("available > held accepted")
	}
	neg := Position{Symbol: "BTC", Quantity: 1, AvailableQuantity: -1}
	if err := neg.Validate(); err == nil {
		t.Error("negative available accepted")
	}
}

func TestOrderLifecycleHelpers(t *testing.T) {
	open := Order{Quantity: 2, FilledQuantity: 0.5, Status: StatusPending}
	if open.Remaining() != 1.5 {
		t.Errorf("remaining = %f, want 1.5", open.Remaining())
	}
	if open.IsClosed() {
		t.Error("PENDING order reported closed")
	}

	// PARTIALLY_FILLED counts as open.
	partial := Order{Status: StatusPartiallyFilled}
	if partial.IsClosed() {
		t.Error("PARTIALLY_FILLED order reported closed")
	}

	for _, status := range []OrderStatus{StatusFilled, StatusCancelled, StatusRejected} {
		o := Order{Status: status}
		if !o.IsClosed() {
			t.Errorf("%s order reported open", status)
		}
	}
}

func TestValidTimeframe(t *testing.T) {
	for _, tf := range []Timeframe{Timeframe5m, Timeframe1h, Timeframe1d} {
		if !ValidTimeframe(tf) {
			t.Errorf("%s rejected", tf)
		}
	}
	if ValidTimeframe("15m") {
		t.Error("unknown timeframe accepted")
	}
}
