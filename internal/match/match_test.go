package match

import (
	"reflect"
	"testing"
)

func TestDecide(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		text       string
		keywords   []string
		excluded   []string
		matched    []string
		suppressed bool
		alert      bool
	}{
		{
			name:     "simple match",
			text:     "New ATH for BTC today",
			keywords: []string{"BTC"},
			matched:  []string{"BTC"},
			alert:    true,
		},
		{
			name:       "excluded word suppresses",
			text:       "BTC SCAM alert",
			keywords:   []string{"BTC"},
			excluded:   []string{"SCAM"},
			matched:    []string{"BTC"},
			suppressed: true,
		},
		{
			name:     "no keyword no match",
			text:     "nothing interesting here",
			keywords: []string{"BTC", "ETH"},
			excluded: []string{"SCAM"},
		},
		{
			name:     "exclusions irrelevant without a keyword hit",
			text:     "total scam",
			keywords: []string{"BTC"},
			excluded: []string{"SCAM"},
		},
		{
			name:     "substring inside longer word still matches",
			text:     "look at bitcoinBTCmania",
			keywords: []string{"BTC"},
			matched:  []string{"BTC"},
			alert:    true,
		},
		{
			name:     "case insensitive both ways",
			text:     "eth is pumping",
			keywords: []string{"ETH"},
			matched:  []string{"ETH"},
			alert:    true,
		},
		{
			name:     "multiple matches keep list order",
			text:     "ETH flips BTC",
			keywords: []string{"BTC", "ETH"},
			matched:  []string{"BTC", "ETH"},
			alert:    true,
		},
		{
			name:     "empty text",
			text:     "",
			keywords: []string{"BTC"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Decide(tt.text, tt.keywords, tt.excluded)
			if !reflect.DeepEqual(d.Matched, tt.matched) {
				t.Fatalf("Matched = %v, want %v", d.Matched, tt.matched)
			}
			if d.Suppressed != tt.suppressed {
				t.Fatalf("Suppressed = %v, want %v", d.Suppressed, tt.suppressed)
			}
			if d.Alert() != tt.alert {
				t.Fatalf("Alert() = %v, want %v", d.Alert(), tt.alert)
			}
		})
	}
}

func TestSuppressedNeverAlerts(t *testing.T) {
	t.Parallel()
	d := Decide("BTC and SCAM in one line", []string{"BTC"}, []string{"SCAM"})
	if len(d.Matched) == 0 {
		t.Fatal("expected a keyword match")
	}
	if d.Alert() {
		t.Fatal("suppressed decision must never alert")
	}
}
