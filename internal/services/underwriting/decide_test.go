package underwriting

import (
	"testing"

	"github.com/domainpress/pipeline/internal/models"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name       string
		composite  float64
		risk       float64
		confidence float64
		hardFail   string
		want       string
	}{
		{"hard fail always passes regardless of scores", 95, 5, 0.9, "trademark conflict", models.DecisionPass},
		{"meets all buy thresholds", 70, 40, 0.6, "", models.DecisionBuy},
		{"comfortably above buy thresholds", 90, 10, 0.95, "", models.DecisionBuy},
		{"risk just above buy max falls to watchlist band", 70, 40.01, 0.6, "", models.DecisionWatchlist},
		{"confidence just below buy min falls to watchlist band", 70, 40, 0.59, "", models.DecisionWatchlist},
		{"composite in watchlist band with acceptable risk", 50, 60, 0.1, "", models.DecisionWatchlist},
		{"composite at watchlist floor", 40, 70, 0, "", models.DecisionWatchlist},
		{"risk just above watchlist max passes", 40, 70.01, 0, "", models.DecisionPass},
		{"composite just below watchlist floor passes", 39.99, 70, 0, "", models.DecisionPass},
		{"zero-value candidate passes", 0, 0, 0, "", models.DecisionPass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &models.DomainResearch{
				CompositeScore: tc.composite,
				RiskScore:      tc.risk,
				Confidence:     tc.confidence,
				HardFailReason: tc.hardFail,
			}
			got := decide(c)
			if got != tc.want {
				t.Errorf("decide(composite=%v, risk=%v, confidence=%v, hardFail=%q) = %q, want %q",
					tc.composite, tc.risk, tc.confidence, tc.hardFail, got, tc.want)
			}
		})
	}
}

func TestMaxBid(t *testing.T) {
	c := &models.DomainResearch{CompositeScore: 80, Confidence: 0.5}

	if got := maxBid(c, models.DecisionBuy); got != 400 {
		t.Errorf("buy: maxBid = %v, want 400", got)
	}
	if got := maxBid(c, models.DecisionWatchlist); got != 400 {
		t.Errorf("watchlist: maxBid = %v, want 400", got)
	}
	if got := maxBid(c, models.DecisionPass); got != 0 {
		t.Errorf("pass: maxBid = %v, want 0", got)
	}
	if got := maxBid(c, models.DecisionResearching); got != 0 {
		t.Errorf("researching: maxBid = %v, want 0", got)
	}
}

func TestBidIncrement(t *testing.T) {
	cases := []struct {
		bid  float64
		want float64
	}{
		{0, 5},
		{49.99, 5},
		{50, 10},
		{199.99, 10},
		{200, 25},
		{499.99, 25},
		{500, 50},
		{10000, 50},
	}
	for _, tc := range cases {
		if got := models.BidIncrement(tc.bid); got != tc.want {
			t.Errorf("BidIncrement(%v) = %v, want %v", tc.bid, got, tc.want)
		}
	}
}
