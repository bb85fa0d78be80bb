package subscription

import (
	"math"
	"time"
)

type PlanID string

const (
	FreePlan       PlanID = "free"
	OneMonthPlan   PlanID = "1m"
	ThreeMonthPlan PlanID = "3m"
)

// FreePaymentRef is stored as the payment reference of zero-priced plans.
const FreePaymentRef = "FREE_PLAN"

type Plan struct {
	ID           PlanID  `json:"id"`
	Name         string  `json:"name"`
	AmountUSD    float64 `json:"amount_usd"`
	DurationDays int     `json:"duration_days,omitempty"` // 0 means the plan never expires
}

var planCatalog = map[PlanID]Plan{
	FreePlan: {
		ID:        FreePlan,
		Name:      "Free",
		AmountUSD: 0,
	},
	OneMonthPlan: {
		ID:           OneMonthPlan,
		Name:         "1 month",
		AmountUSD:    15,
		DurationDays: 30,
	},
	ThreeMonthPlan: {
		ID:           ThreeMonthPlan,
		Name:         "3 months",
		AmountUSD:    29,
		DurationDays: 90,
	},
}

var planOrder = []PlanID{FreePlan, OneMonthPlan, ThreeMonthPlan}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Plan, bool) {
	plan, ok := planCatalog[PlanID(id)]
	return plan, ok
}

// Catalog returns a copy of every purchasable plan in display order.
func Catalog() []Plan {
	plans := make([]Plan, 0, len(planOrder))
	for _, id := range planOrder {
		plans = append(plans, planCatalog[id])
	}
	return plans
}

func (p Plan) Expires() bool {
	return p.DurationDays > 0
}

func (p Plan) IsFree() bool {
	return p.AmountUSD == 0
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// ExpiresAt computes the expiry of a subscription to p created at from.
// It returns nil for plans without a duration.
func (p Plan) ExpiresAt(from time.Time) *time.Time {
	if !p.Expires() {
		return nil
	}
	t := from.Add(p.Duration())
	return &t
}

// AmountCents is the price in the smallest currency unit, as payment
// gateways expect it.
func (p Plan) AmountCents() int64 {
	return int64(math.Round(p.AmountUSD * 100))
}
