package entitlements

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanBasic   Plan = "BASIC"
	PlanPremium Plan = "PREMIUM"
)

// UnlimitedCredits is the sentinel quota for plans without a monthly cap.
const UnlimitedCredits = -1

// TrialDuration is the length of the free trial granted at signup and on
// paid checkouts.
const TrialDuration = 3 * 24 * time.Hour

// PlanDetails describes the commercial shape of a plan as exposed by the
// subscription API.
type PlanDetails struct {
	Name    string  `json:"name"`
	Credits int     `json:"credits"`
	Price   float64 `json:"price"`
}

var planConfig = map[Plan]PlanDetails{
	PlanFree:    {Name: "Free", Credits: 5, Price: 0},
	PlanBasic:   {Name: "Basic", Credits: 50, Price: 9.99},
	PlanPremium: {Name: "Premium", Credits: UnlimitedCredits, Price: 19.99},
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to FREE.
func NormalizePlan(plan string) Plan {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case string(PlanBasic):
		return PlanBasic
	case string(PlanPremium):
		return PlanPremium
	default:
		return PlanFree
	}
}

// IsPaid reports whether a plan requires a billing commitment.
func IsPaid(plan Plan) bool {
	return plan == PlanBasic || plan == PlanPremium
}

// MonthlyCredits returns the monthly credit quota for a plan
// (UnlimitedCredits for PREMIUM).
func MonthlyCredits(plan Plan) int {
	return Details(plan).Credits
}

// Details returns the commercial configuration of a plan.
func Details(plan Plan) PlanDetails {
	if d, ok := planConfig[plan]; ok {
		return d
	}
	return planConfig[PlanFree]
}
