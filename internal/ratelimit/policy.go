package ratelimit

import "time"

// RouteClass groups endpoints by cost so each group gets its own quota.
type RouteClass string

const (
	RouteDefault  RouteClass = "default"
	RouteContact  RouteClass = "contact"
	RouteEstimate RouteClass = "estimate"
	RoutePromo    RouteClass = "promo"
	RouteAdmin    RouteClass = "admin"
)

// Policy is a fixed-window quota: Tokens requests per Window.
type Policy struct {
	Tokens int64
	Window time.Duration
}

// Expensive endpoints (AI-backed estimates, email sends) get tight
// windows; cheap reads get a generous default.
var policies = map[RouteClass]Policy{
	RouteDefault:  {Tokens: 60, Window: time.Minute},
	RouteContact:  {Tokens: 3, Window: time.Minute},
	RouteEstimate: {Tokens: 5, Window: time.Minute},
	RoutePromo:    {Tokens: 10, Window: time.Minute},
	RouteAdmin:    {Tokens: 30, Window: time.Minute},
}

// PolicyFor returns the quota for a route class. Unknown classes fall
// back to the default policy rather than going unlimited.
func PolicyFor(class RouteClass) Policy {
	if p, ok := policies[class]; ok {
		return p
	}
	return policies[RouteDefault]
}
