package citation

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// Policy selects how a declarative reply without citations is handled.
type Policy string

const (
	// PolicySoft lets the reply through with an advisory.
	PolicySoft Policy = "soft"
	// PolicyStrict withholds the reply and asks the user to clarify.
	PolicyStrict Policy = "strict"
)

// ParsePolicy returns the policy named by s, defaulting to PolicySoft.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyStrict {
		return PolicyStrict
	}
	return PolicySoft
}

// Advisory and clarification texts shown to the user.
const (
	UnverifiedAdvisory = "I couldn't find a trusted source for this answer. Treat it as general information and check with a clinician."
	ClarifyPrompt      = "I want to make sure I give you information I can back up with a trusted source. Could you tell me a bit more about what's going on?"
)

// Backfiller finds citations for a piece of text restricted to allowed domains.
type Backfiller interface {
	Backfill(ctx context.Context, text string, allowedDomains []string) ([]models.Citation, error)
}

// Gate applies the allow-list and the evidence-lock policy to model replies.
type Gate struct {
	domains  []string
	policy   Policy
	backfill Backfiller
}

// Option configures a Gate.
type Option func(*Gate)

// WithDomains replaces the trusted-domain allow-list.
func WithDomains(domains []string) Option {
	return func(g *Gate) { g.domains = domains }
}

// WithPolicy sets the enforcement policy.
func WithPolicy(p Policy) Option {
	return func(g *Gate) { g.policy = p }
}

// WithBackfiller sets the backfill collaborator. Without one, backfill is skipped.
func WithBackfiller(b Backfiller) Option {
	return func(g *Gate) { g.backfill = b }
}

// NewGate creates a Gate using DefaultTrustedDomains and PolicySoft unless overridden.
func NewGate(opts ...Option) *Gate {
	g := &Gate{domains: DefaultTrustedDomains, policy: PolicySoft}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Domains returns the trusted-domain allow-list.
func (g *Gate) Domains() []string {
	return g.domains
}

// Policy returns the configured enforcement policy.
func (g *Gate) Policy() Policy {
	return g.policy
}

// Filter applies FilterAllowed with the gate's allow-list.
func (g *Gate) Filter(list []models.Citation) []models.Citation {
	return FilterAllowed(list, g.domains)
}

// Result is the outcome of enforcing the evidence lock on one reply.
type Result struct {
	Citations  []models.Citation
	Backfilled bool
	// Withheld is set under PolicyStrict when the reply text must not be shown.
	Withheld   bool
	Advisories []models.Advisory
}

// Enforce filters the reply citations and, when the reply is declarative, carries no allowed
// citation and the lock is enabled, asks the backfiller once. A failing or empty backfill ends
// in an advisory (soft) or a withheld reply (strict); strict overrides per episode when
// lock.StrictCitations is set.
func (g *Gate) Enforce(ctx context.Context, text string, citations []models.Citation, lock models.EvidenceLock) Result {
	res := Result{Citations: g.Filter(citations)}
	if len(res.Citations) > 0 || !lock.Enabled || !IsDeclarative(text) {
		return res
	}

	if g.backfill != nil {
		found, err := g.backfill.Backfill(ctx, text, g.domains)
		if err != nil {
			slog.Warn("Gate.Enforce: backfill failed", "error", err)
			res.Advisories = append(res.Advisories, models.Advisory{
				Kind:    models.ErrorKindUpstreamUnavailable,
				Message: "Citation lookup is unavailable right now.",
			})
		} else if filtered := g.Filter(found); len(filtered) > 0 {
			slog.Debug("Gate.Enforce: backfill accepted", "count", len(filtered))
			res.Citations = filtered
			res.Backfilled = true
			return res
		}
	}

	policy := g.policy
	if lock.StrictCitations {
		policy = PolicyStrict
	}
	if policy == PolicyStrict {
		res.Withheld = true
		res.Advisories = append(res.Advisories, models.Advisory{Kind: models.ErrorKindValidationGap, Message: ClarifyPrompt})
		return res
	}
	res.Advisories = append(res.Advisories, models.Advisory{Kind: models.ErrorKindValidationGap, Message: UnverifiedAdvisory})
	return res
}
