package usagecontrol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

// Result is the outcome of a policy decision
type Result string

const (
	ResultAllowed Result = "ALLOWED"
	ResultDenied  Result = "DENIED"
)

// VerificationInput is the unit the PEP evaluates
type VerificationInput struct {
	ArtifactID  string
	RequesterID string
	Agreement   *storage.Agreement
}

// Obligation is a duty that must be carried out when data is released
type Obligation struct {
	Pattern  Pattern
	RuleID   string
	Target   string
	Endpoint string // set for PatternNotify
}

// Decision is the PEP's verdict. Obligations and UsageLimit are only set
// when Result is ResultAllowed.
type Decision struct {
	Result      Result
	Obligations []Obligation
	Reason      string

	// UsageLimit is the number of uses the tightest usage count constraint
	// allows. Zero means unlimited.
	UsageLimit int64
}

// Allowed reports whether access was granted
func (d Decision) Allowed() bool {
	return d.Result == ResultAllowed
}

func deny(format string, args ...any) Decision {
	return Decision{Result: ResultDenied, Reason: fmt.Sprintf(format, args...)}
}

var errUnknownPattern = errors.New("unrecognised rule pattern")

// PEPConfig holds the collaborators of a PEP
type PEPConfig struct {
	Counter UsageCounter
	Clock   func() time.Time
	Metrics *Metrics
	Logger  *zap.Logger
}

// PEP evaluates agreements against artifact requests.
// Decisions are fail-closed: anything it cannot evaluate denies.
type PEP struct {
	counter UsageCounter
	now     func() time.Time
	metrics *Metrics
	logger  *zap.Logger
}

// NewPEP creates a policy enforcement point
func NewPEP(config PEPConfig) *PEP {
	if config.Counter == nil {
		config.Counter = NewMemoryCounter()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &PEP{
		counter: config.Counter,
		now:     config.Clock,
		metrics: config.Metrics,
		logger:  config.Logger,
	}
}

// Verify decides whether in.RequesterID may access in.ArtifactID under
// in.Agreement. Access requires a confirmed agreement, at least one
// applicable permission, every applicable permission's constraints to
// hold, and no applicable prohibition that matches.
func (p *PEP) Verify(ctx context.Context, in VerificationInput) Decision {
	d := p.verify(ctx, in)
	p.metrics.Decisions.WithLabelValues(string(d.Result)).Inc()
	if !d.Allowed() {
		p.logger.Info("access denied",
			zap.String("artifact", in.ArtifactID),
			zap.String("requester", in.RequesterID),
			zap.String("reason", d.Reason))
	}
	return d
}

func (p *PEP) verify(ctx context.Context, in VerificationInput) Decision {
	a := in.Agreement
	if a == nil {
		return deny("no agreement")
	}
	if !a.Confirmed {
		return deny("agreement %s is not confirmed", a.ID)
	}

	rs, err := ParseRules([]byte(a.Value))
	if err != nil {
		return deny("agreement %s: %v", a.ID, err)
	}

	env := &evalEnv{
		requester: in.RequesterID,
		now:       p.now(),
		count:     p.memoizedCount(ctx, a.ID, in.ArtifactID),
	}

	var (
		permitted   bool
		limit       int64
		obligations []Obligation
	)
	for _, r := range rs.Rules {
		if !applies(r, in.ArtifactID, a) {
			continue
		}

		switch rule := r.(type) {
		case *Prohibition:
			matched, err := allHold(rule.Constraints, env)
			if err != nil {
				return deny("prohibition %s: %v", rule.ID, err)
			}
			if matched {
				return deny("prohibited by %s", rule.ID)
			}

		case *Permission:
			duties := make([]Obligation, 0, len(rule.PostDuties))
			for i := range rule.PostDuties {
				o, err := obligationFor(&rule.PostDuties[i], in.ArtifactID)
				if err != nil {
					return deny("permission %s: %v", rule.ID, err)
				}
				duties = append(duties, o)
			}
			ok, err := allHold(rule.Constraints, env)
			if err != nil {
				return deny("permission %s: %v", rule.ID, err)
			}
			if !ok {
				return deny("permission %s does not hold", rule.ID)
			}
			permitted = true
			obligations = append(obligations, duties...)
			limit = tightestLimit(limit, rule.Constraints)

		case *Duty:
			o, err := obligationFor(rule, in.ArtifactID)
			if err != nil {
				return deny("duty %s: %v", rule.ID, err)
			}
			obligations = append(obligations, o)
		}
	}

	if !permitted {
		return deny("no applicable permission for %s", in.ArtifactID)
	}
	return Decision{Result: ResultAllowed, Obligations: obligations, UsageLimit: limit}
}

// tightestLimit lowers limit to the smallest usage count in constraints.
// The constraints have already been evaluated, so their operands parse.
func tightestLimit(limit int64, constraints []Constraint) int64 {
	for _, c := range constraints {
		if ClassifyConstraint(c) != PatternUsageCount {
			continue
		}
		if n, err := usageLimit(c); err == nil && (limit == 0 || n < limit) {
			limit = n
		}
	}
	return limit
}

// memoizedCount reads the usage counter at most once per decision
func (p *PEP) memoizedCount(ctx context.Context, agreementID, artifactID string) func() (int64, error) {
	var (
		done  bool
		count int64
		err   error
	)
	return func() (int64, error) {
		if !done {
			count, err = p.counter.Count(ctx, agreementID, artifactID)
			done = true
		}
		return count, err
	}
}

// applies reports whether r governs artifactID. Rules without a target
// cover every artifact the agreement references.
func applies(r Rule, artifactID string, a *storage.Agreement) bool {
	if t := r.Target(); t != "" {
		return t == artifactID
	}
	return a.Covers(artifactID)
}

// allHold checks every constraint is recognised before evaluating any of
// them, so an unknown constraint denies regardless of order.
func allHold(constraints []Constraint, env *evalEnv) (bool, error) {
	for _, c := range constraints {
		if ClassifyConstraint(c) == PatternUnknown {
			return false, fmt.Errorf("%w: %s %s", errUnknownPattern, c.LeftOperand, c.Operator)
		}
	}
	for _, c := range constraints {
		ok, err := holds(c, env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func obligationFor(d *Duty, artifactID string) (Obligation, error) {
	pattern := ClassifyDuty(d)
	if pattern == PatternUnknown {
		return Obligation{}, fmt.Errorf("%w: duty actions %v", errUnknownPattern, d.Actions)
	}
	target := d.TargetID
	if target == "" {
		target = artifactID
	}
	return Obligation{
		Pattern:  pattern,
		RuleID:   d.ID,
		Target:   target,
		Endpoint: dutyEndpoint(d),
	}, nil
}
