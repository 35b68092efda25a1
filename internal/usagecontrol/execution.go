package usagecontrol

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/clearinghouse"
)

// ErrUsageLimitExceeded is returned when the access being recorded goes
// past the decision's usage limit
var ErrUsageLimitExceeded = errors.New("usage limit exceeded")

// Reporter carries out log and notify duties
type Reporter interface {
	LogAccess(ctx context.Context, targetID string) error
	ReportAccess(ctx context.Context, endpoint, targetID string) error
}

// ExecutorConfig holds the collaborators of an Executor
type ExecutorConfig struct {
	Reporter Reporter
	Counter  UsageCounter
	Metrics  *Metrics
	Logger   *zap.Logger
}

// Executor performs the obligations of an allowed decision and records the
// access in the usage counter.
type Executor struct {
	reporter Reporter
	counter  UsageCounter
	metrics  *Metrics
	logger   *zap.Logger
}

// NewExecutor creates a policy executor
func NewExecutor(config ExecutorConfig) *Executor {
	if config.Counter == nil {
		config.Counter = NewMemoryCounter()
	}
	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Executor{
		reporter: config.Reporter,
		counter:  config.Counter,
		metrics:  config.Metrics,
		logger:   config.Logger,
	}
}

// Execute runs every obligation of d in order and then counts the access.
// The first failure stops execution; the returned error wraps
// clearinghouse.ErrPolicyExecution and data must not be released.
//
// The count read during Verify may be stale by the time data is released,
// so the incremented count is checked against d.UsageLimit again.
func (e *Executor) Execute(ctx context.Context, in VerificationInput, d Decision) error {
	if !d.Allowed() {
		return fmt.Errorf("%w: decision is %s", clearinghouse.ErrPolicyExecution, d.Result)
	}

	for _, o := range d.Obligations {
		err := e.perform(ctx, o)
		e.metrics.Obligations.WithLabelValues(o.Pattern.String(), outcome(err)).Inc()
		if err != nil {
			e.logger.Warn("obligation failed",
				zap.String("rule", o.RuleID),
				zap.Stringer("pattern", o.Pattern),
				zap.Error(err))
			if errors.Is(err, clearinghouse.ErrPolicyExecution) {
				return err
			}
			return fmt.Errorf("%w: %w", clearinghouse.ErrPolicyExecution, err)
		}
	}

	if in.Agreement == nil {
		return nil
	}
	n, err := e.counter.Increment(ctx, in.Agreement.ID, in.ArtifactID)
	if err != nil {
		return fmt.Errorf("%w: %w", clearinghouse.ErrPolicyExecution, err)
	}
	if d.UsageLimit > 0 && n > d.UsageLimit {
		e.logger.Info("usage limit reached concurrently",
			zap.String("agreement", in.Agreement.ID),
			zap.String("artifact", in.ArtifactID),
			zap.Int64("count", n),
			zap.Int64("limit", d.UsageLimit))
		return fmt.Errorf("%w: %w: use %d of %d", clearinghouse.ErrPolicyExecution, ErrUsageLimitExceeded, n, d.UsageLimit)
	}
	return nil
}

func (e *Executor) perform(ctx context.Context, o Obligation) error {
	if e.reporter == nil {
		return fmt.Errorf("no reporter for %s duty", o.Pattern)
	}
	switch o.Pattern {
	case PatternLog:
		return e.reporter.LogAccess(ctx, o.Target)
	case PatternNotify:
		return e.reporter.ReportAccess(ctx, o.Endpoint, o.Target)
	default:
		return fmt.Errorf("%w: %s", errUnknownPattern, o.Pattern)
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
