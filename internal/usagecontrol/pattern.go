package usagecontrol

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Pattern is the recognised shape of a rule or constraint
type Pattern int

const (
	PatternUnknown Pattern = iota
	PatternProvideAccess
	PatternProhibitAccess
	PatternConnectorRestriction
	PatternTimeInterval
	PatternUsageCount
	PatternLog
	PatternNotify
)

var patternNames = map[Pattern]string{
	PatternUnknown:              "UNKNOWN",
	PatternProvideAccess:        "PROVIDE_ACCESS",
	PatternProhibitAccess:       "PROHIBIT_ACCESS",
	PatternConnectorRestriction: "CONNECTOR_RESTRICTED_USAGE",
	PatternTimeInterval:         "USAGE_DURING_INTERVAL",
	PatternUsageCount:           "N_TIMES_USAGE",
	PatternLog:                  "USAGE_LOGGING",
	PatternNotify:               "USAGE_NOTIFICATION",
}

func (p Pattern) String() string {
	return patternNames[p]
}

// Vocabulary terms used by the supported patterns
const (
	operandSystem         = "idsc:SYSTEM"
	operandEvaluationTime = "idsc:POLICY_EVALUATION_TIME"
	operandCount          = "idsc:COUNT"
	operandEndpoint       = "idsc:ENDPOINT"

	operatorSameAs   = "idsc:SAME_AS"
	operatorAfter    = "idsc:AFTER"
	operatorBefore   = "idsc:BEFORE"
	operatorLessOrEq = "idsc:LTEQ"
	operatorLess     = "idsc:LT"
	operatorDefines  = "idsc:DEFINES_AS"

	actionLog    = "idsc:LOG"
	actionNotify = "idsc:NOTIFY"
)

// ClassifyConstraint returns the pattern a precondition belongs to
func ClassifyConstraint(c Constraint) Pattern {
	switch {
	case c.LeftOperand == operandSystem && c.Operator == operatorSameAs:
		return PatternConnectorRestriction
	case c.LeftOperand == operandEvaluationTime && (c.Operator == operatorAfter || c.Operator == operatorBefore):
		return PatternTimeInterval
	case c.LeftOperand == operandCount && (c.Operator == operatorLessOrEq || c.Operator == operatorLess):
		return PatternUsageCount
	default:
		return PatternUnknown
	}
}

// ClassifyDuty returns the pattern of a duty. A duty must carry exactly
// one action; notification duties also need an endpoint.
func ClassifyDuty(d *Duty) Pattern {
	if len(d.Actions) != 1 {
		return PatternUnknown
	}
	switch d.Actions[0] {
	case actionLog:
		if len(d.Constraints) == 0 {
			return PatternLog
		}
	case actionNotify:
		if dutyEndpoint(d) != "" {
			return PatternNotify
		}
	}
	return PatternUnknown
}

func dutyEndpoint(d *Duty) string {
	for _, c := range d.Constraints {
		if c.LeftOperand == operandEndpoint && (c.Operator == operatorDefines || c.Operator == "") {
			return c.RightOperand
		}
	}
	return ""
}

// evalEnv is everything a constraint can depend on
type evalEnv struct {
	requester string
	now       time.Time
	count     func() (int64, error)
}

var errMalformedOperand = errors.New("unreadable right operand")

// holds evaluates a recognised constraint. An operand that cannot be read
// is an error, so it denies under permissions and prohibitions alike.
func holds(c Constraint, env *evalEnv) (bool, error) {
	switch ClassifyConstraint(c) {
	case PatternConnectorRestriction:
		return env.requester != "" && env.requester == c.RightOperand, nil

	case PatternTimeInterval:
		bound, err := time.Parse(time.RFC3339, c.RightOperand)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not an RFC 3339 time", errMalformedOperand, c.RightOperand)
		}
		if c.Operator == operatorAfter {
			return env.now.After(bound), nil
		}
		return env.now.Before(bound), nil

	case PatternUsageCount:
		limit, err := usageLimit(c)
		if err != nil {
			return false, err
		}
		used, err := env.count()
		if err != nil {
			return false, fmt.Errorf("reading usage counter: %w", err)
		}
		return used+1 <= limit, nil
	}
	return false, fmt.Errorf("%w: %s %s", errUnknownPattern, c.LeftOperand, c.Operator)
}

// usageLimit returns the number of uses a usage count constraint allows
func usageLimit(c Constraint) (int64, error) {
	n, err := strconv.ParseInt(c.RightOperand, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(c.RightOperand, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%w: %q is not a whole number", errMalformedOperand, c.RightOperand)
		}
		n = int64(f)
	}
	if c.Operator == operatorLess {
		n--
	}
	return n, nil
}
