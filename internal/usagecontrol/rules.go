// Package usagecontrol decides whether an artifact may be released under a
// contract agreement and carries out the duties attached to a release.
package usagecontrol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
)

// ErrInvalidRuleDocument is returned when a rule document cannot be decoded
var ErrInvalidRuleDocument = errors.New("invalid rule document")

// Rule is one of Permission, Prohibition or Duty. The variant is fixed by
// the document section the rule was read from.
type Rule interface {
	RuleID() string
	Target() string
	isRule()
}

// Constraint is a single left operand / operator / right operand triple.
// IRIs are held in compact form.
type Constraint struct {
	LeftOperand  string
	Operator     string
	RightOperand string
}

// Permission allows an action when all of its constraints hold
type Permission struct {
	ID          string
	TargetID    string
	Actions     []string
	Constraints []Constraint
	PostDuties  []Duty
}

// Prohibition forbids an action when all of its constraints hold
type Prohibition struct {
	ID          string
	TargetID    string
	Actions     []string
	Constraints []Constraint
}

// Duty is an obligation, either standalone or attached to a permission
type Duty struct {
	ID          string
	TargetID    string
	Actions     []string
	Constraints []Constraint
}

func (r *Permission) RuleID() string  { return r.ID }
func (r *Permission) Target() string  { return r.TargetID }
func (r *Permission) isRule()         {}
func (r *Prohibition) RuleID() string { return r.ID }
func (r *Prohibition) Target() string { return r.TargetID }
func (r *Prohibition) isRule()        {}
func (r *Duty) RuleID() string        { return r.ID }
func (r *Duty) Target() string        { return r.TargetID }
func (r *Duty) isRule()               {}

// RuleSet is a decoded contract document
type RuleSet struct {
	ID       string
	Type     string
	Provider string
	Consumer string
	Rules    []Rule
}

// Targets returns the distinct non-empty rule targets in document order
func (rs *RuleSet) Targets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs.Rules {
		t := r.Target()
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ParseRules decodes a contract offer, request or agreement document
func ParseRules(doc []byte) (*RuleSet, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidRuleDocument)
	}

	var d contractJSON
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleDocument, err)
	}
	if !strings.HasPrefix(message.CompactIRI(d.Type), "ids:Contract") {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidRuleDocument, d.Type)
	}

	rs := &RuleSet{
		ID:       d.ID,
		Type:     message.CompactIRI(d.Type),
		Provider: string(d.Provider),
		Consumer: string(d.Consumer),
	}
	for _, r := range d.Permissions {
		p := &Permission{
			ID:          r.ID,
			TargetID:    string(r.Target),
			Actions:     r.Actions.compact(),
			Constraints: r.constraints(),
		}
		for _, duty := range r.PostDuties {
			p.PostDuties = append(p.PostDuties, *duty.duty())
		}
		rs.Rules = append(rs.Rules, p)
	}
	for _, r := range d.Prohibitions {
		rs.Rules = append(rs.Rules, &Prohibition{
			ID:          r.ID,
			TargetID:    string(r.Target),
			Actions:     r.Actions.compact(),
			Constraints: r.constraints(),
		})
	}
	for _, r := range d.Obligations {
		rs.Rules = append(rs.Rules, r.duty())
	}
	return rs, nil
}

// Wire representation. Values may appear as plain strings, {"@id": ...}
// references or {"@value": ...} literals, and lists may be single objects.

type contractJSON struct {
	ID           string              `json:"@id"`
	Type         string              `json:"@type"`
	Provider     ref                 `json:"ids:provider"`
	Consumer     ref                 `json:"ids:consumer"`
	Permissions  oneOrMany[ruleJSON] `json:"ids:permission"`
	Prohibitions oneOrMany[ruleJSON] `json:"ids:prohibition"`
	Obligations  oneOrMany[ruleJSON] `json:"ids:obligation"`
}

type ruleJSON struct {
	ID          string                    `json:"@id"`
	Type        string                    `json:"@type"`
	Target      ref                       `json:"ids:target"`
	Actions     refs                      `json:"ids:action"`
	Constraints oneOrMany[constraintJSON] `json:"ids:constraint"`
	PostDuties  oneOrMany[ruleJSON]       `json:"ids:postDuty"`
}

func (r ruleJSON) constraints() []Constraint {
	out := make([]Constraint, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		right := string(c.RightOperand)
		if right == "" {
			right = string(c.RightOperandReference)
		}
		out = append(out, Constraint{
			LeftOperand:  message.CompactIRI(string(c.LeftOperand)),
			Operator:     message.CompactIRI(string(c.Operator)),
			RightOperand: right,
		})
	}
	return out
}

func (r ruleJSON) duty() *Duty {
	return &Duty{
		ID:          r.ID,
		TargetID:    string(r.Target),
		Actions:     r.Actions.compact(),
		Constraints: r.constraints(),
	}
}

type constraintJSON struct {
	LeftOperand           ref `json:"ids:leftOperand"`
	Operator              ref `json:"ids:operator"`
	RightOperand          ref `json:"ids:rightOperand"`
	RightOperandReference ref `json:"ids:rightOperandReference"`
}

// oneOrMany is a JSON-LD list, which may be written as a single object
type oneOrMany[T any] []T

func (l *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var single T
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*l = oneOrMany[T]{single}
	return nil
}

// ref is an IRI or literal in any of its JSON-LD spellings
type ref string

func (r *ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ref(s)
		return nil
	}
	var obj struct {
		ID    string `json:"@id"`
		Value string `json:"@value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unsupported value %s", data)
	}
	if obj.ID != "" {
		*r = ref(obj.ID)
	} else {
		*r = ref(obj.Value)
	}
	return nil
}

type refs []ref

func (r *refs) UnmarshalJSON(data []byte) error {
	var list []ref
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var single ref
	if err := single.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = refs{single}
	return nil
}

func (r refs) compact() []string {
	out := make([]string, 0, len(r))
	for _, v := range r {
		out = append(out, message.CompactIRI(string(v)))
	}
	return out
}
