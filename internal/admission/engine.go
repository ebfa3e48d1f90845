// Package admission gatekeeps Config Source writes before they ever
// reach the engine's Config Store: a namespace may be capped on the
// importance it can request, or floored on the budget it must accept,
// independently of whether scxslo.Validate would itself accept the
// value. This is entirely a host-side policy; the core engine knows
// nothing about namespaces.
package admission

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NamespaceQuota bounds what a single namespace may request.
type NamespaceQuota struct {
	MaxImportance uint32 `yaml:"max_importance"`
	MinBudgetNS   uint64 `yaml:"min_budget_ns"`
	MaxWorkloads  int    `yaml:"max_workloads"`
}

// RuleMatch selects which upserts a Rule applies to; an empty field
// matches anything.
type RuleMatch struct {
	Namespace          string `yaml:"namespace"`
	WorkloadName       string `yaml:"workload_name"`
	PriorityClass      string `yaml:"priority_class"`
	DataClassification string `yaml:"data_classification"`
}

// Rule is one allow/deny entry in a Config.
type Rule struct {
	Name   string    `yaml:"name"`
	Effect string    `yaml:"effect"` // allow|deny
	Reason string    `yaml:"reason"`
	Match  RuleMatch `yaml:"match"`
}

// Config is the on-disk admission policy shape, loaded from YAML.
type Config struct {
	DefaultAction   string                    `yaml:"default_action"` // allow|deny
	Rules           []Rule                    `yaml:"rules"`
	NamespaceQuotas map[string]NamespaceQuota `yaml:"namespace_quotas"`
}

// Decision is the result of evaluating one upsert request.
type Decision struct {
	Allowed    bool
	ReasonCode string
	Rule       string
	Message    string
}

// UpsertInput is the request an admission Engine evaluates before the
// Config Source is permitted to upsert a workload's SloCfg.
type UpsertInput struct {
	Namespace          string
	WorkloadName       string
	PriorityClass      string
	DataClassification string
	Importance         uint32
	BudgetNS           uint64
	NamespaceCount     int // workloads this namespace already has configured
}

// Engine evaluates UpsertInputs against a loaded Config.
type Engine struct {
	defaultAction string
	rules         []Rule
	quotas        map[string]NamespaceQuota
	noop          bool
}

// NewAllowAll returns an Engine that admits every request, for
// deployments that don't configure admission policy.
func NewAllowAll() *Engine {
	return &Engine{
		defaultAction: "allow",
		quotas:        map[string]NamespaceQuota{},
		noop:          true,
	}
}

// LoadFromEnv reads SLOSCX_ADMISSION_FILE, if set, and builds an
// Engine from it; absent the variable it returns NewAllowAll().
func LoadFromEnv() (*Engine, error) {
	path := strings.TrimSpace(os.Getenv("SLOSCX_ADMISSION_FILE"))
	if path == "" {
		return NewAllowAll(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read admission policy file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse admission policy file: %w", err)
	}
	return NewFromConfig(cfg), nil
}

// NewFromConfig builds an Engine from an already-parsed Config.
func NewFromConfig(cfg Config) *Engine {
	e := &Engine{
		defaultAction: normalizeAction(cfg.DefaultAction),
		rules:         make([]Rule, 0, len(cfg.Rules)),
		quotas:        map[string]NamespaceQuota{},
	}
	for _, r := range cfg.Rules {
		r.Effect = normalizeAction(r.Effect)
		if r.Effect == "" {
			r.Effect = "deny"
		}
		e.rules = append(e.rules, r)
	}
	for k, v := range cfg.NamespaceQuotas {
		e.quotas[strings.TrimSpace(k)] = v
	}
	if e.defaultAction == "" {
		e.defaultAction = "allow"
	}
	if e.defaultAction == "allow" && len(e.rules) == 0 && len(e.quotas) == 0 {
		e.noop = true
	}
	return e
}

// IsNoop reports whether e admits everything (the zero-config case).
func (e *Engine) IsNoop() bool { return e != nil && e.noop }

// Evaluate decides whether in's upsert is admitted.
func (e *Engine) Evaluate(in UpsertInput) Decision {
	namespace := strings.TrimSpace(in.Namespace)
	if namespace == "" {
		namespace = "default"
	}
	if q, ok := e.quotas[namespace]; ok {
		if q.MaxImportance > 0 && in.Importance > q.MaxImportance {
			return Decision{
				Allowed:    false,
				ReasonCode: "quota_importance_exceeded",
				Rule:       "namespace_quotas." + namespace,
				Message:    fmt.Sprintf("importance %d exceeds max_importance %d", in.Importance, q.MaxImportance),
			}
		}
		if q.MinBudgetNS > 0 && in.BudgetNS < q.MinBudgetNS {
			return Decision{
				Allowed:    false,
				ReasonCode: "quota_budget_below_minimum",
				Rule:       "namespace_quotas." + namespace,
				Message:    fmt.Sprintf("budget_ns %d is below min_budget_ns %d", in.BudgetNS, q.MinBudgetNS),
			}
		}
		if q.MaxWorkloads > 0 && in.NamespaceCount >= q.MaxWorkloads {
			return Decision{
				Allowed:    false,
				ReasonCode: "quota_workloads_exceeded",
				Rule:       "namespace_quotas." + namespace,
				Message:    fmt.Sprintf("namespace already has %d workloads, max_workloads is %d", in.NamespaceCount, q.MaxWorkloads),
			}
		}
	}
	return e.evaluateRules(RuleMatch{
		Namespace:           namespace,
		WorkloadName:        in.WorkloadName,
		PriorityClass:       in.PriorityClass,
		DataClassification:  in.DataClassification,
	})
}

func (e *Engine) evaluateRules(input RuleMatch) Decision {
	for _, r := range e.rules {
		if !matches(r.Match, input) {
			continue
		}
		allowed := r.Effect == "allow"
		reason := "policy_rule_" + r.Effect
		if r.Reason != "" {
			reason = strings.TrimSpace(r.Reason)
		}
		msg := reason
		if r.Name != "" {
			msg = r.Name + ": " + reason
		}
		return Decision{Allowed: allowed, ReasonCode: reason, Rule: r.Name, Message: msg}
	}
	if e.defaultAction == "deny" {
		return Decision{
			Allowed:    false,
			ReasonCode: "default_deny",
			Rule:       "default_action",
			Message:    "request denied by default_action=deny",
		}
	}
	return Decision{
		Allowed:    true,
		ReasonCode: "default_allow",
		Rule:       "default_action",
		Message:    "request allowed by default_action=allow",
	}
}

func matches(rule RuleMatch, in RuleMatch) bool {
	if rule.Namespace != "" && rule.Namespace != in.Namespace {
		return false
	}
	if rule.WorkloadName != "" && rule.WorkloadName != in.WorkloadName {
		return false
	}
	if rule.PriorityClass != "" && rule.PriorityClass != in.PriorityClass {
		return false
	}
	if rule.DataClassification != "" && rule.DataClassification != in.DataClassification {
		return false
	}
	return true
}

func normalizeAction(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "allow":
		return "allow"
	case "deny":
		return "deny"
	default:
		return ""
	}
}
