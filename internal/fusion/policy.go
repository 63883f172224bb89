package fusion

import (
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
)

// Policy is the effective filter set of one request
type Policy struct {
	Blocklist        []string
	Allowlist        []string
	SourceTypesAllow []string
	SourceTypesBlock []string
	DomainsAllow     []string
	DomainsBlock     []string
	Rules            []model.PolicyRule
}

// MergePolicy unions the configured lists with the plan constraints and the
// caller preferences. Rules come from configuration only.
func MergePolicy(cfg model.PolicyConfig, constraints, preferences model.Constraints) Policy {
	return Policy{
		Blocklist:        union(model.ParseList(cfg.Blocklist), constraints.Blocklist, preferences.Blocklist),
		Allowlist:        union(model.ParseList(cfg.Allowlist), constraints.Allowlist, preferences.Allowlist),
		SourceTypesAllow: union(model.ParseList(cfg.SourceTypesAllow), constraints.SourceTypesAllow, preferences.SourceTypesAllow),
		SourceTypesBlock: union(model.ParseList(cfg.SourceTypesBlock), constraints.SourceTypesBlock, preferences.SourceTypesBlock),
		DomainsAllow:     union(model.ParseList(cfg.DomainsAllow), constraints.DomainsAllow, preferences.DomainsAllow),
		DomainsBlock:     union(model.ParseList(cfg.DomainsBlock), constraints.DomainsBlock, preferences.DomainsBlock),
		Rules:            cfg.Rules,
	}
}

func union(lists ...model.StringList) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, v := range l {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// ApplyBlocklist drops items whose text contains a block term
func ApplyBlocklist(items []*model.EvidenceItem, blocklist []string) []*model.EvidenceItem {
	if len(blocklist) == 0 {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if !containsAny(strings.ToLower(it.Text), blocklist) {
			out = append(out, it)
		}
	}
	return out
}

// ApplyRules enforces the allow-list, the source type and domain sets, and
// the ordered rules. Set checks only apply when the item carries a value.
func ApplyRules(items []*model.EvidenceItem, p Policy) []*model.EvidenceItem {
	out := items[:0:0]
	for _, it := range items {
		if Admit(it, p) {
			out = append(out, it)
		}
	}
	return out
}

// Admit reports whether a single item passes the policy rules stage
func Admit(it *model.EvidenceItem, p Policy) bool {
	text := strings.ToLower(it.Text)

	if len(p.Allowlist) > 0 && !containsAny(text, p.Allowlist) {
		return false
	}
	if it.SourceType != "" {
		if len(p.SourceTypesAllow) > 0 && !contains(p.SourceTypesAllow, it.SourceType) {
			return false
		}
		if contains(p.SourceTypesBlock, it.SourceType) {
			return false
		}
	}
	if it.Domain != "" {
		if len(p.DomainsAllow) > 0 && !contains(p.DomainsAllow, it.Domain) {
			return false
		}
		if contains(p.DomainsBlock, it.Domain) {
			return false
		}
	}

	for _, rule := range p.Rules {
		action := strings.ToLower(strings.TrimSpace(rule.Action))
		if action != "allow" && action != "deny" {
			continue
		}
		if matchRule(rule, text, it.SourceType, it.Domain) {
			return action == "allow"
		}
	}
	return true
}

// matchRule holds when every non-empty predicate of rule holds
func matchRule(rule model.PolicyRule, text, sourceType, domain string) bool {
	if len(rule.Domains) > 0 && !contains(lower(rule.Domains), domain) {
		return false
	}
	if len(rule.SourceTypes) > 0 && !contains(lower(rule.SourceTypes), sourceType) {
		return false
	}
	if len(rule.Contains) > 0 && !containsAny(text, lower(rule.Contains)) {
		return false
	}
	if len(rule.NotContains) > 0 && containsAny(text, lower(rule.NotContains)) {
		return false
	}
	return true
}

// ApplyFreshness drops dated items older than days before now. Undated items
// are kept; a nil or negative days disables the filter.
func ApplyFreshness(items []*model.EvidenceItem, days *float64, now time.Time) []*model.EvidenceItem {
	if days == nil || *days < 0 {
		return items
	}
	cutoff := now.Add(-time.Duration(*days * float64(24*time.Hour)))

	out := items[:0:0]
	for _, it := range items {
		if it.Timestamp != nil && it.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lower(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
