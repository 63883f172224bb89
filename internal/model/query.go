package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QueryRequest is the caller-facing entry point of the answer pipeline
type QueryRequest struct {
	UserID      string      `json:"user_id" validate:"notblank"`
	Query       string      `json:"query" validate:"notblank,maxbytes"`
	Tenant      string      `json:"tenant,omitempty"`
	Preferences Constraints `json:"preferences,omitempty"`
}

// Constraints carries retrieval constraints. The same shape is used for
// planner-produced constraints and caller preferences.
type Constraints struct {
	Domain           string     `json:"domain,omitempty"`
	FreshnessDays    *float64   `json:"freshness_days,omitempty"`
	Blocklist        StringList `json:"blocklist,omitempty"`
	Allowlist        StringList `json:"allowlist,omitempty"`
	SourceTypesAllow StringList `json:"source_types_allow,omitempty"`
	SourceTypesBlock StringList `json:"source_types_block,omitempty"`
	DomainsAllow     StringList `json:"domains_allow,omitempty"`
	DomainsBlock     StringList `json:"domains_block,omitempty"`
}

// UnmarshalJSON accepts "freshness" as an alias of "freshness_days" and
// tolerates numbers encoded as strings.
func (c *Constraints) UnmarshalJSON(data []byte) error {
	type plain Constraints
	var aux struct {
		plain
		FreshnessDays any `json:"freshness_days,omitempty"`
		Freshness     any `json:"freshness,omitempty"`
		Domain        any `json:"domain,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode constraints: %w", err)
	}

	*c = Constraints(aux.plain)
	if s, ok := aux.Domain.(string); ok {
		c.Domain = strings.TrimSpace(s)
	}
	if days, ok := toFloat(aux.FreshnessDays); ok {
		c.FreshnessDays = &days
	} else if days, ok := toFloat(aux.Freshness); ok {
		c.FreshnessDays = &days
	}
	return nil
}

// IsEmpty reports whether no constraint is set
func (c Constraints) IsEmpty() bool {
	return c.Domain == "" && c.FreshnessDays == nil &&
		len(c.Blocklist) == 0 && len(c.Allowlist) == 0 &&
		len(c.SourceTypesAllow) == 0 && len(c.SourceTypesBlock) == 0 &&
		len(c.DomainsAllow) == 0 && len(c.DomainsBlock) == 0
}

// StringList is a lower-cased list that decodes from either a JSON array or
// a comma-separated string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = ParseList(raw)
	return nil
}

// ParseList normalizes a list-ish value into trimmed lower-case entries
func ParseList(value any) StringList {
	var out StringList
	switch v := value.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		for _, part := range v {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range v {
			part := strings.ToLower(strings.TrimSpace(fmt.Sprint(item)))
			if item != nil && part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Plan is the planner's expansion of a raw query
type Plan struct {
	Intent      string      `json:"intent"`
	Hypotheses  []string    `json:"hypotheses"`
	Queries     []string    `json:"queries"` // Ordered sub-queries, never empty
	Constraints Constraints `json:"constraints"`
	Source      string      `json:"source"` // "llm", "cache" or "rules"
}
