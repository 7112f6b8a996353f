package engine

import (
	"time"

	"safetysec/internal/models"
)

// RuleActiveAt decides whether a rule may be evaluated at the given wall-clock
// instant. Unauthorized rules are never active. A rule without time windows is
// always active; otherwise any matching window activates it.
//
// The check is fail-closed: if window matching panics on a corrupt document
// the rule is treated as inactive for this pass.
func RuleActiveAt(rule *models.SafetyRule, now time.Time) (active bool) {
	defer func() {
		if r := recover(); r != nil {
			active = false
		}
	}()

	if !rule.Authorized {
		return false
	}
	if len(rule.TimeWindows) == 0 {
		return true
	}
	for _, w := range rule.TimeWindows {
		if w.Contains(now) {
			return true
		}
	}
	return false
}
