package resilience

import (
	"fmt"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// Degradation reasons attached to fallback results.
const (
	ReasonTimeout     = "timeout"
	ReasonError       = "error"
	ReasonValidation  = "validation"
	ReasonCircuitOpen = "circuit_open"
	ReasonMaxRetries  = "max_retries"
)

// principalTimeoutFallback is a conservative analysis used when the
// principal cannot produce one: a moderate parallel plan over the two
// general-purpose workers.
const principalTimeoutFallback = `{
  "complexity": "moderate",
  "reasoning": "Analysis unavailable, using a conservative default plan",
  "domain": "general",
  "agents_needed": ["domain-specialist", "web-harvester"],
  "strategy": "parallel",
  "key_aspects": ["main topic", "current information"],
  "fallback": true,
  "reason": "timeout"
}`

// principalErrorFallback widens the plan when the failure was not a simple
// timeout, on the assumption the query needs more coverage rather than less.
const principalErrorFallback = `{
  "complexity": "complex",
  "reasoning": "Analysis unavailable, defaulting to broad coverage",
  "domain": "general",
  "agents_needed": ["domain-specialist", "web-harvester", "fact-validator"],
  "strategy": "sequential",
  "key_aspects": ["comprehensive analysis needed"],
  "fallback": true,
  "reason": "error"
}`

// Fallback returns the canned response for a worker that could not produce
// output, keyed by role and failure reason. It never returns an empty string.
func Fallback(name, role, reason string) string {
	if role == models.RolePrincipal {
		if reason == ReasonTimeout {
			return principalTimeoutFallback
		}
		return principalErrorFallback
	}

	switch reason {
	case ReasonTimeout:
		switch role {
		case models.RoleSpecialist, models.RoleHarvester:
			return "Unable to complete research due to timeout. The query appears to require further investigation."
		case models.RoleValidator:
			return "Unable to validate claims due to timeout. Recommend manual verification of key facts."
		case models.RoleAuditor:
			return "Quality audit unavailable due to timeout.\nSCORE: 0.5"
		}
		return fmt.Sprintf("%s was unable to complete the task due to timeout.", name)
	case ReasonCircuitOpen:
		return fmt.Sprintf("%s is temporarily unavailable due to repeated failures.", name)
	case ReasonMaxRetries:
		return fmt.Sprintf("%s could not complete the task after multiple attempts.", name)
	}

	switch role {
	case models.RoleValidator:
		return "Unable to validate claims. Recommend manual verification of key facts."
	case models.RoleAuditor:
		return "Quality audit unavailable.\nSCORE: 0.5"
	}
	return fmt.Sprintf("%s encountered an error. Please try a simpler query.", name)
}
