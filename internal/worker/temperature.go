package worker

import "github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"

// Sampling temperature selection. Base temperatures are per role; retries
// and a poor recent success rate nudge the value up to shake a struggling
// model out of a failure mode, while a strong track record allows a more
// deterministic setting.

const (
	maxTemperature     = 0.9
	retryBump          = 0.05
	maxRetryAdjustment = 0.2
)

var baseTemperatures = map[string]float64{
	models.RolePrincipal:  0.1,
	models.RoleSpecialist: 0.3,
	models.RoleHarvester:  0.3,
	models.RoleValidator:  0.1,
	models.RoleAuditor:    0.2,
}

// OptimalTemperature computes the sampling temperature for an attempt.
// attempt is zero-based; successRate is the worker's recent success rate,
// pass a negative value when no history exists.
func OptimalTemperature(role string, attempt int, successRate float64) float64 {
	temp, ok := baseTemperatures[role]
	if !ok {
		temp = 0.3
	}

	if attempt > 0 {
		adj := retryBump * float64(attempt)
		if adj > maxRetryAdjustment {
			adj = maxRetryAdjustment
		}
		temp += adj
	}

	switch {
	case successRate >= 0 && successRate < 0.7:
		temp *= 1.2
	case successRate > 0.95:
		temp *= 0.9
	}

	if temp > maxTemperature {
		temp = maxTemperature
	}
	if temp < 0 {
		temp = 0
	}
	return temp
}
