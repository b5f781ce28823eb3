package models

// Worker role names. Fallback text and sampling temperature are keyed by role.
const (
	RolePrincipal  = "principal"
	RoleSpecialist = "specialist"
	RoleHarvester  = "harvester"
	RoleValidator  = "validator"
	RoleAuditor    = "auditor"
)

// Canonical worker names. These are the registry keys and the identifiers
// used in dependency declarations, handoffs, and findings maps.
const (
	WorkerPrincipal  = "principal-synthesizer"
	WorkerSpecialist = "domain-specialist"
	WorkerHarvester  = "web-harvester"
	WorkerValidator  = "fact-validator"
	WorkerAuditor    = "quality-auditor"
)

// WorkerSpec describes a registered worker: its unique name, declared role,
// and the names of workers it depends on. Specs are registered at startup
// and immutable afterwards.
type WorkerSpec struct {
	// Name is the unique worker identifier.
	Name string `yaml:"name"`
	// Role is the worker's declared role (principal, specialist, ...).
	Role string `yaml:"role"`
	// DependsOn lists worker names whose findings this worker consumes.
	DependsOn []string `yaml:"depends_on"`
	// Model overrides the configured default model for this worker.
	Model string `yaml:"model"`
	// Temperature overrides the role's base sampling temperature when > 0.
	Temperature float64 `yaml:"temperature"`
}

// Trend classifies the direction of a worker's recent success rate.
type Trend string

const (
	// TrendImproving means the recent success rate exceeds the prior window by >0.1.
	TrendImproving Trend = "improving"
	// TrendDegrading means the recent success rate trails the prior window by >0.1.
	TrendDegrading Trend = "degrading"
	// TrendStable means the recent and prior windows are within 0.1 of each other.
	TrendStable Trend = "stable"
	// TrendInsufficientData means fewer than 5 interactions are recorded.
	TrendInsufficientData Trend = "insufficient_data"
)

// WorkerMetrics aggregates a worker's interaction history.
type WorkerMetrics struct {
	// Count is the total number of recorded interactions.
	Count int
	// SuccessRate is successful interactions over Count, 1.0 when Count is 0.
	SuccessRate float64
	// AvgTimeSeconds is the mean execution time per interaction.
	AvgTimeSeconds float64
	// AvgTokens is the mean token count per interaction.
	AvgTokens float64
	// Trend compares the most recent five interactions against the prior five.
	Trend Trend
}
