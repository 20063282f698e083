package sim

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixed capacities of the shared region. Config values are validated against them
// so every attaching process computes the same layout.
const (
	MaxGangsLimit    = 20 // slots in the arrested-gangs and officer tables
	MaxGangSizeLimit = 64 // upper bound for max_gang_size
	MaxAskersLimit   = 16 // capacity of a member's askers list
	MaxAgentsLimit   = 32 // upper bound for max_agents_per_gang
)

// Config is the validated parameter bag shared by every process of a simulation run.
// Field names follow the original configuration keys.
type Config struct {
	// Game-ending thresholds
	MaxThwartedPlans   int `yaml:"max_thwarted_plans"`
	MaxSuccessfulPlans int `yaml:"max_successful_plans"`
	MaxExecutedAgents  int `yaml:"max_executed_agents"`

	// Population
	NumGangs    int `yaml:"num_gangs"` // 0 = draw from [min_gangs, max_gangs]
	MinGangs    int `yaml:"min_gangs"`
	MaxGangs    int `yaml:"max_gangs"`
	MinGangSize int `yaml:"min_gang_size"`
	MaxGangSize int `yaml:"max_gang_size"`
	NumRanks    int `yaml:"num_ranks"`

	// Covert intelligence
	MaxAgentsPerGang   int     `yaml:"max_agents_per_gang"`
	AgentSuccessRate   float64 `yaml:"agent_success_rate"`
	PlantProbability   float64 `yaml:"plant_probability"`
	SuspicionThreshold float64 `yaml:"suspicion_threshold"`
	KnowledgeThreshold float64 `yaml:"knowledge_threshold"`
	AskProbability     float64 `yaml:"ask_probability"`
	MaxAskers          int     `yaml:"max_askers"`
	TimeoutPeriod      int     `yaml:"timeout_period"` // ticks before an officer re-requests a report

	// Police
	MinPrisonPeriod int `yaml:"min_prison_period"`
	MaxPrisonPeriod int `yaml:"max_prison_period"`

	// Outcome model
	DifficultyLevel         int     `yaml:"difficulty_level"`
	MaxDifficulty           int     `yaml:"max_difficulty"`
	DeathProbability        float64 `yaml:"death_probability"`
	MisinformationChance    float64 `yaml:"misinformation_chance"`
	ReselectTargetEachCycle bool    `yaml:"reselect_target_each_cycle"`

	// Pacing and determinism
	TickMillis int   `yaml:"tick_ms"`
	Seed       int64 `yaml:"seed"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() Config {
	return Config{
		MaxThwartedPlans:     10,
		MaxSuccessfulPlans:   10,
		MaxExecutedAgents:    5,
		NumGangs:             0,
		MinGangs:             2,
		MaxGangs:             4,
		MinGangSize:          4,
		MaxGangSize:          8,
		NumRanks:             5,
		MaxAgentsPerGang:     3,
		AgentSuccessRate:     0.6,
		PlantProbability:     0.2,
		SuspicionThreshold:   0.9,
		KnowledgeThreshold:   0.8,
		AskProbability:       0.3,
		MaxAskers:            8,
		TimeoutPeriod:        10,
		MinPrisonPeriod:      7,
		MaxPrisonPeriod:      20,
		DifficultyLevel:      1,
		MaxDifficulty:        5,
		DeathProbability:     0.05,
		MisinformationChance: 0.2,
		TickMillis:           100,
		Seed:                 42,
	}
}

// Tick returns the duration of one simulation tick.
func (c Config) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

// DifficultyFactor returns 1 + difficulty_level/max_difficulty (1 when max_difficulty is 0).
func (c Config) DifficultyFactor() float64 {
	if c.MaxDifficulty <= 0 {
		return 1.0
	}
	return 1.0 + float64(c.DifficultyLevel)/float64(c.MaxDifficulty)
}

// ResolveGangs returns a copy with NumGangs fixed: a zero NumGangs is drawn
// uniformly from [MinGangs, MaxGangs] (at least 1).
func (c Config) ResolveGangs(rng *rand.Rand) Config {
	if c.NumGangs == 0 {
		c.NumGangs = max(RandInt(rng, c.MinGangs, c.MaxGangs), 1)
	}
	return c
}

// Validate checks the configuration. NumGangs must be resolved (non-zero) before a region
// is created; Validate accepts 0 so that a file may defer the choice to [min_gangs, max_gangs].
func (c Config) Validate() error {
	ints := []struct {
		name string
		val  int
	}{
		{"max_thwarted_plans", c.MaxThwartedPlans},
		{"max_successful_plans", c.MaxSuccessfulPlans},
		{"max_executed_agents", c.MaxExecutedAgents},
		{"num_gangs", c.NumGangs},
		{"min_gangs", c.MinGangs},
		{"max_gangs", c.MaxGangs},
		{"min_gang_size", c.MinGangSize},
		{"max_gang_size", c.MaxGangSize},
		{"num_ranks", c.NumRanks},
		{"max_agents_per_gang", c.MaxAgentsPerGang},
		{"max_askers", c.MaxAskers},
		{"timeout_period", c.TimeoutPeriod},
		{"min_prison_period", c.MinPrisonPeriod},
		{"max_prison_period", c.MaxPrisonPeriod},
		{"difficulty_level", c.DifficultyLevel},
		{"max_difficulty", c.MaxDifficulty},
	}
	for _, f := range ints {
		if f.val < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.name, f.val)
		}
	}

	probs := []struct {
		name string
		val  float64
	}{
		{"agent_success_rate", c.AgentSuccessRate},
		{"plant_probability", c.PlantProbability},
		{"suspicion_threshold", c.SuspicionThreshold},
		{"knowledge_threshold", c.KnowledgeThreshold},
		{"ask_probability", c.AskProbability},
		{"death_probability", c.DeathProbability},
		{"misinformation_chance", c.MisinformationChance},
	}
	for _, f := range probs {
		if math.IsNaN(f.val) || f.val < 0 || f.val > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %f", f.name, f.val)
		}
	}

	pairs := []struct {
		minName, maxName string
		min, max         int
	}{
		{"min_gangs", "max_gangs", c.MinGangs, c.MaxGangs},
		{"min_gang_size", "max_gang_size", c.MinGangSize, c.MaxGangSize},
		{"min_prison_period", "max_prison_period", c.MinPrisonPeriod, c.MaxPrisonPeriod},
	}
	for _, p := range pairs {
		if p.min > p.max {
			return fmt.Errorf("%s (%d) cannot be greater than %s (%d)", p.minName, p.min, p.maxName, p.max)
		}
	}

	if c.NumGangs > MaxGangsLimit || c.MaxGangs > MaxGangsLimit {
		return fmt.Errorf("at most %d gangs are supported", MaxGangsLimit)
	}
	if c.NumGangs == 0 && c.MaxGangs == 0 {
		return fmt.Errorf("num_gangs or max_gangs must be positive")
	}
	if c.MinGangSize < 1 {
		return fmt.Errorf("min_gang_size must be at least 1, got %d", c.MinGangSize)
	}
	if c.MaxGangSize > MaxGangSizeLimit {
		return fmt.Errorf("max_gang_size must be at most %d, got %d", MaxGangSizeLimit, c.MaxGangSize)
	}
	if c.MaxAskers > MaxAskersLimit {
		return fmt.Errorf("max_askers must be at most %d, got %d", MaxAskersLimit, c.MaxAskers)
	}
	if c.MaxAgentsPerGang > MaxAgentsLimit {
		return fmt.Errorf("max_agents_per_gang must be at most %d, got %d", MaxAgentsLimit, c.MaxAgentsPerGang)
	}
	if c.NumRanks < 1 {
		return fmt.Errorf("num_ranks must be at least 1, got %d", c.NumRanks)
	}
	if c.TickMillis < 1 {
		return fmt.Errorf("tick_ms must be at least 1, got %d", c.TickMillis)
	}
	return nil
}

// Serialize encodes the configuration as a single command-line safe token
// (base64 of its YAML form) for child process startup.
func (c Config) Serialize() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DeserializeConfig decodes a token produced by Serialize. Unknown keys are rejected.
func DeserializeConfig(token string) (Config, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config token: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config token: %w", err)
	}
	return cfg, nil
}
