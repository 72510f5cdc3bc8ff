package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skyfleet-robotics/formation.control/internal/swarm"
)

// DefaultConfigPath is the path to the canonical simulation defaults
// file. This is the single source of truth for all default tuning
// values.
const DefaultConfigPath = "config/sim.defaults.json"

// SimConfig is the root configuration for a formation-control run. All
// fields are pointers so a partial JSON file inherits defaults for the
// fields it omits; the Get* accessors supply the fallbacks.
type SimConfig struct {
	// Fleet
	AgentCount *int `json:"agent_count,omitempty"`

	// Safety filter params
	SensingRadius  *float64 `json:"sensing_radius,omitempty"`
	SafetyDistance *float64 `json:"safety_distance,omitempty"`
	ObstacleMargin *float64 `json:"obstacle_margin,omitempty"`
	Alpha1         *float64 `json:"alpha1,omitempty"`
	Alpha2         *float64 `json:"alpha2,omitempty"`
	MaxAccel       *float64 `json:"max_accel,omitempty"`

	// Loop params
	Dt                  *float64 `json:"dt,omitempty"`
	InfeasibleTickLimit *int     `json:"infeasible_tick_limit,omitempty"`
	HaltScope           *string  `json:"halt_scope,omitempty"` // "all" or "agent"
	BrakeGain           *float64 `json:"brake_gain,omitempty"`
	Parallel            *bool    `json:"parallel,omitempty"`

	// Tracking controller params
	Kp *float64 `json:"kp,omitempty"`
	Kv *float64 `json:"kv,omitempty"`

	// Formation params
	FormationShape    *string  `json:"formation_shape,omitempty"`
	FormationRadius   *float64 `json:"formation_radius,omitempty"`
	RotateWithHeading *bool    `json:"rotate_with_heading,omitempty"`
}

// EmptySimConfig returns a SimConfig with all fields nil. Use
// LoadSimConfig to load actual values from a defaults file.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig loads a SimConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe. The file
// must have a .json extension and stay under the size cap.
func LoadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical simulation defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every set field is in range and that the set as a
// whole is geometrically coherent. Runs once at load; the loop never
// discovers configuration errors mid-run.
func (c *SimConfig) Validate() error {
	if c.AgentCount != nil && *c.AgentCount < 1 {
		return fmt.Errorf("agent_count must be at least 1, got %d", *c.AgentCount)
	}
	if c.SafetyDistance != nil && *c.SafetyDistance <= 0 {
		return fmt.Errorf("safety_distance must be positive, got %f", *c.SafetyDistance)
	}
	if c.SensingRadius != nil {
		if *c.SensingRadius <= 0 {
			return fmt.Errorf("sensing_radius must be positive, got %f", *c.SensingRadius)
		}
		if *c.SensingRadius < c.GetSafetyDistance() {
			return fmt.Errorf("sensing_radius (%f) must be at least safety_distance (%f)",
				*c.SensingRadius, c.GetSafetyDistance())
		}
	}
	if c.ObstacleMargin != nil && *c.ObstacleMargin < 0 {
		return fmt.Errorf("obstacle_margin must be non-negative, got %f", *c.ObstacleMargin)
	}
	if c.Alpha1 != nil && *c.Alpha1 <= 0 {
		return fmt.Errorf("alpha1 must be positive, got %f", *c.Alpha1)
	}
	if c.Alpha2 != nil && *c.Alpha2 <= 0 {
		return fmt.Errorf("alpha2 must be positive, got %f", *c.Alpha2)
	}
	if c.MaxAccel != nil && *c.MaxAccel <= 0 {
		return fmt.Errorf("max_accel must be positive, got %f", *c.MaxAccel)
	}
	if c.Dt != nil && *c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", *c.Dt)
	}
	if c.InfeasibleTickLimit != nil && *c.InfeasibleTickLimit < 1 {
		return fmt.Errorf("infeasible_tick_limit must be at least 1, got %d", *c.InfeasibleTickLimit)
	}
	if c.HaltScope != nil {
		if s := swarm.HaltScope(*c.HaltScope); s != swarm.HaltScopeAll && s != swarm.HaltScopeAgent {
			return fmt.Errorf("halt_scope must be %q or %q, got %q",
				swarm.HaltScopeAll, swarm.HaltScopeAgent, *c.HaltScope)
		}
	}
	if c.BrakeGain != nil && *c.BrakeGain < 0 {
		return fmt.Errorf("brake_gain must be non-negative, got %f", *c.BrakeGain)
	}
	if c.Kp != nil && *c.Kp <= 0 {
		return fmt.Errorf("kp must be positive, got %f", *c.Kp)
	}
	if c.Kv != nil && *c.Kv <= 0 {
		return fmt.Errorf("kv must be positive, got %f", *c.Kv)
	}
	if c.FormationShape != nil {
		valid := false
		for _, s := range swarm.ValidShapes {
			if *c.FormationShape == s {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown formation_shape %q (valid: %v)", *c.FormationShape, swarm.ValidShapes)
		}
	}
	if c.FormationRadius != nil && *c.FormationRadius <= 0 {
		return fmt.Errorf("formation_radius must be positive, got %f", *c.FormationRadius)
	}
	return nil
}

// GetAgentCount returns the agent_count value or the default.
func (c *SimConfig) GetAgentCount() int {
	if c.AgentCount == nil {
		return 5
	}
	return *c.AgentCount
}

// GetSensingRadius returns the sensing_radius value or the default.
func (c *SimConfig) GetSensingRadius() float64 {
	if c.SensingRadius == nil {
		return 10.0
	}
	return *c.SensingRadius
}

// GetSafetyDistance returns the safety_distance value or the default.
func (c *SimConfig) GetSafetyDistance() float64 {
	if c.SafetyDistance == nil {
		return 1.0
	}
	return *c.SafetyDistance
}

// GetObstacleMargin returns the obstacle_margin value or the default.
func (c *SimConfig) GetObstacleMargin() float64 {
	if c.ObstacleMargin == nil {
		return 0.5
	}
	return *c.ObstacleMargin
}

// GetAlpha1 returns the alpha1 value or the default.
func (c *SimConfig) GetAlpha1() float64 {
	if c.Alpha1 == nil {
		return 2.0
	}
	return *c.Alpha1
}

// GetAlpha2 returns the alpha2 value or the default.
func (c *SimConfig) GetAlpha2() float64 {
	if c.Alpha2 == nil {
		return 1.0
	}
	return *c.Alpha2
}

// GetMaxAccel returns the max_accel value or the default.
func (c *SimConfig) GetMaxAccel() float64 {
	if c.MaxAccel == nil {
		return 5.0
	}
	return *c.MaxAccel
}

// GetDt returns the dt value or the default.
func (c *SimConfig) GetDt() float64 {
	if c.Dt == nil {
		return 0.02
	}
	return *c.Dt
}

// GetInfeasibleTickLimit returns the infeasible_tick_limit value or the default.
func (c *SimConfig) GetInfeasibleTickLimit() int {
	if c.InfeasibleTickLimit == nil {
		return 10
	}
	return *c.InfeasibleTickLimit
}

// GetHaltScope returns the halt_scope value or the default.
func (c *SimConfig) GetHaltScope() swarm.HaltScope {
	if c.HaltScope == nil {
		return swarm.HaltScopeAll
	}
	return swarm.HaltScope(*c.HaltScope)
}

// GetBrakeGain returns the brake_gain value or the default.
func (c *SimConfig) GetBrakeGain() float64 {
	if c.BrakeGain == nil {
		return 2.0
	}
	return *c.BrakeGain
}

// GetParallel returns the parallel value or the default.
func (c *SimConfig) GetParallel() bool {
	if c.Parallel == nil {
		return true
	}
	return *c.Parallel
}

// GetKp returns the kp value or the default.
func (c *SimConfig) GetKp() float64 {
	if c.Kp == nil {
		return 1.5
	}
	return *c.Kp
}

// GetKv returns the kv value or the default.
func (c *SimConfig) GetKv() float64 {
	if c.Kv == nil {
		return 2.0
	}
	return *c.Kv
}

// GetFormationShape returns the formation_shape value or the default.
func (c *SimConfig) GetFormationShape() string {
	if c.FormationShape == nil {
		return swarm.ShapePentagon
	}
	return *c.FormationShape
}

// GetFormationRadius returns the formation_radius value or the default.
func (c *SimConfig) GetFormationRadius() float64 {
	if c.FormationRadius == nil {
		return 8.0
	}
	return *c.FormationRadius
}

// GetRotateWithHeading returns the rotate_with_heading value or the default.
func (c *SimConfig) GetRotateWithHeading() bool {
	if c.RotateWithHeading == nil {
		return false
	}
	return *c.RotateWithHeading
}

// ToParams maps the configuration onto the orchestrator's parameter set.
func (c *SimConfig) ToParams() swarm.Params {
	return swarm.Params{
		SensingRadius:       c.GetSensingRadius(),
		SafetyDistance:      c.GetSafetyDistance(),
		ObstacleMargin:      c.GetObstacleMargin(),
		MaxAccel:            c.GetMaxAccel(),
		Dt:                  c.GetDt(),
		CBF:                 swarm.CBFParams{Alpha1: c.GetAlpha1(), Alpha2: c.GetAlpha2()},
		Gains:               swarm.ControllerGains{Kp: c.GetKp(), Kv: c.GetKv()},
		InfeasibleTickLimit: c.GetInfeasibleTickLimit(),
		Halt:                c.GetHaltScope(),
		BrakeGain:           c.GetBrakeGain(),
		Parallel:            c.GetParallel(),
	}
}

// ToFormation builds the configured formation strategy.
func (c *SimConfig) ToFormation() (swarm.Formation, error) {
	return swarm.NewFormation(c.GetFormationShape(), swarm.FormationParams{
		Radius:            c.GetFormationRadius(),
		RotateWithHeading: c.GetRotateWithHeading(),
	})
}
