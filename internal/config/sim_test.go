package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skyfleet-robotics/formation.control/internal/swarm"
)

func writeTempConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmptyConfig_Defaults(t *testing.T) {
	cfg := EmptySimConfig()

	if got := cfg.GetAgentCount(); got != 5 {
		t.Errorf("GetAgentCount() = %d, want 5", got)
	}
	if got := cfg.GetSensingRadius(); got != 10.0 {
		t.Errorf("GetSensingRadius() = %v, want 10", got)
	}
	if got := cfg.GetSafetyDistance(); got != 1.0 {
		t.Errorf("GetSafetyDistance() = %v, want 1", got)
	}
	if got := cfg.GetObstacleMargin(); got != 0.5 {
		t.Errorf("GetObstacleMargin() = %v, want 0.5", got)
	}
	if got := cfg.GetAlpha1(); got != 2.0 {
		t.Errorf("GetAlpha1() = %v, want 2", got)
	}
	if got := cfg.GetAlpha2(); got != 1.0 {
		t.Errorf("GetAlpha2() = %v, want 1", got)
	}
	if got := cfg.GetMaxAccel(); got != 5.0 {
		t.Errorf("GetMaxAccel() = %v, want 5", got)
	}
	if got := cfg.GetDt(); got != 0.02 {
		t.Errorf("GetDt() = %v, want 0.02", got)
	}
	if got := cfg.GetInfeasibleTickLimit(); got != 10 {
		t.Errorf("GetInfeasibleTickLimit() = %d, want 10", got)
	}
	if got := cfg.GetHaltScope(); got != swarm.HaltScopeAll {
		t.Errorf("GetHaltScope() = %q, want %q", got, swarm.HaltScopeAll)
	}
	if got := cfg.GetBrakeGain(); got != 2.0 {
		t.Errorf("GetBrakeGain() = %v, want 2", got)
	}
	if !cfg.GetParallel() {
		t.Error("GetParallel() = false, want true")
	}
	if got := cfg.GetKp(); got != 1.5 {
		t.Errorf("GetKp() = %v, want 1.5", got)
	}
	if got := cfg.GetKv(); got != 2.0 {
		t.Errorf("GetKv() = %v, want 2", got)
	}
	if got := cfg.GetFormationShape(); got != swarm.ShapePentagon {
		t.Errorf("GetFormationShape() = %q, want pentagon", got)
	}
	if got := cfg.GetFormationRadius(); got != 8.0 {
		t.Errorf("GetFormationRadius() = %v, want 8", got)
	}
	if cfg.GetRotateWithHeading() {
		t.Error("GetRotateWithHeading() = true, want false")
	}
}

func TestDefaultsFile_MatchesAccessorDefaults(t *testing.T) {
	// The shipped defaults file must agree with the accessor fallbacks so
	// a run with and without -config behaves identically.
	cfg := MustLoadDefaultConfig()
	empty := EmptySimConfig()

	if cfg.GetSafetyDistance() != empty.GetSafetyDistance() ||
		cfg.GetSensingRadius() != empty.GetSensingRadius() ||
		cfg.GetAlpha1() != empty.GetAlpha1() ||
		cfg.GetAlpha2() != empty.GetAlpha2() ||
		cfg.GetMaxAccel() != empty.GetMaxAccel() ||
		cfg.GetDt() != empty.GetDt() {
		t.Error("config/sim.defaults.json disagrees with accessor defaults")
	}
}

func TestLoadSimConfig_PartialFile(t *testing.T) {
	path := writeTempConfig(t, "partial.json", `{
		"agent_count": 3,
		"safety_distance": 2.0,
		"formation_shape": "line"
	}`)

	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	// Set fields come from the file.
	if got := cfg.GetAgentCount(); got != 3 {
		t.Errorf("GetAgentCount() = %d, want 3", got)
	}
	if got := cfg.GetSafetyDistance(); got != 2.0 {
		t.Errorf("GetSafetyDistance() = %v, want 2", got)
	}
	if got := cfg.GetFormationShape(); got != swarm.ShapeLine {
		t.Errorf("GetFormationShape() = %q, want line", got)
	}

	// Omitted fields fall back to defaults.
	if got := cfg.GetSensingRadius(); got != 10.0 {
		t.Errorf("GetSensingRadius() = %v, want default 10", got)
	}
	if got := cfg.GetKp(); got != 1.5 {
		t.Errorf("GetKp() = %v, want default 1.5", got)
	}
}

func TestLoadSimConfig_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		contents string
		wantErr  string
	}{
		{"wrong extension", "sim.yaml", `{}`, ".json extension"},
		{"malformed JSON", "bad.json", `{"agent_count": `, "parse"},
		{"negative safety distance", "neg.json", `{"safety_distance": -1}`, "safety_distance"},
		{"zero dt", "dt.json", `{"dt": 0}`, "dt"},
		{"sensing below safety", "sense.json", `{"sensing_radius": 0.5, "safety_distance": 1.0}`, "sensing_radius"},
		{"bad halt scope", "halt.json", `{"halt_scope": "fleet"}`, "halt_scope"},
		{"unknown shape", "shape.json", `{"formation_shape": "wedge"}`, "formation_shape"},
		{"zero tick limit", "limit.json", `{"infeasible_tick_limit": 0}`, "infeasible_tick_limit"},
		{"negative alpha", "alpha.json", `{"alpha1": -2}`, "alpha1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.filename, tt.contents)
			_, err := LoadSimConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSimConfig_MissingFile(t *testing.T) {
	if _, err := LoadSimConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestToParams_MapsEveryField(t *testing.T) {
	path := writeTempConfig(t, "full.json", `{
		"sensing_radius": 12.0,
		"safety_distance": 1.5,
		"obstacle_margin": 0.25,
		"alpha1": 3.0,
		"alpha2": 1.25,
		"max_accel": 4.0,
		"dt": 0.01,
		"infeasible_tick_limit": 7,
		"halt_scope": "agent",
		"brake_gain": 1.0,
		"parallel": false,
		"kp": 2.5,
		"kv": 3.5
	}`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	p := cfg.ToParams()
	want := swarm.Params{
		SensingRadius:       12.0,
		SafetyDistance:      1.5,
		ObstacleMargin:      0.25,
		MaxAccel:            4.0,
		Dt:                  0.01,
		CBF:                 swarm.CBFParams{Alpha1: 3.0, Alpha2: 1.25},
		Gains:               swarm.ControllerGains{Kp: 2.5, Kv: 3.5},
		InfeasibleTickLimit: 7,
		Halt:                swarm.HaltScopeAgent,
		BrakeGain:           1.0,
		Parallel:            false,
	}
	if p != want {
		t.Errorf("ToParams() = %+v, want %+v", p, want)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("mapped params failed validation: %v", err)
	}
}

func TestToFormation(t *testing.T) {
	path := writeTempConfig(t, "form.json", `{
		"formation_shape": "circle",
		"formation_radius": 4.0,
		"rotate_with_heading": true
	}`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cfg.ToFormation()
	if err != nil {
		t.Fatal(err)
	}
	if f == nil {
		t.Fatal("expected formation, got nil")
	}
}
