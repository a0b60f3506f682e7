package sim

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/star/impactgo/internal/trajectory"
)

// Errors returned for structurally invalid calls. Out-of-range values are
// never errors; they are clamped.
var (
	ErrUnknownParameter  = errors.New("unknown parameter")
	ErrUnknownMitigation = errors.New("unknown mitigation kind")
	ErrUnknownPreset     = errors.New("unknown preset")
	ErrUnknownMode       = errors.New("unknown mode")
	ErrInvalidTarget     = errors.New("invalid target coordinate")
)

// Param names a numeric parameter accepted by SetParameter.
type Param string

const (
	ParamSize            Param = "size"
	ParamSpeed           Param = "speed"
	ParamDensity         Param = "density"
	ParamApproachAngle   Param = "approachAngle"
	ParamMitigationPower Param = "mitigationPower"
	ParamLeadTime        Param = "leadTime"
	ParamDuration        Param = "duration"
)

// Domain is the closed interval a parameter is clamped to.
type Domain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the domain. NaN maps to fallback; ±Inf maps to the
// nearest bound.
func (d Domain) Clamp(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Min(d.Max, math.Max(d.Min, v))
}

// Domains lists the accepted range of every numeric parameter.
var Domains = map[Param]Domain{
	ParamSize:            {Min: 0.1, Max: 100000},
	ParamSpeed:           {Min: 0.1, Max: 100},
	ParamDensity:         {Min: 100, Max: 20000},
	ParamApproachAngle:   {Min: 0, Max: 90},
	ParamMitigationPower: {Min: 0, Max: 1},
	ParamLeadTime:        {Min: 1, Max: 1e6},
	ParamDuration:        {Min: 1, Max: 1e6},
}

// aliases maps the snake_case and unit-suffixed names used by HTTP clients
// and NEO records onto the canonical names.
var aliases = map[string]Param{
	"size":               ParamSize,
	"size_m":             ParamSize,
	"speed":              ParamSpeed,
	"speed_kms":          ParamSpeed,
	"density":            ParamDensity,
	"density_kgm3":       ParamDensity,
	"approachangle":      ParamApproachAngle,
	"approachangledeg":   ParamApproachAngle,
	"approach_angle":     ParamApproachAngle,
	"approach_angle_deg": ParamApproachAngle,
	"mitigationpower":    ParamMitigationPower,
	"mitigation_power":   ParamMitigationPower,
	"leadtime":           ParamLeadTime,
	"leadtimeseconds":    ParamLeadTime,
	"lead_time":          ParamLeadTime,
	"lead_time_seconds":  ParamLeadTime,
	"duration":           ParamDuration,
	"durationseconds":    ParamDuration,
	"duration_seconds":   ParamDuration,
}

// ParseParam resolves a parameter name, case-insensitively.
func ParseParam(name string) (Param, error) {
	if p, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// Params are the user-controlled physical and mitigation parameters.
type Params struct {
	SizeM            float64         `json:"size_m"`
	SpeedKms         float64         `json:"speed_kms"`
	DensityKgm3      float64         `json:"density_kgm3"`
	ApproachAngleDeg float64         `json:"approach_angle_deg"`
	MitigationKind   trajectory.Kind `json:"mitigation_kind"`
	MitigationPower  float64         `json:"mitigation_power"`
	LeadTimeSeconds  float64         `json:"lead_time_seconds"`
}

// DefaultParams returns the parameters a fresh scenario starts with.
func DefaultParams() Params {
	return Params{
		SizeM:            120,
		SpeedKms:         18,
		DensityKgm3:      3000,
		ApproachAngleDeg: 45,
		MitigationKind:   trajectory.Kinetic,
		MitigationPower:  0.5,
		LeadTimeSeconds:  30,
	}
}

// DefaultDurationSeconds is the scenario length when none is configured.
const DefaultDurationSeconds = 120.0

// Mode is the UI-facing activity; it never gates physics.
type Mode string

const (
	ModeScenario Mode = "scenario"
	ModeQuiz     Mode = "quiz"
	ModeDefend   Mode = "defend"
	ModeStory    Mode = "story"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeScenario, ModeQuiz, ModeDefend, ModeStory:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// maxPanelLen bounds the free-form panel flag.
const maxPanelLen = 64
