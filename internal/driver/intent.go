package driver

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/star/impactgo/internal/metrics"
	"github.com/star/impactgo/internal/sim"
)

// Intent errors. Both are client mistakes and map to 400 at the HTTP layer.
var (
	ErrUnknownIntent = errors.New("unknown intent")
	ErrMissingField  = errors.New("missing field")
)

// Op names an intent operation.
type Op string

const (
	OpSetParameter  Op = "set_parameter"
	OpSetMitigation Op = "set_mitigation"
	OpSetTarget     Op = "set_target"
	OpClearTarget   Op = "clear_target"
	OpStart         Op = "start"
	OpPause         Op = "pause"
	OpToggle        Op = "toggle"
	OpReset         Op = "reset"
	OpSelectPreset  Op = "select_preset"
	OpApplyBundle   Op = "apply_bundle"
	OpSetMode       Op = "set_mode"
)

// Intent is one UI control action, as received over HTTP or WebSocket.
type Intent struct {
	Op     Op          `json:"op"`
	Name   string      `json:"name,omitempty"`
	Value  *float64    `json:"value,omitempty"`
	Kind   string      `json:"kind,omitempty"`
	Lat    *float64    `json:"lat,omitempty"`
	Lon    *float64    `json:"lon,omitempty"`
	Preset string      `json:"preset,omitempty"`
	Mode   string      `json:"mode,omitempty"`
	Panel  *string     `json:"panel,omitempty"`
	Bundle *sim.Bundle `json:"bundle,omitempty"`
}

// mitigationNames are parameter names that select the strategy rather than
// a numeric value.
var mitigationNames = map[string]bool{
	"mitigationkind":  true,
	"mitigation_kind": true,
	"mitigation":      true,
}

// Apply executes in under the state lock and returns the snapshot that
// results from it. The snapshot is taken before the lock is released, so a
// concurrent frame cannot replace it. On error it is the unchanged state.
func (d *Driver) Apply(in Intent) (sim.Snapshot, error) {
	var snap sim.Snapshot
	err := d.Do(func(s *sim.State) error {
		err := apply(s, in)
		snap = s.Snapshot()
		return err
	})

	result := "ok"
	if err != nil {
		result = "rejected"
	}
	metrics.IncIntent(opLabel(in.Op), result)
	if err != nil {
		d.logger.Debug("intent rejected", "op", in.Op, "error", err)
	}
	return snap, err
}

func apply(s *sim.State, in Intent) error {
	switch in.Op {
	case OpSetParameter:
		if mitigationNames[strings.ToLower(in.Name)] {
			return s.SetMitigation(in.Kind)
		}
		if in.Value == nil {
			return fmt.Errorf("%w: value", ErrMissingField)
		}
		return s.SetParameter(in.Name, *in.Value)
	case OpSetMitigation:
		return s.SetMitigation(in.Kind)
	case OpSetTarget:
		return s.SetTarget(orNaN(in.Lat), orNaN(in.Lon))
	case OpClearTarget:
		s.ClearTarget()
	case OpStart:
		s.Start()
	case OpPause:
		s.Pause()
	case OpToggle:
		s.ToggleRun()
	case OpReset:
		s.Reset()
	case OpSelectPreset:
		return s.SelectPreset(in.Preset)
	case OpApplyBundle:
		if in.Bundle == nil {
			return fmt.Errorf("%w: bundle", ErrMissingField)
		}
		s.ApplyBundle(*in.Bundle)
	case OpSetMode:
		if in.Mode == "" && in.Panel == nil {
			return fmt.Errorf("%w: mode or panel", ErrMissingField)
		}
		if in.Mode != "" {
			if err := s.SetMode(in.Mode); err != nil {
				return err
			}
		}
		if in.Panel != nil {
			s.SetPanel(*in.Panel)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Op)
	}
	return nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// opLabel bounds the metric label to known operations.
func opLabel(op Op) string {
	switch op {
	case OpSetParameter, OpSetMitigation, OpSetTarget, OpClearTarget, OpStart, OpPause,
		OpToggle, OpReset, OpSelectPreset, OpApplyBundle, OpSetMode:
		return string(op)
	}
	return "unknown"
}

// IsClientError reports whether err was caused by a malformed intent.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownIntent) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, sim.ErrUnknownParameter) ||
		errors.Is(err, sim.ErrUnknownMitigation) ||
		errors.Is(err, sim.ErrUnknownPreset) ||
		errors.Is(err, sim.ErrUnknownMode) ||
		errors.Is(err, sim.ErrInvalidTarget)
}
