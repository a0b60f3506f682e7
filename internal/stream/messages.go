package stream

import (
	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/sim"
)

// Stream payload types. Every message carries a "type" discriminator.

type metadataMessage struct {
	Type            string  `json:"type"`
	ConnectionID    string  `json:"connection_id"`
	ServerTime      string  `json:"server_time"`
	Revision        uint64  `json:"revision"`
	DurationSeconds float64 `json:"duration_seconds"`
	HistoryStepMs   int64   `json:"history_step_ms,omitempty"`
	NEOAgeSeconds   int     `json:"neo_age_seconds"`
}

type snapshotMessage struct {
	Type     string        `json:"type"`
	Snapshot sim.Snapshot  `json:"snapshot"`
	Trail    *trailPayload `json:"trail,omitempty"`
}

// trailPayload holds past positions, oldest first.
type trailPayload struct {
	Impact   [][2]float64 `json:"impact"`
	Asteroid [][3]float64 `json:"asteroid"`
}

type ackMessage struct {
	Type     string    `json:"type"`
	Op       driver.Op `json:"op,omitempty"`
	Revision uint64    `json:"revision"`
	Error    string    `json:"error,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// buildSnapshotMessage wraps snap with a trail built from keyframes.
func buildSnapshotMessage(snap sim.Snapshot, keyframes []*driver.Keyframe) snapshotMessage {
	msg := snapshotMessage{Type: "snapshot", Snapshot: snap}
	if len(keyframes) == 0 {
		return msg
	}
	tr := &trailPayload{
		Impact:   make([][2]float64, 0, len(keyframes)),
		Asteroid: make([][3]float64, 0, len(keyframes)),
	}
	for _, kf := range keyframes {
		tr.Impact = append(tr.Impact, [2]float64{kf.Snapshot.ImpactLat, kf.Snapshot.ImpactLon})
		tr.Asteroid = append(tr.Asteroid, kf.Snapshot.AsteroidECEF)
	}
	msg.Trail = tr
	return msg
}
