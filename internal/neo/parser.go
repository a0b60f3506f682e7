package neo

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Feed wire format. Numeric close-approach fields arrive as strings.
type feedDocument struct {
	NearEarthObjects json.RawMessage `json:"near_earth_objects"`
}

type feedObject struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	EstimatedDiameter struct {
		Meters struct {
			Min float64 `json:"estimated_diameter_min"`
			Max float64 `json:"estimated_diameter_max"`
		} `json:"meters"`
	} `json:"estimated_diameter"`
	Hazardous     bool           `json:"is_potentially_hazardous_asteroid"`
	CloseApproach []feedApproach `json:"close_approach_data"`
}

type feedApproach struct {
	EpochMillis      int64 `json:"epoch_date_close_approach"`
	RelativeVelocity struct {
		KmPerSecond string `json:"kilometers_per_second"`
	} `json:"relative_velocity"`
	MissDistance struct {
		Kilometers string `json:"kilometers"`
	} `json:"miss_distance"`
	OrbitingBody string `json:"orbiting_body"`
}

// Parse reads a feed document from r and returns its objects sorted by id.
// The object list may be keyed by date (feed endpoint) or a plain array
// (browse endpoint). Malformed records are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Object, error) {
	var doc feedDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding NEO feed: %w", err)
	}
	if len(doc.NearEarthObjects) == 0 {
		return nil, fmt.Errorf("NEO feed has no near_earth_objects")
	}

	var raw []json.RawMessage
	var byDate map[string][]json.RawMessage
	if err := json.Unmarshal(doc.NearEarthObjects, &byDate); err == nil {
		for _, recs := range byDate {
			raw = append(raw, recs...)
		}
	} else if err := json.Unmarshal(doc.NearEarthObjects, &raw); err != nil {
		return nil, fmt.Errorf("near_earth_objects is neither a date map nor a list: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	objects := make([]Object, 0, len(raw))
	for i, rec := range raw {
		var fo feedObject
		if err := json.Unmarshal(rec, &fo); err != nil {
			logger.Warn("skipping malformed NEO record", "index", i, "error", err)
			continue
		}
		obj, err := convert(fo)
		if err != nil {
			logger.Warn("skipping NEO record", "id", fo.ID, "name", fo.Name, "error", err)
			continue
		}
		if seen[obj.ID] {
			continue
		}
		seen[obj.ID] = true
		objects = append(objects, obj)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
	return objects, nil
}

// convert validates a wire record and picks its Earth approach with the
// smallest miss distance.
func convert(fo feedObject) (Object, error) {
	if strings.TrimSpace(fo.ID) == "" {
		return Object{}, fmt.Errorf("missing id")
	}
	dmin, dmax := fo.EstimatedDiameter.Meters.Min, fo.EstimatedDiameter.Meters.Max
	if !positiveFinite(dmin) || !positiveFinite(dmax) {
		return Object{}, fmt.Errorf("invalid diameter [%v, %v]", dmin, dmax)
	}
	if dmax < dmin {
		dmin, dmax = dmax, dmin
	}

	var best *Object
	for _, ca := range fo.CloseApproach {
		if ca.OrbitingBody != "" && ca.OrbitingBody != "Earth" {
			continue
		}
		speed, err := strconv.ParseFloat(strings.TrimSpace(ca.RelativeVelocity.KmPerSecond), 64)
		if err != nil || !positiveFinite(speed) {
			continue
		}
		miss, err := strconv.ParseFloat(strings.TrimSpace(ca.MissDistance.Kilometers), 64)
		if err != nil || math.IsNaN(miss) {
			miss = math.Inf(1)
		}
		if best != nil && miss >= best.MissKm {
			continue
		}
		best = &Object{
			SpeedKms:      speed,
			MissKm:        miss,
			CloseApproach: time.UnixMilli(ca.EpochMillis).UTC(),
		}
	}
	if best == nil {
		return Object{}, fmt.Errorf("no usable Earth close approach")
	}

	best.ID = strings.TrimSpace(fo.ID)
	best.Name = strings.TrimSpace(fo.Name)
	best.DiameterMinM = dmin
	best.DiameterMaxM = dmax
	best.SizeM = (dmin + dmax) / 2
	best.Hazardous = fo.Hazardous
	return *best, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
