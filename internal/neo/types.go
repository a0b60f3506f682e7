// Package neo loads near-earth-object close-approach data from a NASA NeoWs
// style feed, keeps the latest dataset on disk and in memory, and turns
// records into scenario bundles and hazard assessments.
package neo

import "time"

// DefaultDensityKgm3 is assumed for every object; the feed carries no
// composition data.
const DefaultDensityKgm3 = 3000.0

// Object is one near-earth object with its nearest listed close approach.
type Object struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DiameterMinM  float64   `json:"diameter_min_m"`
	DiameterMaxM  float64   `json:"diameter_max_m"`
	SizeM         float64   `json:"size_m"`
	SpeedKms      float64   `json:"speed_kms"`
	MissKm        float64   `json:"miss_km"`
	CloseApproach time.Time `json:"close_approach"`
	Hazardous     bool      `json:"potentially_hazardous"`
}

// Dataset is a complete set of objects from one fetch.
type Dataset struct {
	Source    string
	FetchedAt time.Time
	Objects   []Object
}

// Find returns the object with the given id.
func (ds *Dataset) Find(id string) (Object, bool) {
	if ds == nil {
		return Object{}, false
	}
	for _, o := range ds.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return Object{}, false
}
