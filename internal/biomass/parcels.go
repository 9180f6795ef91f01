package biomass

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/projects"
)

// SpeciesLister looks species up by common name.
type SpeciesLister interface {
	ListSpeciesByNames(ctx context.Context, names []string) ([]projects.Species, error)
}

// SkippedParcel is a parcel left out of a snapshot set.
type SkippedParcel struct {
	ParcelID uuid.UUID `json:"parcelId"`
	Species  string    `json:"species"`
	Reason   string    `json:"reason"`
	Fields   []string  `json:"fields,omitempty"`
}

// SnapshotSet is the result of snapshotting many parcels.
type SnapshotSet struct {
	Snapshots []Snapshot      `json:"snapshots"`
	Skipped   []SkippedParcel `json:"skipped,omitempty"`
}

// ForParcels snapshots each parcel with its primary species. Parcels whose
// species is unknown or lacks parameters are skipped so one bad record does
// not fail the whole set.
func ForParcels(ctx context.Context, lister SpeciesLister, parcels []projects.Parcel) (*SnapshotSet, error) {
	names := make([]string, 0, len(parcels))
	seen := make(map[string]struct{})
	for _, p := range parcels {
		name := p.PrimarySpecies()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	bySpecies := make(map[string]*projects.Species, len(names))
	if len(names) > 0 {
		found, err := lister.ListSpeciesByNames(ctx, names)
		if err != nil {
			return nil, err
		}
		for i := range found {
			bySpecies[found[i].CommonName] = &found[i]
		}
	}

	set := &SnapshotSet{Snapshots: make([]Snapshot, 0, len(parcels))}
	for _, p := range parcels {
		name := p.PrimarySpecies()
		species := bySpecies[name]
		if name != "" && species == nil {
			set.Skipped = append(set.Skipped, SkippedParcel{ParcelID: p.ID, Species: name, Reason: "species not found"})
			continue
		}

		snap, err := Aggregate(p, species, p.Ecosystem)
		if err != nil {
			skipped := SkippedParcel{ParcelID: p.ID, Species: name, Reason: err.Error()}
			var missing *growth.MissingParametersError
			if errors.As(err, &missing) {
				skipped.Reason = growth.ErrMissingGrowthParameters.Error()
				skipped.Fields = missing.Fields
			}
			set.Skipped = append(set.Skipped, skipped)
			continue
		}
		set.Snapshots = append(set.Snapshots, snap)
	}
	return set, nil
}
