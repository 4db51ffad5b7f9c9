package datastore

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ConfidenceTier classifies how expected a species is in an H3 cell
// according to the eBird-derived region pack.
type ConfidenceTier string

const (
	TierVagrant  ConfidenceTier = "vagrant"
	TierRare     ConfidenceTier = "rare"
	TierUncommon ConfidenceTier = "uncommon"
	TierCommon   ConfidenceTier = "common"
)

// Strictness selects which confidence tiers remain allowed when filtering
// by region. Unrecognized values disable filtering entirely.
type Strictness string

const (
	StrictnessVagrant  Strictness = "vagrant"
	StrictnessRare     Strictness = "rare"
	StrictnessUncommon Strictness = "uncommon"
	StrictnessCommon   Strictness = "common"
)

// allowedTiers maps a strictness level to the tiers that pass the filter.
// A nil return means no filtering (permissive fallback for unrecognized
// strictness values).
func allowedTiers(s Strictness) []ConfidenceTier {
	switch s {
	case StrictnessVagrant:
		return []ConfidenceTier{TierRare, TierUncommon, TierCommon}
	case StrictnessRare:
		return []ConfidenceTier{TierUncommon, TierCommon}
	case StrictnessUncommon, StrictnessCommon:
		return []ConfidenceTier{TierCommon}
	default:
		return nil
	}
}

// TierAllowed reports whether a known tier passes the given strictness.
func TierAllowed(tier ConfidenceTier, s Strictness) bool {
	allowed := allowedTiers(s)
	if allowed == nil {
		return true
	}
	for _, t := range allowed {
		if t == tier {
			return true
		}
	}
	return false
}

// ParseCellHex parses an H3 cell index from its hexadecimal string form.
// Region pack databases store cells as 64-bit integers.
func ParseCellHex(cellHex string) (uint64, bool) {
	cellHex = strings.TrimSpace(cellHex)
	if cellHex == "" {
		return 0, false
	}
	cell, err := strconv.ParseUint(cellHex, 16, 64)
	if err != nil {
		return 0, false
	}
	return cell, true
}

// RegionSession is a connection with a region pack attached under the
// ebird alias. It is only valid inside the WithRegionPack callback.
type RegionSession struct {
	conn *gorm.DB
}

// ConfidenceTier looks up the tier for a species in an H3 cell. The second
// return value is false when the species has no row for that cell, which is
// a normal condition, not an error.
func (rs *RegionSession) ConfidenceTier(scientificName string, cell uint64) (ConfidenceTier, bool, error) {
	var tiers []string
	err := rs.conn.Raw(`
		SELECT gs.confidence_tier
		FROM ebird.species_lookup sl
		JOIN ebird.grid_species gs ON gs.avibase_id = sl.avibase_id
		WHERE gs.h3_cell = ? AND sl.scientific_name = ?
		LIMIT 1`,
		int64(cell), scientificName,
	).Scan(&tiers).Error
	if err != nil {
		return "", false, dbError(err, "confidence_tier", "region tier lookup failed")
	}
	if len(tiers) == 0 {
		return "", false, nil
	}
	return ConfidenceTier(tiers[0]), true, nil
}

// ConfidenceBoost looks up the confidence boost multiplier for a species in
// an H3 cell. The second return value mirrors ConfidenceTier.
func (rs *RegionSession) ConfidenceBoost(scientificName string, cell uint64) (float64, bool, error) {
	var boosts []float64
	err := rs.conn.Raw(`
		SELECT gs.confidence_boost
		FROM ebird.species_lookup sl
		JOIN ebird.grid_species gs ON gs.avibase_id = sl.avibase_id
		WHERE gs.h3_cell = ? AND sl.scientific_name = ?
		LIMIT 1`,
		int64(cell), scientificName,
	).Scan(&boosts).Error
	if err != nil {
		return 0, false, dbError(err, "confidence_boost", "region boost lookup failed")
	}
	if len(boosts) == 0 {
		return 0, false, nil
	}
	return boosts[0], true, nil
}

// AllowedSpecies returns the scientific names allowed in an H3 cell at the
// given strictness.
func (rs *RegionSession) AllowedSpecies(cell uint64, strictness Strictness) (map[string]struct{}, error) {
	query := `
		SELECT DISTINCT sl.scientific_name
		FROM ebird.species_lookup sl
		JOIN ebird.grid_species gs ON gs.avibase_id = sl.avibase_id
		WHERE gs.h3_cell = ?`
	args := []any{int64(cell)}

	if allowed := allowedTiers(strictness); allowed != nil {
		query += " AND gs.confidence_tier IN ?"
		args = append(args, allowed)
	}

	var names []string
	if err := rs.conn.Raw(query, args...).Scan(&names).Error; err != nil {
		return nil, dbError(err, "allowed_species", "region species listing failed")
	}

	species := make(map[string]struct{}, len(names))
	for _, name := range names {
		species[name] = struct{}{}
	}
	return species, nil
}

// GetSpeciesConfidenceTier resolves a tier for one species in one cell. A
// malformed cell hex yields no tier and touches neither the pack nor the
// database.
func (ds *DataStore) GetSpeciesConfidenceTier(ctx context.Context, pack, scientificName, cellHex string) (ConfidenceTier, bool, error) {
	cell, ok := ParseCellHex(cellHex)
	if !ok {
		return "", false, nil
	}
	var (
		tier  ConfidenceTier
		found bool
	)
	err := ds.WithRegionPack(ctx, pack, func(rs *RegionSession) error {
		var err error
		tier, found, err = rs.ConfidenceTier(scientificName, cell)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return tier, found, nil
}

// GetConfidenceBoost resolves the boost multiplier for one species in one
// cell, with the same malformed-hex behavior as GetSpeciesConfidenceTier.
func (ds *DataStore) GetConfidenceBoost(ctx context.Context, pack, scientificName, cellHex string) (float64, bool, error) {
	cell, ok := ParseCellHex(cellHex)
	if !ok {
		return 0, false, nil
	}
	var (
		boost float64
		found bool
	)
	err := ds.WithRegionPack(ctx, pack, func(rs *RegionSession) error {
		var err error
		boost, found, err = rs.ConfidenceBoost(scientificName, cell)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return boost, found, nil
}

// IsSpeciesInRegion reports whether the region pack has any tier for the
// species in the cell.
func (ds *DataStore) IsSpeciesInRegion(ctx context.Context, pack, scientificName, cellHex string) (bool, error) {
	_, found, err := ds.GetSpeciesConfidenceTier(ctx, pack, scientificName, cellHex)
	if err != nil {
		return false, err
	}
	return found, nil
}

// GetAllowedSpeciesForLocation lists all species allowed in a cell at the
// given strictness. A malformed cell hex yields an empty set without
// attaching or querying.
func (ds *DataStore) GetAllowedSpeciesForLocation(ctx context.Context, pack, cellHex string, strictness Strictness) (map[string]struct{}, error) {
	cell, ok := ParseCellHex(cellHex)
	if !ok {
		return map[string]struct{}{}, nil
	}
	var species map[string]struct{}
	err := ds.WithRegionPack(ctx, pack, func(rs *RegionSession) error {
		var err error
		species, err = rs.AllowedSpecies(cell, strictness)
		return err
	})
	if err != nil {
		return nil, err
	}
	return species, nil
}
