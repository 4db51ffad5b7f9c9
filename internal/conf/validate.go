// validate.go: settings validation run after unmarshal.
package conf

import (
	"fmt"
	"slices"
)

var knownStrictness = []string{"vagrant", "rare", "uncommon", "common", "off"}
var knownUnknownSpecies = []string{"allow", "block"}

// ValidateSettings checks value ranges and enum fields. Unknown strictness
// values are accepted by the region filter at runtime (permissive
// fallback), but the config layer rejects them early to catch typos.
func ValidateSettings(s *Settings) error {
	if s.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	if s.Region.H3Resolution < 0 || s.Region.H3Resolution > 15 {
		return fmt.Errorf("region.h3resolution must be between 0 and 15, got %d", s.Region.H3Resolution)
	}

	if s.Region.Strictness != "" && !slices.Contains(knownStrictness, s.Region.Strictness) {
		return fmt.Errorf("region.strictness must be one of %v, got %q", knownStrictness, s.Region.Strictness)
	}

	if !slices.Contains(knownUnknownSpecies, s.Region.UnknownSpecies) {
		return fmt.Errorf("region.unknownspecies must be one of %v, got %q", knownUnknownSpecies, s.Region.UnknownSpecies)
	}

	if s.Cleanup.Limit < 0 {
		return fmt.Errorf("cleanup.limit must not be negative")
	}
	if s.Cleanup.CommitBatch < 0 {
		return fmt.Errorf("cleanup.commitbatch must not be negative")
	}
	if s.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttlseconds must not be negative")
	}

	return nil
}
