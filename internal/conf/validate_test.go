package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Database: DatabaseSettings{Path: "birds.db"},
		Region: RegionSettings{
			H3Resolution:   5,
			Strictness:     "vagrant",
			UnknownSpecies: "allow",
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, ValidateSettings(validSettings()))
	})

	t.Run("missing database path", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.Database.Path = ""
		assert.Error(t, ValidateSettings(s))
	})

	t.Run("h3 resolution out of range", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.Region.H3Resolution = 16
		assert.Error(t, ValidateSettings(s))
	})

	t.Run("typo in strictness", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.Region.Strictness = "vagrent"
		assert.Error(t, ValidateSettings(s))
	})

	t.Run("unknown species behavior", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.Region.UnknownSpecies = "maybe"
		assert.Error(t, ValidateSettings(s))

		s.Region.UnknownSpecies = "block"
		assert.NoError(t, ValidateSettings(s))
	})
}

func TestRegionPackPath(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Region.PackDir = "/var/lib/taxondb/packs"
	s.Region.Pack = "us-east"

	assert.Equal(t, "/var/lib/taxondb/packs/us-east.db", s.RegionPackPath(""))
	assert.Equal(t, "/var/lib/taxondb/packs/eu-north.db", s.RegionPackPath("eu-north"))
	assert.Equal(t, "/tmp/custom.db", s.RegionPackPath("/tmp/custom.db"))
}
