package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureRoundTrip(t *testing.T) {
	fixture := SamplePostFixture()

	path := SaveFixture(t, t.TempDir(), fixture)
	assert.Equal(t, "gangneung_trip.json", filepath.Base(path))

	loaded := LoadFixture(t, path)
	assert.Equal(t, fixture, loaded)
}

func TestMaterializePhotos(t *testing.T) {
	fixture := SamplePostFixture()
	destDir := t.TempDir()

	paths := MaterializePhotos(t, fixture, destDir)
	require.Len(t, paths, len(fixture.Photos))

	for i, path := range paths {
		assert.True(t, FileExists(path), "photo %d missing", i)
		assert.Equal(t, fixture.Photos[i].FileName, filepath.Base(path))
	}

	first := LoadPNG(t, paths[0])
	assert.Equal(t, fixture.Photos[0].Width, first.Bounds().Dx())
	assert.Equal(t, fixture.Photos[0].Height, first.Bounds().Dy())
}
