package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebImagePath(t *testing.T) {
	tests := map[string]string{
		"media/image1.emf":  "media/image1.svg",
		"media/image2.WMF":  "media/image2.png",
		"media/image3.tiff": "media/image3.webp",
		"media/image4.tif":  "media/image4.webp",
		"media/image5.png":  "media/image5.png",
		"media/noext":       "media/noext",
	}
	for in, want := range tests {
		assert.Equal(t, want, WebImagePath(in), in)
	}
}

func TestParseFailureMode(t *testing.T) {
	for _, s := range []string{"best-effort", "BestEffort", " best_effort "} {
		m, err := ParseFailureMode(s)
		require.NoError(t, err)
		assert.Equal(t, BestEffort, m)
	}

	m, err := ParseFailureMode("fatal")
	require.NoError(t, err)
	assert.Equal(t, Fatal, m)
	assert.Equal(t, "fatal", m.String())

	_, err = ParseFailureMode("sometimes")
	assert.Error(t, err)
}

func TestStagePolicy_Mode(t *testing.T) {
	p := DefaultStagePolicy()

	assert.Equal(t, Fatal, p.Mode(StageHTML))
	assert.Equal(t, Fatal, p.Mode(StageMediaConvert))
	assert.Equal(t, BestEffort, p.Mode(StageTexBib))
	assert.Equal(t, BestEffort, p.Mode(StageMediaCompress))
	assert.Equal(t, Fatal, p.Mode(Stage("unknown")))
	assert.Equal(t, Fatal, StagePolicy(nil).Mode(StageTexBib))
}
