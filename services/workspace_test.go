package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-converter/services"
	"manuscript-converter/services/servicestest"
)

func TestWorkspaces_CreateAndCleanup(t *testing.T) {
	base := t.TempDir()
	now := time.Unix(0, 1700000000123456789)

	ws, err := services.NewWorkspaces(base, false).Create("X", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "1700000000123456789-X"), ws.Root)
	assert.DirExists(t, ws.Root)

	again, err := services.NewWorkspaces(base, false).Create("X", now)
	require.NoError(t, err, "an existing workspace directory is reused")
	assert.Equal(t, ws.Root, again.Root)

	require.NoError(t, ws.Cleanup())
	assert.NoDirExists(t, ws.Root)
	assert.NoError(t, ws.Cleanup())
}

func TestWorkspaces_Keep(t *testing.T) {
	ws, err := services.NewWorkspaces(t.TempDir(), true).Create("X", time.Now())
	require.NoError(t, err)
	require.NoError(t, ws.Cleanup())
	assert.DirExists(t, ws.Root)
}

func TestLayout(t *testing.T) {
	l := services.NewLayout("/ws", "Paper.Final.DOCX")

	assert.Equal(t, "/ws/Paper.Final.DOCX", l.Source)
	assert.Equal(t, "Paper.Final", l.Base)
	assert.Equal(t, ".docx", l.Ext())
	assert.Equal(t, "/ws/conversions", l.Conversions)
	assert.Equal(t, "/ws/conversions/media", l.Media)
	assert.Equal(t, "/ws/conversions/unzipped", l.Unzipped)
	assert.Equal(t, "/ws/conversions/Paper.Final.docx", l.Docx)
	assert.Equal(t, "/ws/conversions/Paper.Final.html", l.HTML)
	assert.Equal(t, "/ws/conversions/Paper.Final.pdf", l.PDF)

	inner := l.WithSource("/ws/conversions/unzipped/src/main.tex")
	assert.Equal(t, "/ws", inner.Root)
	assert.Equal(t, "main", inner.Base)
	assert.Equal(t, "/ws/conversions/main.pdf", inner.PDF)
}

func TestLayout_Ensure(t *testing.T) {
	l := services.NewLayout(t.TempDir(), "a.docx")
	require.NoError(t, l.Ensure())
	info, err := os.Stat(l.Conversions)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWorkspaces_RelativeBaseDir(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	ws, err := services.NewWorkspaces("work", false).Create("X", time.Unix(0, 42))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(ws.Root))
	assert.DirExists(t, filepath.Join(dir, "work", "42-X"))

	// TeX runs in the source directory, so every layout path must be absolute.
	l := ws.Layout("paper.tex")
	require.NoError(t, os.WriteFile(l.Source, []byte(`\documentclass{article}`), 0o644))

	docx, err := newDocumentConverter(&servicestest.FakeRunner{}).Normalize(context.Background(), l)
	require.NoError(t, err)
	assert.FileExists(t, docx)

	pdf, err := newPDFConverter(&servicestest.FakeRunner{}, nil).ToPDF(context.Background(), l, false)
	require.NoError(t, err)
	assert.FileExists(t, pdf)
}
