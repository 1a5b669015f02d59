package skill

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Effective Code Review</title></head>
<body><h1>Effective Code Review</h1><p>Review <strong>small</strong> diffs.</p></body></html>`))
	}))
	defer server.Close()

	tmpDir, err := os.MkdirTemp("", "promptpack-import-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	importer := NewImporter(WithTargetDir(tmpDir))
	s, err := importer.ImportURL(context.Background(), server.URL, "code-review")
	require.NoError(t, err)

	assert.Equal(t, "code-review", s.Name)
	assert.Equal(t, "Effective Code Review", s.Description)
	assert.Equal(t, importedSkillVersion, s.Version)
	assert.Contains(t, s.Body, "## Source")
	assert.Contains(t, s.Body, server.URL)
	assert.Contains(t, s.Body, "**small**")

	// The written file must round-trip through the loader.
	loaded, err := Load(filepath.Join(tmpDir, "code-review"), SourceProject)
	require.NoError(t, err)
	assert.Equal(t, "Effective Code Review", loaded.Description)
}

func TestImportURLRefusesOverwrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><title>T</title><body>b</body></html>"))
	}))
	defer server.Close()

	tmpDir, err := os.MkdirTemp("", "promptpack-import-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "existing"), 0o755))

	importer := NewImporter(WithTargetDir(tmpDir))
	_, err = importer.ImportURL(context.Background(), server.URL, "existing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	forced := NewImporter(WithTargetDir(tmpDir), WithForce(true))
	_, err = forced.ImportURL(context.Background(), server.URL, "existing")
	assert.NoError(t, err)
}

func TestImportURLServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tmpDir, err := os.MkdirTemp("", "promptpack-import-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	importer := NewImporter(WithTargetDir(tmpDir))
	_, err = importer.ImportURL(context.Background(), server.URL, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSplitRepoRef(t *testing.T) {
	repo, ref := splitRepoRef("org/skills")
	assert.Equal(t, "org/skills", repo)
	assert.Empty(t, ref)

	repo, ref = splitRepoRef("org/skills@v1.2.0")
	assert.Equal(t, "org/skills", repo)
	assert.Equal(t, "v1.2.0", ref)
}

func TestValidateRepo(t *testing.T) {
	assert.NoError(t, validateRepo("org/skills"))
	assert.Error(t, validateRepo("no-slash"))
	assert.Error(t, validateRepo("/repo"))
	assert.Error(t, validateRepo("org/"))
}

func TestDocumentTitleFallsBackToHeading(t *testing.T) {
	assert.Equal(t, "Heading", documentTitle("<html></html>", "# Heading\ntext"))
	assert.Equal(t, "Title", documentTitle("<title>Title</title>", "# Heading"))
	assert.Empty(t, documentTitle("", ""))
}
