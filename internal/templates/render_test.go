package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fragmentsDir = "../../web/templates/fragments"

func TestRenderer_Fragments(t *testing.T) {
	r, err := New(fragmentsDir)
	require.NoError(t, err)

	out, err := r.Render("detail-panel", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Select a study marker to view its details.")

	out, err = r.Render("filter-status", map[string]any{"Notice": "Loading studies...", "Status": "loading"})
	require.NoError(t, err)
	assert.Contains(t, out, "Loading studies...")

	_, err = r.Render("no-such-fragment", nil)
	assert.Error(t, err)
	assert.Panics(t, func() { r.MustRender("no-such-fragment", nil) })
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRenderer_Page(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item.html"), []byte(`{{define "item"}}<li>{{.}}</li>{{end}}`), 0o644))
	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<ul>{{range .}}{{template "item" .}}{{end}}</ul>`), 0o644))

	r, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "<li>a</li>", r.MustRender("item", "a"))

	var buf bytes.Buffer
	require.NoError(t, r.Page(&buf, page, []string{"a", "<b>"}))
	assert.Equal(t, "<ul><li>a</li><li>&lt;b&gt;</li></ul>", buf.String())

	// Pages pick up fragment edits; fragments rendered alone keep the parsed set.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item.html"), []byte(`{{define "item"}}<p>{{.}}</p>{{end}}`), 0o644))
	buf.Reset()
	require.NoError(t, r.Page(&buf, page, []string{"a"}))
	assert.Equal(t, "<ul><p>a</p></ul>", buf.String())
	assert.Equal(t, "<li>a</li>", r.MustRender("item", "a"))
}
