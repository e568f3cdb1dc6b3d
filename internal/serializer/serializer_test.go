package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/models"
)

func sampleApp() *models.Application {
	app := models.NewApplication("app-1", "Orders", models.ApplicationContent{
		Settings: map[string]any{
			"theme":   "dark",
			"maxRows": 50.0,
		},
		Pages: []models.Page{
			{
				ID: "p-home", Name: "Home", Slug: "home", IsDefault: true,
				Layouts: []models.Layout{{
					ID: "l-1",
					DSL: map[string]any{
						"widgetName": "MainContainer",
						"children": []any{
							map[string]any{"widgetName": "Title", "text": "Orders"},
							map[string]any{"widgetName": "Table", "rows": 10.0, "ratio": 0.5},
						},
					},
				}},
			},
			{ID: "p-admin", Name: "Admin", Slug: "admin", Hidden: true},
		},
		Actions: []models.Action{
			{
				ID: "a-1", Name: "listOrders", PageName: "Home", DatasourceName: "ordersDB",
				PluginType: "DB", Body: "SELECT *\nFROM orders\nLIMIT 10", ExecuteOnLoad: true,
				Config: map[string]any{"timeout": 10000.0},
			},
			{ID: "a-2", Name: "purge", PageName: "Admin", PluginType: "JS", Body: "return 1"},
			{ID: "a-3", Name: "countOrders", PageName: "Home", DatasourceName: "ordersDB", PluginType: "DB"},
		},
		Datasources: []models.Datasource{
			{
				ID: "d-1", Name: "ordersDB", PluginID: "postgres", URL: "postgres://db:5432/orders",
				Config:         map[string]any{"ssl": true},
				Authentication: &models.DatasourceAuth{Username: "svc", Password: "s3cret-pw"},
			},
		},
	})
	return &app
}

func TestRoundTrip(t *testing.T) {
	app := sampleApp()

	tree, err := Export(app)
	require.NoError(t, err)

	content, name, err := Import(tree, app)
	require.NoError(t, err)
	assert.Equal(t, "Orders", name)
	assert.Equal(t, app.Content, content)
}

func TestRoundTripOfStoredContent(t *testing.T) {
	var content models.ApplicationContent
	require.NoError(t, json.Unmarshal([]byte(`{
		"Settings": {"maxRows": 50, "flags": [1, true, "x"]},
		"Pages": [{"ID": "p-1", "Name": "Home", "IsDefault": true,
			"Layouts": [{"ID": "l-1", "DSL": {"rows": 10, "grid": {"columns": 12, "gap": 0.5}}}]}]
	}`), &content))
	app := models.NewApplication("app-1", "Orders", content)

	tree, err := Export(&app)
	require.NoError(t, err)
	imported, _, err := Import(tree, &app)
	require.NoError(t, err)
	assert.Equal(t, app.Content, imported)
	assert.IsType(t, float64(0), imported.Pages[0].Layouts[0].DSL["rows"])
}

func TestExportIsDeterministic(t *testing.T) {
	first, err := Export(sampleApp())
	require.NoError(t, err)
	second, err := Export(sampleApp())
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	content, name, err := Import(first, nil)
	require.NoError(t, err)
	again := models.NewApplication("app-1", name, content)
	third, err := Export(&again)
	require.NoError(t, err)
	assert.True(t, first.Equal(third), "re-exporting an imported tree must be byte-identical")
}

func TestExportLayout(t *testing.T) {
	tree, err := Export(sampleApp())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"actions/Admin/purge.yaml",
		"actions/Home/countOrders.yaml",
		"actions/Home/listOrders.yaml",
		"application.yaml",
		"datasources/ordersDB.yaml",
		"manifest.toml",
		"pages/Admin.yaml",
		"pages/Home.yaml",
	}, tree.Paths())

	action := string(tree["actions/Home/listOrders.yaml"])
	assert.Contains(t, action, "body: |-\n  SELECT *\n  FROM orders\n", "multi-line bodies use block style")
	assert.Contains(t, string(tree[ManifestFile]), "defaultPage = 'Home'")
}

func TestCredentialsAreNeverExported(t *testing.T) {
	app := sampleApp()
	tree, err := Export(app)
	require.NoError(t, err)

	for _, p := range tree.Paths() {
		assert.False(t, bytes.Contains(tree[p], []byte("s3cret-pw")), "password leaked into %s", p)
		assert.False(t, bytes.Contains(tree[p], []byte("svc")), "username leaked into %s", p)
	}

	content, _, err := Import(tree, nil)
	require.NoError(t, err)
	assert.Nil(t, content.Datasources[0].Authentication)

	// Matched by name when the live record has a different ID
	live := sampleApp()
	live.Content.Datasources[0].ID = "other"
	content, _, err = Import(tree, live)
	require.NoError(t, err)
	require.NotNil(t, content.Datasources[0].Authentication)
	assert.Equal(t, "s3cret-pw", content.Datasources[0].Authentication.Password)
}

func TestExportRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Application)
	}{
		{"empty application name", func(a *models.Application) { a.Name = "" }},
		{"empty page name", func(a *models.Application) { a.Content.Pages[1].Name = "" }},
		{"duplicate page", func(a *models.Application) { a.Content.Pages[1].Name = "Home" }},
		{"page name with separator", func(a *models.Application) { a.Content.Pages[1].Name = "a/b" }},
		{"hidden file name", func(a *models.Application) { a.Content.Datasources[0].Name = ".git" }},
		{"two default pages", func(a *models.Application) { a.Content.Pages[1].IsDefault = true }},
		{"action on unknown page", func(a *models.Application) { a.Content.Actions[0].PageName = "Missing" }},
		{"action without page", func(a *models.Application) { a.Content.Actions[0].PageName = "" }},
		{"duplicate action", func(a *models.Application) { a.Content.Actions[2].Name = "listOrders" }},
		{"duplicate datasource", func(a *models.Application) {
			a.Content.Datasources = append(a.Content.Datasources, a.Content.Datasources[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := sampleApp()
			tt.mutate(app)
			_, err := Export(app)
			var se *errs.SerializationError
			assert.True(t, errors.As(err, &se), "expected SerializationError, got %v", err)
		})
	}
}

func TestImportRejectsInvalidTrees(t *testing.T) {
	base, err := Export(sampleApp())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(FileTree)
		path   string
	}{
		{"missing manifest", func(t FileTree) { delete(t, ManifestFile) }, ManifestFile},
		{"garbage manifest", func(t FileTree) { t[ManifestFile] = []byte("= = =") }, ManifestFile},
		{"future format", func(t FileTree) {
			t[ManifestFile] = bytes.Replace(t[ManifestFile], []byte("formatVersion = 1"), []byte("formatVersion = 9"), 1)
		}, ManifestFile},
		{"listed page missing", func(t FileTree) { delete(t, "pages/Admin.yaml") }, "pages/Admin.yaml"},
		{"unknown field", func(t FileTree) {
			t["datasources/ordersDB.yaml"] = append(t["datasources/ordersDB.yaml"], []byte("password: x\n")...)
		}, "datasources/ordersDB.yaml"},
		{"empty unit", func(t FileTree) { t["actions/Admin/purge.yaml"] = nil }, "actions/Admin/purge.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := FileTree{}
			for p, data := range base {
				tree[p] = append([]byte(nil), data...)
			}
			tt.mutate(tree)

			_, _, err := Import(tree, nil)
			var de *errs.DeserializationError
			require.True(t, errors.As(err, &de), "expected DeserializationError, got %v", err)
			assert.Equal(t, tt.path, de.Path)
		})
	}
}

func TestImportIgnoresUnmanagedFiles(t *testing.T) {
	tree, err := Export(sampleApp())
	require.NoError(t, err)
	tree["README.md"] = []byte("# Orders\n")

	_, name, err := Import(tree, nil)
	require.NoError(t, err)
	assert.Equal(t, "Orders", name)
}

func TestWriteToReplacesManagedFilesOnly(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll(".git", 0755))
	require.NoError(t, util.WriteFile(fs, ".git/HEAD", []byte("ref: refs/heads/main\n"), 0644))
	require.NoError(t, util.WriteFile(fs, "README.md", []byte("hello\n"), 0644))
	require.NoError(t, fs.MkdirAll("pages", 0755))
	require.NoError(t, util.WriteFile(fs, "pages/Stale.yaml", []byte("id: old\n"), 0644))

	tree, err := Export(sampleApp())
	require.NoError(t, err)
	require.NoError(t, tree.WriteTo(fs))

	read, err := ReadTree(fs)
	require.NoError(t, err)
	assert.True(t, tree.Equal(read), "read back %v", read.Paths())

	_, err = fs.Stat("pages/Stale.yaml")
	assert.Error(t, err, "stale unit files are removed")

	readme, err := util.ReadFile(fs, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(readme))
	_, err = fs.Stat(".git/HEAD")
	assert.NoError(t, err)
}

func TestReadTreeOnEmptyFilesystem(t *testing.T) {
	tree, err := ReadTree(memfs.New())
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestIsManaged(t *testing.T) {
	assert.True(t, IsManaged("manifest.toml"))
	assert.True(t, IsManaged("pages/Home.yaml"))
	assert.True(t, IsManaged("actions/Home/q.yaml"))
	assert.False(t, IsManaged("README.md"))
	assert.False(t, IsManaged("pagesX/a.yaml"))
	assert.False(t, strings.HasPrefix(".git/config", PagesDir))
}
