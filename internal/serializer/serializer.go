// Package serializer converts an application's content graph to the file tree
// committed to git and back.
//
// Layout, relative to the working-copy root:
//
//	manifest.toml                  ordering, default page, format version
//	application.yaml               application settings
//	pages/<page>.yaml              one file per page
//	actions/<page>/<action>.yaml   one file per action
//	datasources/<name>.yaml        one file per datasource, without credentials
//
// Identical graphs always produce byte-identical trees.
package serializer

import (
	"fmt"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/models"
)

const (
	ManifestFile   = "manifest.toml"
	SettingsFile   = "application.yaml"
	PagesDir       = "pages"
	ActionsDir     = "actions"
	DatasourcesDir = "datasources"

	// FormatVersion is bumped on incompatible layout changes
	FormatVersion = 1

	unitExt = ".yaml"
)

// PagePath returns the path of a page unit
func PagePath(page string) string {
	return path.Join(PagesDir, page+unitExt)
}

// ActionPath returns the path of an action unit
func ActionPath(page, action string) string {
	return path.Join(ActionsDir, page, action+unitExt)
}

// DatasourcePath returns the path of a datasource unit
func DatasourcePath(name string) string {
	return path.Join(DatasourcesDir, name+unitExt)
}

// Export serializes the versioned content of app
func Export(app *models.Application) (FileTree, error) {
	if app == nil {
		return nil, &errs.SerializationError{Unit: "application", Reason: "application is nil"}
	}
	if app.Name == "" {
		return nil, &errs.SerializationError{Unit: "application", Reason: "name is empty"}
	}

	content := app.Content
	tree := FileTree{}
	m := manifest{
		FormatVersion:   FormatVersion,
		ApplicationName: app.Name,
		Pages:           []string{},
		Datasources:     []string{},
		Actions:         []manifestAction{},
	}

	settings := content.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	data, err := encodeYAML(settings)
	if err != nil {
		return nil, &errs.SerializationError{Unit: SettingsFile, Reason: "cannot encode settings", Err: err}
	}
	tree[SettingsFile] = data

	pages := make(map[string]bool, len(content.Pages))
	for _, p := range content.Pages {
		unit := "page " + p.Name
		if err := checkName(unit, p.Name); err != nil {
			return nil, err
		}
		if pages[p.Name] {
			return nil, &errs.SerializationError{Unit: unit, Reason: "duplicate page name"}
		}
		pages[p.Name] = true

		if p.IsDefault {
			if m.DefaultPage != "" {
				return nil, &errs.SerializationError{Unit: unit,
					Reason: fmt.Sprintf("more than one default page (%s already default)", m.DefaultPage)}
			}
			m.DefaultPage = p.Name
		}

		pf := pageFile{ID: p.ID, Slug: p.Slug, Hidden: p.Hidden}
		for _, l := range p.Layouts {
			pf.Layouts = append(pf.Layouts, layoutFile{ID: l.ID, DSL: l.DSL})
		}
		data, err := encodeYAML(pf)
		if err != nil {
			return nil, &errs.SerializationError{Unit: unit, Reason: "cannot encode page", Err: err}
		}
		tree[PagePath(p.Name)] = data
		m.Pages = append(m.Pages, p.Name)
	}

	seenActions := make(map[string]bool, len(content.Actions))
	for _, a := range content.Actions {
		unit := "action " + a.Name
		if err := checkName(unit, a.Name); err != nil {
			return nil, err
		}
		if a.PageName == "" {
			return nil, &errs.SerializationError{Unit: unit, Reason: "action does not belong to a page"}
		}
		if !pages[a.PageName] {
			return nil, &errs.SerializationError{Unit: unit, Reason: "unknown page " + a.PageName}
		}
		key := a.PageName + "/" + a.Name
		if seenActions[key] {
			return nil, &errs.SerializationError{Unit: unit, Reason: "duplicate action name on page " + a.PageName}
		}
		seenActions[key] = true

		data, err := encodeYAML(actionFile{
			ID:            a.ID,
			PluginType:    a.PluginType,
			Datasource:    a.DatasourceName,
			ExecuteOnLoad: a.ExecuteOnLoad,
			Body:          a.Body,
			Config:        a.Config,
		})
		if err != nil {
			return nil, &errs.SerializationError{Unit: unit, Reason: "cannot encode action", Err: err}
		}
		tree[ActionPath(a.PageName, a.Name)] = data
		m.Actions = append(m.Actions, manifestAction{Page: a.PageName, Name: a.Name})
	}

	datasources := make(map[string]bool, len(content.Datasources))
	for _, ds := range content.Datasources {
		unit := "datasource " + ds.Name
		if err := checkName(unit, ds.Name); err != nil {
			return nil, err
		}
		if datasources[ds.Name] {
			return nil, &errs.SerializationError{Unit: unit, Reason: "duplicate datasource name"}
		}
		datasources[ds.Name] = true

		data, err := encodeYAML(datasourceFile{
			ID:       ds.ID,
			PluginID: ds.PluginID,
			URL:      ds.URL,
			Config:   ds.Config,
		})
		if err != nil {
			return nil, &errs.SerializationError{Unit: unit, Reason: "cannot encode datasource", Err: err}
		}
		tree[DatasourcePath(ds.Name)] = data
		m.Datasources = append(m.Datasources, ds.Name)
	}

	data, err = toml.Marshal(m)
	if err != nil {
		return nil, &errs.SerializationError{Unit: ManifestFile, Reason: "cannot encode manifest", Err: err}
	}
	tree[ManifestFile] = data

	return tree, nil
}

// Import rebuilds application content from tree. Datasource credentials are
// taken from live (matched by ID, then by name) since the tree never carries
// them; live may be nil.
func Import(tree FileTree, live *models.Application) (models.ApplicationContent, string, error) {
	var content models.ApplicationContent

	raw, ok := tree[ManifestFile]
	if !ok {
		return content, "", &errs.DeserializationError{Path: ManifestFile, Reason: "manifest is missing"}
	}
	var m manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return content, "", &errs.DeserializationError{Path: ManifestFile, Reason: "cannot parse manifest", Err: err}
	}
	if m.FormatVersion != FormatVersion {
		return content, "", &errs.DeserializationError{Path: ManifestFile,
			Reason: fmt.Sprintf("unsupported format version %d", m.FormatVersion)}
	}
	if m.ApplicationName == "" {
		return content, "", &errs.DeserializationError{Path: ManifestFile, Reason: "applicationName is empty"}
	}

	if data, ok := tree[SettingsFile]; ok {
		var settings map[string]any
		if err := decodeYAML(data, &settings); err != nil && err != errEmptyUnit {
			return content, "", &errs.DeserializationError{Path: SettingsFile, Reason: "cannot parse settings", Err: err}
		}
		if len(settings) > 0 {
			content.Settings = jsonNumbers(settings)
		}
	}

	defaultFound := m.DefaultPage == ""
	for _, name := range m.Pages {
		p := PagePath(name)
		var pf pageFile
		if err := decodeUnit(tree, p, &pf); err != nil {
			return content, "", err
		}
		page := models.Page{
			ID:        pf.ID,
			Name:      name,
			Slug:      pf.Slug,
			IsDefault: name == m.DefaultPage,
			Hidden:    pf.Hidden,
		}
		if page.IsDefault {
			defaultFound = true
		}
		for _, l := range pf.Layouts {
			page.Layouts = append(page.Layouts, models.Layout{ID: l.ID, DSL: jsonNumbers(l.DSL)})
		}
		content.Pages = append(content.Pages, page)
	}
	if !defaultFound {
		return content, "", &errs.DeserializationError{Path: ManifestFile,
			Reason: "default page " + m.DefaultPage + " is not listed"}
	}

	for _, ma := range m.Actions {
		if _, ok := content.PageByName(ma.Page); !ok {
			return content, "", &errs.DeserializationError{Path: ManifestFile,
				Reason: fmt.Sprintf("action %s references unknown page %s", ma.Name, ma.Page)}
		}
		var af actionFile
		if err := decodeUnit(tree, ActionPath(ma.Page, ma.Name), &af); err != nil {
			return content, "", err
		}
		content.Actions = append(content.Actions, models.Action{
			ID:             af.ID,
			Name:           ma.Name,
			PageName:       ma.Page,
			DatasourceName: af.Datasource,
			PluginType:     af.PluginType,
			Body:           af.Body,
			ExecuteOnLoad:  af.ExecuteOnLoad,
			Config:         jsonNumbers(af.Config),
		})
	}

	for _, name := range m.Datasources {
		var df datasourceFile
		if err := decodeUnit(tree, DatasourcePath(name), &df); err != nil {
			return content, "", err
		}
		ds := models.Datasource{
			ID:       df.ID,
			Name:     name,
			PluginID: df.PluginID,
			URL:      df.URL,
			Config:   jsonNumbers(df.Config),
		}
		ds.Authentication = liveAuth(live, ds)
		content.Datasources = append(content.Datasources, ds)
	}

	return content, m.ApplicationName, nil
}

func decodeUnit(tree FileTree, p string, v any) error {
	data, ok := tree[p]
	if !ok {
		return &errs.DeserializationError{Path: p, Reason: "listed in manifest but missing"}
	}
	if err := decodeYAML(data, v); err != nil {
		return &errs.DeserializationError{Path: p, Reason: "cannot parse unit file", Err: err}
	}
	return nil
}

func liveAuth(live *models.Application, ds models.Datasource) *models.DatasourceAuth {
	if live == nil {
		return nil
	}
	var byName *models.DatasourceAuth
	for _, l := range live.Content.Datasources {
		if l.Authentication == nil {
			continue
		}
		if ds.ID != "" && l.ID == ds.ID {
			auth := *l.Authentication
			return &auth
		}
		if byName == nil && l.Name == ds.Name {
			auth := *l.Authentication
			byName = &auth
		}
	}
	return byName
}

// checkName rejects names that cannot be used as a single path segment
func checkName(unit, name string) error {
	switch {
	case name == "":
		return &errs.SerializationError{Unit: unit, Reason: "name is empty"}
	case strings.ContainsAny(name, "/\\\x00"):
		return &errs.SerializationError{Unit: unit, Reason: "name contains a path separator"}
	case strings.HasPrefix(name, "."):
		return &errs.SerializationError{Unit: unit, Reason: "name starts with a dot"}
	}
	return nil
}
