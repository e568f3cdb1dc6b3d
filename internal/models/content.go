package models

// ApplicationContent is the versioned content graph of an application
type ApplicationContent struct {
	Settings    map[string]any
	Pages       []Page
	Actions     []Action
	Datasources []Datasource
}

// Page is one page of the application; Layouts hold the widget DSL
type Page struct {
	ID        string
	Name      string
	Slug      string
	IsDefault bool
	Hidden    bool
	Layouts   []Layout
}

type Layout struct {
	ID  string
	DSL map[string]any
}

// Action is a query or JS function bound to a page
type Action struct {
	ID             string
	Name           string
	PageName       string
	DatasourceName string
	PluginType     string
	Body           string
	ExecuteOnLoad  bool
	Config         map[string]any
}

// Datasource describes a connection; Authentication is never versioned
type Datasource struct {
	ID             string
	Name           string
	PluginID       string
	URL            string
	Config         map[string]any
	Authentication *DatasourceAuth
}

// DatasourceAuth carries datasource credentials
type DatasourceAuth struct {
	Username    string
	Password    string
	BearerToken string
}

// PageByName returns the page with the given name
func (c *ApplicationContent) PageByName(name string) (*Page, bool) {
	for i := range c.Pages {
		if c.Pages[i].Name == name {
			return &c.Pages[i], true
		}
	}
	return nil, false
}

// DatasourceByName returns the datasource with the given name
func (c *ApplicationContent) DatasourceByName(name string) (*Datasource, bool) {
	for i := range c.Datasources {
		if c.Datasources[i].Name == name {
			return &c.Datasources[i], true
		}
	}
	return nil, false
}

// WithoutCredentials returns a copy of the content with datasource
// authentication stripped
func (c ApplicationContent) WithoutCredentials() ApplicationContent {
	out := c
	out.Datasources = make([]Datasource, len(c.Datasources))
	for i, ds := range c.Datasources {
		ds.Authentication = nil
		out.Datasources[i] = ds
	}
	return out
}
