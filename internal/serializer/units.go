package serializer

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// manifest is the TOML index of the tree. It carries everything file names
// cannot: ordering, the default page and the format version.
type manifest struct {
	FormatVersion   int              `toml:"formatVersion"`
	ApplicationName string           `toml:"applicationName"`
	DefaultPage     string           `toml:"defaultPage,omitempty"`
	Pages           []string         `toml:"pages"`
	Datasources     []string         `toml:"datasources"`
	Actions         []manifestAction `toml:"actions"`
}

type manifestAction struct {
	Page string `toml:"page"`
	Name string `toml:"name"`
}

type pageFile struct {
	ID      string       `yaml:"id"`
	Slug    string       `yaml:"slug,omitempty"`
	Hidden  bool         `yaml:"hidden,omitempty"`
	Layouts []layoutFile `yaml:"layouts,omitempty"`
}

type layoutFile struct {
	ID  string         `yaml:"id"`
	DSL map[string]any `yaml:"dsl,omitempty"`
}

type actionFile struct {
	ID            string         `yaml:"id"`
	PluginType    string         `yaml:"pluginType,omitempty"`
	Datasource    string         `yaml:"datasource,omitempty"`
	ExecuteOnLoad bool           `yaml:"executeOnLoad,omitempty"`
	Body          string         `yaml:"body,omitempty"`
	Config        map[string]any `yaml:"config,omitempty"`
}

// datasourceFile has no authentication field: credentials never reach git
type datasourceFile struct {
	ID       string         `yaml:"id"`
	PluginID string         `yaml:"pluginId,omitempty"`
	URL      string         `yaml:"url,omitempty"`
	Config   map[string]any `yaml:"config,omitempty"`
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errEmptyUnit = errors.New("file is empty")

func decodeYAML(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyUnit
		}
		return err
	}
	return nil
}

// jsonNumbers converts the integers YAML decodes into float64, the type stored
// records carry after a JSON round trip, so free-form maps import unchanged.
func jsonNumbers(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = jsonNumber(v)
	}
	return m
}

func jsonNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case map[string]any:
		return jsonNumbers(n)
	case []any:
		for i := range n {
			n[i] = jsonNumber(n[i])
		}
		return n
	}
	return v
}
