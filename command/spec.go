// Package command loads command spec files and routes input lines to the
// controllers they name.
package command

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/zond/mudcore"
	"gopkg.in/yaml.v3"
)

const (
	// GoScheme prefixes controllers implemented in Go and registered on a
	// Loader.
	GoScheme = "go:"
)

var (
	ErrMalformedSpec = fmt.Errorf("malformed command spec")
)

type Entry struct {
	Verbs      []string `yaml:"verbs" json:"verbs"`
	Controller string   `yaml:"controller" json:"controller"`

	// Path is Controller resolved against the directory of the spec file.
	Path string `yaml:"-" json:"-"`
}

type Spec struct {
	Path     string  `yaml:"-" json:"-"`
	Commands []Entry `yaml:"commands" json:"commands"`
}

// Table is the ordered list of spec files an identity has imported.
type Table []*Spec

func (t Table) Verbs() []string {
	result := []string{}
	for _, spec := range t {
		for _, entry := range spec.Commands {
			result = append(result, entry.Verbs...)
		}
	}
	return result
}

func resolve(specPath string, controller string) string {
	if strings.HasPrefix(controller, GoScheme) {
		return controller
	}
	if path.IsAbs(controller) {
		return strings.TrimPrefix(path.Clean(controller), "/")
	}
	return path.Join(path.Dir(specPath), controller)
}

// ParseSpec decodes JSON if specPath ends with .json, and YAML otherwise.
func ParseSpec(specPath string, data []byte) (*Spec, error) {
	spec := &Spec{}
	if path.Ext(specPath) == ".json" {
		if err := json.Unmarshal(data, spec); err != nil {
			return nil, mudcore.WithStack(err)
		}
	} else {
		if err := yaml.Unmarshal(data, spec); err != nil {
			return nil, mudcore.WithStack(err)
		}
	}
	spec.Path = specPath
	for idx := range spec.Commands {
		entry := &spec.Commands[idx]
		if entry.Controller == "" || len(entry.Verbs) == 0 {
			return nil, mudcore.WithStack(fmt.Errorf("%w: entry %d of %q needs verbs and a controller", ErrMalformedSpec, idx, specPath))
		}
		for _, verb := range entry.Verbs {
			if verb == "" || strings.ContainsRune(verb, ' ') {
				return nil, mudcore.WithStack(fmt.Errorf("%w: bad verb %q in %q", ErrMalformedSpec, verb, specPath))
			}
		}
		entry.Path = resolve(specPath, entry.Controller)
	}
	return spec, nil
}

func LoadSpec(fsys fs.FS, specPath string) (*Spec, error) {
	data, err := fs.ReadFile(fsys, specPath)
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	return ParseSpec(specPath, data)
}
