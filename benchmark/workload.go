package benchmark

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
)

// A YCSB workload descriptor: a Java properties file defining record counts,
// the read/write mix and connection settings.
type Workload struct {
	Name       string
	Path       string
	Properties *properties.Properties
}

func LoadWorkload(path string) (*Workload, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(path)
	if err != nil {
		return nil, &ValidationError{Field: "workload", Reason: err.Error()}
	}
	base := filepath.Base(path)
	return &Workload{
		Name:       strings.TrimSuffix(base, filepath.Ext(base)),
		Path:       path,
		Properties: p,
	}, nil
}

// Returns a copy of the workload with the given properties set, overriding any
// existing values.
func (w *Workload) WithProperties(props map[string]string) (*Workload, error) {
	p := properties.NewProperties()
	p.DisableExpansion = true
	for _, k := range w.Properties.Keys() {
		v, _ := w.Properties.Get(k)
		p.MustSet(k, v)
	}
	for k, v := range props {
		_, _, err := p.Set(k, v)
		if err != nil {
			return nil, fmt.Errorf("setting workload property %s failed: %w", k, err)
		}
	}
	return &Workload{Name: w.Name, Path: w.Path, Properties: p}, nil
}

// Encode writes the workload in properties file format.
func (w *Workload) Encode(dst io.Writer) error {
	_, err := w.Properties.WriteComment(dst, "# ", properties.UTF8)
	if err != nil {
		return fmt.Errorf("writing workload failed: %w", err)
	}
	return nil
}
