// Package definition loads grid definitions from YAML files and keeps the
// served grids in step with them.
//
// A definition file lists the grids of one process:
//
//	grids:
//	  - id: orders
//	    dataset: orders
//	    key_field: id
//	    linked_records:
//	      - name: part_id
//	        ds_name: parts
//	        ds_key: id
//	        ds_label: name
//	    columns:
//	      - field: part_id
//	        editor: linkedRecord
//	        linkedDatasetName: parts
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/dataset"
)

// DefaultKeyField identifies rows when a grid sets no key_field.
const DefaultKeyField = "id"

// Grid is the definition of one served grid.
type Grid struct {
	ID            string                 `yaml:"id"`
	Dataset       string                 `yaml:"dataset"`
	KeyField      string                 `yaml:"key_field"`
	LinkedRecords []dataset.LinkedRecord `yaml:"linked_records"`
	Columns       []columns.Definition   `yaml:"columns"`
}

type file struct {
	Grids []Grid `yaml:"grids"`
}

// Validate reports every problem of the grid definition.
func (g Grid) Validate() error {
	var errs []string
	if g.ID == "" {
		errs = append(errs, "id is required")
	}
	if g.Dataset == "" {
		errs = append(errs, "dataset is required")
	}

	linked := make(map[string]bool, len(g.LinkedRecords))
	for _, lr := range g.LinkedRecords {
		if err := lr.Validate(); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if linked[lr.DSName] {
			errs = append(errs, fmt.Sprintf("linked dataset %s declared twice", lr.DSName))
		}
		linked[lr.DSName] = true
	}

	fields := make(map[string]bool, len(g.Columns))
	for i, col := range g.Columns {
		field := col.Field()
		if field == "" {
			errs = append(errs, fmt.Sprintf("column %d has no field", i))
			continue
		}
		if fields[field] {
			errs = append(errs, fmt.Sprintf("column %s declared twice", field))
		}
		fields[field] = true

		if ds := col.LinkedDataset(); ds != "" && !linked[ds] {
			errs = append(errs, fmt.Sprintf("column %s links unknown dataset %s", field, ds))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("grid %q: %s", g.ID, strings.Join(errs, "; "))
	}
	return nil
}

// Decode reads grid definitions from r. Unknown top-level keys are
// rejected and missing key fields default to DefaultKeyField.
func Decode(r io.Reader) ([]Grid, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode grid definitions: %w", err)
	}

	ids := make(map[string]bool, len(f.Grids))
	var errs []error
	for i := range f.Grids {
		g := &f.Grids[i]
		if g.KeyField == "" {
			g.KeyField = DefaultKeyField
		}
		if err := g.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if ids[g.ID] {
			errs = append(errs, fmt.Errorf("grid %q declared twice", g.ID))
		}
		ids[g.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Grids, nil
}

// Parse decodes grid definitions from data.
func Parse(data []byte) ([]Grid, error) {
	return Decode(bytes.NewReader(data))
}

// LoadFile reads and decodes the definition file at path.
func LoadFile(path string) ([]Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid definitions: %w", err)
	}
	grids, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return grids, nil
}
