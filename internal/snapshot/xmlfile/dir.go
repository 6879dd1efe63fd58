package xmlfile

import "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"

// Dir stores one snapshot file per scenario in a directory.
type Dir string

// Path returns the snapshot path for a scenario.
func (d Dir) Path(name string) string { return Path(string(d), name) }

// Load reads the snapshot of a scenario.
func (d Dir) Load(name string) (dataset.Dataset, error) { return Read(d.Path(name)) }

// Save writes the snapshot of a scenario.
func (d Dir) Save(name string, ds dataset.Dataset) error { return Write(d.Path(name), ds) }
