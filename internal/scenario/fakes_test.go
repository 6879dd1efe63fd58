package scenario

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

// fakeDB models the database as a list of seeded markers so capture and
// replay can be asserted without SQL.
type fakeDB struct {
	rows      []string
	resetErr  error
	replayErr error
	calls     []string
}

func (f *fakeDB) Reset(context.Context) error {
	f.calls = append(f.calls, "reset")
	if f.resetErr != nil {
		return f.resetErr
	}
	f.rows = nil
	return nil
}

func (f *fakeDB) Replay(_ context.Context, ds dataset.Dataset) error {
	f.calls = append(f.calls, "replay:"+ds.Name)
	if f.replayErr != nil {
		return f.replayErr
	}
	table, _ := ds.Table("marker")
	for _, row := range table.Rows {
		v, _ := row.Get("name")
		f.rows = append(f.rows, v.Str())
	}
	return nil
}

func (f *fakeDB) Capture(_ context.Context, name string) (dataset.Dataset, error) {
	f.calls = append(f.calls, "capture:"+name)
	table := dataset.Table{Name: "marker", Columns: []string{"name"}}
	for _, marker := range f.rows {
		table.Rows = append(table.Rows, dataset.NewRow(dataset.F("name", dataset.Text(marker))))
	}
	return dataset.Dataset{Name: name, Tables: []dataset.Table{table}}, nil
}

type fakeSnapshots struct {
	files   map[string]dataset.Dataset
	saveErr error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{files: make(map[string]dataset.Dataset)}
}

func (f *fakeSnapshots) Path(name string) string { return "snapshots/" + name + ".xml" }

func (f *fakeSnapshots) Load(name string) (dataset.Dataset, error) {
	ds, ok := f.files[name]
	if !ok {
		return dataset.Dataset{}, fmt.Errorf("open %s: %w", f.Path(name), fs.ErrNotExist)
	}
	return ds, nil
}

func (f *fakeSnapshots) Save(name string, ds dataset.Dataset) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.files[name] = ds
	return nil
}

// fakeUnitOfWork commits seeded markers into the fake database.
type fakeUnitOfWork struct {
	db      *fakeDB
	pending []string
	active  bool
}

func (u *fakeUnitOfWork) BeginTransaction(context.Context) error {
	if u.active {
		return storage.ErrTransactionActive
	}
	u.active = true
	return nil
}

func (u *fakeUnitOfWork) Commit() error {
	if !u.active {
		return storage.ErrNoTransaction
	}
	u.db.rows = append(u.db.rows, u.pending...)
	u.pending = nil
	u.active = false
	return nil
}

func (u *fakeUnitOfWork) Rollback() error {
	u.pending = nil
	u.active = false
	return nil
}

func (u *fakeUnitOfWork) Roles() storage.RoleRepository { return nil }
func (u *fakeUnitOfWork) Users() storage.UserRepository { return nil }

func (u *fakeUnitOfWork) add(marker string) { u.pending = append(u.pending, marker) }

// markerSeed commits one marker named after the scenario.
func markerSeed(marker string) SeedFunc {
	return func(ctx context.Context, uow storage.UnitOfWork) error {
		return storage.InTransaction(ctx, uow, func(context.Context) error {
			uow.(*fakeUnitOfWork).add(marker)
			return nil
		})
	}
}

type fixture struct {
	db        *fakeDB
	snapshots *fakeSnapshots
}

func newFixture() *fixture {
	return &fixture{db: &fakeDB{}, snapshots: newFakeSnapshots()}
}

func (f *fixture) deps() Deps {
	return Deps{
		Resetter:      f.db,
		Replayer:      f.db,
		Capturer:      f.db,
		Snapshots:     f.snapshots,
		NewUnitOfWork: func() storage.UnitOfWork { return &fakeUnitOfWork{db: f.db} },
	}
}

func (f *fixture) markers(name string) []string {
	ds, ok := f.snapshots.files[name]
	if !ok {
		return nil
	}
	table, _ := ds.Table("marker")
	var out []string
	for _, row := range table.Rows {
		v, _ := row.Get("name")
		out = append(out, v.Str())
	}
	return out
}
