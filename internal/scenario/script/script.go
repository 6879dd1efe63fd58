// Package script loads scenario definitions written in Lua.
//
// A script builds a Scenario and returns it:
//
//	local s = Scenario.new("Auditors")
//	s:after("CreateUsers")
//	s:role("auditor", "Read-only access")
//	s:user{user_name = "audit1", email = "audit1@example.com", name = "Audit One"}
//	s:grant("audit1", "auditor")
//	s:lock("audit1")
//	return s
//
// Steps are recorded when the script runs and replayed through the
// repositories when the scenario seeds.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/scenario"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

// Ext is the scenario script extension.
const Ext = ".lua"

const scenarioTypeName = "scenario"

// Script is a scenario definition recorded from a Lua script.
type Script struct {
	name  string
	after string
	path  string
	steps []step
}

type step struct {
	kind string
	args map[string]string
}

// Name returns the scenario name.
func (s *Script) Name() string { return s.name }

// Prerequisite returns a reference to the scenario named by after, or nil.
func (s *Script) Prerequisite() scenario.Definition {
	if s.after == "" {
		return nil
	}
	return scenario.Ref(s.after)
}

// Seed applies the recorded steps in one transaction.
func (s *Script) Seed(ctx context.Context, uow storage.UnitOfWork) error {
	return storage.InTransaction(ctx, uow, func(ctx context.Context) error {
		for i, st := range s.steps {
			if err := st.apply(ctx, uow); err != nil {
				return fmt.Errorf("step %d (%s): %w", i+1, st.kind, err)
			}
		}
		return nil
	})
}

func (st step) apply(ctx context.Context, uow storage.UnitOfWork) error {
	var err error
	switch st.kind {
	case "role":
		_, err = uow.Roles().CreateRole(ctx, st.args["name"], st.args["description"])
	case "user":
		_, err = uow.Users().CreateUser(ctx, st.args["user_name"], st.args["email"], st.args["name"])
	case "grant":
		_, err = uow.Users().GrantRole(ctx, st.args["user"], st.args["role"])
	case "lock":
		_, err = uow.Users().LockUser(ctx, st.args["user"])
	default:
		err = fmt.Errorf("unknown step kind %q", st.kind)
	}
	return err
}

// LoadFile runs the script at path and returns the scenario it builds. An
// unnamed scenario takes the file name without extension.
func LoadFile(path string) (*Script, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerTypes(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, invalid(path, "load lua", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, invalid(path, "run lua", err)
	}
	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, invalid(path, "scenario script must return Scenario", nil)
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	script, ok := ud.(*Script)
	if !ok || script == nil {
		return nil, invalid(path, "scenario script returned invalid Scenario", nil)
	}
	if strings.TrimSpace(script.name) == "" {
		script.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	script.path = path
	return script, nil
}

// LoadDir loads every *.lua file in dir in file name order.
func LoadDir(dir string) ([]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeConfigurationInvalid,
			"read scenario scripts", map[string]string{"dir": dir}, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == Ext {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	scripts := make([]*Script, 0, len(files))
	for _, file := range files {
		script, err := LoadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}
	return scripts, nil
}

// Register loads dir and registers every script in reg.
func Register(reg *scenario.Registry, dir string) error {
	scripts, err := LoadDir(dir)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if err := reg.Register(script); err != nil {
			return fmt.Errorf("%s: %w", script.path, err)
		}
	}
	return nil
}

func invalid(path, message string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeConfigurationInvalid, message,
		map[string]string{"script": path}, cause)
}

var _ scenario.Definition = (*Script)(nil)
