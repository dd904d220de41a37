package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrNoScripts is returned by CallHook before any directory has been loaded.
var ErrNoScripts = errors.New("scripting: no scripts loaded")

// ErrHookMissing is returned when the named hook is not a Lua function.
var ErrHookMissing = errors.New("scripting: hook not defined")

// Manager owns one sandboxed LState shared by every encounter and exposes
// hook dispatch.
//
// A LState is single-threaded, so calls are serialised by mu. Load swaps the
// VM atomically with respect to CallHook.
type Manager struct {
	mu        sync.Mutex
	state     *lua.LState
	instLimit int
	logger    *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: logger must be non-nil; instLimit 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil Manager.
func NewManager(logger *zap.Logger, instLimit int) *Manager {
	return &Manager{instLimit: instLimit, logger: logger}
}

// Load creates a fresh sandboxed VM, registers the engine module, then
// executes every *.lua file in scriptDir in lexicographic order. On success
// the new VM replaces the previous one; on failure the previous VM stays.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: returns an error naming the first file that fails to load.
func (m *Manager) Load(scriptDir string) error {
	L, cancel := NewSandboxedState(m.instLimit)
	defer cancel()
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	old := m.state
	m.state = L
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	m.logger.Info("behavior scripts loaded",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// CallHook calls the named Lua global function with a fresh instruction
// budget and returns its first return value. Lua runtime errors are logged
// at Warn level and returned.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: err wraps ErrNoScripts or ErrHookMissing when applicable.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	return m.callWith(hook, func(*lua.LState) []lua.LValue { return args })
}

// callWith is CallHook with arguments built inside the lock from the VM that
// will run the hook.
func (m *Manager) callWith(hook string, build func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	L := m.state
	if L == nil {
		return lua.LNil, ErrNoScripts
	}
	fn, ok := L.GetGlobal(hook).(*lua.LFunction)
	if !ok {
		return lua.LNil, fmt.Errorf("%w: %q", ErrHookMissing, hook)
	}

	cancel := Rearm(L, m.instLimit)
	defer cancel()
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, build(L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, fmt.Errorf("scripting: hook %q: %w", hook, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// Close releases the VM. CallHook after Close returns ErrNoScripts.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}
