package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua table into L:
//
//	engine.log(msg)          debug-level log line
//	engine.pct(hp, max_hp)   integer percentage, 0 when max_hp <= 0
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", L.NewFunction(func(L *lua.LState) int {
		m.logger.Debug("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetField(engine, "pct", L.NewFunction(func(L *lua.LState) int {
		hp, maxHP := L.CheckInt(1), L.CheckInt(2)
		if maxHP <= 0 {
			L.Push(lua.LNumber(0))
			return 1
		}
		L.Push(lua.LNumber(hp * 100 / maxHP))
		return 1
	}))
	L.SetGlobal("engine", engine)
}
