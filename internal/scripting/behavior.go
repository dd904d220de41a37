package scripting

import (
	"errors"
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// ErrBadAction is returned when a hook returns something other than nil or
// an action table.
var ErrBadAction = errors.New("scripting: malformed action")

// ChooseAction calls hook with a read-only description of the encounter and
// decodes the returned action table:
//
//	{ kind = "attack" | "gadget" | "defend" | "none", gadget = 1, target = "id" }
//
// gadget is 1-based on the Lua side. A nil return means no action this tick.
//
// Postcondition: err is non-nil iff the hook is missing, fails, or returns a
// malformed action.
func (m *Manager) ChooseAction(hook string, in encounter.ScriptInput) (combat.Action, error) {
	ret, err := m.callWith(hook, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{inputTable(L, in)}
	})
	if err != nil {
		return combat.Action{}, err
	}
	return decodeAction(ret)
}

func inputTable(L *lua.LState, in encounter.ScriptInput) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("self", combatantTable(L, in.Self))
	t.RawSetString("allies", combatantList(L, in.Allies))
	t.RawSetString("opponents", combatantList(L, in.Opponents))
	t.RawSetString("tick", lua.LNumber(in.Tick))
	t.RawSetString("elapsed", lua.LNumber(in.Elapsed.Seconds()))
	return t
}

func combatantList(L *lua.LState, cs []encounter.CombatantView) *lua.LTable {
	t := L.NewTable()
	for _, c := range cs {
		t.Append(combatantTable(L, c))
	}
	return t
}

func combatantTable(L *lua.LState, c encounter.CombatantView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(c.ID))
	t.RawSetString("name", lua.LString(c.Name))
	t.RawSetString("level", lua.LNumber(c.Level))
	t.RawSetString("hp", lua.LNumber(c.HP))
	t.RawSetString("max_hp", lua.LNumber(c.MaxHP))
	t.RawSetString("units", lua.LNumber(c.Units))
	t.RawSetString("defeated", lua.LBool(c.Defeated))
	t.RawSetString("gadgets", lua.LNumber(c.Gadgets))
	statuses := L.NewTable()
	for _, s := range c.Statuses {
		statuses.RawSetString(string(s.Kind), lua.LNumber(s.Remaining.Seconds()))
	}
	t.RawSetString("statuses", statuses)
	cooldowns := L.NewTable()
	keys := make([]string, 0, len(c.Cooldowns))
	for k := range c.Cooldowns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cooldowns.RawSetString(k, lua.LNumber(c.Cooldowns[k].Seconds()))
	}
	t.RawSetString("cooldowns", cooldowns)
	return t
}

func decodeAction(v lua.LValue) (combat.Action, error) {
	if v == lua.LNil {
		return combat.Action{}, nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return combat.Action{}, fmt.Errorf("%w: got %s, want table", ErrBadAction, v.Type())
	}
	var a combat.Action
	switch kind := lua.LVAsString(t.RawGetString("kind")); kind {
	case "", "none":
		return combat.Action{}, nil
	case "attack":
		a.Kind = combat.ActionAttack
	case "defend":
		a.Kind = combat.ActionDefend
	case "gadget":
		n, ok := t.RawGetString("gadget").(lua.LNumber)
		if !ok || int(n) < 1 {
			return combat.Action{}, fmt.Errorf("%w: gadget action needs gadget >= 1", ErrBadAction)
		}
		a.Kind = combat.ActionGadget
		a.Gadget = int(n) - 1
	default:
		return combat.Action{}, fmt.Errorf("%w: unknown kind %q", ErrBadAction, kind)
	}
	a.Target = lua.LVAsString(t.RawGetString("target"))
	return a, nil
}
