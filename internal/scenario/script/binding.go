package script

import (
	"strings"

	"github.com/Shopify/go-lua"
)

func registerTypes(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, scenarioConstructor, 0)
	state.SetGlobal("Scenario")
}

var scenarioConstructor = []lua.RegistryFunction{
	{Name: "new", Function: scenarioNew},
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "after", Function: scenarioAfter},
	{Name: "role", Function: scenarioRole},
	{Name: "user", Function: scenarioUser},
	{Name: "grant", Function: scenarioGrant},
	{Name: "lock", Function: scenarioLock},
}

func scenarioNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	state.PushUserData(&Script{name: strings.TrimSpace(name)})
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

func scenarioAfter(state *lua.State) int {
	script := checkScript(state)
	script.after = strings.TrimSpace(lua.CheckString(state, 2))
	return self(state)
}

func scenarioRole(state *lua.State) int {
	script := checkScript(state)
	name := lua.CheckString(state, 2)
	description := lua.OptString(state, 3, "")
	appendStep(script, "role", map[string]string{"name": name, "description": description})
	return self(state)
}

func scenarioUser(state *lua.State) int {
	script := checkScript(state)
	lua.CheckType(state, 2, lua.TypeTable)
	data := tableToMap(state, 2)
	for _, key := range []string{"user_name", "email", "name"} {
		if _, ok := data[key]; !ok {
			lua.ArgumentError(state, 2, "missing field "+key)
		}
	}
	appendStep(script, "user", data)
	return self(state)
}

func scenarioGrant(state *lua.State) int {
	script := checkScript(state)
	user := lua.CheckString(state, 2)
	role := lua.CheckString(state, 3)
	appendStep(script, "grant", map[string]string{"user": user, "role": role})
	return self(state)
}

func scenarioLock(state *lua.State) int {
	script := checkScript(state)
	user := lua.CheckString(state, 2)
	appendStep(script, "lock", map[string]string{"user": user})
	return self(state)
}

func checkScript(state *lua.State) *Script {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if script, ok := ud.(*Script); ok && script != nil {
		return script
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

// self returns the receiver so calls can be chained.
func self(state *lua.State) int {
	state.PushValue(1)
	return 1
}

func appendStep(script *Script, kind string, args map[string]string) {
	script.steps = append(script.steps, step{kind: kind, args: args})
}

// tableToMap copies the string-keyed entries of a table. Numbers and booleans
// are kept in their Lua string form.
func tableToMap(state *lua.State, index int) map[string]string {
	output := map[string]string{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			switch state.TypeOf(-1) {
			case lua.TypeString, lua.TypeNumber:
				value, _ := state.ToString(-1)
				output[key] = value
			case lua.TypeBoolean:
				if state.ToBoolean(-1) {
					output[key] = "true"
				} else {
					output[key] = "false"
				}
			}
		}
		state.Pop(1)
	}
	return output
}
