package module

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// sourceExts are stripped from a script path when deriving its unit key.
var sourceExts = []string{".py", ".go", ".so"}

// Table holds every registered unit and its named callables.
type Table struct {
	units map[string]*Unit
}

// Unit is one loadable unit: a named group of callables.
type Unit struct {
	Name    string
	symbols map[string]Func
}

// Symbol returns the callable registered under name.
func (u *Unit) Symbol(name string) (Func, bool) {
	fn, ok := u.symbols[name]
	return fn, ok
}

// Symbols returns the callable names of the unit, sorted.
func (u *Unit) Symbols() []string {
	names := make([]string, 0, len(u.symbols))
	for name := range u.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewTable creates a table and lets each module register itself.
func NewTable(mods ...Module) *Table {
	t := &Table{units: make(map[string]*Unit)}
	for _, m := range mods {
		m.Register(t)
	}
	return t
}

// Register adds fn as symbol of unit. Registering the same pair twice is a
// programming error and panics.
func (t *Table) Register(unit, symbol string, fn Func) {
	if unit == "" || symbol == "" {
		panic("module: unit and symbol names must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("module: nil function registered for '%s:%s'", unit, symbol))
	}
	u, ok := t.units[unit]
	if !ok {
		u = &Unit{Name: unit, symbols: make(map[string]Func)}
		t.units[unit] = u
	}
	if _, exists := u.symbols[symbol]; exists {
		panic(fmt.Sprintf("module: '%s:%s' already registered", unit, symbol))
	}
	u.symbols[symbol] = fn
}

// Resolve finds the unit named by a script path. An exact match wins;
// otherwise the path is reduced to its unit key (see UnitKey).
func (t *Table) Resolve(scriptPath string) (*Unit, bool) {
	if u, ok := t.units[scriptPath]; ok {
		return u, true
	}
	u, ok := t.units[UnitKey(scriptPath)]
	return u, ok
}

// Units returns the registered unit names, sorted.
func (t *Table) Units() []string {
	names := make([]string, 0, len(t.units))
	for name := range t.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnitKey reduces a file path or dotted import path to the bare unit name:
//
//	src/modules/context/hello_module_v1.py -> hello_module_v1
//	src.modules.context.hello_module_v1    -> hello_module_v1
func UnitKey(scriptPath string) string {
	p := strings.TrimSpace(strings.ReplaceAll(scriptPath, "\\", "/"))
	p = path.Base(p)
	for _, ext := range sourceExts {
		if strings.HasSuffix(p, ext) {
			p = strings.TrimSuffix(p, ext)
			break
		}
	}
	if i := strings.LastIndex(p, "."); i >= 0 {
		p = p[i+1:]
	}
	return p
}
