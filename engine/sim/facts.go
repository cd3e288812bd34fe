package sim

import (
	"fmt"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

func (f *fact) get(slot string) (engine.Value, engine.GetSlotError) {
	if f.tmpl.implied {
		if slot != "" && slot != "implied" {
			return engine.Value{}, engine.GetSlotNotFoundError
		}
		return engine.Multifield(f.ordered...), engine.GetSlotNoError
	}
	if f.tmpl.slot(slot) == nil {
		return engine.Value{}, engine.GetSlotNotFoundError
	}
	return f.slots[slot], engine.GetSlotNoError
}

func (f *fact) sameContent(t *template, slots map[string]engine.Value, ordered []engine.Value) bool {
	if f.tmpl != t {
		return false
	}
	if t.implied {
		if len(f.ordered) != len(ordered) {
			return false
		}
		for i := range ordered {
			if !f.ordered[i].Equal(ordered[i]) {
				return false
			}
		}
		return true
	}
	for _, s := range t.slots {
		if !f.slots[s.name].Equal(slots[s.name]) {
			return false
		}
	}
	return true
}

// impliedTemplate returns the template backing ordered facts named name.
func (env *environment) impliedTemplate(name string) *template {
	if t := env.templates[name]; t != nil {
		return t
	}
	t := &template{name: name, implied: true}
	env.templates[name] = t
	return t
}

var typeNames = map[string]func(engine.Type) bool{
	"SYMBOL":           func(t engine.Type) bool { return t == engine.SYMBOL },
	"STRING":           func(t engine.Type) bool { return t == engine.STRING },
	"LEXEME":           func(t engine.Type) bool { return t == engine.SYMBOL || t == engine.STRING },
	"INTEGER":          func(t engine.Type) bool { return t == engine.INTEGER },
	"FLOAT":            func(t engine.Type) bool { return t == engine.FLOAT },
	"NUMBER":           func(t engine.Type) bool { return t == engine.INTEGER || t == engine.FLOAT },
	"INSTANCE-NAME":    func(t engine.Type) bool { return t == engine.INSTANCE_NAME },
	"INSTANCE-ADDRESS": func(t engine.Type) bool { return t == engine.INSTANCE_ADDRESS },
	"INSTANCE":         func(t engine.Type) bool { return t == engine.INSTANCE_ADDRESS || t == engine.INSTANCE_NAME },
	"FACT-ADDRESS":     func(t engine.Type) bool { return t == engine.FACT_ADDRESS },
	"EXTERNAL-ADDRESS": func(t engine.Type) bool { return t == engine.EXTERNAL_ADDRESS },
}

// checkSlot validates cardinality and type of a slot value.
func checkSlot(def *slotDef, v engine.Value) engine.PutSlotError {
	vals := []engine.Value{v}
	if def.multi {
		fields, ok := v.Fields()
		if !ok {
			return engine.PutSlotCardinalityError
		}
		vals = fields
	} else if v.Type() == engine.MULTIFIELD || v.IsVoid() {
		return engine.PutSlotCardinalityError
	}
	if len(def.types) == 0 {
		return engine.PutSlotNoError
	}
	for _, x := range vals {
		ok := false
		for _, name := range def.types {
			if check := typeNames[name]; check != nil && check(x.Type()) {
				ok = true
				break
			}
		}
		if !ok {
			return engine.PutSlotTypeError
		}
	}
	return engine.PutSlotNoError
}

// slotDefault computes the value an unset slot receives.
func (env *environment) slotDefault(def *slotDef) engine.Value {
	if def.defNode != nil {
		v := env.eval(def.defNode, newScope(nil))
		if def.multi && v.Type() != engine.MULTIFIELD {
			return engine.Multifield(v)
		}
		return v
	}
	if def.multi {
		return engine.Multifield()
	}
	if len(def.types) > 0 {
		switch def.types[0] {
		case "INTEGER", "NUMBER":
			return engine.Integer(0)
		case "FLOAT":
			return engine.Float(0)
		case "STRING":
			return engine.String("")
		case "INSTANCE-NAME", "INSTANCE":
			return engine.InstanceName("nil")
		}
	}
	return symNil
}

// assert adds a fact, returning the existing one when an identical fact
// is already present.
func (env *environment) assert(t *template, slots map[string]engine.Value, ordered []engine.Value) *fact {
	if !t.implied {
		for _, s := range t.slots {
			if _, ok := slots[s.name]; ok {
				continue
			}
			if s.required {
				env.fail("TMPLTRHS1", "Slot %s requires a value because of its (default ?NONE) attribute.", s.name)
				return nil
			}
			slots[s.name] = env.slotDefault(s)
		}
		for _, s := range t.slots {
			if checkSlot(s, slots[s.name]) != engine.PutSlotNoError {
				env.fail("CSTRNCHK1", "A literal slot value found in the assert command does not match the allowed types for slot %s.", s.name)
				return nil
			}
		}
	}
	for _, f := range env.facts {
		if f.sameContent(t, slots, ordered) {
			return f
		}
	}
	f := &fact{tmpl: t, slots: slots, ordered: ordered, index: env.nextIndex}
	env.nextIndex++
	f.ptr = env.alloc(&object{kind: objFact, fact: f})
	env.facts = append(env.facts, f)
	return f
}

func (env *environment) retract(f *fact) engine.RetractError {
	if f == nil {
		return engine.RetractNullPointerError
	}
	if f.retracted {
		return engine.RetractCouldNotRetractError
	}
	f.retracted = true
	for i, x := range env.facts {
		if x == f {
			env.facts = append(env.facts[:i], env.facts[i+1:]...)
			break
		}
	}
	if f.refs == 0 {
		delete(env.objects, f.ptr)
	}
	return engine.RetractNoError
}

func (env *environment) releaseFact(f *fact) {
	if f.refs > 0 {
		f.refs--
	}
	if f.refs == 0 && f.retracted {
		delete(env.objects, f.ptr)
	}
}

// factFromNode evaluates a fact form such as (point (x 1)) or (a b c).
func (env *environment) factFromNode(n *node, sc *scope) *fact {
	if !n.isList || len(n.list) == 0 {
		env.fail("FACTRHS1", "Expected a fact pattern.")
		return nil
	}
	name, ok := n.list[0].symbol()
	if !ok {
		env.fail("FACTRHS1", "A fact relation must be a symbol.")
		return nil
	}
	if _, isClass := env.classes[name]; isClass || name == "test" || name == "not" {
		env.fail("FACTRHS1", "Template %s may not be used as a fact relation.", name)
		return nil
	}
	t := env.templates[name]
	if t == nil || t.implied {
		vals, ok := env.evalArgs(n.list[1:], sc)
		if !ok {
			return nil
		}
		var ordered []engine.Value
		for _, v := range vals {
			if fields, ok := v.Fields(); ok {
				ordered = append(ordered, fields...)
				continue
			}
			ordered = append(ordered, v)
		}
		return env.assert(env.impliedTemplate(name), nil, ordered)
	}
	slots, ok := env.evalSlots(t.slot, n.list[1:], sc)
	if !ok {
		return nil
	}
	return env.assert(t, slots, nil)
}

// evalSlots evaluates (slot value...) forms against a slot lookup.
func (env *environment) evalSlots(lookup func(string) *slotDef, forms []*node, sc *scope) (map[string]engine.Value, bool) {
	slots := make(map[string]engine.Value)
	for _, s := range forms {
		name := s.head()
		def := lookup(name)
		if def == nil {
			env.fail("TMPLTFUN1", "Invalid slot %s.", s.String())
			return nil, false
		}
		vals, ok := env.evalArgs(s.list[1:], sc)
		if !ok {
			return nil, false
		}
		if def.multi {
			var flat []engine.Value
			for _, v := range vals {
				if fields, ok := v.Fields(); ok {
					flat = append(flat, fields...)
				} else {
					flat = append(flat, v)
				}
			}
			slots[name] = engine.Multifield(flat...)
			continue
		}
		if len(vals) != 1 {
			env.fail("CSTRNCHK1", "Slot %s expects exactly one value.", name)
			return nil, false
		}
		slots[name] = vals[0]
	}
	return slots, true
}

func (env *environment) assertString(text string) *fact {
	n, err := parseOne(text)
	if err != nil {
		env.reportParseError(err)
		env.evalError = true
		return nil
	}
	if err := structural["assert"](env, []*node{n}, ""); err != nil {
		env.reportParseError(err)
		env.evalError = true
		return nil
	}
	return env.factFromNode(n, newScope(nil))
}

// modify retracts f and asserts a copy with the given slot overrides.
func (env *environment) modify(f *fact, overrides map[string]engine.Value, keep bool) *fact {
	if f.tmpl.implied {
		env.fail("FACTMNGR3", "Ordered facts cannot be modified by slot.")
		return nil
	}
	slots := make(map[string]engine.Value, len(f.slots))
	for k, v := range f.slots {
		slots[k] = v
	}
	for k, v := range overrides {
		slots[k] = v
	}
	if !keep {
		env.retract(f)
	}
	return env.assert(f.tmpl, slots, nil)
}

// ppFact renders a fact in its printed form.
func (env *environment) ppFact(f *fact) string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(f.tmpl.name)
	if f.tmpl.implied {
		for _, v := range f.ordered {
			b.WriteByte(' ')
			b.WriteString(env.printForm(v, true))
		}
	} else {
		for _, s := range f.tmpl.slots {
			b.WriteString(" (")
			b.WriteString(s.name)
			v := f.slots[s.name]
			if fields, ok := v.Fields(); ok && s.multi {
				for _, x := range fields {
					b.WriteByte(' ')
					b.WriteString(env.printForm(x, true))
				}
			} else {
				b.WriteByte(' ')
				b.WriteString(env.printForm(v, true))
			}
			b.WriteByte(')')
		}
	}
	b.WriteByte(')')
	return b.String()
}

// printForm renders v as the engine displays it. Strings are quoted only
// when quote is set.
func (env *environment) printForm(v engine.Value, quote bool) string {
	switch v.Type() {
	case engine.STRING:
		if quote {
			return v.String()
		}
		s, _ := v.Str()
		return s
	case engine.FACT_ADDRESS:
		p, _ := v.Pointer()
		if f := env.factAt(p); f != nil && !f.retracted {
			return fmt.Sprintf("<Fact-%d>", f.index)
		}
		return "<Dummy Fact>"
	case engine.INSTANCE_ADDRESS:
		p, _ := v.Pointer()
		if ins := env.instanceAt(p); ins != nil && !ins.deleted {
			return "<Instance-" + ins.name + ">"
		}
		return "<Dummy Instance>"
	case engine.EXTERNAL_ADDRESS:
		p, _ := v.Pointer()
		return fmt.Sprintf("<Pointer-C-0x%x>", uintptr(p))
	case engine.MULTIFIELD:
		fields, _ := v.Fields()
		parts := make([]string, len(fields))
		for i, x := range fields {
			parts[i] = env.printForm(x, quote)
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	return v.String()
}

func (env *environment) listFacts() {
	for _, f := range env.facts {
		env.writeString(engine.STDOUT, fmt.Sprintf("f-%-5d %s\n", f.index, env.ppFact(f)))
	}
	env.writeString(engine.STDOUT, fmt.Sprintf("For a total of %d fact%s.\n", len(env.facts), plural(len(env.facts))))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func (env *environment) createFactBuilder(name string) engine.Ptr {
	t := env.templates[name]
	switch {
	case t == nil:
		env.fbError = engine.FBDeftemplateNotFoundError
		return 0
	case t.implied:
		env.fbError = engine.FBImpliedDeftemplateError
		return 0
	}
	env.fbError = engine.FBNoError
	fb := &factBuilder{tmpl: t, slots: make(map[string]engine.Value)}
	fb.ptr = env.alloc(&object{kind: objFactBuilder, builder: fb})
	return fb.ptr
}

func (env *environment) fbPutSlot(fb *factBuilder, slot string, v engine.Value) engine.PutSlotError {
	if fb == nil {
		return engine.PutSlotNullPointerError
	}
	def := fb.tmpl.slot(slot)
	if def == nil {
		return engine.PutSlotNotFoundError
	}
	if code := checkSlot(def, v); code != engine.PutSlotNoError {
		return code
	}
	fb.slots[slot] = v
	return engine.PutSlotNoError
}

func (env *environment) fbAssert(fb *factBuilder) engine.Ptr {
	if fb == nil {
		env.fbError = engine.FBNullPointerError
		return 0
	}
	slots := make(map[string]engine.Value, len(fb.slots))
	for k, v := range fb.slots {
		slots[k] = v
	}
	fb.slots = make(map[string]engine.Value)
	f := env.assert(fb.tmpl, slots, nil)
	if f == nil {
		env.fbError = engine.FBCouldNotAssertError
		return 0
	}
	env.fbError = engine.FBNoError
	return f.ptr
}
