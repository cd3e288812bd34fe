package sim

import (
	"fmt"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

func (c *class) slot(name string) *slotDef {
	for _, s := range c.allSlots() {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (c *class) handler(msg string) *deffunction {
	for k := c; k != nil; k = k.super {
		if h := k.handlers[msg]; h != nil {
			return h
		}
	}
	return nil
}

func (env *environment) nextGensym(prefix string) string {
	env.gensym++
	return fmt.Sprintf("%s%d", prefix, env.gensym)
}

// createInstance builds an instance of c. An existing instance with the
// same name is deleted first. The init handler runs unless instances are
// being restored.
func (env *environment) createInstance(name string, c *class, overrides map[string]engine.Value) *instance {
	if c.abstract {
		env.fail("INSMNGR3", "Cannot create instances of abstract class %s.", c.name)
		return nil
	}
	if name == "" {
		name = env.nextGensym("gen")
	}
	for k, v := range overrides {
		def := c.slot(k)
		if def == nil {
			env.fail("INSMNGR2", "Invalid slot %s for class %s.", k, c.name)
			return nil
		}
		if checkSlot(def, v) != engine.PutSlotNoError {
			env.fail("CSTRNCHK1", "Value for slot %s of instance [%s] does not match the allowed types.", k, name)
			return nil
		}
	}
	if old := env.findInstance(name); old != nil {
		env.unmake(old)
	}
	ins := &instance{class: c, name: name, slots: make(map[string]engine.Value), stamp: 1}
	for _, s := range c.allSlots() {
		if v, ok := overrides[s.name]; ok {
			ins.slots[s.name] = v
			continue
		}
		ins.slots[s.name] = env.slotDefault(s)
	}
	ins.ptr = env.alloc(&object{kind: objInstance, ins: ins})
	env.instances = append(env.instances, ins)
	if h := c.handler("init"); h != nil && !env.restoring {
		env.callDeffunction(h, nil, map[string]engine.Value{"self": engine.InstanceAddress(ins.ptr)})
	}
	return ins
}

func (env *environment) unmake(ins *instance) bool {
	if ins == nil || ins.deleted {
		return false
	}
	if h := ins.class.handler("delete"); h != nil {
		env.callDeffunction(h, nil, map[string]engine.Value{"self": engine.InstanceAddress(ins.ptr)})
	}
	ins.deleted = true
	for i, x := range env.instances {
		if x == ins {
			env.instances = append(env.instances[:i], env.instances[i+1:]...)
			break
		}
	}
	if ins.refs == 0 {
		delete(env.objects, ins.ptr)
	}
	return true
}

func (env *environment) releaseInstance(ins *instance) {
	if ins.refs > 0 {
		ins.refs--
	}
	if ins.refs == 0 && ins.deleted {
		delete(env.objects, ins.ptr)
	}
}

func (env *environment) putSlot(ins *instance, slot string, v engine.Value) engine.PutSlotError {
	if ins == nil || ins.deleted {
		return engine.PutSlotNullPointerError
	}
	def := ins.class.slot(slot)
	if def == nil {
		return engine.PutSlotNotFoundError
	}
	if code := checkSlot(def, v); code != engine.PutSlotNoError {
		return code
	}
	ins.slots[slot] = v
	ins.stamp++
	return engine.PutSlotNoError
}

// makeInstanceForm evaluates the arguments of make-instance:
// [name] of class (slot value)...
func (env *environment) makeInstanceForm(args []*node, sc *scope) engine.Value {
	i := 0
	name := ""
	if len(args) > 0 && !args[0].isSymbol("of") {
		v := env.eval(args[0], sc)
		if env.evalError {
			return symFalse
		}
		s, ok := v.Lexeme()
		if !ok {
			return env.fail("INSMNGR1", "Expected a valid name for new instance.")
		}
		name = s
		i++
	}
	if i >= len(args) || !args[i].isSymbol("of") {
		return env.fail("INSMNGR1", "Expected 'of' in make-instance.")
	}
	i++
	if i >= len(args) {
		return env.fail("INSMNGR1", "Expected a valid class name.")
	}
	cv := env.eval(args[i], sc)
	cname, _ := cv.Lexeme()
	c := env.classes[cname]
	if c == nil {
		return env.fail("INSMNGR1", "Expected a valid class name.")
	}
	slots, ok := env.evalSlots(c.slot, args[i+1:], sc)
	if !ok {
		return symFalse
	}
	ins := env.createInstance(name, c, slots)
	if ins == nil {
		return symFalse
	}
	return engine.InstanceName(ins.name)
}

// makeInstanceString handles the textual (name of class ...) form used
// by the host API.
func (env *environment) makeInstanceString(text string) *instance {
	n, err := parseOne(text)
	if err != nil {
		env.reportParseError(err)
		env.evalError = true
		return nil
	}
	if !n.isList {
		env.fail("INSMNGR1", "Expected a make-instance form.")
		return nil
	}
	if err := structural["make-instance"](env, n.list, ""); err != nil {
		env.reportParseError(err)
		env.evalError = true
		return nil
	}
	v := env.makeInstanceForm(n.list, newScope(nil))
	name, ok := v.InstanceName()
	if !ok {
		return nil
	}
	return env.findInstance(name)
}

// resolveInstance accepts an instance address, name or symbol.
func (env *environment) resolveInstance(v engine.Value) *instance {
	switch v.Type() {
	case engine.INSTANCE_ADDRESS:
		p, _ := v.Pointer()
		if ins := env.instanceAt(p); ins != nil && !ins.deleted {
			return ins
		}
	case engine.INSTANCE_NAME, engine.SYMBOL:
		name, _ := v.Lexeme()
		return env.findInstance(name)
	}
	return nil
}

// send dispatches a message to an instance. User handlers take
// precedence over the built-in ones.
func (env *environment) send(ins *instance, msg string, args []engine.Value) engine.Value {
	if ins == nil || ins.deleted {
		return env.fail("MSGPASS2", "No such instance in function send.")
	}
	self := engine.InstanceAddress(ins.ptr)
	if h := ins.class.handler(msg); h != nil {
		return env.callDeffunction(h, args, map[string]engine.Value{"self": self})
	}
	switch {
	case msg == "print":
		env.writeString(engine.STDOUT, env.ppInstance(ins)+"\n")
		return engine.Void()
	case msg == "delete":
		return boolValue(env.unmake(ins))
	case msg == "init":
		return self
	case strings.HasPrefix(msg, "get-"):
		slot := strings.TrimPrefix(msg, "get-")
		if v, ok := ins.slots[slot]; ok {
			return v
		}
	case strings.HasPrefix(msg, "put-"):
		slot := strings.TrimPrefix(msg, "put-")
		def := ins.class.slot(slot)
		if def == nil {
			break
		}
		v := engine.Multifield(args...)
		if !def.multi {
			if len(args) != 1 {
				return env.fail("MSGFUN4", "put-%s expects one argument.", slot)
			}
			v = args[0]
		}
		if env.putSlot(ins, slot, v) != engine.PutSlotNoError {
			return env.fail("CSTRNCHK1", "Value does not match the allowed types for slot %s.", slot)
		}
		return v
	}
	return env.fail("MSGFUN1", "No applicable primary message-handlers found for %s.", msg)
}

func (env *environment) ppInstance(ins *instance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] of %s", ins.name, ins.class.name)
	for _, s := range ins.class.allSlots() {
		v := ins.slots[s.name]
		b.WriteString(" (")
		b.WriteString(s.name)
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
	return b.String()
}

// classNames lists the system classes followed by user classes in
// definition order.
func (env *environment) classNames() []string {
	out := []string{"OBJECT", "USER"}
	for _, c := range env.order {
		if c.kind == "defclass" {
			out = append(out, c.name)
		}
	}
	return out
}

// superclasses returns the direct superclass, or the whole chain up to
// OBJECT when inherit is set.
func (c *class) superclasses(inherit bool) []string {
	var out []string
	for k := c.super; k != nil; k = k.super {
		out = append(out, k.name)
		if !inherit {
			break
		}
	}
	return out
}

// slotNames returns the slots c defines itself, or every slot including
// inherited ones when inherit is set.
func (c *class) slotNames(inherit bool) []string {
	if inherit {
		return slotNames(c.allSlots())
	}
	return slotNames(c.slots)
}
