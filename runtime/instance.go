package runtime

import (
	"fmt"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// Instance is a proxy over an engine object instance.
type Instance struct {
	handle
}

func (i *Instance) Release() {
	i.release(releaseInstance)
}

func (i *Instance) Address() engine.Value {
	return engine.InstanceAddress(i.ptr)
}

func (i *Instance) Key() Key {
	return i.key()
}

// Equal reports whether both proxies refer to the same instance.
func (i *Instance) Equal(o *Instance) bool {
	return o != nil && i.key() == o.key()
}

func (i *Instance) check() error {
	if i.env.closed.Load() {
		return errors.Closed(errors.PhaseObject)
	}
	if !i.env.native.ValidInstanceAddress(i.env.env, i.ptr) {
		return errors.StateError(errors.PhaseObject, "instance")
	}
	return nil
}

// Exists reports whether the instance has not been deleted.
func (i *Instance) Exists() bool {
	return i.check() == nil
}

// Name returns the instance name without brackets, or "" once the
// instance is deleted.
func (i *Instance) Name() string {
	if i.check() != nil {
		return ""
	}
	return i.env.native.InstanceName(i.env.env, i.ptr)
}

// Class returns the name of the instance's class, or "" once the
// instance is deleted.
func (i *Instance) Class() string {
	if i.check() != nil {
		return ""
	}
	return i.env.native.InstanceClass(i.env.env, i.ptr)
}

// Slot reads a slot directly, bypassing message handlers.
func (i *Instance) Slot(name string) (any, error) {
	if err := i.env.enter(errors.PhaseObject); err != nil {
		return nil, err
	}
	defer i.env.leave()
	if err := i.check(); err != nil {
		return nil, err
	}
	v, code := i.env.native.DirectGetSlot(i.env.env, i.ptr, name)
	if code != engine.GetSlotNoError {
		return nil, slotError(errors.PhaseObject, name, code)
	}
	return i.env.decoder.Decode(v)
}

// SetSlot writes a slot directly, bypassing message handlers.
func (i *Instance) SetSlot(name string, value any) error {
	if err := i.env.enter(errors.PhaseObject); err != nil {
		return err
	}
	defer i.env.leave()
	if err := i.check(); err != nil {
		return err
	}
	v, err := i.env.encoder.Encode(value)
	if err != nil {
		return err
	}
	if code := i.env.native.DirectPutSlot(i.env.env, i.ptr, name, v); code != engine.PutSlotNoError {
		return putSlotError(errors.PhaseObject, name, code)
	}
	return nil
}

// Send sends a message to the instance. args is rule-language text,
// e.g. `1 "two" three`.
func (i *Instance) Send(message, args string) (any, error) {
	if err := i.env.enter(errors.PhaseObject); err != nil {
		return nil, err
	}
	defer i.env.leave()
	if err := i.check(); err != nil {
		return nil, err
	}
	v := i.env.native.Send(i.env.env, i.ptr, message, args)
	if i.env.native.GetEvaluationError(i.env.env) {
		return nil, i.env.callError(errors.PhaseObject, 0, fmt.Sprintf("message %s failed", message))
	}
	return i.env.decoder.Decode(v)
}

// Unmake deletes the instance, running its delete handler.
func (i *Instance) Unmake() error {
	if err := i.env.enter(errors.PhaseObject); err != nil {
		return err
	}
	defer i.env.leave()
	if err := i.check(); err != nil {
		return err
	}
	if !i.env.native.UnmakeInstance(i.env.env, i.ptr) {
		return i.env.callError(errors.PhaseObject, 0, "unable to delete instance")
	}
	return nil
}

// String returns the engine's printed form of the instance, or its
// address once the instance is deleted.
func (i *Instance) String() string {
	if i.check() != nil {
		return fmt.Sprintf("<Instance-%#x>", uint64(i.ptr))
	}
	return i.env.native.InstancePPForm(i.env.env, i.ptr)
}

// MakeInstance creates an instance from its text form,
// e.g. "([p1] of point (x 1))".
func (e *Environment) MakeInstance(text string) (*Instance, error) {
	if err := e.enter(errors.PhaseObject); err != nil {
		return nil, err
	}
	defer e.leave()

	ptr := e.native.MakeInstance(e.env, text)
	if ptr == 0 {
		return nil, e.callError(errors.PhaseObject, 0, "unable to make instance")
	}
	return e.newInstance(ptr), nil
}

// FindInstance looks an instance up by name, with or without brackets.
func (e *Environment) FindInstance(name string) (*Instance, error) {
	if err := e.enter(errors.PhaseObject); err != nil {
		return nil, err
	}
	defer e.leave()

	name = strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
	ptr := e.native.FindInstance(e.env, name)
	if ptr == 0 {
		return nil, errors.NotFound(errors.PhaseObject, "instance", name)
	}
	return e.newInstance(ptr), nil
}

// Instances returns proxies for every instance in creation order.
func (e *Environment) Instances() []*Instance {
	if e.enter(errors.PhaseObject) != nil {
		return nil
	}
	defer e.leave()

	ptrs := e.native.Instances(e.env)
	out := make([]*Instance, len(ptrs))
	for i, p := range ptrs {
		out[i] = e.newInstance(p)
	}
	return out
}

// Classes lists the defined classes, system classes included.
func (e *Environment) Classes() []string {
	if e.enter(errors.PhaseObject) != nil {
		return nil
	}
	defer e.leave()
	return e.native.Classes(e.env)
}

// ClassAbstract reports whether a class is abstract and so cannot have
// direct instances.
func (e *Environment) ClassAbstract(class string) (bool, error) {
	if err := e.enter(errors.PhaseObject); err != nil {
		return false, err
	}
	defer e.leave()

	abstract, ok := e.native.ClassAbstract(e.env, class)
	if !ok {
		return false, errors.NotFound(errors.PhaseObject, "class", class)
	}
	return abstract, nil
}

// ClassSlots lists the slots a class defines, plus inherited ones when
// inherit is set.
func (e *Environment) ClassSlots(class string, inherit bool) ([]string, error) {
	if err := e.enter(errors.PhaseObject); err != nil {
		return nil, err
	}
	defer e.leave()

	names, ok := e.native.ClassSlots(e.env, class, inherit)
	if !ok {
		return nil, errors.NotFound(errors.PhaseObject, "class", class)
	}
	return names, nil
}

// ClassSuperclasses lists the direct superclasses of a class, or its
// whole precedence list minus itself when inherit is set.
func (e *Environment) ClassSuperclasses(class string, inherit bool) ([]string, error) {
	if err := e.enter(errors.PhaseObject); err != nil {
		return nil, err
	}
	defer e.leave()

	names, ok := e.native.ClassSuperclasses(e.env, class, inherit)
	if !ok {
		return nil, errors.NotFound(errors.PhaseObject, "class", class)
	}
	return names, nil
}
