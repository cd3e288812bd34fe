package runtime

import (
	"fmt"
	"sort"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// Fact is a proxy over an engine fact. It holds one engine reference
// until Release or until it is garbage collected.
type Fact struct {
	handle
}

// Release gives the engine reference back.
func (f *Fact) Release() {
	f.release(releaseFact)
}

// Address returns the fact address the proxy stands for.
func (f *Fact) Address() engine.Value {
	return engine.FactAddress(f.ptr)
}

// Key identifies the fact; proxies over the same fact share it.
func (f *Fact) Key() Key {
	return f.key()
}

// Equal reports whether both proxies refer to the same fact.
func (f *Fact) Equal(o *Fact) bool {
	return o != nil && f.key() == o.key()
}

// check fails when the fact was retracted or the environment closed.
func (f *Fact) check() error {
	if f.env.closed.Load() {
		return errors.Closed(errors.PhaseFact)
	}
	if !f.env.native.FactExistp(f.env.env, f.ptr) {
		return errors.StateError(errors.PhaseFact, "fact")
	}
	return nil
}

// Exists reports whether the fact is still asserted.
func (f *Fact) Exists() bool {
	return f.check() == nil
}

// Index returns the fact index, or -1 once the fact is gone.
func (f *Fact) Index() int64 {
	if f.env.closed.Load() {
		return -1
	}
	return f.env.native.FactIndex(f.env.env, f.ptr)
}

// Template returns the name of the fact's deftemplate. Ordered facts
// report their relation name. It is empty once the fact is gone.
func (f *Fact) Template() string {
	if f.check() != nil {
		return ""
	}
	return f.env.native.FactTemplate(f.env.env, f.ptr)
}

// Implied reports whether the fact is ordered. It is false once the
// fact is gone.
func (f *Fact) Implied() bool {
	if f.check() != nil {
		return false
	}
	return f.env.native.FactImplied(f.env.env, f.ptr)
}

// Slot returns a decoded slot value.
func (f *Fact) Slot(name string) (any, error) {
	if err := f.env.enter(errors.PhaseFact); err != nil {
		return nil, err
	}
	defer f.env.leave()
	if err := f.check(); err != nil {
		return nil, err
	}
	v, code := f.env.native.GetFactSlot(f.env.env, f.ptr, name)
	if code != engine.GetSlotNoError {
		return nil, slotError(errors.PhaseFact, name, code)
	}
	return f.env.decoder.Decode(v)
}

// Values returns the fields of an ordered fact.
func (f *Fact) Values() ([]any, error) {
	if !f.Implied() {
		if err := f.check(); err != nil {
			return nil, err
		}
		return nil, errors.InvalidInput(errors.PhaseFact, "template facts have named slots")
	}
	x, err := f.Slot("")
	if err != nil {
		return nil, err
	}
	vals, _ := x.([]any)
	return vals, nil
}

// Slots returns every slot of a template fact, decoded.
func (f *Fact) Slots() (map[string]any, error) {
	if err := f.env.enter(errors.PhaseFact); err != nil {
		return nil, err
	}
	defer f.env.leave()
	if err := f.check(); err != nil {
		return nil, err
	}
	names := f.env.native.FactSlotNames(f.env.env, f.ptr)
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, code := f.env.native.GetFactSlot(f.env.env, f.ptr, name)
		if code != engine.GetSlotNoError {
			return nil, slotError(errors.PhaseFact, name, code)
		}
		x, err := f.env.decoder.Decode(v)
		if err != nil {
			return nil, err
		}
		out[name] = x
	}
	return out, nil
}

// Retract removes the fact. The proxy stays valid to release.
func (f *Fact) Retract() error {
	if err := f.env.enter(errors.PhaseFact); err != nil {
		return err
	}
	defer f.env.leave()
	if err := f.check(); err != nil {
		return err
	}
	if code := f.env.native.Retract(f.env.env, f.ptr); code != engine.RetractNoError {
		return f.env.callError(errors.PhaseFact, int(code), "unable to retract fact")
	}
	return nil
}

// String returns the engine's printed form of the fact, or its address
// once the fact is gone.
func (f *Fact) String() string {
	if f.check() != nil {
		return fmt.Sprintf("<Fact-%#x>", uint64(f.ptr))
	}
	return f.env.native.FactPPForm(f.env.env, f.ptr)
}

func slotError(phase errors.Phase, slot string, code engine.GetSlotError) error {
	kind := errors.KindValue
	detail := fmt.Sprintf("unable to read slot %s", slot)
	switch code {
	case engine.GetSlotNotFoundError:
		kind = errors.KindNotFound
		detail = fmt.Sprintf("slot %s not found", slot)
	case engine.GetSlotInvalidTargetError, engine.GetSlotNullPointerError:
		kind = errors.KindState
	}
	return errors.New(phase, kind).Path(slot).Code(int(code)).Detail("%s", detail).Build()
}

var putSlotReasons = map[engine.PutSlotError]string{
	engine.PutSlotNullPointerError:    "no target",
	engine.PutSlotInvalidTargetError:  "target no longer exists",
	engine.PutSlotNotFoundError:       "slot not found",
	engine.PutSlotTypeError:           "type violation",
	engine.PutSlotRangeError:          "range violation",
	engine.PutSlotAllowedValuesError:  "value not allowed",
	engine.PutSlotCardinalityError:    "cardinality violation",
	engine.PutSlotAllowedClassesError: "class not allowed",
	engine.PutSlotEvaluationError:     "evaluation error",
	engine.PutSlotRuleNetworkError:    "rule network error",
}

func putSlotError(phase errors.Phase, slot string, code engine.PutSlotError) error {
	kind := errors.KindValue
	switch code {
	case engine.PutSlotNotFoundError:
		kind = errors.KindNotFound
	case engine.PutSlotInvalidTargetError, engine.PutSlotNullPointerError:
		kind = errors.KindState
	}
	return errors.New(phase, kind).
		Path(slot).
		Code(int(code)).
		Detail("cannot put slot %s: %s", slot, putSlotReasons[code]).
		Build()
}

// AssertString asserts a fact from its text form, e.g. "(point (x 1))".
// Asserting a duplicate returns the existing fact.
func (e *Environment) AssertString(text string) (*Fact, error) {
	if err := e.enter(errors.PhaseFact); err != nil {
		return nil, err
	}
	defer e.leave()

	ptr := e.native.AssertString(e.env, text)
	if ptr == 0 {
		return nil, e.callError(errors.PhaseFact, 0, "unable to assert fact")
	}
	return e.newFact(ptr), nil
}

// AssertFact asserts a template fact from Go values. Slots left out take
// their defaults.
func (e *Environment) AssertFact(template string, slots map[string]any) (*Fact, error) {
	if err := e.enter(errors.PhaseFact); err != nil {
		return nil, err
	}
	defer e.leave()

	fb := e.native.CreateFactBuilder(e.env, template)
	if fb == 0 {
		switch code := e.native.FBError(e.env); code {
		case engine.FBDeftemplateNotFoundError:
			return nil, errors.NotFound(errors.PhaseFact, "template", template)
		case engine.FBImpliedDeftemplateError:
			return nil, errors.InvalidInput(errors.PhaseFact, fmt.Sprintf("template %s is implied; use AssertString", template))
		default:
			return nil, e.callError(errors.PhaseFact, int(code), "unable to create fact builder")
		}
	}
	defer e.native.FBDispose(e.env, fb)

	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := e.encoder.Encode(slots[name])
		if err != nil {
			return nil, err
		}
		if code := e.native.FBPutSlot(e.env, fb, name, v); code != engine.PutSlotNoError {
			return nil, putSlotError(errors.PhaseFact, name, code)
		}
	}

	ptr := e.native.FBAssert(e.env, fb)
	if ptr == 0 {
		return nil, e.callError(errors.PhaseFact, int(e.native.FBError(e.env)), "unable to assert fact")
	}
	return e.newFact(ptr), nil
}

// Facts returns proxies for every asserted fact in index order.
func (e *Environment) Facts() []*Fact {
	if e.enter(errors.PhaseFact) != nil {
		return nil
	}
	defer e.leave()

	ptrs := e.native.Facts(e.env)
	out := make([]*Fact, len(ptrs))
	for i, p := range ptrs {
		out[i] = e.newFact(p)
	}
	return out
}

// FindFact returns the fact with the given index.
func (e *Environment) FindFact(index int64) (*Fact, error) {
	if err := e.enter(errors.PhaseFact); err != nil {
		return nil, err
	}
	defer e.leave()

	for _, p := range e.native.Facts(e.env) {
		if e.native.FactIndex(e.env, p) == index {
			return e.newFact(p), nil
		}
	}
	return nil, errors.NotFound(errors.PhaseFact, "fact", fmt.Sprintf("f-%d", index))
}

// Templates lists the defined deftemplates in definition order.
func (e *Environment) Templates() []string {
	if e.enter(errors.PhaseFact) != nil {
		return nil
	}
	defer e.leave()
	return e.native.Templates(e.env)
}

// TemplateSlots lists the slot names of a deftemplate.
func (e *Environment) TemplateSlots(template string) ([]string, error) {
	if err := e.enter(errors.PhaseFact); err != nil {
		return nil, err
	}
	defer e.leave()

	names, ok := e.native.TemplateSlotNames(e.env, template)
	if !ok {
		return nil, errors.NotFound(errors.PhaseFact, "template", template)
	}
	return names, nil
}
