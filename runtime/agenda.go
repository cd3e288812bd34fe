package runtime

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// Strategy returns the conflict resolution strategy.
func (e *Environment) Strategy() engine.Strategy {
	if e.enter(errors.PhaseRun) != nil {
		return engine.DepthStrategy
	}
	defer e.leave()
	return e.native.GetStrategy(e.env)
}

// SetStrategy changes the conflict resolution strategy and returns the
// previous one. The agenda is reordered on its next use.
func (e *Environment) SetStrategy(s engine.Strategy) (engine.Strategy, error) {
	if !s.Valid() {
		return 0, errors.InvalidInput(errors.PhaseRun, "invalid strategy "+strconv.Itoa(int(s)))
	}
	if err := e.enter(errors.PhaseRun); err != nil {
		return 0, err
	}
	defer e.leave()

	old := e.native.SetStrategy(e.env, s)
	e.logger.Debug("strategy set", zap.Stringer("strategy", s), zap.Stringer("previous", old))
	return old, nil
}

// SalienceEvaluation returns when rule salience expressions are
// evaluated.
func (e *Environment) SalienceEvaluation() engine.SalienceEvaluation {
	if e.enter(errors.PhaseRun) != nil {
		return engine.WhenDefined
	}
	defer e.leave()
	return e.native.GetSalienceEvaluation(e.env)
}

// SetSalienceEvaluation changes the salience evaluation mode and returns
// the previous one.
func (e *Environment) SetSalienceEvaluation(mode engine.SalienceEvaluation) (engine.SalienceEvaluation, error) {
	if !mode.Valid() {
		return 0, errors.InvalidInput(errors.PhaseRun, "invalid salience evaluation "+strconv.Itoa(int(mode)))
	}
	if err := e.enter(errors.PhaseRun); err != nil {
		return 0, err
	}
	defer e.leave()

	old := e.native.SetSalienceEvaluation(e.env, mode)
	e.logger.Debug("salience evaluation set", zap.Stringer("mode", mode), zap.Stringer("previous", old))
	return old, nil
}

// RefreshAgenda recomputes the salience of activations in the current
// module.
func (e *Environment) RefreshAgenda() error {
	if err := e.enter(errors.PhaseRun); err != nil {
		return err
	}
	defer e.leave()

	e.native.RefreshAgenda(e.env)
	return nil
}

// ClearAgenda removes every activation of the current module. The rules
// stay defined and activate again on new matches.
func (e *Environment) ClearAgenda() error {
	if err := e.enter(errors.PhaseRun); err != nil {
		return err
	}
	defer e.leave()

	e.native.ClearAgenda(e.env)
	return nil
}

// Modules lists the defined modules, MAIN first.
func (e *Environment) Modules() []string {
	if e.enter(errors.PhaseRun) != nil {
		return nil
	}
	defer e.leave()
	return e.native.Modules(e.env)
}

// CurrentModule returns the module new constructs are defined in and
// whose agenda Activations lists.
func (e *Environment) CurrentModule() string {
	if e.enter(errors.PhaseRun) != nil {
		return ""
	}
	defer e.leave()
	return e.native.CurrentModule(e.env)
}

// SetCurrentModule makes module current.
func (e *Environment) SetCurrentModule(module string) error {
	if err := e.enter(errors.PhaseRun); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.SetCurrentModule(e.env, module) {
		return errors.NotFound(errors.PhaseRun, "module", module)
	}
	return nil
}

// Focus pushes module onto the focus stack. Run fires the agenda of the
// module on top and pops it once that agenda is empty.
func (e *Environment) Focus(module string) error {
	if err := e.enter(errors.PhaseRun); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.Focus(e.env, module) {
		return errors.NotFound(errors.PhaseRun, "module", module)
	}
	return nil
}

// FocusModule returns the module on top of the focus stack, or "" when
// the stack is empty.
func (e *Environment) FocusModule() string {
	if e.enter(errors.PhaseRun) != nil {
		return ""
	}
	defer e.leave()
	return e.native.GetFocus(e.env)
}

// ClearFocus empties the focus stack.
func (e *Environment) ClearFocus() error {
	if err := e.enter(errors.PhaseRun); err != nil {
		return err
	}
	defer e.leave()

	e.native.ClearFocusStack(e.env)
	return nil
}

// Undefine removes a single construct. Constructs still in use, such as
// a template with facts, cannot be removed.
func (e *Environment) Undefine(kind engine.ConstructKind, name string) error {
	if err := e.enter(errors.PhaseBuild); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.Undefine(e.env, kind, name) {
		msg, captured := e.diagnostic("")
		if !captured {
			return errors.NotFound(errors.PhaseBuild, kind.String(), name)
		}
		err := errors.New(errors.PhaseBuild, errors.KindState).Detail("%s", msg).Build()
		err.Reported = true
		return err
	}
	e.logger.Debug("construct removed", zap.Stringer("kind", kind), zap.String("name", name))
	return nil
}
