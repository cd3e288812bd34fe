package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// LoadFacts asserts the facts in a file written by SaveFacts or by hand.
// Facts asserted before a malformed one stay in working memory.
func (e *Environment) LoadFacts(path string) error {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.LoadFacts(e.env, path) {
		return e.ioError(errors.PhaseLoad, 0, fmt.Sprintf("unable to load facts from %s", path))
	}
	e.logger.Debug("facts loaded", zap.String("path", path))
	return nil
}

// LoadFactsText asserts the fact forms in text, e.g. "(a 1) (b 2)".
func (e *Environment) LoadFactsText(text string) error {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.LoadFactsFromString(e.env, text) {
		return e.ioError(errors.PhaseLoad, 0, "unable to load facts")
	}
	return nil
}

// SaveFacts writes working memory to a file and returns the number of
// facts written.
func (e *Environment) SaveFacts(path string, scope engine.SaveScope) (int64, error) {
	if err := e.enter(errors.PhaseSave); err != nil {
		return 0, err
	}
	defer e.leave()

	n := e.native.SaveFacts(e.env, path, scope)
	if n < 0 {
		return 0, e.ioError(errors.PhaseSave, 0, fmt.Sprintf("unable to save facts to %s", path))
	}
	e.logger.Debug("facts saved", zap.String("path", path), zap.Int64("count", n))
	return n, nil
}

// LoadInstances creates the instances in a file and returns how many
// were made. Text files run each instance's init handlers; binary files
// are restored as saved. A file in the other format is an error.
func (e *Environment) LoadInstances(path string, binary bool) (int64, error) {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return 0, err
	}
	defer e.leave()

	var n int64
	if binary {
		n = e.native.BinaryLoadInstances(e.env, path)
	} else {
		n = e.native.LoadInstances(e.env, path)
	}
	if n < 0 {
		return 0, e.ioError(errors.PhaseLoad, 0, fmt.Sprintf("unable to load instances from %s", path))
	}
	e.logger.Debug("instances loaded", zap.String("path", path), zap.Bool("binary", binary), zap.Int64("count", n))
	return n, nil
}

// LoadInstancesText creates the instances in text, running init
// handlers.
func (e *Environment) LoadInstancesText(text string) (int64, error) {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return 0, err
	}
	defer e.leave()

	n := e.native.LoadInstancesFromString(e.env, text)
	if n < 0 {
		return 0, e.ioError(errors.PhaseLoad, 0, "unable to load instances")
	}
	return n, nil
}

// RestoreInstances creates the instances in a text file with their slot
// values as saved, skipping init handlers.
func (e *Environment) RestoreInstances(path string) (int64, error) {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return 0, err
	}
	defer e.leave()

	n := e.native.RestoreInstances(e.env, path)
	if n < 0 {
		return 0, e.ioError(errors.PhaseLoad, 0, fmt.Sprintf("unable to restore instances from %s", path))
	}
	e.logger.Debug("instances restored", zap.String("path", path), zap.Int64("count", n))
	return n, nil
}

// RestoreInstancesText is RestoreInstances over text.
func (e *Environment) RestoreInstancesText(text string) (int64, error) {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return 0, err
	}
	defer e.leave()

	n := e.native.RestoreInstancesFromString(e.env, text)
	if n < 0 {
		return 0, e.ioError(errors.PhaseLoad, 0, "unable to restore instances")
	}
	return n, nil
}

// SaveInstances writes every instance to a file, as text or as a binary
// image, and returns the number written.
func (e *Environment) SaveInstances(path string, binary bool, scope engine.SaveScope) (int64, error) {
	if err := e.enter(errors.PhaseSave); err != nil {
		return 0, err
	}
	defer e.leave()

	var n int64
	if binary {
		n = e.native.BinarySaveInstances(e.env, path, scope)
	} else {
		n = e.native.SaveInstances(e.env, path, scope)
	}
	if n < 0 {
		return 0, e.ioError(errors.PhaseSave, 0, fmt.Sprintf("unable to save instances to %s", path))
	}
	e.logger.Debug("instances saved", zap.String("path", path), zap.Bool("binary", binary), zap.Int64("count", n))
	return n, nil
}
