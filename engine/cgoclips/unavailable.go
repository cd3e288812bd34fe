//go:build !clips || !cgo

package cgoclips

import (
	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// New reports that the binary was built without libclips.
func New() (engine.Native, error) {
	return nil, errors.Unsupported(errors.PhaseRuntime, `cgo backend (build with -tags clips and CGO_ENABLED=1)`)
}
