// Package cgoclips implements engine.Native on libclips 6.4 through cgo.
//
// The backend is compiled only with the "clips" build tag and cgo
// enabled; the library and its headers must be installed where the C
// toolchain finds them (or be pointed to with CGO_CFLAGS/CGO_LDFLAGS):
//
//	go build -tags clips ./...
//
// Without the tag New reports the backend as unsupported.
//
// Environments, facts and instances are the C pointers themselves,
// carried as engine.Env and engine.Ptr. Router handlers and user
// functions are passed to C as runtime/cgo handles and released when
// their router is deleted or their environment destroyed. External
// addresses carry the Go-side capsule handle as their C pointer value.
package cgoclips
