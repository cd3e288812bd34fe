// Package router connects engine I/O to Go values.
//
// The engine dispatches every write, read and unread on a logical name
// (stdout, stderr, stdwrn, stdin or any user name) to the highest
// priority active router whose Query accepts the name. A Router is any
// type embedding *Base; the Registry registers it with one environment
// and adapts its callbacks to the engine ABI, turning panics into
// [ROUTER2] diagnostics.
//
// Base tracks the registration state:
//
//	unregistered -> active <-> inactive -> deleted
//
// ErrorRouter and LoggingRouter are the two routers an environment
// installs itself; WriterRouter and ReaderRouter cover the common
// io.Writer / io.Reader cases.
package router
