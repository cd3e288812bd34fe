// Package sim is an in-process implementation of engine.Native written in
// Go. It covers the subset of the rule language the bindings exercise:
// templates, ordered and template facts, rules with salience and
// not/exists/test conditional elements, deffunctions, defglobals, classes
// with message handlers, routers, and text and binary construct images.
//
// Pattern matching recomputes partial matches on demand rather than
// maintaining a Rete network, so it is suited to tests, tooling and small
// rule bases.
package sim
