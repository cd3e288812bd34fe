// Package runtime is the Go face of one CLIPS environment.
//
// # Quick Start
//
//	env, err := runtime.New(sim.New(), runtime.WithStdout(os.Stdout))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	env.Build(`(deftemplate point (slot x) (slot y))`)
//	env.Build(`(defrule origin (point (x 0) (y 0)) => (printout t "origin" crlf))`)
//	env.AssertFact("point", map[string]any{"x": 0, "y": 0})
//	env.Run(-1)
//
// # Values
//
// Go values cross into the engine through the transcoder package.
// Symbols decode as transcoder.Symbol, strings as string, integers as
// int64 and floats as float64; fact and instance addresses decode as
// *Fact and *Instance proxies.
//
// # Proxies
//
// A proxy holds one engine reference for the object it wraps, so the
// engine keeps the object's memory while Go code can still reach it.
// Release gives the reference back; proxies that are dropped without
// Release are finalized and their references returned on the next call
// into the environment. Operations on a proxy whose fact was retracted
// or whose instance was deleted fail with an errors.KindState error.
//
// # Go Functions
//
// DefineFunction exposes a Go function to the rule language:
//
//	env.DefineFunction(func(a, b int) int { return a + b }, "add")
//	env.Eval("(add 2 3)") // int64(5)
//
// A returned error or a panic fails the engine call that invoked the
// function; the error stays available from ErrorState until
// ClearErrorState.
//
// # Routers
//
// Engine diagnostics written to stderr are captured by an error router
// and become the message of the error an operation returns. Further
// routers can be added with AddRouter; see package router.
//
// # Agenda and Modules
//
// Run fires the agenda of the module on top of the focus stack, ordered
// by salience and then by the conflict resolution strategy:
//
//	env.SetStrategy(engine.BreadthStrategy)
//	env.Focus("WORK")
//	env.Run(-1)
//
// Facts and instances can be saved to and loaded from files with
// SaveFacts, LoadFacts, SaveInstances, LoadInstances and
// RestoreInstances.
//
// # Concurrency
//
// An Environment is not safe for concurrent use. Distinct environments
// share nothing and may run on different goroutines.
package runtime
