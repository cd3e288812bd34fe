//go:build clips && cgo

package cgoclips

/*
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
)

//export goUDF
func goUDF(h C.uintptr_t, env *C.Environment, udfc *C.UDFContext, out *C.UDFValue) {
	id := goEnv(env)
	fn := cgo.Handle(h).Value().(engine.UDF)

	argc := uint(C.cg_udf_argc(udfc))
	args := make([]engine.Value, 0, argc)
	for i := uint(1); i <= argc; i++ {
		var cv C.CLIPSValue
		var begin, length C.size_t
		if C.cg_udf_arg(udfc, C.uint(i), &cv, &begin, &length) == 0 {
			break
		}
		args = append(args, fromUDFArg(&cv, int(begin), int(length)))
	}

	result := engine.Void()
	func() {
		defer func() {
			if r := recover(); r != nil {
				engine.Logger().Error("user function panicked", zap.Any("panic", r))
				C.SetEvaluationError(env, C.bool(true))
				result = engine.Void()
			}
		}()
		result = fn(id, args)
	}()

	var cv C.CLIPSValue
	toC(id, result, &cv)
	C.cg_udf_return(out, &cv)
}

func router(h C.uintptr_t) engine.RouterHandler {
	return cgo.Handle(h).Value().(engine.RouterHandler)
}

//export goRouterQuery
func goRouterQuery(h C.uintptr_t, env *C.Environment, name *C.char) C.int {
	if router(h).Query(goEnv(env), C.GoString(name)) {
		return 1
	}
	return 0
}

//export goRouterWrite
func goRouterWrite(h C.uintptr_t, env *C.Environment, name, text *C.char) {
	router(h).Write(goEnv(env), C.GoString(name), C.GoString(text))
}

//export goRouterRead
func goRouterRead(h C.uintptr_t, env *C.Environment, name *C.char) C.int {
	return C.int(router(h).Read(goEnv(env), C.GoString(name)))
}

//export goRouterUnread
func goRouterUnread(h C.uintptr_t, env *C.Environment, name *C.char, ch C.int) C.int {
	return C.int(router(h).Unread(goEnv(env), C.GoString(name), int(ch)))
}

//export goRouterExit
func goRouterExit(h C.uintptr_t, env *C.Environment, code C.int) {
	router(h).Exit(goEnv(env), int(code))
}
