package wasmclips

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/transcoder"
)

// Router event names sent by the guest as the first argument.
const (
	routerQuery  = "query"
	routerWrite  = "write"
	routerRead   = "read"
	routerUnread = "unread"
	routerExit   = "exit"
)

func (n *Native) registerHost(ctx context.Context) error {
	params := []api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32}
	results := []api.ValueType{api.ValueTypeI64}
	_, err := n.rt.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(n.hostRouter), params, results).
		WithParameterNames("env", "args", "args_len").
		Export("router").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(n.hostUDF), params, results).
		WithParameterNames("env", "args", "args_len").
		Export("udf").
		Instantiate(ctx)
	return err
}

// hostArgs decodes the argument list of a callback.
func (n *Native) hostArgs(stack []uint64) (engine.Env, []engine.Value, error) {
	env := engine.Env(stack[0])
	vals, err := transcoder.LoadValues(n.mem, uint32(stack[1]), uint32(stack[2]))
	return env, vals, err
}

// hostReturn stores a result list in guest memory. The guest owns it.
func (n *Native) hostReturn(stack []uint64, vals ...engine.Value) {
	out, err := transcoder.StoreValues(n.mem, n.alloc, vals)
	if err != nil {
		n.logger.Error("callback result not stored", zap.Error(err))
		stack[0] = 0
		return
	}
	stack[0] = uint64(out.Ptr)<<32 | uint64(out.Size)
}

// enter marks a callback so nested dispatches use fresh exports.
func (n *Native) enter() func() {
	n.depth++
	return func() { n.depth-- }
}

func (n *Native) hostUDF(_ context.Context, _ api.Module, stack []uint64) {
	defer n.enter()()

	env, vals, err := n.hostArgs(stack)
	if err != nil || len(vals) == 0 {
		n.logger.Error("malformed user function call", zap.Error(err))
		stack[0] = 0
		return
	}
	id, ok := vals[0].Integer()
	if !ok || id < 0 || int(id) >= len(n.udfs) || n.udfs[id] == nil {
		n.logger.Error("unknown user function", zap.Stringer("id", vals[0]))
		stack[0] = 0
		return
	}

	result, err := callUDF(n.udfs[id], env, vals[1:])
	if err != nil {
		n.logger.Error("user function failed", zap.Int64("id", id), zap.Error(err))
		stack[0] = 0
		return
	}
	n.hostReturn(stack, result)
}

func callUDF(fn engine.UDF, env engine.Env, args []engine.Value) (result engine.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(env, args), nil
}

func (n *Native) hostRouter(_ context.Context, _ api.Module, stack []uint64) {
	defer n.enter()()

	env, vals, err := n.hostArgs(stack)
	if err != nil || len(vals) < 3 {
		n.logger.Error("malformed router call", zap.Error(err))
		stack[0] = 0
		return
	}
	event, name, logical := strAt(vals, 0), strAt(vals, 1), strAt(vals, 2)
	h, ok := n.routers[routerKey{env, name}]
	if !ok {
		n.logger.Warn("router event for unknown router", zap.String("router", name), zap.String("event", event))
		stack[0] = 0
		return
	}

	switch event {
	case routerQuery:
		n.hostReturn(stack, flag(h.Query(env, logical)))
	case routerWrite:
		h.Write(env, logical, strAt(vals, 3))
		n.hostReturn(stack, engine.Integer(0))
	case routerRead:
		n.hostReturn(stack, engine.Integer(int64(h.Read(env, logical))))
	case routerUnread:
		n.hostReturn(stack, engine.Integer(int64(h.Unread(env, logical, int(intAt(vals, 3))))))
	case routerExit:
		h.Exit(env, int(intAt(vals, 3)))
		n.hostReturn(stack, engine.Integer(0))
	default:
		n.logger.Warn("unknown router event", zap.String("event", event))
		stack[0] = 0
	}
}
