package jsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/tilepad/bridge/internal/bridge"
	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/sanitize"
)

type nativeFunc = func(goja.FunctionCall) goja.Value

// install defines console and the tilepad global on vm.
func (r *Runtime) install(vm *goja.Runtime) error {
	gen := r.gen

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		if err := console.Set(level, func(call goja.FunctionCall) goja.Value {
			r.logger.Printf("[%s] %s: %s", r.script.Name, level, sanitize.Preview(formatArgs(call.Arguments)))
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	tile := map[string]nativeFunc{
		"requestTile": func(goja.FunctionCall) goja.Value {
			r.fire(vm, r.display.RequestTile)
			return goja.Undefined()
		},
		"getTile": func(goja.FunctionCall) goja.Value {
			return r.promise(vm, gen, func(ctx context.Context) (any, error) {
				return r.display.GetTile(ctx)
			})
		},
		"onTile": func(call goja.FunctionCall) goja.Value {
			fn := callable(vm, call.Argument(0))
			return r.subscribe(vm, r.display.OnTile(func(t protocol.Tile) {
				r.call(gen, fn, t)
			}))
		},
	}
	plugin := map[string]nativeFunc{
		"send": func(call goja.FunctionCall) goja.Value {
			msg := exportJSON(vm, call.Argument(0))
			r.fire(vm, func(ctx context.Context) error { return r.display.Send(ctx, msg) })
			return goja.Undefined()
		},
		"onMessage": func(call goja.FunctionCall) goja.Value {
			fn := callable(vm, call.Argument(0))
			return r.subscribe(vm, r.display.OnMessage(func(m json.RawMessage) {
				r.call(gen, fn, m)
			}))
		},
	}
	if r.inspector != nil {
		r.installInspector(vm, gen, tile, plugin)
	}

	root := vm.NewObject()
	for name, fns := range map[string]map[string]nativeFunc{"tile": tile, "plugin": plugin} {
		obj := vm.NewObject()
		for fnName, fn := range fns {
			if err := obj.Set(fnName, fn); err != nil {
				return err
			}
		}
		if err := root.Set(name, obj); err != nil {
			return err
		}
	}
	if err := root.Set("role", string(r.role)); err != nil {
		return err
	}
	return vm.Set("tilepad", root)
}

func (r *Runtime) installInspector(vm *goja.Runtime, gen uint64, tile, plugin map[string]nativeFunc) {
	in := r.inspector

	tile["requestProperties"] = func(goja.FunctionCall) goja.Value {
		r.fire(vm, in.RequestProperties)
		return goja.Undefined()
	}
	tile["getProperties"] = func(goja.FunctionCall) goja.Value {
		return r.promise(vm, gen, func(ctx context.Context) (any, error) {
			p, err := in.GetProperties(ctx)
			return p.Data, err
		})
	}
	tile["onProperties"] = func(call goja.FunctionCall) goja.Value {
		fn := callable(vm, call.Argument(0))
		return r.subscribe(vm, in.OnProperties(func(p bridge.Properties) {
			r.call(gen, fn, p.Data, p.Context)
		}))
	}
	tile["setProperty"] = func(call goja.FunctionCall) goja.Value {
		in.SetProperty(call.Argument(0).String(), exportJSON(vm, call.Argument(1)))
		return goja.Undefined()
	}
	tile["setProperties"] = func(call goja.FunctionCall) goja.Value {
		props := exportJSON(vm, call.Argument(0))
		r.fire(vm, func(ctx context.Context) error { return in.SetProperties(ctx, props) })
		return goja.Undefined()
	}
	tile["setLabel"] = func(call goja.FunctionCall) goja.Value {
		var label protocol.Label
		if err := json.Unmarshal(exportJSON(vm, call.Argument(0)), &label); err != nil {
			panic(vm.NewTypeError("setLabel: %v", err))
		}
		r.fire(vm, func(ctx context.Context) error { return in.SetLabel(ctx, label) })
		return goja.Undefined()
	}
	tile["setIcon"] = func(call goja.FunctionCall) goja.Value {
		icon, err := protocol.UnmarshalIcon(exportJSON(vm, call.Argument(0)))
		if err != nil {
			panic(vm.NewTypeError("setIcon: %v", err))
		}
		r.fire(vm, func(ctx context.Context) error { return in.SetIcon(ctx, icon) })
		return goja.Undefined()
	}

	plugin["requestProperties"] = func(goja.FunctionCall) goja.Value {
		r.fire(vm, in.RequestPluginProperties)
		return goja.Undefined()
	}
	plugin["getProperties"] = func(goja.FunctionCall) goja.Value {
		return r.promise(vm, gen, func(ctx context.Context) (any, error) {
			return in.GetPluginProperties(ctx)
		})
	}
	plugin["onProperties"] = func(call goja.FunctionCall) goja.Value {
		fn := callable(vm, call.Argument(0))
		return r.subscribe(vm, in.OnPluginProperties(func(p json.RawMessage) {
			r.call(gen, fn, p)
		}))
	}
	plugin["setProperty"] = func(call goja.FunctionCall) goja.Value {
		in.SetPluginProperty(call.Argument(0).String(), exportJSON(vm, call.Argument(1)))
		return goja.Undefined()
	}
	plugin["setProperties"] = func(call goja.FunctionCall) goja.Value {
		props := exportJSON(vm, call.Argument(0))
		r.fire(vm, func(ctx context.Context) error { return in.SetPluginProperties(ctx, props) })
		return goja.Undefined()
	}
}

// fire runs a fire-and-forget bridge command on the loop. Failures surface
// to the script as exceptions.
func (r *Runtime) fire(vm *goja.Runtime, send func(ctx context.Context) error) {
	if err := send(r.ctx); err != nil {
		panic(vm.NewGoError(err))
	}
}

// promise runs work off the loop and settles the returned promise back on
// it. Settlements for a discarded VM are dropped.
func (r *Runtime) promise(vm *goja.Runtime, gen uint64, work func(ctx context.Context) (any, error)) goja.Value {
	p, resolve, reject := vm.NewPromise()
	ctx := r.ctx
	go func() {
		v, err := work(ctx)
		r.post(job{gen: gen, fn: func(vm *goja.Runtime) {
			if err != nil {
				reject(vm.NewGoError(err))
				return
			}
			resolve(toJS(vm, v))
		}})
	}()
	return vm.ToValue(p)
}

// subscribe ties sub to the current VM generation and returns a JS disposer.
func (r *Runtime) subscribe(vm *goja.Runtime, sub *emitter.Subscription) goja.Value {
	r.subs.Add(sub)
	return vm.ToValue(func(goja.FunctionCall) goja.Value {
		sub.Close()
		return goja.Undefined()
	})
}

// call posts an invocation of fn with Go args converted to JS values.
func (r *Runtime) call(gen uint64, fn goja.Callable, args ...any) {
	r.post(job{gen: gen, fn: func(vm *goja.Runtime) {
		values := make([]goja.Value, len(args))
		for i, a := range args {
			values[i] = toJS(vm, a)
		}
		if _, err := fn(goja.Undefined(), values...); err != nil {
			r.logger.Printf("[jsbridge] %s: callback failed: %v", r.script.Name, err)
		}
	}})
}

func callable(vm *goja.Runtime, v goja.Value) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(vm.NewTypeError("callback must be a function"))
	}
	return fn
}

// toJS converts a Go value to plain JS data through its JSON form.
func toJS(vm *goja.Runtime, v any) goja.Value {
	data, err := json.Marshal(v)
	if err != nil {
		panic(vm.NewGoError(err))
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(vm.NewGoError(err))
	}
	return vm.ToValue(out)
}

// exportJSON converts a JS value to JSON. undefined becomes null.
func exportJSON(vm *goja.Runtime, v goja.Value) json.RawMessage {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return json.RawMessage("null")
	}
	data, err := json.Marshal(v.Export())
	if err != nil {
		panic(vm.NewTypeError("value is not JSON serialisable: %v", err))
	}
	return data
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch {
		case a == nil || goja.IsUndefined(a):
			parts[i] = "undefined"
		case goja.IsNull(a):
			parts[i] = "null"
		default:
			if _, isObj := a.(*goja.Object); isObj {
				if data, err := json.Marshal(a.Export()); err == nil {
					parts[i] = string(data)
					continue
				}
			}
			parts[i] = fmt.Sprint(a.Export())
		}
	}
	return strings.Join(parts, " ")
}
