package sandbox

import (
	"math"
	"strconv"

	"github.com/dop251/goja"
)

// exportValue converts a runtime value into plain Go values. Objects keep
// their key order and functions stay callable.
func exportValue(vm *goja.Runtime, value goja.Value) any {
	return convert(vm, value, make(map[*goja.Object]bool))
}

func convert(vm *goja.Runtime, value goja.Value, seen map[*goja.Object]bool) any {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}

	obj, isObject := value.(*goja.Object)
	if !isObject {
		switch v := value.Export().(type) {
		case int64:
			return float64(v)
		case float64:
			if math.IsNaN(v) {
				return nil
			}
			return v
		default:
			return v
		}
	}

	if fn, ok := goja.AssertFunction(obj); ok {
		return Function(func(args ...any) (any, error) {
			jsArgs := make([]goja.Value, 0, len(args))
			for _, arg := range args {
				jsArgs = append(jsArgs, vm.ToValue(arg))
			}
			result, err := fn(goja.Undefined(), jsArgs...)
			if err != nil {
				return nil, err
			}
			settled, err := settlePromise(result)
			if err != nil {
				return nil, err
			}
			return exportValue(vm, settled), nil
		})
	}

	// cyclic structures are cut at the repeat
	if seen[obj] {
		return nil
	}
	seen[obj] = true
	defer delete(seen, obj)

	switch obj.ClassName() {
	case "Array":
		length := int(obj.Get("length").ToInteger())
		out := make([]any, 0, length)
		for i := 0; i < length; i++ {
			out = append(out, convert(vm, obj.Get(strconv.Itoa(i)), seen))
		}
		return out
	case "Date", "RegExp":
		return obj.String()
	}

	keys := obj.Keys()
	out := &Object{Keys: keys, Fields: make(map[string]any, len(keys))}
	for _, key := range keys {
		out.Fields[key] = convert(vm, obj.Get(key), seen)
	}
	return out
}
