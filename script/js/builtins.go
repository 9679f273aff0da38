package js

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"strings"
	"unicode/utf8"
)

func hostFn(f HostFunc) *Function { return &Function{Host: f} }

// getMember resolves a property read against any runtime value,
// including the synthetic built-in methods strings and arrays expose.
func (it *Interpreter) getMember(objVal Value, key string) (Value, error) {
	switch obj := objVal.(type) {
	case nil:
		return nil, throwString("Cannot read properties of undefined (reading '%s')", key)
	case jsNull:
		return nil, throwString("Cannot read properties of null (reading '%s')", key)
	case string:
		return stringMember(obj, key), nil
	case *Array:
		return arrayMember(obj, key), nil
	case *Object:
		return obj.Get(key), nil
	case *Function:
		switch key {
		case "name":
			return obj.Name, nil
		case "length":
			return float64(len(obj.Params)), nil
		case "call":
			return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
				var this Value
				var rest []Value
				if len(args) > 0 {
					this, rest = args[0], args[1:]
				}
				return it.Call(obj, this, rest)
			}), nil
		case "apply":
			return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
				var this Value
				var rest []Value
				if len(args) > 0 {
					this = args[0]
				}
				if len(args) > 1 {
					if arr, ok := args[1].(*Array); ok {
						rest = arr.Elements
					}
				}
				return it.Call(obj, this, rest)
			}), nil
		case "bind":
			return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
				var this Value
				var bound []Value
				if len(args) > 0 {
					this, bound = args[0], args[1:]
				}
				return hostFn(func(it *Interpreter, _ Value, callArgs []Value) (Value, error) {
					return it.Call(obj, this, append(append([]Value{}, bound...), callArgs...))
				}), nil
			}), nil
		default:
			return nil, nil
		}
	default:
		return nil, nil
	}
}

func stringMember(s, key string) Value {
	if key == "length" {
		return float64(utf8.RuneCountInString(s))
	}
	if idx, ok := arrayIndex(key); ok {
		runes := []rune(s)
		if idx < len(runes) {
			return string(runes[idx])
		}
		return nil
	}
	switch key {
	case "charAt":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			runes := []rune(s)
			i := int(argNumber(args, 0))
			if i < 0 || i >= len(runes) {
				return "", nil
			}
			return string(runes[i]), nil
		})
	case "at":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			runes := []rune(s)
			i := int(argNumber(args, 0))
			if i < 0 {
				i += len(runes)
			}
			if i < 0 || i >= len(runes) {
				return nil, nil
			}
			return string(runes[i]), nil
		})
	case "slice", "substring":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			runes := []rune(s)
			start, end := sliceBounds(len(runes), args)
			if start > end {
				start, end = end, start
			}
			return string(runes[start:end]), nil
		})
	case "split":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			if len(args) == 0 {
				return NewArray(s), nil
			}
			sep := ToString(args[0])
			var parts []string
			if sep == "" {
				for _, r := range s {
					parts = append(parts, string(r))
				}
			} else {
				parts = strings.Split(s, sep)
			}
			vals := make([]Value, len(parts))
			for i, p := range parts {
				vals[i] = p
			}
			return NewArray(vals...), nil
		})
	case "trim":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return strings.TrimSpace(s), nil })
	case "trimStart":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return strings.TrimLeft(s, " \t\n\r"), nil })
	case "trimEnd":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return strings.TrimRight(s, " \t\n\r"), nil })
	case "toUpperCase":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return strings.ToUpper(s), nil })
	case "toLowerCase":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return strings.ToLower(s), nil })
	case "includes":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return strings.Contains(s, ToString(argAt(args, 0))), nil
		})
	case "indexOf":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return float64(runeIndex(s, strings.Index(s, ToString(argAt(args, 0))))), nil
		})
	case "lastIndexOf":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return float64(runeIndex(s, strings.LastIndex(s, ToString(argAt(args, 0))))), nil
		})
	case "startsWith":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return strings.HasPrefix(s, ToString(argAt(args, 0))), nil
		})
	case "endsWith":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return strings.HasSuffix(s, ToString(argAt(args, 0))), nil
		})
	case "replace":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return strings.Replace(s, ToString(argAt(args, 0)), ToString(argAt(args, 1)), 1), nil
		})
	case "replaceAll":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			return strings.ReplaceAll(s, ToString(argAt(args, 0)), ToString(argAt(args, 1))), nil
		})
	case "repeat":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			n := int(argNumber(args, 0))
			if n < 0 {
				return nil, throwString("Invalid count value")
			}
			return strings.Repeat(s, n), nil
		})
	case "padStart":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return padString(s, args, true), nil })
	case "padEnd":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return padString(s, args, false), nil })
	case "concat":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			out := s
			for _, a := range args {
				out += ToString(a)
			}
			return out, nil
		})
	case "toString":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return s, nil })
	default:
		return nil
	}
}

func padString(s string, args []Value, start bool) string {
	target := int(argNumber(args, 0))
	pad := " "
	if len(args) > 1 {
		pad = ToString(args[1])
	}
	if pad == "" || utf8.RuneCountInString(s) >= target {
		return s
	}
	need := target - utf8.RuneCountInString(s)
	var b strings.Builder
	for b.Len() < need {
		b.WriteString(pad)
	}
	padding := string([]rune(b.String())[:need])
	if start {
		return padding + s
	}
	return s + padding
}

func runeIndex(s string, byteIdx int) int {
	if byteIdx < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:byteIdx])
}

func sliceBounds(length int, args []Value) (int, int) {
	start := 0
	end := length
	if len(args) > 0 {
		start = normalizeIndex(int(ToNumber(args[0])), length)
	}
	if len(args) > 1 && args[1] != nil {
		end = normalizeIndex(int(ToNumber(args[1])), length)
	}
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > length {
		start = length
	}
	if end < 0 {
		end = 0
	}
	return start, end
}

func normalizeIndex(i, length int) int {
	if i < 0 {
		return length + i
	}
	return i
}

func argAt(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argNumber(args []Value, i int) float64 { return ToNumber(argAt(args, i)) }

func arrayMember(arr *Array, key string) Value {
	if key == "length" {
		return float64(len(arr.Elements))
	}
	if idx, ok := arrayIndex(key); ok {
		if idx < len(arr.Elements) {
			return arr.Elements[idx]
		}
		return nil
	}
	switch key {
	case "push":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			arr.Elements = append(arr.Elements, args...)
			return float64(len(arr.Elements)), nil
		})
	case "pop":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) {
			if len(arr.Elements) == 0 {
				return nil, nil
			}
			last := arr.Elements[len(arr.Elements)-1]
			arr.Elements = arr.Elements[:len(arr.Elements)-1]
			return last, nil
		})
	case "shift":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) {
			if len(arr.Elements) == 0 {
				return nil, nil
			}
			first := arr.Elements[0]
			arr.Elements = arr.Elements[1:]
			return first, nil
		})
	case "unshift":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			arr.Elements = append(append([]Value{}, args...), arr.Elements...)
			return float64(len(arr.Elements)), nil
		})
	case "slice":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			start, end := sliceBounds(len(arr.Elements), args)
			if start > end {
				return NewArray(), nil
			}
			out := make([]Value, end-start)
			copy(out, arr.Elements[start:end])
			return NewArray(out...), nil
		})
	case "splice":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			start := normalizeIndex(int(argNumber(args, 0)), len(arr.Elements))
			if start < 0 {
				start = 0
			}
			if start > len(arr.Elements) {
				start = len(arr.Elements)
			}
			deleteCount := len(arr.Elements) - start
			if len(args) > 1 {
				deleteCount = int(argNumber(args, 1))
			}
			if deleteCount < 0 {
				deleteCount = 0
			}
			if start+deleteCount > len(arr.Elements) {
				deleteCount = len(arr.Elements) - start
			}
			removed := append([]Value{}, arr.Elements[start:start+deleteCount]...)
			insert := args[min(2, len(args)):]
			tail := append([]Value{}, arr.Elements[start+deleteCount:]...)
			arr.Elements = append(append(arr.Elements[:start:start], insert...), tail...)
			return NewArray(removed...), nil
		})
	case "join":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			sep := ","
			if len(args) > 0 {
				sep = ToString(args[0])
			}
			parts := make([]string, len(arr.Elements))
			for i, e := range arr.Elements {
				if e == nil {
					continue
				}
				parts[i] = ToString(e)
			}
			return strings.Join(parts, sep), nil
		})
	case "concat":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			out := append([]Value{}, arr.Elements...)
			for _, a := range args {
				if other, ok := a.(*Array); ok {
					out = append(out, other.Elements...)
				} else {
					out = append(out, a)
				}
			}
			return NewArray(out...), nil
		})
	case "reverse":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) {
			for i, j := 0, len(arr.Elements)-1; i < j; i, j = i+1, j-1 {
				arr.Elements[i], arr.Elements[j] = arr.Elements[j], arr.Elements[i]
			}
			return arr, nil
		})
	case "sort":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			var cmp *Function
			if len(args) > 0 {
				cmp, _ = args[0].(*Function)
			}
			var sortErr error
			sort.SliceStable(arr.Elements, func(i, j int) bool {
				if sortErr != nil {
					return false
				}
				if cmp != nil {
					res, err := it.Call(cmp, nil, []Value{arr.Elements[i], arr.Elements[j]})
					if err != nil {
						sortErr = err
						return false
					}
					return ToNumber(res) < 0
				}
				return ToString(arr.Elements[i]) < ToString(arr.Elements[j])
			})
			return arr, sortErr
		})
	case "includes":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			target := argAt(args, 0)
			for _, e := range arr.Elements {
				if StrictEquals(e, target) {
					return true, nil
				}
			}
			return false, nil
		})
	case "indexOf":
		return hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			target := argAt(args, 0)
			for i, e := range arr.Elements {
				if StrictEquals(e, target) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		})
	case "flat":
		return hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) {
			var out []Value
			for _, e := range arr.Elements {
				if sub, ok := e.(*Array); ok {
					out = append(out, sub.Elements...)
				} else {
					out = append(out, e)
				}
			}
			return NewArray(out...), nil
		})
	case "map":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.map callback is not a function")
			}
			out := make([]Value, len(arr.Elements))
			for i, e := range arr.Elements {
				v, err := it.Call(fn, nil, []Value{e, float64(i), arr})
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return NewArray(out...), nil
		})
	case "filter":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.filter callback is not a function")
			}
			var out []Value
			for i, e := range arr.Elements {
				v, err := it.Call(fn, nil, []Value{e, float64(i), arr})
				if err != nil {
					return nil, err
				}
				if Truthy(v) {
					out = append(out, e)
				}
			}
			return NewArray(out...), nil
		})
	case "forEach":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.forEach callback is not a function")
			}
			for i, e := range arr.Elements {
				if _, err := it.Call(fn, nil, []Value{e, float64(i), arr}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	case "reduce":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.reduce callback is not a function")
			}
			elems := arr.Elements
			var acc Value
			start := 0
			if len(args) > 1 {
				acc = args[1]
			} else {
				if len(elems) == 0 {
					return nil, throwString("Reduce of empty array with no initial value")
				}
				acc = elems[0]
				start = 1
			}
			for i := start; i < len(elems); i++ {
				v, err := it.Call(fn, nil, []Value{acc, elems[i], float64(i), arr})
				if err != nil {
					return nil, err
				}
				acc = v
			}
			return acc, nil
		})
	case "find":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.find callback is not a function")
			}
			for i, e := range arr.Elements {
				v, err := it.Call(fn, nil, []Value{e, float64(i), arr})
				if err != nil {
					return nil, err
				}
				if Truthy(v) {
					return e, nil
				}
			}
			return nil, nil
		})
	case "findIndex":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.findIndex callback is not a function")
			}
			for i, e := range arr.Elements {
				v, err := it.Call(fn, nil, []Value{e, float64(i), arr})
				if err != nil {
					return nil, err
				}
				if Truthy(v) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		})
	case "some":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.some callback is not a function")
			}
			for i, e := range arr.Elements {
				v, err := it.Call(fn, nil, []Value{e, float64(i), arr})
				if err != nil {
					return nil, err
				}
				if Truthy(v) {
					return true, nil
				}
			}
			return false, nil
		})
	case "every":
		return hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
			fn, ok := argAt(args, 0).(*Function)
			if !ok {
				return nil, throwString("Array.prototype.every callback is not a function")
			}
			for i, e := range arr.Elements {
				v, err := it.Call(fn, nil, []Value{e, float64(i), arr})
				if err != nil {
					return nil, err
				}
				if !Truthy(v) {
					return false, nil
				}
			}
			return true, nil
		})
	default:
		return nil
	}
}

// registerGlobals wires up console, Math, JSON, Object, Array, Number,
// and the top-level coercion functions (String/Number/Boolean/parseInt/
// parseFloat/isNaN) onto a fresh global scope.
func registerGlobals(it *Interpreter) {
	g := it.Global

	console := NewObject()
	logFn := func(stream string) HostFunc {
		return func(_ *Interpreter, _ Value, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				if s, ok := a.(string); ok {
					parts[i] = s
				} else {
					parts[i] = Inspect(a)
				}
			}
			if it.Print != nil {
				it.Print(stream, strings.Join(parts, " ")+"\n")
			}
			return nil, nil
		}
	}
	console.Set("log", hostFn(logFn("stdout")))
	console.Set("info", hostFn(logFn("stdout")))
	console.Set("debug", hostFn(logFn("stdout")))
	console.Set("warn", hostFn(logFn("stderr")))
	console.Set("error", hostFn(logFn("stderr")))
	g.Declare("var", "console", console)

	mathObj := NewObject()
	registerMath(mathObj)
	g.Declare("var", "Math", mathObj)

	jsonObj := NewObject()
	jsonObj.Set("stringify", hostFn(jsonStringify))
	jsonObj.Set("parse", hostFn(jsonParse))
	g.Declare("var", "JSON", jsonObj)

	objectCtorObj := NewObject()
	objectCtorObj.Set("keys", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		obj, _ := argAt(args, 0).(*Object)
		if obj == nil {
			return NewArray(), nil
		}
		keys := make([]Value, len(obj.keys))
		for i, k := range obj.keys {
			keys[i] = k
		}
		return NewArray(keys...), nil
	}))
	objectCtorObj.Set("values", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		obj, _ := argAt(args, 0).(*Object)
		if obj == nil {
			return NewArray(), nil
		}
		vals := make([]Value, len(obj.keys))
		for i, k := range obj.keys {
			vals[i] = obj.values[k]
		}
		return NewArray(vals...), nil
	}))
	objectCtorObj.Set("entries", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		obj, _ := argAt(args, 0).(*Object)
		if obj == nil {
			return NewArray(), nil
		}
		out := make([]Value, len(obj.keys))
		for i, k := range obj.keys {
			out[i] = NewArray(k, obj.values[k])
		}
		return NewArray(out...), nil
	}))
	objectCtorObj.Set("assign", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		target, _ := argAt(args, 0).(*Object)
		if target == nil {
			target = NewObject()
		}
		for _, src := range args[min(1, len(args)):] {
			if o, ok := src.(*Object); ok {
				for _, k := range o.keys {
					target.Set(k, o.values[k])
				}
			}
		}
		return target, nil
	}))
	objectCtorObj.Set("freeze", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return argAt(args, 0), nil
	}))
	g.Declare("var", "Object", objectCtorObj)

	arrayCtorObj := NewObject()
	arrayCtorObj.Set("isArray", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		_, ok := argAt(args, 0).(*Array)
		return ok, nil
	}))
	arrayCtorObj.Set("from", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		items, err := toIterable(argAt(args, 0))
		if err != nil {
			return NewArray(), nil
		}
		return NewArray(items...), nil
	}))
	arrayCtorObj.Set("of", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return NewArray(args...), nil
	}))
	g.Declare("var", "Array", arrayCtorObj)

	numberCtorObj := NewObject()
	numberCtorObj.Set("isInteger", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		f, ok := argAt(args, 0).(float64)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0), nil
	}))
	numberCtorObj.Set("isFinite", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		f, ok := argAt(args, 0).(float64)
		return ok && !math.IsInf(f, 0) && !math.IsNaN(f), nil
	}))
	numberCtorObj.Set("isNaN", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		f, ok := argAt(args, 0).(float64)
		return ok && math.IsNaN(f), nil
	}))
	numberCtorObj.Set("parseFloat", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return ToNumber(argAt(args, 0)), nil
	}))
	numberCtorObj.Set("MAX_SAFE_INTEGER", float64(1<<53-1))
	g.Declare("var", "Number", numberCtorObj)

	g.Declare("var", "String", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return "", nil
		}
		return ToString(args[0]), nil
	}))
	g.Declare("var", "Boolean", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return Truthy(argAt(args, 0)), nil
	}))
	g.Declare("var", "parseInt", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return math.Trunc(ToNumber(argAt(args, 0))), nil
	}))
	g.Declare("var", "parseFloat", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return ToNumber(argAt(args, 0)), nil
	}))
	g.Declare("var", "isNaN", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		return math.IsNaN(ToNumber(argAt(args, 0))), nil
	}))
	g.Declare("var", "NaN", math.NaN())
	g.Declare("var", "Infinity", math.Inf(1))
	g.Declare("var", "undefined", nil)
}

func registerMath(m *Object) {
	m.Set("PI", math.Pi)
	m.Set("E", math.E)
	m.Set("abs", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Abs(argNumber(args, 0)), nil }))
	m.Set("floor", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Floor(argNumber(args, 0)), nil }))
	m.Set("ceil", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Ceil(argNumber(args, 0)), nil }))
	m.Set("round", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Round(argNumber(args, 0)), nil }))
	m.Set("trunc", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Trunc(argNumber(args, 0)), nil }))
	m.Set("sqrt", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Sqrt(argNumber(args, 0)), nil }))
	m.Set("pow", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) { return math.Pow(argNumber(args, 0), argNumber(args, 1)), nil }))
	m.Set("random", hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return rand.Float64(), nil }))
	m.Set("max", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return math.Inf(-1), nil
		}
		best := argNumber(args, 0)
		for i := 1; i < len(args); i++ {
			best = math.Max(best, argNumber(args, i))
		}
		return best, nil
	}))
	m.Set("min", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return math.Inf(1), nil
		}
		best := argNumber(args, 0)
		for i := 1; i < len(args); i++ {
			best = math.Min(best, argNumber(args, i))
		}
		return best, nil
	}))
}

func jsonStringify(_ *Interpreter, _ Value, args []Value) (Value, error) {
	v := argAt(args, 0)
	goVal := toGoValue(v)
	indent := ""
	if len(args) > 2 {
		if n, ok := args[2].(float64); ok {
			indent = strings.Repeat(" ", int(n))
		} else if s, ok := args[2].(string); ok {
			indent = s
		}
	}
	var data []byte
	var err error
	if indent != "" {
		data, err = json.MarshalIndent(goVal, "", indent)
	} else {
		data, err = json.Marshal(goVal)
	}
	if err != nil {
		return nil, throwString("JSON.stringify: %v", err)
	}
	return string(data), nil
}

func jsonParse(_ *Interpreter, _ Value, args []Value) (Value, error) {
	s := ToString(argAt(args, 0))
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, throwString("Unexpected token in JSON: %v", err)
	}
	return fromGoValue(raw), nil
}

func toGoValue(v Value) any {
	switch x := v.(type) {
	case nil, jsNull:
		return nil
	case bool, float64, string:
		return x
	case *Array:
		out := make([]any, len(x.Elements))
		for i, e := range x.Elements {
			out[i] = toGoValue(e)
		}
		return out
	case *Object:
		out := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			out[k] = toGoValue(x.values[k])
		}
		return out
	default:
		return nil
	}
}

// JSONValue converts a decoded encoding/json value (as produced by
// json.Unmarshal into an `any`) into the runtime Value shape, used by
// require() when loading a ".json" module.
func JSONValue(v any) Value { return fromGoValue(v) }

func fromGoValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case bool, string:
		return x
	case float64:
		return x
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = fromGoValue(e)
		}
		return NewArray(out...)
	case map[string]any:
		obj := NewObject()
		for k, e := range x {
			obj.Set(k, fromGoValue(e))
		}
		return obj
	default:
		return nil
	}
}

// NewProcessObject builds the host "process" global the script package
// wires in per run, with argv/cwd/env fixed at construction and exit
// unwinding through ExitSignal.
func NewProcessObject(argv []string, cwd string, env map[string]string) *Object {
	p := NewObject()
	argvVals := make([]Value, len(argv))
	for i, a := range argv {
		argvVals[i] = a
	}
	p.Set("argv", NewArray(argvVals...))
	p.Set("cwd", hostFn(func(_ *Interpreter, _ Value, _ []Value) (Value, error) { return cwd, nil }))
	p.Set("exit", hostFn(func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		code := 0
		if len(args) > 0 {
			code = int(ToNumber(args[0]))
		}
		return nil, &ExitSignal{Code: code}
	}))
	envObj := NewObject()
	for k, v := range env {
		envObj.Set(k, v)
	}
	p.Set("env", envObj)
	return p
}

// SetupModule declares module/exports/require/__filename/__dirname in
// the interpreter's global scope for one file's evaluation, returning
// the exports object so the caller can read back whatever the script
// assigned to module.exports.
func (it *Interpreter) SetupModule(filename, dirname string) *Object {
	exportsObj := NewObject()
	moduleObj := NewObject()
	moduleObj.Set("exports", exportsObj)
	it.Global.Declare("var", "module", moduleObj)
	it.Global.Declare("var", "exports", exportsObj)
	it.Global.Declare("var", "__filename", filename)
	it.Global.Declare("var", "__dirname", dirname)
	it.Global.Declare("var", "require", hostFn(func(it *Interpreter, _ Value, args []Value) (Value, error) {
		spec := ToString(argAt(args, 0))
		if it.Require == nil {
			return nil, throwString("Cannot find module '%s'", spec)
		}
		return it.Require(spec)
	}))
	return exportsObj
}

// ModuleExports reads back whatever module.exports currently points to,
// after SetupModule + Run have executed a file's top-level code.
func (it *Interpreter) ModuleExports() Value {
	moduleVal, ok := it.Global.Get("module")
	if !ok {
		return nil
	}
	mod, ok := moduleVal.(*Object)
	if !ok {
		return nil
	}
	return mod.Get("exports")
}
