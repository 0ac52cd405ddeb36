// File: internal/browser/cdpdriver/script.go
package cdpdriver

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bindArgs wraps decl so that it is called with args inlined as JSON
// literals. Plain values never travel as protocol call arguments.
func bindArgs(decl string, args ...any) (string, error) {
	if len(args) == 0 {
		return decl, nil
	}
	lits := make([]string, len(args))
	for i, a := range args {
		lit, err := json.MarshalToString(a)
		if err != nil {
			return "", fmt.Errorf("encoding script argument %d: %w", i, err)
		}
		lits[i] = lit
	}
	return fmt.Sprintf("function() { return (%s).call(this, %s); }", decl, strings.Join(lits, ", ")), nil
}

// scriptCall turns a script body into a function declaration plus the call
// arguments that carry element references. Element arguments are passed by
// object id and picked out of `arguments` in their original position.
func scriptCall(script string, args []any) (string, []*runtime.CallArgument, error) {
	var (
		list     = make([]string, len(args))
		callArgs []*runtime.CallArgument
	)
	for i, a := range args {
		if el, ok := a.(driver.ElementRef); ok {
			ref, err := toRef("execute script", el)
			if err != nil {
				return "", nil, err
			}
			list[i] = fmt.Sprintf("__refs[%d]", len(callArgs))
			callArgs = append(callArgs, &runtime.CallArgument{ObjectID: ref.id})
			continue
		}
		lit, err := json.MarshalToString(a)
		if err != nil {
			return "", nil, fmt.Errorf("encoding script argument %d: %w", i, err)
		}
		list[i] = lit
	}

	decl := fmt.Sprintf("function() {\nconst __refs = arguments;\nreturn (function() {\n%s\n}).apply(this, [%s]);\n}",
		script, strings.Join(list, ", "))
	return decl, callArgs, nil
}

// decodeValue unmarshals a by-value result. undefined and null leave out untouched.
func decodeValue(res *runtime.RemoteObject, out any) error {
	if res == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value), out); err != nil {
		return uierr.New(uierr.KindJavaScript, "decode result", err)
	}
	return nil
}
