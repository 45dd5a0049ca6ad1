package descriptor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
)

// Evaluator interpolates expressions in output path templates against the
// descriptor params. Scope is one invocation.
type Evaluator struct {
	vm *goja.Runtime
}

// NewEvaluator creates an evaluator with params bound into the JavaScript
// scope as "params".
func NewEvaluator(params map[string]interface{}) (*Evaluator, error) {
	vm := goja.New()
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := vm.Set("params", params); err != nil {
		return nil, err
	}
	return &Evaluator{vm: vm}, nil
}

var refPattern = regexp.MustCompile(`\$\(([^)]+)\)`)

// Interpolate resolves $(expr) references and ${...} function bodies in a
// template. Templates without either form are returned unchanged.
func (ev *Evaluator) Interpolate(template string) (string, error) {
	if strings.HasPrefix(template, "${") && strings.HasSuffix(template, "}") {
		body := template[2 : len(template)-1]
		v, err := ev.vm.RunString(fmt.Sprintf("(function() {%s})()", body))
		if err != nil {
			return "", fmt.Errorf("descriptor: template %q: %w", template, err)
		}
		return toString(v)
	}

	var evalErr error
	result := refPattern.ReplaceAllStringFunc(template, func(match string) string {
		expr := match[2 : len(match)-1]
		v, err := ev.vm.RunString(expr)
		if err != nil {
			evalErr = fmt.Errorf("descriptor: template %q: %w", template, err)
			return ""
		}
		s, err := toString(v)
		if err != nil {
			evalErr = err
			return ""
		}
		return s
	})
	if evalErr != nil {
		return "", evalErr
	}
	return result, nil
}

func toString(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("descriptor: template expression evaluated to nothing")
	}
	return v.String(), nil
}
