package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/terrace-buddy/types"
)

// NotificationFilter is a compiled live-delivery rule. The nil filter accepts everything.
type NotificationFilter struct {
	source string
	prog   *vm.Program
}

// Compile compiles expression against Env. An empty expression yields the nil filter.
func Compile(expression string) (*NotificationFilter, error) {
	if expression == "" {
		return nil, nil
	}
	prog, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("could not compile filter %q: %w", expression, err)
	}
	return &NotificationFilter{source: expression, prog: prog}, nil
}

func (f *NotificationFilter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match evaluates the filter for n.
func (f *NotificationFilter) Match(n *types.Notification) (bool, error) {
	if f == nil {
		return true, nil
	}
	res, err := expr.Run(f.prog, NewEnv(n))
	if err != nil {
		return false, err
	}
	bRes, ok := res.(bool)
	return ok && bRes, nil
}
