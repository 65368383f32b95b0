package operators

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterFunc("peanut", opPeanut)
}

// opPeanut implements @peanut(key): a value from the hierarchical peanut
// configuration chain.
func opPeanut(_ context.Context, call Call, env *Env) (any, error) {
	if env.Peanut == nil {
		return nil, NotConfigured("peanut config")
	}
	key := Unquote(strings.TrimSpace(call.RawArgs))
	if key == "" {
		return nil, fmt.Errorf("expected @peanut(key)")
	}
	return env.Peanut.Get(key), nil
}
