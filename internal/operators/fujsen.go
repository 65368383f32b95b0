package operators

import (
	"context"
	"encoding/json"
	"fmt"
)

func init() {
	RegisterFunc("fujsen", opFujsen)
}

// opFujsen implements @fujsen(key, argsJSON?): runs a stored function
// bundle through the FUJSEN runtime and returns its result.
func opFujsen(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Functions == nil {
		return nil, NotConfigured("fujsen runtime")
	}
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @fujsen(key, args?)")
	}
	key := Unquote(params[0])

	args := make(map[string]any)
	if len(params) > 1 {
		raw, err := env.EvalParamString(ctx, params[1])
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("args must be a JSON object: %w", err)
		}
	}
	return env.Functions.Run(ctx, key, args)
}
