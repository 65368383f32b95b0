package operators

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

func init() {
	RegisterFunc("cron", opCron)
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// opCron implements @cron(expr): the next activation time of the schedule,
// formatted as an ISO timestamp. Standard five-field expressions and the
// @hourly-style descriptors are accepted.
func opCron(_ context.Context, call Call, env *Env) (any, error) {
	expr := Unquote(strings.TrimSpace(call.RawArgs))
	if expr == "" {
		return nil, fmt.Errorf("expected @cron(expr)")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	next := schedule.Next(env.Now())
	return next.Format("2006-01-02 15:04:05"), nil
}
