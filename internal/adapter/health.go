package adapter

import (
	"context"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// runHealthCheck builds, sends and normalizes a synthetic request and folds
// the outcome into a ConnectionTestResult. Elapsed time is reported on
// every path.
func runHealthCheck(ctx context.Context, a Adapter, ep model.Endpoint, def model.APIDefinition,
	params map[string]any, details func(Result) any) model.ConnectionTestResult {

	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	req, err := a.Build(def, ep, params)
	if err != nil {
		return model.ConnectionTestResult{Message: err.Error(), ElapsedMs: elapsed()}
	}

	raw, err := a.Send(ctx, ep, req)
	if err != nil {
		return model.ConnectionTestResult{
			Message:   errors.Describe(errors.Categorize(err, ep.ID)),
			ElapsedMs: elapsed(),
		}
	}

	res := a.Normalize(raw)
	out := model.ConnectionTestResult{
		Success:    !res.Failed(),
		StatusCode: res.Status,
		ElapsedMs:  elapsed(),
	}
	if res.Failed() {
		out.Message = res.Err
		return out
	}
	out.Message = "Connection successful"
	if details != nil {
		out.Details = details(res)
	}
	return out
}

func missingCredentials(msg string) model.ConnectionTestResult {
	return model.ConnectionTestResult{Message: msg}
}
