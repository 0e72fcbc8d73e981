// Lambda entrypoint for scheduled (EventBridge) runs. Configuration comes
// from the function's environment, the same variables as the CLI.
package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/deusflow/impactdigest/internal/app"
	"github.com/deusflow/impactdigest/internal/config"
	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/metrics"
)

// Response is the Lambda response
type Response struct {
	StatusCode int                    `json:"statusCode"`
	Outcome    string                 `json:"outcome"`
	Message    string                 `json:"message"`
	PostURL    string                 `json:"postUrl,omitempty"`
	ChatError  string                 `json:"chatError,omitempty"`
	Metrics    map[string]interface{} `json:"metrics"`
}

// Handler never returns an invocation error: asynchronous (scheduled)
// invocations that fail are retried by Lambda, and a retry after a
// published post would publish it again. Failures are reported in the
// response status and the logs.
func Handler(ctx context.Context, event json.RawMessage) (Response, error) {
	cfg, err := config.Load()
	logger.Init(cfg.LogLevel)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return Response{StatusCode: 400, Outcome: string(app.Failed), Message: err.Error(), Metrics: metrics.Global.GetStats()}, nil
	}

	pipeline, cleanup, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		return Response{StatusCode: 500, Outcome: string(app.Failed), Message: err.Error(), Metrics: metrics.Global.GetStats()}, nil
	}
	defer cleanup()

	return toResponse(pipeline.Run(ctx), metrics.Global.GetStats()), nil
}

func toResponse(res app.Result, stats map[string]interface{}) Response {
	resp := Response{
		StatusCode: 200,
		Outcome:    string(res.Outcome),
		Message:    res.Summary(),
		PostURL:    res.PostURL,
		Metrics:    stats,
	}
	if res.ChatErr != nil {
		resp.ChatError = res.ChatErr.Error()
	}
	if res.Outcome == app.Failed {
		resp.StatusCode = 500
		logger.Error("Run failed", "error", res.Err, "post", res.PostURL)
	}
	return resp
}

func main() {
	lambda.Start(Handler)
}
