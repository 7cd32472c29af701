// Command lambda serves the upload API behind API Gateway.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/api"
	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/logging"
	"github.com/stefando/streamupload/internal/upload"
)

// newHandler adapts API Gateway proxy events onto router.
func newHandler(router http.Handler, log zerolog.Logger) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		httpReq, err := createHTTPRequest(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("path", req.Path).Msg("failed to create HTTP request")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"error":"invalid request"}`,
			}, nil
		}

		rec := newResponseRecorder()
		router.ServeHTTP(rec, httpReq)
		return rec.toProxyResponse(), nil
	}
}

// setup loads configuration through lookup and builds the routed handler.
func setup(ctx context.Context, lookup config.LookupFunc) (http.Handler, zerolog.Logger, error) {
	cfg, err := config.Load(lookup)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	svc, err := upload.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return nil, log, err
	}
	log.Info().Str("provider", cfg.Provider).Str("bucket", cfg.Bucket).Msg("services initialized")

	return api.NewRouter(svc, cfg.APIKey, log), log, nil
}

func main() {
	router, log, err := setup(context.Background(), os.LookupEnv)
	if err != nil {
		boot := logging.New("info", false)
		boot.Fatal().Err(err).Msg("failed to initialize upload service")
	}

	lambda.Start(newHandler(router, log))
}
