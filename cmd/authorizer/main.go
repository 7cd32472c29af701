// Command authorizer is an API Gateway REQUEST authorizer that admits
// callers presenting the configured API key or a bearer token issued by the
// configured OIDC issuer.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/cockroachdb/errors"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/auth"
	"github.com/stefando/streamupload/internal/errs"
	"github.com/stefando/streamupload/internal/logging"
)

// tokenVerifier checks an OIDC token's signature, issuer, expiry and
// audience. *oidc.IDTokenVerifier implements it.
type tokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

type authorizer struct {
	apiKey   string
	verifier tokenVerifier
	log      zerolog.Logger
}

// newAuthorizer admits callers presenting apiKey or a bearer token accepted
// by verifier. At least one of them must be configured.
func newAuthorizer(apiKey string, verifier tokenVerifier, log zerolog.Logger) (*authorizer, error) {
	if apiKey == "" && verifier == nil {
		return nil, errs.Configuration("authorizer", errors.New("API_KEY or OIDC_ISSUER is required"))
	}
	return &authorizer{apiKey: apiKey, verifier: verifier, log: log}, nil
}

// newVerifier discovers the signing keys of issuer. An empty clientID skips
// the audience check since access tokens carry no aud claim.
func newVerifier(ctx context.Context, issuer, clientID string) (tokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errs.Configuration("authorizer", errors.Wrapf(err, "failed to discover OIDC issuer %s", issuer))
	}
	return provider.Verifier(&oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: clientID == "",
	}), nil
}

func (a *authorizer) handle(ctx context.Context, event events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	log := a.log.With().
		Str("request_id", event.RequestContext.RequestID).
		Str("method", event.HTTPMethod).
		Str("path", event.Path).
		Logger()

	if key, ok := auth.ExtractAPIKey(event.Headers); ok {
		if !auth.ValidAPIKey(a.apiKey, key) {
			log.Warn().Msg("authorization failed: invalid API key")
			return createAuthorizerResponse("unauthorized", false, event.MethodArn, nil), nil
		}
		log.Debug().Msg("authorization successful: API key")
		return allow(auth.PrincipalAPIKey, event.MethodArn), nil
	}

	token, ok := auth.ExtractBearerToken(event.Headers)
	if !ok || a.verifier == nil {
		log.Warn().Bool("bearer", ok).Msg("authorization failed: no usable credentials")
		return createAuthorizerResponse("unauthorized", false, event.MethodArn, nil), nil
	}

	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("authorization failed: token verification")
		return createAuthorizerResponse("unauthorized", false, event.MethodArn, nil), nil
	}
	if idToken.Subject == "" {
		log.Warn().Str("issuer", idToken.Issuer).Msg("authorization failed: token has no subject")
		return createAuthorizerResponse("unauthorized", false, event.MethodArn, nil), nil
	}

	principal := auth.PrincipalOIDCPrefix + idToken.Subject
	log.Debug().Str("principal", principal).Time("expiry", idToken.Expiry).Msg("authorization successful: bearer token")
	return allow(principal, event.MethodArn), nil
}

func allow(principal, methodArn string) events.APIGatewayCustomAuthorizerResponse {
	return createAuthorizerResponse(principal, true, wildcardResource(methodArn), map[string]interface{}{
		"principal": principal,
	})
}

// createAuthorizerResponse creates a standardized authorizer response
func createAuthorizerResponse(principalID string, allow bool, methodArn string, context map[string]interface{}) events.APIGatewayCustomAuthorizerResponse {
	effect := "Allow"
	if !allow {
		effect = "Deny"
	}

	response := events.APIGatewayCustomAuthorizerResponse{
		PrincipalID:    principalID,
		PolicyDocument: generatePolicy(effect, methodArn),
	}

	if context != nil {
		response.Context = context
	}

	return response
}

func generatePolicy(effect, resource string) events.APIGatewayCustomAuthorizerPolicy {
	return events.APIGatewayCustomAuthorizerPolicy{
		Version: "2012-10-17",
		Statement: []events.IAMPolicyStatement{{
			Action:   []string{"execute-api:Invoke"},
			Effect:   effect,
			Resource: []string{resource},
		}},
	}
}

// wildcardResource widens a method ARN
// (arn:aws:execute-api:region:account:api/stage/VERB/path) to every method
// and path of the stage, so a cached Allow covers all routes.
func wildcardResource(methodArn string) string {
	parts := strings.SplitN(methodArn, "/", 3)
	if len(parts) < 2 {
		return methodArn
	}
	return parts[0] + "/" + parts[1] + "/*"
}

func main() {
	log := logging.New(os.Getenv("LOG_LEVEL"), false)

	var verifier tokenVerifier
	if issuer := os.Getenv("OIDC_ISSUER"); issuer != "" {
		v, err := newVerifier(context.Background(), issuer, os.Getenv("OIDC_CLIENT_ID"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize token verifier")
		}
		verifier = v
	}

	a, err := newAuthorizer(os.Getenv("API_KEY"), verifier, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize authorizer")
	}
	lambda.Start(a.handle)
}
