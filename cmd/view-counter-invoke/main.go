package main

// Calls the deployed CountView function.
// Cloud Functions require an ID token whose audience is the function URL;
// the caller's credentials come from GOOGLE_APPLICATION_CREDENTIALS or ADC.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"github.com/joho/godotenv"
	"github.com/tckz/gcp-view-counter/internal/log"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optURL      = flag.String("url", "", "URL of the CountView function")
	optAudience = flag.String("audience", "", "aud of the id token [default: --url]")
	optAuth     = flag.String("auth", "sa", "none|sa|impersonate|user")
	optSA       = flag.String("sa", "", "service account to impersonate (--auth=impersonate)")
	optCount    = flag.Int("count", 1, "number of sequential invocations")
	optTimeout  = flag.Duration("timeout", 30*time.Second, "timeout of each request")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if *optURL == "" {
		logger.Fatalf("*** --url must be specified")
	}
	aud := *optAudience
	if aud == "" {
		aud = *optURL
	}

	ctx := context.Background()

	client, err := newClient(ctx, *optAuth, aud)
	if err != nil {
		logger.Fatalf("*** newClient: %v", err)
	}
	client.Timeout = *optTimeout

	for i := 0; i < *optCount; i++ {
		views, err := invoke(ctx, client, *optURL)
		if err != nil {
			logger.Fatalf("*** invoke: %v", err)
		}
		fmt.Println(views)
	}
}

func newClient(ctx context.Context, auth, aud string) (*http.Client, error) {
	switch auth {
	case "none":
		return &http.Client{}, nil
	case "sa":
		// idtoken: credential must be service_account
		c, err := idtoken.NewClient(ctx, aud)
		if err != nil {
			return nil, fmt.Errorf("idtoken.NewClient: %w", err)
		}
		return c, nil
	case "impersonate":
		tok, err := impersonatedIDToken(ctx, aud)
		if err != nil {
			return nil, err
		}
		return bearerClient(ctx, tok), nil
	case "user":
		tok, err := userIDToken(ctx)
		if err != nil {
			return nil, err
		}
		return bearerClient(ctx, tok), nil
	default:
		return nil, fmt.Errorf("unknown auth: %s", auth)
	}
}

func bearerClient(ctx context.Context, idToken string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: idToken,
		TokenType:   "Bearer",
	}))
}

// https://cloud.google.com/iam/docs/reference/credentials/rest/v1/projects.serviceAccounts/generateIdToken
func impersonatedIDToken(ctx context.Context, aud string) (string, error) {
	if *optSA == "" {
		return "", fmt.Errorf("--sa must be specified for --auth=impersonate")
	}

	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("google.FindDefaultCredentials: %w", err)
	}

	c, err := credentials.NewIamCredentialsClient(ctx, option.WithCredentials(creds))
	if err != nil {
		return "", fmt.Errorf("credentials.NewIamCredentialsClient: %w", err)
	}
	defer c.Close()

	t, err := c.GenerateIdToken(ctx, &credentialspb.GenerateIdTokenRequest{
		Name:         "projects/-/serviceAccounts/" + *optSA,
		Audience:     aud,
		IncludeEmail: true,
	})
	if err != nil {
		return "", fmt.Errorf("GenerateIdToken: %w", err)
	}
	return t.Token, nil
}

// The audience cannot be chosen here, and it only works when ADC holds a user's refresh_token.
func userIDToken(ctx context.Context) (string, error) {
	ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("google.DefaultTokenSource: %w", err)
	}

	t, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("ts.Token: %w", err)
	}

	idToken, ok := t.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", fmt.Errorf("no id_token in the default credentials")
	}
	return idToken, nil
}

func invoke(ctx context.Context, client *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return 0, fmt.Errorf("http.NewRequest: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("client.Do: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("io.ReadAll: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	views, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected body %q: %w", b, err)
	}
	return views, nil
}
