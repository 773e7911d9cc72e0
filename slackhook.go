package main

import (
	"context"
	"errors"
	"flag"
	"net/http"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/hashicorp/go-multierror"
	"github.com/justinas/alice"
	log "github.com/sirupsen/logrus"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/slackhook/dispatch"
	"github.com/m-lab/slackhook/handler"
	"github.com/m-lab/slackhook/memorystore"
	"github.com/m-lab/slackhook/rawbody"
	"github.com/m-lab/slackhook/secrets"
	"github.com/m-lab/slackhook/static"
	"github.com/m-lab/slackhook/verifier"
)

var (
	listenPort        string
	listenPath        string
	project           string
	signingSecretName string
	signingSecretFile string
	environment       string
	redisAddress      string
	queueKey          string
	forwardURL        = flagx.URL{}
)

func init() {
	// PORT and GOOGLE_CLOUD_PROJECT are part of the default App Engine environment.
	flag.StringVar(&listenPort, "port", "8080", "AppEngine port environment variable")
	flag.StringVar(&listenPath, "path", "/slack/actions", "Path receiving Slack requests")
	flag.StringVar(&project, "google-cloud-project", "", "AppEngine project environment variable")
	flag.StringVar(&signingSecretName, "signing-secret-name", "slack-signing-secret", "Secret Manager secret holding the Slack signing secret")
	flag.StringVar(&signingSecretFile, "signing-secret-file", "", "Read the Slack signing secret from this file instead of Secret Manager")
	flag.StringVar(&environment, "environment", string(verifier.Production), "Deployment environment: production or development")
	flag.StringVar(&redisAddress, "redis-address", "", "Primary endpoint for Redis instance; events are queued when set")
	flag.StringVar(&queueKey, "queue-key", static.RedisQueueKey, "Redis list receiving queued events")
	flag.Var(&forwardURL, "forward-url", "Backend URL receiving forwarded events")
}

var mainCtx, mainCancel = context.WithCancel(context.Background())

// validate reports every problem with the command line flags.
func validate() error {
	var errs *multierror.Error
	if signingSecretFile == "" && signingSecretName == "" {
		errs = multierror.Append(errs, errors.New("one of -signing-secret-file or -signing-secret-name is required"))
	}
	if signingSecretFile == "" && project == "" {
		errs = multierror.Append(errs, errors.New("-google-cloud-project is required to read Secret Manager"))
	}
	if redisAddress == "" && forwardURL.URL == nil {
		errs = multierror.Append(errs, errors.New("one of -redis-address or -forward-url is required"))
	}
	if redisAddress != "" && forwardURL.URL != nil {
		errs = multierror.Append(errs, errors.New("-redis-address and -forward-url are mutually exclusive"))
	}
	if _, err := verifier.ParseEnvironment(environment); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// loadSecret reads the signing secret from the local file when given, or
// from Secret Manager otherwise.
func loadSecret(ctx context.Context) ([]byte, error) {
	if signingSecretFile != "" {
		return secrets.NewLocalConfig().LoadSigningSecret(ctx, nil, signingSecretFile)
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return secrets.NewConfig(project).LoadSigningSecret(ctx, client, signingSecretName)
}

// newDispatcher returns the configured dispatcher and the readiness checks of
// its backing services. The queue dispatcher waits for Redis to answer.
func newDispatcher(ctx context.Context) (verifier.Dispatcher, map[string]handler.ReadyChecker, error) {
	if redisAddress != "" {
		pool := memorystore.NewPool(redisAddress, static.RedisMaxIdle, static.RedisIdleTimeout)
		store := memorystore.NewClient(pool)
		if err := store.WaitReady(ctx, static.RedisStartupTimeout); err != nil {
			return nil, nil, err
		}
		return dispatch.NewQueue(store, queueKey), map[string]handler.ReadyChecker{"memorystore": store}, nil
	}
	return dispatch.NewForwarder(forwardURL.URL, nil), nil, nil
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	// Running on GCP without an explicit project, ask the metadata server.
	if project == "" && signingSecretFile == "" && metadata.OnGCE() {
		p, err := metadata.ProjectIDWithContext(mainCtx)
		rtx.Must(err, "Failed to read project from metadata server")
		project = p
	}
	rtx.Must(validate(), "Invalid flags")

	secret, err := loadSecret(mainCtx)
	rtx.Must(err, "Failed to load signing secret")

	env, err := verifier.ParseEnvironment(environment)
	rtx.Must(err, "Invalid environment")
	d, checks, err := newDispatcher(mainCtx)
	rtx.Must(err, "Failed to create dispatcher")
	v, err := verifier.New(verifier.Config{
		Secret:      secret,
		Dispatcher:  d,
		Environment: env,
	})
	rtx.Must(err, "Failed to create verifier")
	c := handler.NewClient(checks)

	prom := prometheusx.MustServeMetrics()
	defer prom.Close()

	mux := http.NewServeMux()
	// Slack delivers interactive payloads to the request URL.
	mux.Handle(listenPath, alice.New(handler.Logging, rawbody.Buffer).Then(v))
	// Liveness and readiness checks to support deployments.
	mux.HandleFunc("/v2/live", c.Live)
	mux.HandleFunc("/v2/ready", c.Ready)

	srv := &http.Server{
		Addr:    ":" + listenPort,
		Handler: mux,
	}
	log.Infof("Listening for Slack requests on %s%s", listenPort, listenPath)
	rtx.Must(httpx.ListenAndServeAsync(srv), "Could not start server")
	defer srv.Close()
	<-mainCtx.Done()
}
