package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"

	"opsboard/gateway"
	"opsboard/service"
	"opsboard/tracing"
)

type options struct {
	HTTPAddr            string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"address the HTTP server listens on"`
	PostgresURL         string `long:"postgres-url" env:"POSTGRES_URL" required:"true" description:"postgres connection string"`
	RedisAddr           string `long:"redis-addr" env:"REDIS_ADDR" required:"true" description:"redis address for the change stream"`
	StripeKey           string `long:"stripe-key" env:"STRIPE_SECRET_KEY" required:"true" description:"stripe secret API key"`
	StripeWebhookSecret string `long:"stripe-webhook-secret" env:"STRIPE_WEBHOOK_SECRET" required:"true" description:"stripe webhook signing secret"`
	JWTSecret           string `long:"jwt-secret" env:"JWT_SECRET" required:"true" description:"HMAC secret access tokens are signed with"`
	DashboardURL        string `long:"dashboard-url" env:"DASHBOARD_URL" default:"http://localhost:3000" description:"public dashboard URL for checkout redirects"`
	AutomationURL       string `long:"automation-url" env:"AUTOMATION_WEBHOOK_URL" description:"automation webhook notified about paid invoices; empty disables it"`
	JaegerEndpoint      string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"jaeger collector endpoint; empty disables tracing"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if opts.JaegerEndpoint != "" {
		tp := tracing.ConfigureTraceProvider(opts.JaegerEndpoint)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logrus.WithError(err).Error("failed to shutdown trace provider")
			}
		}()
	}

	sqldb, err := otelsql.Open("postgres", opts.PostgresURL)
	if err != nil {
		panic(err)
	}
	dbconn := sqlx.NewDb(sqldb, "postgres")
	defer dbconn.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: opts.RedisAddr,
	})
	defer redisClient.Close()

	stripeClient := &client.API{}
	stripeClient.Init(opts.StripeKey, nil)

	paymentsClient := gateway.NewPaymentsClient(stripeClient, opts.StripeWebhookSecret, opts.DashboardURL)
	automationClient := gateway.NewAutomationClient(opts.AutomationURL)

	svc := service.New(
		opts.HTTPAddr,
		dbconn,
		redisClient,
		paymentsClient,
		automationClient,
		opts.JWTSecret,
	)

	if err := svc.Run(ctx); err != nil {
		panic(err)
	}
}
