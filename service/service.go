package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"opsboard/auth"
	"opsboard/db"
	"opsboard/db/bookings"
	"opsboard/db/changelog"
	"opsboard/db/customers"
	"opsboard/db/invoices"
	"opsboard/db/profiles"
	"opsboard/db/tickets"
	"opsboard/http"
	"opsboard/pubsub"
	"opsboard/pubsub/event"
	"opsboard/pubsub/outbox"
	"opsboard/tenant"
)

func init() {
	log.Init(logrus.InfoLevel)
}

type Service struct {
	db              *sqlx.DB
	watermillRouter *message.Router
	httpServer      *http.Server
}

func New(
	addr string,
	db *sqlx.DB,
	redisClient *redis.Client,
	paymentsProvider http.PaymentsProvider,
	automationService event.AutomationService,
	jwtSecret string,
) Service {
	bookingsRepo := bookings.NewPostgresRepository(db)
	customersRepo := customers.NewPostgresRepository(db)
	invoicesRepo := invoices.NewPostgresRepository(db)
	ticketsRepo := tickets.NewPostgresRepository(db)
	profilesRepo := profiles.NewPostgresRepository(db)
	changeLog := changelog.NewPostgresRepository(db)

	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	var redisPublisher message.Publisher
	redisPublisher = pubsub.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventsHandler := event.NewHandler(automationService)

	postgresSubscriber := outbox.NewPostgresSubscriber(db.DB, watermillLogger)
	eventProcessorConfig := event.NewProcessorConfig(redisClient, watermillLogger)

	splitterSubscriber := pubsub.NewRedisSubscriber(redisClient, "svc-opsboard.changes_splitter", watermillLogger)
	changeLogSubscriber := pubsub.NewRedisSubscriber(redisClient, "svc-opsboard.change_log", watermillLogger)

	watermillRouter, err := pubsub.NewWatermillRouter(
		postgresSubscriber,
		redisPublisher,
		splitterSubscriber,
		changeLogSubscriber,
		eventProcessorConfig,
		eventsHandler,
		changeLog,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	resolver := tenant.NewResolver(auth.NewTokenVerifier(jwtSecret), profilesRepo)

	httpServer := http.NewServer(
		addr,
		paymentsProvider,
		invoicesRepo,
		bookingsRepo,
		customersRepo,
		ticketsRepo,
		changeLog,
		resolver,
	)

	return Service{
		db,
		watermillRouter,
		httpServer,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		// the HTTP server starts after the router, so the service is not
		// healthy before the handlers are
		<-s.watermillRouter.Running()

		err := s.httpServer.Run(ctx)
		if err != nil {
			return err
		}

		return nil
	})

	return g.Wait()
}
