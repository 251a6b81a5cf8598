package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/broker"
	"github.com/pouchdb/pouchbase/credentials"
	"github.com/pouchdb/pouchbase/internal/config"
	"github.com/pouchdb/pouchbase/notify"
	"github.com/pouchdb/pouchbase/server"
	"github.com/pouchdb/pouchbase/sessions"
	redisstore "github.com/pouchdb/pouchbase/store/redis"
	"github.com/pouchdb/pouchbase/tenants"
	"github.com/pouchdb/pouchbase/tokens"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}

	if c.GetEnv() == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	displayAppname(c.GetAppName())

	handler, closeStore, err := buildGateway(c)
	if err != nil {
		return err
	}
	defer closeStore()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildGateway(c config.Config) (http.Handler, func(), error) {
	redisClient := goredis.NewClient(&goredis.Options{
		Addr: c.GetRedisAddr(),
		DB:   c.GetRedisDB(),
	})
	st, err := redisstore.New(redisstore.Config{Client: redisClient})
	if err != nil {
		return nil, nil, fmt.Errorf("[buildGateway] failed to create store: %w", err)
	}

	repos := broker.Repos{
		Tokens:   tokens.NewStoreRepo(st),
		Sessions: sessions.NewStoreRepo(st),
	}

	options := []broker.Option{
		broker.WithTokenExpiry(c.GetTokenExpiry()),
		broker.WithCallTimeout(c.GetCallTimeout()),
	}
	if notifier := buildNotifier(c); notifier != nil {
		options = append(options, broker.WithNotifier(notifier))
	}

	brokerSvc, err := broker.New(repos, credentials.NewHasher(c.GetBcryptCost()), c.GetHostURL(), options...)
	if err != nil {
		return nil, nil, fmt.Errorf("[buildGateway] failed to create broker: %w", err)
	}

	upstream, err := url.Parse(c.GetDatabaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("[buildGateway] invalid DB_URL: %w", err)
	}

	provisioner := tenants.NewProvisioner(
		c.GetDatabaseURL(),
		c.GetDatabasePrefix(),
		c.GetDatabaseAdminUser(),
		c.GetDatabaseAdminPassword(),
		tenants.WithCallTimeout(c.GetCallTimeout()),
	)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provisioner.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("Tenant database backend not reachable at startup")
	}

	gateway, err := server.New(c, brokerSvc, provisioner, upstream)
	if err != nil {
		return nil, nil, fmt.Errorf("[buildGateway] failed to create server: %w", err)
	}
	return gateway, func() { _ = st.Close() }, nil
}

func buildNotifier(c config.Config) notify.Notifier {
	if c.GetSmtpAccount() == "" || c.GetSmtpHost() == "" {
		log.Info().Msg("SMTP not configured, token delivery disabled")
		return nil
	}
	notifier, err := notify.NewSMTP(notify.SMTPConfig{
		Addr:     c.GetSmtpHost() + ":" + c.GetSmtpPort(),
		Username: c.GetSmtpAccount(),
		Password: c.GetSmtpPassword(),
		From:     c.GetSmtpAccount(),
		Host:     c.GetHostURL(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to configure SMTP notifier, token delivery disabled")
		return nil
	}
	return notifier
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("Server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
