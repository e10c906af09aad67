package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/minofeel/TuringBot/internal/api"
	"github.com/minofeel/TuringBot/internal/chatlog"
	"github.com/minofeel/TuringBot/internal/config"
	"github.com/minofeel/TuringBot/internal/events"
	"github.com/minofeel/TuringBot/internal/mqtt"
	"github.com/minofeel/TuringBot/internal/ringbuf"
	"github.com/minofeel/TuringBot/internal/storage/postgres"
	"github.com/minofeel/TuringBot/internal/version"
)

const (
	bufferSource       = "chat-log"
	healthCheckPeriod  = 10 * time.Second
	alertCheckInterval = 10 * time.Second
	shutdownFlushLimit = 10 * time.Second
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log chat messages from MQTT into Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := events.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	events.SetVerbosity(cfg.Verbosity())

	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	_ = events.Emit("info", "system.startup", "turingbot starting", map[string]interface{}{
		"bot":      cfg.Bot.Name,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	db, err := postgres.New(ctx, postgres.Options{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: secrets.PostgresPassword,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		_ = events.Emit("error", "system.error", "postgres unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	defer db.Close()
	api.SetPostgresState(true, false)

	buf, err := ringbuf.New[chatlog.Message](cfg.Buffer,
		ringbuf.WithSource(bufferSource),
		ringbuf.WithReporter(events.BufferReporter{}))
	if err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	relay := chatlog.NewRelay(buf, db, chatlog.WithAppendTimeout(cfg.Relay.AppendTimeout))

	registry := mqtt.NewChannelRegistry()
	for _, ch := range cfg.Channels {
		registry.Register(ch.ID, ch.Topic)
	}

	client := mqtt.NewClient(mqtt.Options{
		URL:      cfg.MQTT.URL,
		ClientID: cfg.MQTT.ClientID,
		Username: secrets.MQTTUsername,
		Password: secrets.MQTTPassword,
	})
	subscriber := mqtt.NewChannelSubscriber(client, registry, buf, byte(cfg.MQTT.QoS))
	api.SetMQTTState(false, false)
	client.OnConnect(func() {
		api.SetMQTTConnected(true)
		subscriber.Resubscribe()
	})
	client.OnConnectionLost(func(error) {
		api.SetMQTTConnected(false)
		subscriber.ClearSubscriptions()
	})

	api.InitAuth(secrets)
	api.InitTLS()
	api.InitMetrics(cfg.Bot.Name)
	api.InitAlerts()
	api.SetDeps(api.Deps{
		Buffer:   buf,
		Relay:    relay,
		Messages: db,
		Channels: registry,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relay.Run(gctx)
	})

	g.Go(func() error {
		return api.ListenAndServe(gctx, cfg.UIPort())
	})

	g.Go(func() error {
		watchPostgres(gctx, db)
		return nil
	})

	// paho keeps retrying in the background; OnConnect subscribes once it succeeds.
	if err := client.Connect(); err != nil {
		var timeout *mqtt.ConnectTimeoutError
		if !errors.As(err, &timeout) {
			log.Printf("mqtt connect failed: %v", err)
		} else {
			log.Printf("mqtt broker %s not reachable yet, retrying in background", cfg.MQTT.URL)
		}
	}

	api.StartAlertMonitor(gctx, alertCheckInterval)

	runErr := g.Wait()

	client.Disconnect()
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushLimit)
	defer cancel()
	flushed := relay.Flush(flushCtx)

	stats := buf.Stats()
	_ = events.Emit("info", "system.shutdown", "turingbot stopped", map[string]interface{}{
		"flushed":   flushed,
		"pending":   stats.Pending,
		"dropped":   stats.Drops,
		"delivered": relay.Stats().Delivered,
	})
	events.CloseAllSubscribers()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// watchPostgres keeps the readiness state in step with the database.
func watchPostgres(ctx context.Context, db *postgres.Client) {
	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.Ping(pingCtx)
		cancel()
		api.SetPostgresConnected(err == nil)
	}
}
