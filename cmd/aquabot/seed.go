package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/HerbHall/aquabot/internal/config"
	"github.com/HerbHall/aquabot/internal/seed"
	"github.com/HerbHall/aquabot/internal/server"
	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/pkg/roles"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Seed destinations.
const (
	sinkDirect = "direct"
	sinkHTTP   = "http"
	sinkMQTT   = "mqtt"
	sinkKafka  = "kafka"
)

type seedOptions struct {
	seed.Options
	sink    string
	url     string
	broker  string
	prefix  string
	brokers []string
	topic   string
}

func newSeedCmd(configPath *string) *cobra.Command {
	opts := seedOptions{Options: seed.DefaultOptions()}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic telemetry history",
		Long: `Generate synthetic water-quality readings for one device and deliver them
directly to the configured database, to a running server over HTTP, or through
an MQTT broker or Kafka topic.`,
		Example: `  aquabot seed --device esp32-01 --site tanque-1 --days 7 --interval 15m
  aquabot seed --sink http --url http://localhost:8080
  aquabot seed --sink kafka --brokers localhost:9092 --topic telemetry`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), *configPath, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.DeviceID, "device", opts.DeviceID, "device ID")
	f.StringVar(&opts.SiteID, "site", opts.SiteID, "site ID")
	f.IntVar(&opts.Days, "days", opts.Days, "days of history ending now")
	f.DurationVar(&opts.Interval, "interval", opts.Interval, "time between transmissions")
	f.Uint64Var(&opts.Seed, "seed", opts.Seed, "noise seed; equal seeds give equal readings")
	f.StringVar(&opts.sink, "sink", sinkDirect, "destination: direct, http, mqtt or kafka")
	f.StringVar(&opts.url, "url", "http://localhost:8080", "server URL for --sink http")
	f.StringVar(&opts.broker, "broker", "tcp://localhost:1883", "MQTT broker for --sink mqtt")
	f.StringVar(&opts.prefix, "prefix", "aquabot", "MQTT topic prefix for --sink mqtt")
	f.StringSliceVar(&opts.brokers, "brokers", []string{"localhost:9092"}, "Kafka brokers for --sink kafka")
	f.StringVar(&opts.topic, "topic", "telemetry", "Kafka topic for --sink kafka")
	return cmd
}

func runSeed(ctx context.Context, configPath string, opts seedOptions, out io.Writer) error {
	txs, err := seed.Generate(opts.Options)
	if err != nil {
		return err
	}

	var res seed.Result
	switch opts.sink {
	case sinkDirect:
		res, err = seedDirect(ctx, configPath, txs)
	case sinkHTTP, sinkMQTT, sinkKafka:
		res, err = seedRemote(ctx, configPath, opts, txs)
	default:
		return fmt.Errorf("unknown sink %q", opts.sink)
	}
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(res)
}

func seedDirect(ctx context.Context, configPath string, txs []telemetry.Transmission) (seed.Result, error) {
	a, err := newApp(ctx, configPath, "telemetry")
	if err != nil {
		return seed.Result{}, err
	}
	defer a.stop(context.Background())

	if err := a.start(ctx); err != nil {
		return seed.Result{}, err
	}
	var ingester roles.TelemetryIngester
	for _, p := range a.reg.ResolveByRole(roles.RoleTelemetrySink) {
		if in, ok := p.(roles.TelemetryIngester); ok {
			ingester = in
			break
		}
	}
	if ingester == nil {
		return seed.Result{}, errors.New("telemetry plugin is disabled")
	}
	return seed.Run(ctx, seed.IngesterSink{Ingester: ingester}, txs, a.logger.Named("seed"))
}

func seedRemote(ctx context.Context, configPath string, opts seedOptions, txs []telemetry.Transmission) (seed.Result, error) {
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return seed.Result{}, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := config.NewLogger(v)
	if err != nil {
		return seed.Result{}, fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("seed")

	var sink seed.Sink
	switch opts.sink {
	case sinkHTTP:
		sink = seed.HTTPSink{BaseURL: opts.url}
	case sinkMQTT:
		client := paho.NewClient(paho.NewClientOptions().
			AddBroker(opts.broker).
			SetClientID("aquabot-seed-" + uuid.NewString()[:8]).
			SetConnectTimeout(10 * time.Second))
		token := client.Connect()
		if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
			return seed.Result{}, fmt.Errorf("connect to mqtt broker %s: %v", opts.broker, token.Error())
		}
		defer client.Disconnect(250)
		sink = seed.MQTTSink{Client: client, Prefix: opts.prefix, QoS: 1}
	case sinkKafka:
		writer := &kafkago.Writer{
			Addr:         kafkago.TCP(opts.brokers...),
			Topic:        opts.topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("close kafka writer", zap.Error(err))
			}
		}()
		sink = seed.KafkaSink{Writer: writer}
	}

	logger.Info("seeding telemetry",
		zap.String("sink", opts.sink),
		zap.Int("transmissions", len(txs)),
	)
	return seed.Run(ctx, sink, txs, logger)
}
