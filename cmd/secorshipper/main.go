// Command secorshipper runs one instance of the Kafka-to-object-store log
// shipper: it consumes the configured topics, partitions records onto local
// files by the configured MessageParser, and uploads finished files to the
// object store once a CommitPolicy threshold trips.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Thepunisher64344/sunbird-secor/internal/blobstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/commitpolicy"
	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/consumerloop"
	"github.com/Thepunisher64344/sunbird-secor/internal/dedupe"
	"github.com/Thepunisher64344/sunbird-secor/internal/kafkasource"
	"github.com/Thepunisher64344/sunbird-secor/internal/logging"
	"github.com/Thepunisher64344/sunbird-secor/internal/offsetstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/orphanscan"
	"github.com/Thepunisher64344/sunbird-secor/internal/parser"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
	"github.com/Thepunisher64344/sunbird-secor/internal/server"
	"github.com/Thepunisher64344/sunbird-secor/internal/tracker"
	"github.com/Thepunisher64344/sunbird-secor/internal/uploader"
)

const dedupeCacheCapacity = 4096

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/secor.yaml", "Path to shipper config")
	flag.Parse()

	logger := logging.New("secorshipper")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Start(ctx, cfg.Metrics.Addr, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("shipper stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	blob, err := blobstore.NewS3(ctx, cfg.S3)
	if err != nil {
		return err
	}

	var etcdClient *clientv3.Client
	var offsets offsetstore.OffsetStore
	var lease *offsetstore.PartitionLease
	switch cfg.Offsets.Backend {
	case "", "etcd":
		etcdClient, err = clientv3.New(clientv3.Config{
			Endpoints:   cfg.Offsets.Endpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return err
		}
		defer etcdClient.Close()
		offsets = offsetstore.NewEtcd(etcdClient)

		consumerID, hostErr := os.Hostname()
		if hostErr != nil || consumerID == "" {
			consumerID = "secorshipper"
		}
		lease = offsetstore.NewPartitionLease(etcdClient, offsetstore.PartitionLeaseConfig{
			ConsumerID:      consumerID,
			LeaseTTLSeconds: cfg.Offsets.LeaseTTLSeconds,
			Logger:          logger.With("component", "partition-lease"),
		})
		defer lease.ReleaseAll()
	case "memory":
		offsets = offsetstore.NewMemory()
	default:
		return errUnknownOffsetsBackend(cfg.Offsets.Backend)
	}

	p, err := parser.New(cfg.Parser)
	if err != nil {
		return err
	}
	p = parser.WithFallback(p, cfg.Parser.FallbackPartition, logger.With("component", "parser"))

	reg := registry.New(cfg.Local.Path, cfg.Pattern, cfg.Generation, cfg.Codec, logger.With("component", "registry"))
	tr := tracker.New(reg)
	policy := commitpolicy.New(cfg.Policy)
	dedupeCache := dedupe.New(dedupeCacheCapacity)
	up := uploader.New(reg, policy, blob, offsets, dedupeCache, cfg.Kafka.Group, cfg.Policy, logger.With("component", "uploader"))

	if err := os.MkdirAll(cfg.Local.Path, 0o755); err != nil {
		return err
	}
	outcomes, err := orphanscan.Scan(ctx, cfg.Local.Path, cfg.Kafka.Group, reg, offsets, logger.With("component", "orphanscan"))
	if err != nil {
		return err
	}
	logger.Info("orphan scan complete", "files", len(outcomes))

	source, err := kafkasource.New(cfg.Kafka)
	if err != nil {
		return err
	}
	defer source.Close()

	var leaser consumerloop.PartitionLeaser
	if lease != nil {
		leaser = lease
	}

	loop := consumerloop.New(consumerloop.Config{
		Source:        source,
		Parser:        p,
		Registry:      reg,
		Tracker:       tr,
		Uploader:      up,
		Offsets:       offsets,
		Lease:         leaser,
		Group:         cfg.Kafka.Group,
		SweepInterval: 10 * time.Second,
		Logger:        logger.With("component", "consumerloop"),
	})

	return loop.Run(ctx)
}

type errUnknownOffsetsBackend string

func (e errUnknownOffsetsBackend) Error() string {
	return "secorshipper: unknown offsets.backend " + string(e)
}
