package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caio-sobreiro/dicomstore/config"
	"github.com/caio-sobreiro/dicomstore/events"
	"github.com/caio-sobreiro/dicomstore/metrics"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/server"
	"github.com/caio-sobreiro/dicomstore/services"
	"github.com/caio-sobreiro/dicomstore/storage"
	"github.com/caio-sobreiro/dicomstore/types"
)

// SCPOptions holds flags for the scp command. Set flags override the
// configuration file.
type SCPOptions struct {
	AETitle     string
	Port        int
	StorageRoot string
	Discard     bool
}

// NewSCPCommand creates the scp command.
func NewSCPCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SCPOptions{}

	cmd := &cobra.Command{
		Use:   "scp",
		Short: "Run the storage SCP",
		Long: `Listen for associations and store every received instance under
<storage-root>/<study>/<series>/<sop-instance>.dcm. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *rootOpts.config
			if cmd.Flags().Changed("ae-title") {
				cfg.AETitle = opts.AETitle
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = opts.Port
			}
			if cmd.Flags().Changed("storage-root") {
				cfg.StorageRoot = opts.StorageRoot
			}
			if cmd.Flags().Changed("discard") {
				cfg.Discard = opts.Discard
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSCP(ctx, &cfg, rootOpts.logger)
		},
	}

	cmd.Flags().StringVar(&opts.AETitle, "ae-title", "", "AE title of the SCP")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "TCP port to listen on")
	cmd.Flags().StringVar(&opts.StorageRoot, "storage-root", "", "directory received instances are written to")
	cmd.Flags().BoolVar(&opts.Discard, "discard", false, "answer every C-STORE with success without writing")

	return cmd
}

func runSCP(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var store storage.Store
	if cfg.Discard {
		logger.Warn("Discard mode enabled: received instances are acknowledged and dropped")
		store = storage.DiscardStore{}
	} else {
		fs, err := storage.NewFileStore(cfg.StorageRoot, logger)
		if err != nil {
			return err
		}
		store = fs
	}

	m := metrics.New()
	storeOpts := []services.StoreOption{
		services.WithMetrics(m),
		services.WithStoreLogger(logger),
	}
	if cfg.NATSURL != "" {
		notifier, err := events.NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Warn("Failed to drain NATS connection", "error", err)
			}
		}()
		storeOpts = append(storeOpts, services.WithNotifier(notifier))
	}

	registry := services.NewRegistry(logger)
	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService(logger))
	registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(store, storeOpts...))

	negotiator := negotiation.NewNegotiator(
		negotiation.NewCatalog(cfg.Compression),
		negotiation.CapabilitiesFromConfig(cfg.Compression),
	)

	logger.Info("Starting storage SCP",
		"ae_title", cfg.AETitle,
		"address", cfg.Address(),
		"storage_root", cfg.StorageRoot,
		"discard", cfg.Discard)

	var srv *http.Server
	if cfg.MetricsAddress != "" {
		reg, err := metrics.NewRegistry(m)
		if err != nil {
			return err
		}
		srv = metrics.NewServer(cfg.MetricsAddress, reg)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Address(), cfg.AETitle, registry,
			server.WithLogger(logger),
			server.WithReadTimeout(cfg.ReadTimeout),
			server.WithWriteTimeout(cfg.WriteTimeout),
			server.WithDIMSETimeout(cfg.DIMSETimeout),
			server.WithMaxPDULength(cfg.MaxPDULength),
			server.WithStrictCalledAETitle(cfg.StrictCalledAE),
			server.WithNegotiator(negotiator),
			server.WithMetrics(m),
		)
	})

	if srv != nil {
		g.Go(func() error {
			logger.Info("Serving metrics", "address", cfg.MetricsAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("Storage SCP stopped")
		return nil
	}
	return err
}
