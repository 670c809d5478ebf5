// Command logsvc runs the log-capture pipeline as a standalone
// process: it loads a stage-settings document, assembles the stage
// graph it describes, and serves the admin HTTP surface until
// interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"logcore/internal/app"
	"logcore/internal/config"
	"logcore/internal/pipeline"
	"logcore/internal/settings"
	"logcore/internal/stage"
	"logcore/internal/store"
)

func main() {
	var configPath, storePath, adminAddr string
	flag.StringVar(&configPath, "config", envOr("LOGCORE_CONFIG_FILE", "/etc/logcore/stages.yaml"), "path to the stage-settings document")
	flag.StringVar(&storePath, "store", envOr("LOGCORE_STORE_FILE", "/var/lib/logcore/store.db"), "path to the store engine's backing file")
	flag.StringVar(&adminAddr, "admin-addr", envOr("LOGCORE_ADMIN_ADDR", ":9090"), "address the admin HTTP surface listens on")
	flag.Parse()

	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})

	doc, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).WithField("path", configPath).Warn("no stage-settings document loaded, starting with defaults")
		doc = config.Document{}
	}

	application, err := app.New(app.Options{
		StorePath:   storePath,
		Schema:      store.Analysis,
		AutoMigrate: true,
		AdminAddr:   adminAddr,
		Logger:      logger,
	}, doc)
	if err != nil {
		logger.WithError(err).Fatal("failed to assemble application")
	}

	if err := buildTopology(application, logger); err != nil {
		logger.WithError(err).Fatal("failed to build stage topology")
	}

	if err := application.WatchConfig(configPath, config.WatcherConfig{}); err != nil {
		logger.WithError(err).Warn("configuration file watch disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start application")
	}
	logger.WithField("admin_addr", adminAddr).Info("logcore running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown reported an error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildTopology assembles a fixed entry->fan-out graph: every record
// reaches console output and the store; the log-service, search-
// cluster, file and syslog forwarders are only attached when the
// loaded document configures them, since each owns a live network or
// file resource a default install shouldn't open unasked.
func buildTopology(a *app.App, logger *logrus.Logger) error {
	entry := stage.NewSplitter("entry")
	if err := a.Graph().AddStage(entry); err != nil {
		return err
	}

	console := stage.NewConsole("console", os.Stdout)
	if err := a.Graph().AddStage(console); err != nil {
		return err
	}
	if err := a.Graph().Connect(entry.Name(), console.Name()); err != nil {
		return err
	}

	layoutProxy := a.Manager().Register("console", "timestamp_layout", "", settings.StringConverter{})
	layoutProxy.Subscribe(settings.DirectExecutor{}, func(v any) {
		layout, _ := v.(string)
		if layout == "" {
			return
		}
		if err := console.SetTimestampLayout(layout); err != nil {
			logger.WithError(err).Warn("console timestamp layout change rejected while stage is attached")
		}
	})

	storeWriter := stage.NewStoreWriter("store", a.Engine(), pipeline.AsyncConfig{Capacity: 4096, BatchMax: 64}, logger)
	storeWriter.OnAppended = func(ctx context.Context, fromID, toID int64) {
		if err := a.View().OnAdded(ctx, fromID, toID); err != nil {
			logger.WithError(err).Warn("view failed to absorb appended range")
		}
	}
	if err := a.Graph().AddStage(storeWriter); err != nil {
		return err
	}
	if err := a.Graph().Connect(entry.Name(), storeWriter.Name()); err != nil {
		return err
	}

	m := a.Manager()

	if path, ok := m.Register("textfile", "path", "", settings.StringConverter{}).Get(); ok && path.(string) != "" {
		maxSize, _ := m.Register("textfile", "max_size_bytes", int64(100<<20), settings.IntConverter{}).Get()
		tf := stage.NewTextFile("textfile", stage.TextFileConfig{Path: path.(string), MaxSizeBytes: toInt64(maxSize)}, pipeline.AsyncConfig{Capacity: 4096, BatchMax: 64}, logger)
		if err := a.Graph().AddStage(tf); err != nil {
			return err
		}
		if err := a.Graph().Connect(entry.Name(), tf.Name()); err != nil {
			return err
		}
	}

	if addr, ok := m.Register("logservice", "address", "", settings.StringConverter{}).Get(); ok && addr.(string) != "" {
		ls := stage.NewLogService("logservice", stage.LogServiceConfig{Address: addr.(string)}, pipeline.AsyncConfig{Capacity: 4096, BatchMax: 64}, logger)
		if err := a.Graph().AddStage(ls); err != nil {
			return err
		}
		if err := a.Graph().Connect(entry.Name(), ls.Name()); err != nil {
			return err
		}
	}

	if bulkURL, ok := m.Register("searchcluster", "bulk_url", "", settings.StringConverter{}).Get(); ok && bulkURL.(string) != "" {
		sc := stage.NewSearchCluster("searchcluster", stage.SearchClusterConfig{BulkURL: bulkURL.(string)}, pipeline.AsyncConfig{Capacity: 4096, BatchMax: 128}, logger)
		if err := a.Graph().AddStage(sc); err != nil {
			return err
		}
		if err := a.Graph().Connect(entry.Name(), sc.Name()); err != nil {
			return err
		}
	}

	if tag, ok := m.Register("syslog", "tag", "", settings.StringConverter{}).Get(); ok && tag.(string) != "" {
		sl, err := stage.NewSyslog("syslog", tag.(string), pipeline.AsyncConfig{Capacity: 4096, BatchMax: 64}, logger)
		if err != nil {
			logger.WithError(err).Warn("syslog stage unavailable, continuing without it")
		} else {
			if err := a.Graph().AddStage(sl); err != nil {
				return err
			}
			if err := a.Graph().Connect(entry.Name(), sl.Name()); err != nil {
				return err
			}
		}
	}

	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
