package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/linkwatch/linkwatchd/internal/api"
	"github.com/linkwatch/linkwatchd/internal/hostinfo"
	"github.com/linkwatch/linkwatchd/internal/nlmon"
	"github.com/linkwatch/linkwatchd/internal/notify"
	"github.com/linkwatch/linkwatchd/internal/runtime"
	"github.com/linkwatch/linkwatchd/internal/selfcheck"
	"github.com/linkwatch/linkwatchd/pkg/cli"
)

func main() {
	// Parse command line flags
	cfg := cli.ParseFlags()

	// Configure logging
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FullTimestamp:   true,
	})

	log.Infof("Config: StatsdAddr=%s", cfg.StatsdAddr)
	log.Infof("Config: APIHost=%s", cfg.APIHost)
	log.Infof("Config: APIPort=%d", cfg.APIPort)
	log.Infof("Config: LogLevel=%s", cfg.LogLevel)
	log.Infof("Config: SelfCheck=%v", cfg.SelfCheck)

	if cfg.SelfCheck && os.Geteuid() != 0 {
		log.Fatal("The self-check probe must be run as root.")
	}

	info, err := hostinfo.Collect()
	if err != nil {
		log.WithError(err).Warn("Failed to collect host information")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transport, err := nlmon.Connect(nlmon.SubscriptionGroups(info))
	if err != nil {
		log.WithError(err).Error("Failed to subscribe to rtnetlink")
		os.Exit(2)
	}

	notifier, err := notify.NewForwarder(cfg.StatsdAddr, info.Hostname)
	if err != nil {
		log.WithError(err).Error("Failed to create the dogstatsd forwarder")
		os.Exit(3)
	}

	nlmonSvc := nlmon.NewService(transport, notifier)
	apiSvc := api.NewService(cfg.APIHost, cfg.APIPort, info)

	// Wire subscriptions BEFORE starting producers to avoid missing anything.
	apiSvc.AttachSource(nlmonSvc)

	// Start in dependency order: transport → nlmon → api
	super := runtime.NewSupervisor()
	super.Add("transport", transport.Run, transport.Close)
	super.Add("nlmon", nlmonSvc.Start, nlmonSvc.Close)
	super.Add("api", apiSvc.Start, nil)

	if err := super.Start(ctx); err != nil {
		log.WithError(err).Error("Supervisor start failed")
		os.Exit(1)
	}

	if cfg.SelfCheck {
		go func() {
			if err := selfcheck.New(nlmonSvc).Run(ctx); err != nil {
				log.WithError(err).Error("Self-check failed")
			}
		}()
	}

	err = super.Wait(ctx)

	// Flush buffered events before deciding how to exit.
	if cerr := notifier.Close(); cerr != nil {
		log.WithError(cerr).Warn("Failed to flush the dogstatsd client during shutdown")
	}

	switch {
	case err == nil:
	case errors.Is(err, nlmon.ErrStreamEnded):
		log.WithError(err).Error("Netlink event stream ended")
		os.Exit(4)
	default:
		log.WithError(err).Error("Supervisor wait failed")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
