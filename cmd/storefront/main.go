// Command storefront is a terminal client for the Tassel Group storefront
// backend: sign in, browse the catalogue, book services, order gifts and
// check out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/FulloMyself/tasselgroupreact/internal/api"
	"github.com/FulloMyself/tasselgroupreact/internal/cart"
	"github.com/FulloMyself/tasselgroupreact/internal/cli"
	"github.com/FulloMyself/tasselgroupreact/internal/config"
	"github.com/FulloMyself/tasselgroupreact/internal/events"
	"github.com/FulloMyself/tasselgroupreact/internal/httputil"
	"github.com/FulloMyself/tasselgroupreact/internal/metrics"
	"github.com/FulloMyself/tasselgroupreact/internal/session"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
)

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	bus     *events.Bus
	client  *api.Client
	session *session.Store
	cart    *cart.Cart
	ui      *cli.Printer
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.New("storefront", cfg.LogLevel, cfg.LogFormat)
	bus := events.NewBus()

	transport := httputil.NewTransport(httputil.Config{
		Retry: httputil.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay,
			Timeout:    cfg.Timeout,
		},
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            log.Named("transport"),
	})

	client, err := api.New(api.Config{
		BaseURL:   cfg.BaseURL,
		Transport: transport,
		Bus:       bus,
		Logger:    log.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	a := &app{cfg: cfg, log: log, bus: bus, client: client, cart: cart.New(bus), ui: cli.NewPrinter(os.Stdout)}

	storage, err := a.storage()
	if err != nil {
		return nil, err
	}
	store, err := session.New(session.Config{
		Backend: client,
		Storage: storage,
		Bus:     bus,
		Logger:  log.Named("session"),
	})
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	client.Bind(store)
	a.session = store

	bus.Subscribe(func(e events.Event) {
		log.WithFields(map[string]interface{}{"event": string(e.Type), "reason": e.Reason}).Debug("event")
	})
	return a, nil
}

func (a *app) storage() (session.Storage, error) {
	sc := a.cfg.Session
	switch sc.Backend {
	case config.SessionBackendMemory:
		return session.NewMemoryStorage(), nil
	case config.SessionBackendFile:
		return session.NewFileStorage(sc.Path), nil
	case config.SessionBackendRedis:
		rs := session.NewRedisStorage(session.RedisOptions{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			Prefix:   sc.RedisPrefix,
		})
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	}
	return nil, fmt.Errorf("unknown session backend %q", sc.Backend)
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.WithError(err).Warn("close")
		}
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: storefront [flags] <command> [args]

Commands:
  login       sign in
  register    create an account
  logout      sign out
  whoami      show the signed-in user
  products    list products
  services    list services
  gifts       list gift packages
  dashboard   show or export the dashboard for your role
  checkout    buy products (online or manual)
  book        book a service
  gift-order  send a gift package

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		envFile    = flag.String("env", "", "Path to a .env file (default ./.env if present)")
		metricsOut = flag.String("metrics-out", "", "Write Prometheus metrics to this file on exit")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.LoadOptions{ConfigPath: *configPath, EnvFile: *envFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name, args := flag.Arg(0), flag.Args()[1:]
	runErr := a.run(ctx, name, args)

	if *metricsOut != "" {
		if err := metrics.WriteTextfile(*metricsOut); err != nil {
			a.log.WithError(err).Warn("write metrics")
		}
	}
	if runErr != nil {
		cli.NewPrinter(os.Stderr).Failure("%s", describe(runErr))
		a.close()
		stop()
		os.Exit(1)
	}
}
