package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/tehcyx/ircc/internal/config"
	"github.com/tehcyx/ircc/pkg/engine"
	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/history"
	"github.com/tehcyx/ircc/pkg/metrics"
	"github.com/tehcyx/ircc/pkg/version"
)

func main() {
	configPath := flag.StringP("config", "c", "", "config file (default ~/.ircc/conf.yaml)")
	debug := flag.BoolP("debug", "d", false, "enable debug logging")
	logFile := flag.String("log-file", "", "write logs to this file instead of stderr")
	metricsListen := flag.String("metrics-listen", "", "serve Prometheus metrics on this address")
	follow := flag.Bool("follow", false, "print events recorded by other instances sharing the redis history")
	showVersion := flag.BoolP("version", "v", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Name, version.GetVersion())
		return
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *debug {
		conf.Debug = true
	}
	if *logFile != "" {
		conf.LogFile = *logFile
	}
	if *metricsListen != "" {
		conf.MetricsListen = *metricsListen
	}
	closeLog, err := setupLogging(conf)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openHistory(conf)
	if err != nil {
		log.Fatal(err)
	}

	if *follow {
		if err := followHistory(ctx, store); err != nil {
			log.Fatal(err)
		}
		return
	}

	opts := []engine.Option{engine.WithHistory(store)}
	if conf.MetricsListen != "" {
		m := metrics.New()
		opts = append(opts, engine.WithMetrics(m))
		go func() {
			if err := m.Serve(ctx, conf.MetricsListen); err != nil {
				log.Error(err)
			}
		}()
	}
	eng := engine.New(opts...)

	names := map[string]string{}
	for _, srv := range conf.Servers {
		id, err := eng.AddServer(srv)
		if err != nil {
			log.Fatalf("failed to add server %s: %v", srv.Name, err)
		}
		names[id] = srv.Name
		if srv.Manual {
			continue
		}
		if err := eng.Connect(id); err != nil {
			log.Errorf("failed to connect to %s: %v", srv.Name, err)
		}
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range eng.Events() {
			printEvent(names[ev.ServerID], ev)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if err := eng.Input(eng.Focus(), line); err != nil {
				log.Debugf("input %q: %v", line, err)
			}
		}
	}

	log.Info("shutting down")
	if err := eng.Close(); err != nil {
		log.Errorf("failed to close history: %v", err)
	}
	<-printed
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
		created, err := config.EnsureFile(path)
		if err != nil {
			return nil, err
		}
		if created {
			log.Infof("wrote a sample configuration to %s", path)
		}
	}
	return config.Load(path)
}

func setupLogging(conf *config.Config) (func(), error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level := log.InfoLevel
	if conf.LogLevel != "" {
		var err error
		if level, err = log.ParseLevel(conf.LogLevel); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}
	if conf.Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if conf.LogFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(conf.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	return func() { f.Close() }, nil
}

func openHistory(conf *config.Config) (history.Store, error) {
	if conf.History.Backend != config.HistoryRedis {
		return history.NewMemoryStore(conf.History.Size), nil
	}
	store, err := history.NewRedisStore(conf.History.RedisURL, conf.History.Size)
	if err != nil {
		return nil, err
	}
	log.Infof("recording history in redis")
	return store, nil
}

func followHistory(ctx context.Context, store history.Store) error {
	defer store.Close()
	rs, ok := store.(*history.RedisStore)
	if !ok {
		return errors.New("--follow needs the redis history backend")
	}
	events, err := rs.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		printEvent(ev.ServerID, ev)
	}
	return nil
}

func printEvent(server string, ev event.DisplayEvent) {
	ts := ev.Time.Format("15:04:05")
	if ev.Kind == event.Focus {
		target := ev.Target
		if target == "" {
			target = "*"
		}
		fmt.Printf("%s %s: now talking in %s\n", ts, server, target)
		return
	}
	fmt.Printf("%s %s %s\n", ts, server, ev)
}
