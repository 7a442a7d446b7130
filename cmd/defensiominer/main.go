// Command defensiominer runs either role of the mining fleet — miner or
// submitter — selected by the instance_id argument, against a shared
// Mongo-backed document store (spec.md §4.1, §4.6).
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/naoina/toml"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/defensio-labs/coredrill/internal/domain"
	"github.com/defensio-labs/coredrill/internal/minerrole"
	"github.com/defensio-labs/coredrill/internal/stats"
	"github.com/defensio-labs/coredrill/internal/store"
	"github.com/defensio-labs/coredrill/internal/submitter"
	"github.com/defensio-labs/coredrill/internal/sysinfo"
	"github.com/defensio-labs/coredrill/internal/xlog"
)

var log = xlog.New("main")

const (
	defaultMongoDB   = "defensio"
	defaultBaseURL   = "https://api.example.invalid"
	minerBackoff     = 100 * time.Millisecond
	requiredRomBytes = 1 << 30 // 1 GiB, spec.md §3's ROM memory preflight
)

// tomlSettings mirrors the teacher's config loader: TOML keys map directly
// onto Go struct field names, with no case folding.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// fileConfig is the on-disk shape loaded by --config: process-level
// settings (database name, collection names, and a base URL that is used
// only when the instance's Config document has no base_url). It never
// overrides a field of the stored domain.Config (spec.md §6).
type fileConfig struct {
	MongoDB string
	BaseURL string
	Collections store.Collections
}

func loadConfig(path string, cfg *fileConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

func main() {
	app := cli.NewApp()
	app.Name = "defensiominer"
	app.Usage = "proof-of-work mining fleet: miner and submitter roles over a shared document store"
	app.Version = "0.1.0"
	app.ArgsUsage = "instance_id"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file"},
		cli.StringFlag{Name: "mongo-db", Usage: "Mongo database name", Value: defaultMongoDB},
		cli.StringFlag{Name: "base-url", Usage: "upstream challenge/solution API base URL", Value: defaultBaseURL},
		cli.StringFlag{Name: "debug-addr", Usage: "address to serve the read-only /stats endpoint on (empty disables it)"},
		cli.IntFlag{Name: "verbosity", Usage: "log verbosity, 0 (crit) through 5 (trace)", Value: int(xlog.LevelInfo)},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Crit("fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	xlog.SetLevel(xlog.Level(c.Int("verbosity")))

	instanceID := c.Args().First()
	if instanceID == "" {
		return errors.New("missing required argument: instance_id")
	}

	mongoURL := os.Getenv("MONGO_URL")
	if mongoURL == "" {
		return errors.New("MONGO_URL environment variable is required")
	}

	fcfg := fileConfig{MongoDB: c.String("mongo-db"), BaseURL: c.String("base-url")}
	if path := c.String("config"); path != "" {
		if err := loadConfig(path, &fcfg); err != nil {
			return fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, mongoURL, fcfg.MongoDB, fcfg.Collections)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer st.Close(context.Background())

	cfg, err := st.FetchConfig(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("loading config for instance %s: %w", instanceID, err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fcfg.BaseURL
	}

	ledger := &stats.Ledger{}
	scratch := &stats.Scratch{}

	if addr := c.String("debug-addr"); addr != "" {
		go func() {
			log.Info("serving debug stats endpoint", "addr", addr)
			if err := http.ListenAndServe(addr, stats.NewDebugHandler(ledger, scratch)); err != nil {
				log.Error("debug endpoint stopped", "err", err)
			}
		}()
	}

	stopMonitor := make(chan struct{})
	monitor := stats.NewMonitor(ledger, scratch, nil)
	go monitor.Run(stopMonitor)
	defer close(stopMonitor)

	if isSubmitterInstance(instanceID) {
		return runSubmitter(ctx, st, cfg)
	}
	return runMiner(ctx, st, cfg, ledger, scratch)
}

// isSubmitterInstance implements spec.md §4.6's role-selection rule: an
// instance_id prefixed "submitter" runs the submitter role, everything
// else runs the miner role.
func isSubmitterInstance(instanceID string) bool {
	return strings.HasPrefix(instanceID, "submitter")
}

func runSubmitter(ctx context.Context, st *store.Store, cfg domain.Config) error {
	sub := submitter.New(st, cfg.BaseURL)
	log.Info("running submitter role", "base_url", cfg.BaseURL)
	return sub.Run(ctx)
}

func runMiner(ctx context.Context, st *store.Store, cfg domain.Config, ledger *stats.Ledger, scratch *stats.Scratch) error {
	threads, err := sysinfo.ResolveThreads(cfg.NumThreads)
	if err != nil {
		// spec.md §7: a parallelism-probe failure at startup is fatal.
		return fmt.Errorf("resolving thread count: %w", err)
	}
	cfg.NumThreads = threads

	if _, ok, err := sysinfo.CheckFreeMemory(requiredRomBytes); err != nil {
		log.Warn("free memory preflight failed", "err", err)
	} else if !ok {
		log.Warn("free memory below the ROM footprint estimate; continuing anyway")
	}

	session := minerrole.NewSession(st, cfg)
	session.Ledger = ledger
	session.Scratch = scratch

	log.Info("running miner role", "instance_id", cfg.InstanceID, "threads", threads)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := session.Run(ctx); err != nil {
			log.Error("miner session failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(minerBackoff):
		}
	}
}
