// tickprefs is the operational shell around the client core: it wires
// the KV backend, token store, request gateway and preference engine,
// and exposes preference inspection/mutation from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/backends"
	redisbackend "github.com/phannyngoun1/hello-ticket-sub011/internal/backends/redis"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/cache"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/gateway"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/lookup"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/ports"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/prefs"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

func main() {
	configPath := flag.String("config", "client.yml", "path to the client config file")
	forceReload := flag.Bool("reload", false, "force a server fetch on initialize")
	flag.Parse()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Info("The .env file not found.")
	}

	cfg, err := types.LoadClientConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	kvBackend, err := backends.KVBackendFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize KV backend: %v", err)
	}
	store := kv.New(kvBackend)
	defer func() {
		_ = store.Close()
	}()

	signals := gateway.NewSignalBus(cfg.GracePeriod())
	signals.OnSessionExpired(func() {
		log.Warn("session expired; re-authenticate and retry")
	})
	signals.OnForbidden(func(message string) {
		log.Warnf("forbidden: %s", message)
	})

	tokens := gateway.NewTokenStore(store)
	ctx := context.Background()
	tokens.Load(ctx)

	broker := gateway.NewBroker(tokens, signals)
	gw := gateway.New(cfg, nil, tokens, broker, signals)

	var bcast ports.Broadcaster
	if os.Getenv(backends.KVBackendEnvKey) == backends.BackendRedis {
		redisClient, err := backends.RedisClientFromEnv()
		if err != nil {
			log.Fatalf("Failed to connect broadcast Redis: %v", err)
		}
		bcast = redisbackend.NewBroadcaster(redisClient)
	}

	svc := prefs.NewService(cfg, store, gw, bcast)
	if err := svc.Initialize(ctx, *forceReload); err != nil {
		log.WithError(err).Warn("initialize fell back to the local cache")
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "show":
		printJSON(svc.GetAll())

	case "get":
		if len(args) < 2 {
			usage()
		}
		v, ok := svc.Get(splitPath(args[1])...)
		if !ok {
			log.Fatalf("no value at %s", args[1])
		}
		printJSON(v)

	case "set":
		if len(args) < 3 {
			usage()
		}
		var value any
		if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
			value = args[2] // plain string
		}
		if err := svc.SetNow(ctx, splitPath(args[1]), value); err != nil {
			log.Fatalf("Failed to set %s: %v", args[1], err)
		}

	case "remove":
		if len(args) < 2 {
			usage()
		}
		if err := svc.RemoveNow(ctx, splitPath(args[1])...); err != nil {
			log.Fatalf("Failed to remove %s: %v", args[1], err)
		}

	case "sync":
		if err := svc.Flush(ctx); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Infof("synced, %d change(s) still pending", svc.Pending())

	case "lookup":
		if len(args) < 2 {
			usage()
		}
		lk := lookup.New(gw, cache.NewRegistry(store), 0)
		v, err := lk.Get(ctx, args[1])
		if err != nil {
			log.Fatalf("Failed to fetch lookup %s: %v", args[1], err)
		}
		printJSON(v)

	default:
		usage()
	}
}

func splitPath(dotted string) []string {
	return strings.Split(dotted, ".")
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tickprefs [--config client.yml] [--reload] show|get <path>|set <path> <value>|remove <path>|sync|lookup <name>")
	os.Exit(2)
}
