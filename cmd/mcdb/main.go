package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/mcdb"
	"github.com/unkn0wn-root/mcdb/codec"
	"github.com/unkn0wn-root/mcdb/config"
	mcdbzap "github.com/unkn0wn-root/mcdb/log/zap"
	"github.com/unkn0wn-root/mcdb/topology"
)

var rootCmd = &cobra.Command{
	Use:           "mcdb",
	Short:         "Inspect and operate memcache / SSDB servers through the mcdb adapter",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("config", "", "YAML config file (namespace, protocol, servers, lib_options, ttl)")
	configFlags.String("protocol", "", "backend protocol: memcache, ssdb or bigcache")
	configFlags.String("servers", "", "comma-separated servers, e.g. \"a:11211?type=master,b\"")
	configFlags.String("namespace", "", "key prefix")
	configFlags.Duration("ttl", 0, "expiry for written values (0 = none)")
	configFlags.Duration("timeout", 5*time.Second, "overall deadline of the command")
	configFlags.String("log-level", "warn", "the log level to run at")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("mcdb")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(
		serversCmd(),
		getCmd(),
		setCmd(),
		deleteCmd(),
		counterCmd("incr", "Increment a counter, creating it at delta", true),
		counterCmd("decr", "Decrement a counter, creating it at -delta", false),
		statsCmd(),
		flushCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// loadOptions merges the config file with flags and MCDB_* environment
// variables; explicit values win over the file.
func loadOptions() (mcdb.Options[string], error) {
	c := &config.Config{Protocol: config.DefaultProtocol}
	if path := viper.GetString("config"); path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return mcdb.Options[string]{}, err
		}
	}
	if p := viper.GetString("protocol"); p != "" {
		c.Protocol = strings.ToLower(p)
	}
	if ns := viper.GetString("namespace"); ns != "" {
		c.Namespace = ns
	}
	if ttl := viper.GetDuration("ttl"); ttl != 0 {
		c.TTL = config.TTL(ttl)
	}
	if s := viper.GetString("servers"); s != "" {
		c.Servers = topology.Servers{topology.List(s)}
	}

	opts, err := config.Options[string](c)
	if err != nil {
		return opts, err
	}
	opts.Codec = codec.String{}
	return opts, nil
}

// withCache runs fn against a freshly configured adapter.
func withCache(fn func(ctx context.Context, c mcdb.Cache[string]) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts, err := loadOptions()
	if err != nil {
		return err
	}
	opts.Logger = mcdbzap.ZapLogger{L: log}

	cache, err := mcdb.New[string](opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()
	defer func() { _ = cache.Close(context.Background()) }()

	return fn(ctx, cache)
}
