package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/cmd/nmeaproxy/subcmd"
	"github.com/temoto/nmeaproxy/config"
	"github.com/temoto/nmeaproxy/log2"
	"github.com/temoto/nmeaproxy/mirror"
	"github.com/temoto/nmeaproxy/proxy"
)

const defaultConfigName = "nmeaproxy.hcl"

var runMod = subcmd.Mod{
	Name:  "run",
	Usage: "-config FILE [-debug]  start the proxy",
	Main:  runMain,
}

func runMain(ctx context.Context, log *log2.Log, args []string) error {
	cmdline := flag.NewFlagSet("run", flag.ContinueOnError)
	flagConfig := cmdline.String("config", defaultConfigName, "config file")
	flagDebug := cmdline.Bool("debug", false, "debug logging")
	if err := cmdline.Parse(args); err != nil {
		return err
	}
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}

	cfg, err := config.ReadFile(log, *flagConfig)
	if err != nil {
		return err
	}
	if cfg.Log.Debug {
		log.SetLevel(log2.LDebug)
	}

	f, err := os.OpenFile(logFilePath(cfg), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &config.Error{Source: *flagConfig, Err: errors.Annotate(err, "log file")}
	}
	defer f.Close()
	flog := log2.NewWriter(io.MultiWriter(os.Stderr, f), log.Level())
	flog.SetFlags(log2.LStdFlags)
	flog.Infof("nmeaproxy starting config=%s log=%s", *flagConfig, f.Name())
	flog.Debugf("config=%+v", cfg)

	mirror.SetLibraryLog(flog, cfg.Log.Debug || *flagDebug)
	return proxy.New(cfg, flog).Run(ctx)
}

// logFilePath is log.file or default name in temp dir.
func logFilePath(cfg *config.Config) string {
	if cfg != nil && cfg.Log.File != "" {
		return cfg.Log.File
	}
	return filepath.Join(os.TempDir(), config.DefaultLogFile)
}
