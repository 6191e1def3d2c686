package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/cmd/nmeaproxy/subcmd"
	"github.com/temoto/nmeaproxy/log2"
)

var modules = []subcmd.Mod{
	runMod,
	initMod,
	logMod,
	fakeConcentratorMod,
	fakeSensorMod,
}

func main() {
	log := log2.NewStderr(log2.LInfo)
	if os.Getenv("NOTIFY_SOCKET") != "" {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	program := filepath.Base(os.Args[0])
	if len(os.Args) < 2 {
		subcmd.Usage(os.Stderr, program, modules)
		os.Exit(2)
	}
	mod, err := subcmd.Parse(os.Args[1], modules)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		subcmd.Usage(os.Stderr, program, modules)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := mod.Main(ctx, log, os.Args[2:]); err != nil {
		log.Errorf("%s: %s", mod.Name, errors.ErrorStack(err))
		stop()
		os.Exit(1)
	}
}
