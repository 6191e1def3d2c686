package main

import (
	"context"
	"flag"
	"net"
	"strconv"

	"github.com/coreos/go-systemd/daemon"
	"github.com/temoto/nmeaproxy/cmd/nmeaproxy/subcmd"
	"github.com/temoto/nmeaproxy/log2"
	"github.com/temoto/nmeaproxy/sim"
)

var fakeConcentratorMod = subcmd.Mod{
	Name:  "fakeconcentrator",
	Usage: "[-port 8500] [-dump FILE]  receive and dump proxy output",
	Main:  fakeConcentratorMain,
}

var fakeSensorMod = subcmd.Mod{
	Name:  "fakesensor",
	Usage: "-kind aanderaa|optiplex -addr HOST:PORT [-data FILE] [-interval 1s]  send sample readings",
	Main:  fakeSensorMain,
}

func fakeConcentratorMain(ctx context.Context, log *log2.Log, args []string) error {
	cmdline := flag.NewFlagSet("fakeconcentrator", flag.ContinueOnError)
	flagHost := cmdline.String("host", "127.0.0.1", "listen host")
	flagPort := cmdline.Int("port", 8500, "listen port")
	flagDump := cmdline.String("dump", sim.DefaultDumpPath(), "append received data to file, empty to disable")
	if err := cmdline.Parse(args); err != nil {
		return err
	}

	fc, err := sim.NewFakeConcentrator(sim.ConcentratorOptions{
		Listen:   net.JoinHostPort(*flagHost, strconv.Itoa(*flagPort)),
		DumpPath: *flagDump,
		Log:      log,
	})
	if err != nil {
		return err
	}
	subcmd.SdNotify(log, daemon.SdNotifyReady)
	<-ctx.Done()
	return fc.Close()
}

func fakeSensorMain(ctx context.Context, log *log2.Log, args []string) error {
	cmdline := flag.NewFlagSet("fakesensor", flag.ContinueOnError)
	flagKind := cmdline.String("kind", sim.SensorAanderaa, "aanderaa or optiplex")
	flagAddr := cmdline.String("addr", "127.0.0.1:8502", "proxy source host:port")
	flagData := cmdline.String("data", "", "data file, one reading per line, default built-in samples")
	flagInterval := cmdline.Duration("interval", sim.DefaultInterval, "delay between lines")
	flagDebug := cmdline.Bool("debug", false, "log every line sent")
	if err := cmdline.Parse(args); err != nil {
		return err
	}
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}

	lines, err := sim.LoadLines(*flagKind, *flagData)
	if err != nil {
		return err
	}
	fs, err := sim.NewFakeSensor(sim.SensorOptions{
		Kind:     *flagKind,
		Addr:     *flagAddr,
		Lines:    lines,
		Interval: *flagInterval,
		Log:      log,
	})
	if err != nil {
		return err
	}
	log.Infof("fake %s sending to %s every %v", *flagKind, *flagAddr, *flagInterval)
	return fs.Run(ctx)
}
