package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/cmd/nmeaproxy/subcmd"
	"github.com/temoto/nmeaproxy/config"
	"github.com/temoto/nmeaproxy/log2"
)

var logMod = subcmd.Mod{
	Name:  "log",
	Usage: "[-config FILE] [-n 10]  show last lines of the log file",
	Main:  logMain,
}

func logMain(ctx context.Context, log *log2.Log, args []string) error {
	cmdline := flag.NewFlagSet("log", flag.ContinueOnError)
	flagConfig := cmdline.String("config", "", "config file, for log.file")
	flagLines := cmdline.Int("n", 10, "number of lines")
	if err := cmdline.Parse(args); err != nil {
		return err
	}

	var cfg *config.Config
	if *flagConfig != "" {
		var err error
		if cfg, err = config.ReadFile(log, *flagConfig); err != nil {
			return err
		}
	}
	path := logFilePath(cfg)
	f, err := os.Open(path)
	if err != nil {
		return errors.Annotatef(err, "log file=%s", path)
	}
	defer f.Close()
	lines, err := tail(f, *flagLines)
	if err != nil {
		return errors.Annotatef(err, "log file=%s", path)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func tail(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	for s.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, s.Text())
	}
	return ring, s.Err()
}
