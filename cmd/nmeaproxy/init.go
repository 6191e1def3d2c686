package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/cmd/nmeaproxy/subcmd"
	"github.com/temoto/nmeaproxy/config"
	"github.com/temoto/nmeaproxy/helpers/cli"
	"github.com/temoto/nmeaproxy/log2"
)

const firstDefaultPort = 8500

var initMod = subcmd.Mod{
	Name:  "init",
	Usage: "generate config file, asks questions on terminal",
	Main:  initMain,
}

func initMain(ctx context.Context, log *log2.Log, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	a := cli.NewStdio()
	a.Printf("This will generate the config file.\n")
	cfg, err := askConfig(a)
	if err != nil {
		return err
	}
	path, err := saveConfig(a, cfg, filepath.Join(home, defaultConfigName))
	if err != nil {
		return err
	}
	a.Printf("Config file saved.\nNow you can start the proxy by running:\nnmeaproxy run -config %s\n", strconv.Quote(path))
	return nil
}

func askConfig(a *cli.Asker) (*config.Config, error) {
	used := make([]int, 0, 3)
	askHost := func(question, def string) (string, error) {
		return a.AskValid(question, def, func(s string) error { return config.CheckHost("ip", s) })
	}
	askPort := func(question string) (int, error) {
		def := firstDefaultPort
		if len(used) != 0 {
			def = used[len(used)-1] + 1
		}
		var port int
		_, err := a.AskValid(question, strconv.Itoa(def), func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return errors.NotValidf("port must be a number between 1 and 65535, %q", s)
			}
			if err = config.CheckPort("port", n); err != nil {
				return err
			}
			for _, u := range used {
				if u == n {
					return errors.NotValidf("port %d already used", n)
				}
			}
			port = n
			return nil
		})
		if err == nil {
			used = append(used, port)
		}
		return port, err
	}

	c := &config.Config{}
	var err error
	if c.Concentrator.Host, err = askHost("IP of the NMEA concentrator", "127.0.0.1"); err != nil {
		return nil, err
	}
	if c.Concentrator.Port, err = askPort("Port of the NMEA concentrator"); err != nil {
		return nil, err
	}

	optiplex := config.Source{Name: "optiplex", Kind: "optiplex"}
	if optiplex.Host, err = askHost("IP for incoming Optiplex messages", config.DefaultListenHost); err != nil {
		return nil, err
	}
	if optiplex.Port, err = askPort("Port for incoming Optiplex messages"); err != nil {
		return nil, err
	}

	aanderaa := config.Source{Name: "aanderaa", Kind: "flow"}
	if aanderaa.Host, err = askHost("IP for incoming Aanderaa messages", config.DefaultListenHost); err != nil {
		return nil, err
	}
	if aanderaa.Port, err = askPort("Port for incoming Aanderaa messages"); err != nil {
		return nil, err
	}
	var decl float64
	_, err = a.AskValid("Magnetic declination for the Aanderaa sensor", "-0.5", func(s string) error {
		d, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.NotValidf("magnetic declination must be a number between -50 and 50, %q", s)
		}
		decl = d
		return config.CheckDeclination("aanderaa", &d)
	})
	if err != nil {
		return nil, err
	}
	aanderaa.MagneticDeclination = &decl

	c.Sources = []config.Source{optiplex, aanderaa}
	if err = c.Validate(); err != nil {
		return nil, &config.Error{Err: err}
	}
	return c, nil
}

// saveConfig asks for path until write succeeds, existing file needs confirmation.
func saveConfig(a *cli.Asker, c *config.Config, def string) (string, error) {
	for {
		path := a.Ask("Where to save the file", def)
		if _, err := os.Stat(path); err == nil {
			if !a.Confirm("File already exists. Overwrite?", true) {
				continue
			}
		}
		err := writeConfigFile(c, path)
		if err == nil {
			return path, nil
		}
		a.Printf("Cannot write a file to '%s': %v\n", path, err)
		if path == def {
			return "", err
		}
	}
}

func writeConfigFile(c *config.Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err = c.Write(f); err != nil {
		_ = f.Close()
		return errors.Annotatef(err, "write %s", path)
	}
	return errors.Trace(f.Close())
}
