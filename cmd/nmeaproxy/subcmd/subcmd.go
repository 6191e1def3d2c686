// Support sub-commands in nmeaproxy application.
// It's simple but fine so far.
package subcmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/coreos/go-systemd/daemon"
	"github.com/temoto/nmeaproxy/log2"
)

type Mod struct {
	Name  string
	Usage string
	Main  func(ctx context.Context, log *log2.Log, args []string) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

func Usage(w io.Writer, program string, modules []Mod) {
	fmt.Fprintf(w, "usage: %s COMMAND [flags]\n\ncommands:\n", program)
	for _, m := range modules {
		fmt.Fprintf(w, "  %-18s %s\n", m.Name, strings.TrimSpace(m.Usage))
	}
}

// SdNotify returns true when running under systemd with notify socket.
func SdNotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Errorf("sdnotify: %v", err)
	}
	return ok
}
