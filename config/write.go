package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Write renders c as hcl that Read parses back to equal Config.
func (c *Config) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "concentrator {\n  host = %s\n  port = %d\n}\n", strconv.Quote(c.Concentrator.Host), c.Concentrator.Port)
	for _, s := range c.Sources {
		fmt.Fprintf(bw, "\nsource %s {\n  kind = %s\n", strconv.Quote(s.Name), strconv.Quote(s.Kind))
		if s.Device != "" {
			fmt.Fprintf(bw, "  device = %s\n", strconv.Quote(s.Device))
			if s.Baud != 0 {
				fmt.Fprintf(bw, "  baud = %d\n", s.Baud)
			}
		} else {
			if s.Host != "" {
				fmt.Fprintf(bw, "  host = %s\n", strconv.Quote(s.Host))
			}
			fmt.Fprintf(bw, "  port = %d\n", s.Port)
		}
		if s.MagneticDeclination != nil {
			fmt.Fprintf(bw, "  magnetic_declination = %s\n", formatFloat(*s.MagneticDeclination))
		}
		if s.Separator != "" {
			fmt.Fprintf(bw, "  separator = %s\n", strconv.Quote(s.Separator))
		}
		if s.ReadLimit != 0 {
			fmt.Fprintf(bw, "  read_limit = %d\n", s.ReadLimit)
		}
		bw.WriteString("}\n")
	}

	f := c.Forward
	if f != (Config{}).Forward {
		bw.WriteString("\nforward {\n")
		writeInt(bw, "buffer", f.Buffer)
		writeInt(bw, "backoff_min_ms", f.BackoffMinMs)
		writeInt(bw, "backoff_max_sec", f.BackoffMaxSec)
		writeInt(bw, "dial_timeout_ms", f.DialTimeoutMs)
		writeInt(bw, "write_timeout_ms", f.WriteTimeoutMs)
		writeInt(bw, "flush_timeout_ms", f.FlushTimeoutMs)
		bw.WriteString("}\n")
	}
	if c.Metrics.Listen != "" {
		fmt.Fprintf(bw, "\nmetrics {\n  listen = %s\n}\n", strconv.Quote(c.Metrics.Listen))
	}
	if c.Mirror.Broker != "" {
		fmt.Fprintf(bw, "\nmirror {\n  broker = %s\n", strconv.Quote(c.Mirror.Broker))
		if c.Mirror.TopicPrefix != "" {
			fmt.Fprintf(bw, "  topic_prefix = %s\n", strconv.Quote(c.Mirror.TopicPrefix))
		}
		if c.Mirror.ClientID != "" {
			fmt.Fprintf(bw, "  client_id = %s\n", strconv.Quote(c.Mirror.ClientID))
		}
		bw.WriteString("}\n")
	}
	if c.Log.File != "" || c.Log.Debug {
		bw.WriteString("\nlog {\n")
		if c.Log.File != "" {
			fmt.Fprintf(bw, "  file = %s\n", strconv.Quote(c.Log.File))
		}
		fmt.Fprintf(bw, "  debug = %t\n", c.Log.Debug)
		bw.WriteString("}\n")
	}
	return bw.Flush()
}

func writeInt(w io.Writer, key string, v int) {
	if v != 0 {
		fmt.Fprintf(w, "  %s = %d\n", key, v)
	}
}

// always with decimal point, hcl reads "1" as integer
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for _, r := range s {
		if r == '.' {
			return s
		}
	}
	return s + ".0"
}
