// Package proxy wires configured sources to the concentrator forwarder,
// with optional metrics endpoint and MQTT mirror.
package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/config"
	"github.com/temoto/nmeaproxy/forward"
	"github.com/temoto/nmeaproxy/listen"
	"github.com/temoto/nmeaproxy/log2"
	"github.com/temoto/nmeaproxy/metrics"
	"github.com/temoto/nmeaproxy/mirror"
	"github.com/temoto/nmeaproxy/nmea"
)

type Proxy struct {
	cfg   *config.Config
	log   *log2.Log
	ready chan struct{}

	// SdNotify is replaced in tests.
	SdNotify func(state string) (bool, error)
	// Dial is passed to forwarder, nil means net.Dialer.
	Dial forward.DialFunc

	mu      sync.RWMutex
	fwd     *forward.Forwarder
	lm      *listen.Manager
	mirror  *mirror.Mirror
	metrics *metrics.Server
}

func New(cfg *config.Config, log *log2.Log) *Proxy {
	return &Proxy{
		cfg:      cfg,
		log:      log,
		ready:    make(chan struct{}),
		SdNotify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

// Ready is closed when every component is started.
func (p *Proxy) Ready() <-chan struct{} { return p.ready }

// Run starts everything, blocks until ctx is done, then shuts down in order:
// listeners, forwarder flush, mirror, metrics.
// Only *config.Error and *listen.BindError are returned.
func (p *Proxy) Run(ctx context.Context) error {
	if err := p.start(); err != nil {
		return err
	}
	if ok, err := p.SdNotify(daemon.SdNotifyReady); err != nil {
		p.log.Errorf("proxy: sd_notify err=%v", err)
	} else if ok {
		p.log.Debugf("proxy: sd_notify ready")
	}
	close(p.ready)
	p.log.Infof("proxy: running sources=%d concentrator=%s", len(p.cfg.Sources), p.cfg.ConcentratorAddr())

	<-ctx.Done()
	p.log.Infof("proxy: shutdown requested")
	_, _ = p.SdNotify(daemon.SdNotifyStopping)
	p.stop()
	return nil
}

func (p *Proxy) start() error {
	sources := make([]listen.Source, 0, len(p.cfg.Sources))
	for i := range p.cfg.Sources {
		src, err := p.cfg.Sources[i].Build()
		if err != nil {
			return &config.Error{Source: p.cfg.Sources[i].Name, Err: err}
		}
		sources = append(sources, src)
	}

	fopt := p.cfg.ForwardOptions(p.log)
	fopt.Dial = p.Dial
	fwd, err := forward.New(fopt)
	if err != nil {
		return &config.Error{Err: errors.Annotate(err, "forward")}
	}

	var mir *mirror.Mirror
	if p.cfg.Mirror.Broker != "" {
		mir, err = mirror.New(mirror.Options{
			Broker:      p.cfg.Mirror.Broker,
			TopicPrefix: p.cfg.Mirror.TopicPrefix,
			ClientID:    p.cfg.Mirror.ClientID,
			Log:         p.log,
		})
		if err != nil {
			p.closeForwarder(fwd)
			return &config.Error{Err: errors.Annotate(err, "mirror")}
		}
	}
	p.mu.Lock()
	p.fwd, p.mirror = fwd, mir
	p.mu.Unlock()

	lm, err := listen.Start(context.Background(), listen.Options{Log: p.log, Sink: p}, sources)
	if err != nil {
		p.stop()
		return err
	}
	p.mu.Lock()
	p.lm = lm
	p.mu.Unlock()

	if p.cfg.Metrics.Listen != "" {
		src := metrics.Sources{Sources: lm.Stats, Forward: fwd.Stats}
		if mir != nil {
			src.Mirror = p.mirrorStats
		}
		reg := metrics.NewRegistry(src)
		ms, err := metrics.Listen(p.cfg.Metrics.Listen, reg, p.log)
		if err != nil {
			p.stop()
			return &listen.BindError{Source: "metrics", Addr: p.cfg.Metrics.Listen, Err: err}
		}
		p.mu.Lock()
		p.metrics = ms
		p.mu.Unlock()
	}
	return nil
}

func (p *Proxy) stop() {
	// listeners first, frames read until then still go to forwarder
	p.mu.Lock()
	lm := p.lm
	p.lm = nil
	p.mu.Unlock()
	if lm != nil {
		lm.Stop()
	}

	p.mu.Lock()
	fwd, mir, ms := p.fwd, p.mirror, p.metrics
	p.fwd, p.mirror, p.metrics = nil, nil, nil
	p.mu.Unlock()
	if fwd != nil {
		p.closeForwarder(fwd)
	}
	if mir != nil {
		mir.Close()
	}
	if ms != nil {
		if err := ms.Close(); err != nil {
			p.log.Errorf("proxy: metrics close err=%v", err)
		}
	}
}

func (p *Proxy) closeForwarder(fwd *forward.Forwarder) {
	if err := fwd.Close(context.Background()); err != nil {
		p.log.Errorf("proxy: %v", err)
	}
	p.log.Infof("proxy: forward %s", fwd.Stats().String())
}

// Submit implements listen.Sink.
func (p *Proxy) Submit(source string, frame nmea.Frame) {
	p.mu.RLock()
	fwd, mir := p.fwd, p.mirror
	p.mu.RUnlock()
	if fwd == nil {
		return
	}
	if p.log.Enabled(log2.LDebug) {
		p.log.Debugf("proxy: source=%s frame=%q", source, frame)
	}
	if err := fwd.Submit(frame); err != nil {
		// only ErrClosing, during shutdown
		p.log.Debugf("proxy: source=%s submit err=%v", source, err)
		return
	}
	if mir != nil {
		mir.Submit(source, frame)
	}
}

// Addrs returns bound address of each TCP source, metrics under key "metrics".
func (p *Proxy) Addrs() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	addrs := map[string]string{}
	if p.lm != nil {
		addrs = p.lm.Addrs()
	}
	if p.metrics != nil {
		addrs["metrics"] = p.metrics.Addr()
	}
	return addrs
}

func (p *Proxy) ForwardStats() forward.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.fwd == nil {
		return forward.Stats{}
	}
	return p.fwd.Stats()
}

func (p *Proxy) SourceStats() []listen.SourceStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lm == nil {
		return nil
	}
	return p.lm.Stats()
}

func (p *Proxy) mirrorStats() metrics.MirrorStats {
	p.mu.RLock()
	mir := p.mirror
	p.mu.RUnlock()
	if mir == nil {
		return metrics.MirrorStats{}
	}
	s := mir.Stats()
	return metrics.MirrorStats{Published: s.Published, Errors: s.Errors}
}

func (p *Proxy) String() string {
	return fmt.Sprintf("proxy sources=%d concentrator=%s", len(p.cfg.Sources), p.cfg.ConcentratorAddr())
}
