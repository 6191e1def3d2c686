// Package mirror copies forwarded frames to MQTT topic per source,
// for remote monitoring. Mirror never slows down or blocks forwarding:
// frames are dropped when broker is offline or slow.
package mirror

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nmeaproxy/log2"
	"github.com/temoto/nmeaproxy/nmea"
)

const (
	DefaultQueue          = 256
	defaultNetworkTimeout = 5 * time.Second
	disconnectQuiesceMs   = 250
)

// Client is the subset of mqtt.Client used by Mirror.
type Client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Options struct {
	Broker      string // tcp://host:1883
	TopicPrefix string
	ClientID    string
	Queue       int
	Log         *log2.Log
}

type Stats struct {
	Published uint64
	Errors    uint64
	Dropped   uint64
}

type Mirror struct {
	published uint64 // atomic align
	errors    uint64
	dropped   uint64

	alive   *alive.Alive
	log     *log2.Log
	client  Client
	prefix  string
	timeout time.Duration
	ch      chan item
}

type item struct {
	source string
	frame  nmea.Frame
}

// SetLibraryLog routes paho package loggers into log.
// These are process globals, call once before New.
func SetLibraryLog(log *log2.Log, debug bool) {
	if log == nil {
		return
	}
	mqttLog := log.Clone(log2.LDebug)
	mqttLog.SetPrefix("mqtt: ")
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if debug {
		mqtt.DEBUG = mqttLog
	}
}

// New creates paho client for opt.Broker and starts connecting in background.
func New(opt Options) (*Mirror, error) {
	if opt.Broker == "" {
		return nil, errors.NotValidf("mirror broker empty")
	}
	if opt.ClientID == "" {
		opt.ClientID = fmt.Sprintf("nmeaproxy-%d", time.Now().UnixNano()%1e6)
	}
	mopt := mqtt.NewClientOptions().
		AddBroker(opt.Broker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(opt.ClientID).
		SetConnectTimeout(defaultNetworkTimeout).
		SetKeepAlive(30 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetPingTimeout(defaultNetworkTimeout).
		SetWriteTimeout(defaultNetworkTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			opt.Log.Errorf("mirror: broker=%s connection lost: %v", opt.Broker, err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			opt.Log.Infof("mirror: connected broker=%s", opt.Broker)
		})
	return NewWithClient(mqtt.NewClient(mopt), opt), nil
}

func NewWithClient(client Client, opt Options) *Mirror {
	if opt.Queue <= 0 {
		opt.Queue = DefaultQueue
	}
	m := &Mirror{
		alive:   alive.NewAlive(),
		log:     opt.Log,
		client:  client,
		prefix:  opt.TopicPrefix,
		timeout: defaultNetworkTimeout,
		ch:      make(chan item, opt.Queue),
	}
	m.alive.Add(2)
	go m.connect()
	go m.worker()
	return m
}

func (m *Mirror) Topic(source string) string {
	if m.prefix == "" {
		return source
	}
	return m.prefix + "/" + source
}

// Submit never blocks.
func (m *Mirror) Submit(source string, frame nmea.Frame) {
	if !m.alive.IsRunning() {
		return
	}
	select {
	case m.ch <- item{source, frame}:
	default:
		atomic.AddUint64(&m.dropped, 1)
	}
}

func (m *Mirror) Stats() Stats {
	return Stats{
		Published: atomic.LoadUint64(&m.published),
		Errors:    atomic.LoadUint64(&m.errors),
		Dropped:   atomic.LoadUint64(&m.dropped),
	}
}

func (m *Mirror) Close() {
	m.alive.Stop()
	m.alive.Wait()
	m.client.Disconnect(disconnectQuiesceMs)
	m.log.Debugf("mirror: closed %+v", m.Stats())
}

// connect retries initial connection, paho reconnects by itself after that.
func (m *Mirror) connect() {
	defer m.alive.Done()
	for m.alive.IsRunning() {
		if m.tokenWait(m.client.Connect(), "connect") == nil {
			return
		}
		select {
		case <-time.After(time.Second):
		case <-m.alive.StopChan():
			return
		}
	}
}

func (m *Mirror) worker() {
	defer m.alive.Done()
	for {
		select {
		case it := <-m.ch:
			m.publish(it)
		case <-m.alive.StopChan():
			return
		}
	}
}

func (m *Mirror) publish(it item) {
	if !m.client.IsConnected() {
		atomic.AddUint64(&m.dropped, 1)
		return
	}
	t := m.client.Publish(m.Topic(it.source), 0, false, []byte(it.frame))
	if err := m.tokenWait(t, "publish"); err != nil {
		atomic.AddUint64(&m.errors, 1)
		return
	}
	atomic.AddUint64(&m.published, 1)
}

func (m *Mirror) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(m.timeout) {
		err := errors.Errorf("%s timeout", tag)
		m.log.Errorf("mirror: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		m.log.Errorf("mirror: MQTT %s", err.Error())
		return err
	}
	return nil
}
