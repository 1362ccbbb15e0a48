// Package mqtt implements a virtual LoRaWAN protocol stack on top of MQTT.
// Uplinks and join requests are published as JSON events, downlink commands
// are received from a per-device command topic.
package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"math/rand"
	"sync"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/band"
	"github.com/chonal/lora-node/internal/config"
)

// Event types, used in the event topic.
const (
	eventJoin = "join"
	eventUp   = "up"
)

const commandDown = "down"

const (
	eventChanSize    = 10
	disconnectWaitMS = 250
)

// Config holds the MQTT stack configuration.
type Config struct {
	Server               string
	Username             string
	Password             string
	QOS                  uint8
	CleanSession         bool
	ClientID             string
	CACert               string
	TLSCert              string
	TLSKey               string
	EventTopicTemplate   string
	CommandTopicTemplate string
	MaxReconnectInterval time.Duration
	JoinMaxElapsedTime   time.Duration

	DataRate              int
	EnabledUplinkChannels []int
	OTAA                  bool
	ADR                   bool
	ConfirmedNbTrials     int

	AppEUI  lorawan.EUI64
	AppKey  lorawan.AES128Key
	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key
}

// NewConfig returns the MQTT stack Config for the given configuration.
func NewConfig(c config.Config) Config {
	m := c.Backend.MQTT
	return Config{
		Server:                m.Server,
		Username:              m.Username,
		Password:              m.Password,
		QOS:                   m.QOS,
		CleanSession:          m.CleanSession,
		ClientID:              m.ClientID,
		CACert:                m.CACert,
		TLSCert:               m.TLSCert,
		TLSKey:                m.TLSKey,
		EventTopicTemplate:    m.EventTopicTemplate,
		CommandTopicTemplate:  m.CommandTopicTemplate,
		MaxReconnectInterval:  m.MaxReconnectInterval,
		JoinMaxElapsedTime:    m.JoinMaxElapsedTime,
		DataRate:              c.LoRaWAN.DataRate,
		EnabledUplinkChannels: c.LoRaWAN.EnabledUplinkChannels,
		OTAA:                  c.LoRaWAN.OTAA,
		ADR:                   c.LoRaWAN.ADR,
		ConfirmedNbTrials:     c.LoRaWAN.ConfirmedNbTrials,
		AppEUI:                c.LoRaWAN.AppEUI,
		AppKey:                c.LoRaWAN.AppKey,
		DevAddr:               c.LoRaWAN.DevAddr,
		NwkSKey:               c.LoRaWAN.NwkSKey,
		AppSKey:               c.LoRaWAN.AppSKey,
	}
}

type topicData struct {
	DevEUI    lorawan.EUI64
	EventType string
}

type joinEvent struct {
	DevEUI     lorawan.EUI64    `json:"devEUI"`
	JoinEUI    lorawan.EUI64    `json:"joinEUI"`
	DevNonce   lorawan.DevNonce `json:"devNonce"`
	PHYPayload []byte           `json:"phyPayload"`
}

type uplinkEvent struct {
	DevEUI     lorawan.EUI64    `json:"devEUI"`
	DevAddr    *lorawan.DevAddr `json:"devAddr,omitempty"`
	FCnt       uint32           `json:"fCnt"`
	FPort      uint8            `json:"fPort"`
	Confirmed  bool             `json:"confirmed"`
	ADR        bool             `json:"adr"`
	DR         int              `json:"dr"`
	Data       []byte           `json:"data"`
	PHYPayload []byte           `json:"phyPayload,omitempty"`
}

type downlinkCommand struct {
	FPort uint8  `json:"fPort"`
	Data  []byte `json:"data"`
}

// Backend implements a virtual LoRaWAN stack using MQTT.
type Backend struct {
	sync.RWMutex

	wg     sync.WaitGroup
	config Config

	eventTemplate   *template.Template
	commandTemplate *template.Template
	newClient       func(*paho.ClientOptions) paho.Client
	random          *rand.Rand
	initBackOff     backoff.BackOff

	conn         paho.Client
	commandTopic string

	devEUI         lorawan.EUI64
	class          stack.DeviceClass
	region         *band.Region
	maxPayloadSize int
	fCnt           uint32

	events    chan stack.Event
	downlinks chan stack.Indication
	wake      chan struct{}
	pending   *stack.Indication
	timer     *time.Timer
}

// NewBackend creates a new Backend.
func NewBackend(c Config) (*Backend, error) {
	var err error
	b := Backend{
		config:    c,
		newClient: paho.NewClient,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
		class:     stack.ClassA,
		events:    make(chan stack.Event, eventChanSize),
		downlinks: stack.NewDownlinkChan(),
		wake:      make(chan struct{}, 1),
	}
	b.initBackOff = backoff.NewExponentialBackOff()

	b.eventTemplate, err = template.New("event").Parse(b.config.EventTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: parse event template error")
	}

	b.commandTemplate, err = template.New("command").Parse(b.config.CommandTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: parse command template error")
	}

	if b.config.ConfirmedNbTrials < 1 {
		b.config.ConfirmedNbTrials = 1
	}

	return &b, nil
}

// Init implements stack.Stack.
func (b *Backend) Init(devEUI lorawan.EUI64, class stack.DeviceClass, region loraband.Name) error {
	r, err := band.New(region, b.config.DataRate, b.config.EnabledUplinkChannels)
	if err != nil {
		return errors.Wrap(err, "stack/mqtt: init region error")
	}

	mps, err := r.MaxPayloadSize()
	if err != nil {
		return errors.Wrap(err, "stack/mqtt: init region error")
	}

	commandTopic, err := b.topic(b.commandTemplate, topicData{DevEUI: devEUI, EventType: commandDown})
	if err != nil {
		return err
	}

	if b.client() != nil {
		b.disconnect()
	}

	opts, err := b.clientOptions(devEUI)
	if err != nil {
		return err
	}

	conn := b.newClient(opts)

	b.Lock()
	b.conn = conn
	b.devEUI = devEUI
	b.class = class
	b.region = r
	b.maxPayloadSize = mps
	b.commandTopic = commandTopic
	b.fCnt = 0
	b.pending = nil
	b.Unlock()

	b.initBackOff.Reset()

	log.WithFields(log.Fields{
		"dev_eui":          devEUI,
		"class":            class,
		"region":           region,
		"data_rate":        r.DataRate(),
		"max_payload_size": mps,
		"uplink_channels":  r.EnabledUplinkChannels(),
	}).Info("stack/mqtt: stack initialized")

	return nil
}

// Join implements stack.Stack. It connects to the MQTT broker and, in OTAA
// mode, publishes a signed join-request. When Init did not succeed, Join
// returns after the next back-off interval.
func (b *Backend) Join(ctx context.Context) error {
	if b.client() == nil {
		return b.notInitialized(ctx)
	}

	if err := b.connect(ctx); err != nil {
		return errors.Wrap(err, "stack/mqtt: connect error")
	}

	if b.config.OTAA {
		devNonce := lorawan.DevNonce(b.random.Intn(1 << 16))
		phy, err := newJoinRequest(b.config.AppEUI, b.devEUI, devNonce, b.config.AppKey)
		if err != nil {
			return err
		}

		if err := b.publishEvent(eventJoin, b.config.QOS, joinEvent{
			DevEUI:     b.devEUI,
			JoinEUI:    b.config.AppEUI,
			DevNonce:   devNonce,
			PHYPayload: phy,
		}); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"dev_eui": b.devEUI,
		"otaa":    b.config.OTAA,
	}).Info("stack/mqtt: device joined")

	b.emit(stack.EventJoined)
	return nil
}

// MaxPayloadSize implements stack.Stack.
func (b *Backend) MaxPayloadSize() int {
	b.RLock()
	defer b.RUnlock()

	return b.maxPayloadSize
}

// Send implements stack.Stack. Confirmed uplinks are published with QoS 1
// until the broker acknowledges them or the number of trials is exhausted.
func (b *Backend) Send(ctx context.Context, pl stack.Uplink) error {
	if b.client() == nil {
		return errors.New("stack/mqtt: stack is not initialized")
	}

	b.Lock()
	fCnt := b.fCnt
	b.fCnt++
	b.Unlock()

	ev := uplinkEvent{
		DevEUI:    b.devEUI,
		FCnt:      fCnt,
		FPort:     pl.Port,
		Confirmed: pl.Confirmed,
		ADR:       b.config.ADR,
		DR:        b.region.DataRate(),
		Data:      pl.Data,
	}

	if !b.config.OTAA {
		devAddr := b.config.DevAddr
		ev.DevAddr = &devAddr

		phy, err := newDataUp(devAddr, fCnt, pl, b.config.ADR, b.config.NwkSKey, b.config.AppSKey)
		if err != nil {
			return err
		}
		ev.PHYPayload = phy
	}

	qos := b.config.QOS
	trials := 1
	if pl.Confirmed {
		trials = b.config.ConfirmedNbTrials
		if qos < 1 {
			qos = 1
		}
	}

	var err error
	for i := 0; i < trials; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err = b.publishEvent(eventUp, qos, ev); err == nil {
			break
		}

		log.WithError(err).WithFields(log.Fields{
			"f_cnt": fCnt,
			"trial": i + 1,
		}).Warning("stack/mqtt: publish uplink error")
	}
	if err != nil {
		return err
	}

	b.Lock()
	pending := b.pending
	b.pending = nil
	b.Unlock()

	if pending != nil {
		b.deliver(*pending)
	}

	return nil
}

// Cycle implements stack.Stack. It (re)starts the duty-cycle timer.
func (b *Backend) Cycle(delay time.Duration) error {
	b.Lock()
	defer b.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.NewTimer(delay)

	return nil
}

// Sleep implements stack.Stack. It blocks until the duty-cycle timer elapses,
// a downlink is delivered or ctx is cancelled.
func (b *Backend) Sleep(ctx context.Context) error {
	b.RLock()
	timer := b.timer
	b.RUnlock()

	if timer == nil {
		return errors.New("stack/mqtt: no duty-cycle scheduled")
	}

	select {
	case <-timer.C:
		b.Lock()
		if b.timer == timer {
			b.timer = nil
		}
		b.Unlock()
		b.emit(stack.EventTxTimer)
	case <-b.wake:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Events implements stack.Stack.
func (b *Backend) Events() <-chan stack.Event {
	return b.events
}

// Downlinks implements stack.Stack.
func (b *Backend) Downlinks() <-chan stack.Indication {
	return b.downlinks
}

// Healthy returns an error when the backend is not connected to the broker.
func (b *Backend) Healthy() error {
	conn := b.client()
	if conn == nil || !conn.IsConnectionOpen() {
		return errors.New("stack/mqtt: not connected")
	}
	return nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	log.Info("stack/mqtt: closing backend")

	b.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	conn := b.conn
	topic := b.commandTopic
	b.Unlock()

	if conn == nil {
		return nil
	}

	if conn.IsConnected() {
		log.WithField("topic", topic).Info("stack/mqtt: unsubscribing from command topic")
		if token := conn.Unsubscribe(topic); token.Wait() && token.Error() != nil {
			return errors.Wrapf(token.Error(), "stack/mqtt: unsubscribe from %s error", topic)
		}
	}

	log.Info("stack/mqtt: handling last messages")
	b.wg.Wait()
	b.disconnect()

	return nil
}

func (b *Backend) client() paho.Client {
	b.RLock()
	defer b.RUnlock()

	return b.conn
}

func (b *Backend) notInitialized(ctx context.Context) error {
	d := b.initBackOff.NextBackOff()
	if d == backoff.Stop {
		b.initBackOff.Reset()
		d = b.initBackOff.NextBackOff()
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ctx.Err()
	}

	return errors.New("stack/mqtt: stack is not initialized")
}

func (b *Backend) clientOptions(devEUI lorawan.EUI64) (*paho.ClientOptions, error) {
	clientID := b.config.ClientID
	if clientID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, errors.Wrap(err, "stack/mqtt: new client id error")
		}
		clientID = "lora-node-" + devEUI.String() + "-" + id.String()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(b.config.Server)
	opts.SetUsername(b.config.Username)
	opts.SetPassword(b.config.Password)
	opts.SetCleanSession(b.config.CleanSession)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	if b.config.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(b.config.MaxReconnectInterval)
	}

	tlsconfig, err := newTLSConfig(b.config.CACert, b.config.TLSCert, b.config.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: load tls config error")
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}

	return opts, nil
}

func (b *Backend) connect(ctx context.Context) error {
	conn := b.client()
	if conn.IsConnected() {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = b.config.JoinMaxElapsedTime
	if b.config.MaxReconnectInterval > 0 {
		bo.MaxInterval = b.config.MaxReconnectInterval
	}

	log.WithField("server", b.config.Server).Info("stack/mqtt: connecting to mqtt broker")

	return backoff.RetryNotify(func() error {
		token := conn.Connect()
		token.Wait()
		return token.Error()
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.WithError(err).WithField("retry_in", d).Error("stack/mqtt: connecting to mqtt broker failed")
	})
}

func (b *Backend) disconnect() {
	conn := b.client()
	if conn.IsConnected() {
		conn.Disconnect(disconnectWaitMS)
	}
}

func (b *Backend) topic(t *template.Template, data topicData) (string, error) {
	topic := bytes.NewBuffer(nil)
	if err := t.Execute(topic, data); err != nil {
		return "", errors.Wrapf(err, "stack/mqtt: execute %s template error", t.Name())
	}
	return topic.String(), nil
}

func (b *Backend) publishEvent(eventType string, qos uint8, v interface{}) error {
	bb, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "stack/mqtt: marshal event error")
	}

	topic, err := b.topic(b.eventTemplate, topicData{DevEUI: b.devEUI, EventType: eventType})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"topic": topic,
		"qos":   qos,
	}).Info("stack/mqtt: publishing event")

	if token := b.client().Publish(topic, qos, false, bb); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "stack/mqtt: publish event error")
	}

	mqttEventCounter(eventType).Inc()
	return nil
}

func (b *Backend) commandHandler(c paho.Client, msg paho.Message) {
	b.wg.Add(1)
	defer b.wg.Done()

	mqttCommandCounter(commandDown).Inc()

	var cmd downlinkCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.WithFields(log.Fields{
			"topic":       msg.Topic(),
			"data_base64": base64.StdEncoding.EncodeToString(msg.Payload()),
		}).WithError(err).Error("stack/mqtt: unmarshal downlink command error")
		return
	}

	log.WithFields(log.Fields{
		"topic":  msg.Topic(),
		"f_port": cmd.FPort,
		"size":   len(cmd.Data),
	}).Info("stack/mqtt: downlink command received")

	b.Lock()
	class := b.class
	if class == stack.ClassA {
		b.pending = &stack.Indication{
			RxSlot: stack.RXWin1,
			Port:   cmd.FPort,
			Data:   cmd.Data,
		}
	}
	b.Unlock()

	if class != stack.ClassA {
		b.deliver(stack.Indication{
			RxSlot: stack.RXWin2,
			Port:   cmd.FPort,
			Data:   cmd.Data,
		})
	}
}

func (b *Backend) deliver(ind stack.Indication) {
	if stack.Offer(b.downlinks, ind) {
		log.WithField("rx_slot", ind.RxSlot).Warning("stack/mqtt: pending downlink replaced")
	}

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Backend) emit(e stack.Event) {
	select {
	case b.events <- e:
	default:
		log.WithField("event", e).Error("stack/mqtt: event channel full, event dropped")
	}
}

func (b *Backend) onConnected(c paho.Client) {
	mqttConnectCounter().Inc()
	log.Info("stack/mqtt: connected to mqtt server")

	for {
		log.WithFields(log.Fields{
			"topic": b.commandTopic,
			"qos":   b.config.QOS,
		}).Info("stack/mqtt: subscribing to command topic")
		if token := c.Subscribe(b.commandTopic, b.config.QOS, b.commandHandler); token.Wait() && token.Error() != nil {
			log.WithFields(log.Fields{
				"topic": b.commandTopic,
				"qos":   b.config.QOS,
			}).Errorf("stack/mqtt: subscribe error: %s", token.Error())
			time.Sleep(time.Second)
			continue
		}
		break
	}
}

func (b *Backend) onConnectionLost(c paho.Client, reason error) {
	mqttDisconnectCounter().Inc()
	log.WithError(reason).Error("stack/mqtt: mqtt connection error")
}

func newTLSConfig(cafile, certFile, certKeyFile string) (*tls.Config, error) {
	if cafile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	if cafile != "" {
		cacert, err := ioutil.ReadFile(cafile)
		if err != nil {
			return nil, errors.Wrap(err, "load ca certificate error")
		}
		certpool := x509.NewCertPool()
		certpool.AppendCertsFromPEM(cacert)

		tlsConfig.RootCAs = certpool
	}

	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load tls key-pair error")
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}

	return tlsConfig, nil
}
