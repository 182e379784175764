package main

import (
	"context"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"ccs811-go/bus"
	"ccs811-go/drivers/ccs811/sim"
	"ccs811-go/services/bridge"
	"ccs811-go/services/hal"
	"ccs811-go/services/heartbeat"
	"ccs811-go/services/telemetry"
	"ccs811-go/types"
	"ccs811-go/x/mathx"
)

const halBusID = "i2c0"

func main() {
	app := cli.NewApp()
	app.Name = "ccs811d"
	app.Usage = "CCS811 air quality daemon"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		cli.BoolFlag{
			Name:  "simulate",
			Usage: "use a simulated sensor instead of hardware",
		},
	}

	app.Action = serve
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("ccs811d: exit")
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	setupLogging(cfg.Log, c.Bool("debug"))
	if c.Bool("simulate") {
		cfg.Sensor.Simulate = true
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Services outlive the signal so the sensor can be put to sleep first.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(32)

	i2cBuses, pins, closeHW, err := openHardware(cfg.Sensor)
	if err != nil {
		return err
	}
	defer closeHW()

	go hal.Run(ctx, b.NewConnection("hal"), i2cBuses, pins)

	reg := prometheus.NewRegistry()
	tel := telemetry.New(b.NewConnection("telemetry"), reg)
	go tel.Run(ctx)

	if cfg.MQTT.Broker != "" {
		go bridge.Start(ctx, b.NewConnection("bridge"))
		mc := b.NewConnection("bridge-config")
		mc.Publish(mc.NewMessage(bus.T("config", "bridge"), bridge.Config{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.MQTT.ClientID,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			Prefix:       cfg.MQTT.Prefix,
			QoS:          cfg.MQTT.QoS,
			RetainValues: cfg.MQTT.RetainValues,
		}, true))
	}

	a := &api{data: tel}
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: newRouter(a, reg)}
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("ccs811d: http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("ccs811d: http server")
		}
	}()

	if err := (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return errors.Wrap(err, "start heartbeat")
	}

	conn := b.NewConnection("ccs811d")
	go trackState(ctx, conn, a)
	conn.Publish(conn.NewMessage(hal.TopicConfig(), halConfig(cfg.Sensor), true))

	if cc := cfg.Sensor.Compensation; cc != nil {
		waitReady(sigCtx, conn)
		if err := control(sigCtx, conn, cfg.Sensor.ID, types.VerbCompensate, compensationPayload(*cc)); err != nil {
			log.WithError(err).Warn("ccs811d: compensation not applied")
		}
	}

	<-sigCtx.Done()
	log.Info("ccs811d: shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	switch err := sleepSensor(sctx, conn, cfg.Sensor.ID); {
	case err == errNeverUp:
		log.Info("ccs811d: sensor never came up, skipping sleep")
	case err != nil:
		log.WithError(err).Warn("ccs811d: sensor not put to sleep")
	}
	_ = srv.Shutdown(sctx)
	return nil
}

func setupLogging(lc LogConfig, debug bool) {
	if lc.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(lc.Level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
}

// openHardware returns the bus and pin factories for the HAL.
func openHardware(sc SensorConfig) (hal.I2CFactory, hal.PinFactory, func(), error) {
	if sc.Simulate {
		log.Warn("ccs811d: using simulated sensor")
		return buses{halBusID: sim.New(sc.Addr)}, hal.NewHostPins(), func() {}, nil
	}
	b, err := openPeriph(sc.Bus)
	if err != nil {
		return nil, nil, nil, err
	}
	return buses{halBusID: b}, periphPins{}, func() { _ = b.Close() }, nil
}

func halConfig(sc SensorConfig) types.HALConfig {
	cfg := types.HALConfig{Devices: []types.HALDevice{{
		ID:     sc.ID,
		Type:   "ccs811",
		Params: hal.CCS811Params{Bus: halBusID, Addr: sc.Addr, WakePin: sc.WakePin},
	}}}
	if sc.PollMs > 0 {
		cfg.Pollers = []types.PollSpec{{
			Domain: types.DomainEnv, Kind: types.KindAirQuality, Name: sc.ID,
			Verb: types.VerbRead, IntervalMs: sc.PollMs, JitterMs: sc.JitterMs,
		}}
	}
	return cfg
}

// trackState mirrors HAL state and heartbeats for /healthz.
func trackState(ctx context.Context, conn *bus.Connection, a *api) {
	state := conn.Subscribe(hal.TopicState())
	beats := conn.Subscribe(heartbeat.Topic())
	defer conn.Unsubscribe(state)
	defer conn.Unsubscribe(beats)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-state.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				a.halState.Store(st)
			}
		case m := <-beats.Channel():
			if hb, ok := m.Payload.(heartbeat.Beat); ok {
				a.beat.Store(hb)
			}
		}
	}
}

func waitReady(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(hal.TopicState())
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return
			}
		}
	}
}

// control sends a HAL control request and maps an error reply to an error.
func control(ctx context.Context, conn *bus.Connection, name, verb string, payload any) error {
	msg := conn.NewMessage(hal.CapCtrl(types.DomainEnv, string(types.KindAirQuality), name, verb), payload, false)
	reply, err := conn.RequestWait(ctx, msg)
	if err != nil {
		return errors.Wrapf(err, "%s %s", name, verb)
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		return errors.Errorf("%s %s: %s", name, verb, e.Error)
	}
	return nil
}

// compensationPayload converts configured conditions to the fixed-point
// payload. Values are clamped before conversion.
func compensationPayload(cc CompensationConfig) types.AirQualityCompensate {
	c := mathx.Clamp(cc.Celsius, math.MinInt16/10, math.MaxInt16/10)
	rh := mathx.Clamp(cc.Humidity, 0, 100)
	return types.AirQualityCompensate{
		DeciC:  int16(math.Round(c * 10)),
		RHx100: uint16(math.Round(rh * 100)),
	}
}

var errNeverUp = errors.New("sensor never initialised")

// sleepSensor requests low power and waits until the bus worker has run the
// job. A sensor whose status was never up is still in its boot loader, where
// MEAS_MODE cannot be written, so it is left alone.
func sleepSensor(ctx context.Context, conn *bus.Connection, name string) error {
	d, k := types.DomainEnv, string(types.KindAirQuality)
	status := conn.Subscribe(hal.CapStatus(d, k, name))
	defer conn.Unsubscribe(status)
	select {
	case m := <-status.Channel():
		if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == types.LinkDown {
			return errNeverUp
		}
	default:
		return errNeverUp
	}

	done := conn.Subscribe(hal.CapEvent(d, k, name).Append("low_power"))
	defer conn.Unsubscribe(done)
	if err := control(ctx, conn, name, types.VerbSleep, nil); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for low power")
		case <-done.Channel():
			log.WithField("sensor", name).Info("ccs811d: sensor in low power")
			return nil
		case m := <-status.Channel():
			if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == types.LinkDegraded {
				return errors.Errorf("%s sleep: %s", name, st.Error)
			}
		}
	}
}
