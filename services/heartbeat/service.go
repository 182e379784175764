package heartbeat

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"ccs811-go/bus"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("heartbeat")
)

const defaultInterval = 10 * time.Second

// Config is accepted on config/heartbeat.
type Config struct {
	IntervalMs uint32 `json:"interval_ms"`
}

// Beat is published retained on "heartbeat".
type Beat struct {
	UptimeS int64 `json:"uptime_s"`
	TS      int64 `json:"ts_ms"`
}

type Service struct {
	Interval time.Duration // defaults to 10 s
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	iv := s.Interval
	if iv <= 0 {
		iv = defaultInterval
	}
	start := time.Now()
	tick := time.NewTicker(iv)
	defer tick.Stop()

	beat := func(now time.Time) {
		conn.Publish(conn.NewMessage(topicHeartbeat,
			Beat{UptimeS: int64(now.Sub(start) / time.Second), TS: now.UnixMilli()}, true))
	}
	beat(start)

	for {
		select {
		case <-ctx.Done():
			log.Info("heartbeat: stopping")
			return
		case t := <-tick.C:
			beat(t)
		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(Config)
			if !ok || cfg.IntervalMs == 0 {
				log.WithField("payload", msg.Payload).Warn("heartbeat: ignoring config")
				continue
			}
			tick.Reset(time.Duration(cfg.IntervalMs) * time.Millisecond)
			log.WithField("interval_ms", cfg.IntervalMs).Info("heartbeat: interval changed")
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

// Topic is where beats are published.
func Topic() bus.Topic { return topicHeartbeat }
