package connection

import (
	"net"
	"strconv"
	"time"

	"github.com/tehcyx/ircc/pkg/ircmsg"
)

const (
	DefaultPort         = 6667
	DefaultTLSPort      = 6697
	DefaultMaxRetries   = 10
	DefaultMinUptime    = time.Minute
	DefaultPingInterval = 90 * time.Second
	DefaultReadTimeout  = 4 * time.Minute
	DefaultDialTimeout  = 30 * time.Second
)

// Config is read once when the Connection is created.
type Config struct {
	ID            string
	Name          string
	Host          string
	Port          int
	TLS           bool
	TLSSkipVerify bool
	Password      string
	Nick          string
	Username      string
	Realname      string

	Backoff Backoff
	// MaxRetries bounds consecutive failed attempts, 0 retries forever.
	MaxRetries int
	// MinUptime is how long a registered connection must survive before the
	// backoff and retry count start over.
	MinUptime time.Duration

	// SendRate is outbound lines per second, 0 disables pacing.
	SendRate  float64
	SendBurst int

	MaxLineLength int
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	DialTimeout   time.Duration
}

// Addr is host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
		if c.TLS {
			c.Port = DefaultTLSPort
		}
	}
	if c.Name == "" {
		c.Name = c.Host
	}
	if c.Username == "" {
		c.Username = c.Nick
	}
	if c.Realname == "" {
		c.Realname = c.Nick
	}
	if c.Backoff.Base == 0 {
		c.Backoff = DefaultBackoff()
	}
	if c.MinUptime == 0 {
		c.MinUptime = DefaultMinUptime
	}
	if c.SendBurst <= 0 {
		c.SendBurst = 1
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = ircmsg.DefaultMaxLineLength
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}
