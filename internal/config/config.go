package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"
)

const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"

	defaultHistorySize = 500
)

// Config is the client configuration file.
type Config struct {
	Debug         bool     `yaml:"debug" toml:"debug" json:"debug"`
	LogLevel      string   `yaml:"log_level" toml:"log_level" json:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFile       string   `yaml:"log_file" toml:"log_file" json:"log_file"`
	MetricsListen string   `yaml:"metrics_listen" toml:"metrics_listen" json:"metrics_listen" validate:"omitempty,hostname_port"`
	History       History  `yaml:"history" toml:"history" json:"history"`
	Servers       []Server `yaml:"servers" toml:"servers" json:"servers" validate:"unique=Name,dive"`

	// Source is the file the configuration was read from.
	Source string `yaml:"-" toml:"-" json:"-"`
}

type History struct {
	Backend  string `yaml:"backend" toml:"backend" json:"backend" validate:"oneof=memory redis"`
	RedisURL string `yaml:"redis_url" toml:"redis_url" json:"redis_url" validate:"required_if=Backend redis"`
	Size     int    `yaml:"size" toml:"size" json:"size" validate:"gte=0"`
}

// Server describes one network to connect to.
type Server struct {
	Name          string   `yaml:"name" toml:"name" json:"name" validate:"required"`
	Host          string   `yaml:"host" toml:"host" json:"host" validate:"required,hostname_rfc1123|ip"`
	Port          int      `yaml:"port" toml:"port" json:"port" validate:"gte=0,lte=65535"`
	TLS           bool     `yaml:"tls" toml:"tls" json:"tls"`
	TLSSkipVerify bool     `yaml:"tls_skip_verify" toml:"tls_skip_verify" json:"tls_skip_verify"`
	Password      string   `yaml:"password" toml:"password" json:"password"`
	Nick          string   `yaml:"nick" toml:"nick" json:"nick" validate:"required,nickname"`
	AltNicks      []string `yaml:"alt_nicks" toml:"alt_nicks" json:"alt_nicks" validate:"dive,nickname"`
	Username      string   `yaml:"username" toml:"username" json:"username" validate:"omitempty,printascii"`
	Realname      string   `yaml:"realname" toml:"realname" json:"realname"`
	Autojoin      []string `yaml:"autojoin" toml:"autojoin" json:"autojoin" validate:"dive,required"`
	// Manual servers are added but not connected on start.
	Manual bool `yaml:"manual" toml:"manual" json:"manual"`

	SendRate       float64  `yaml:"send_rate" toml:"send_rate" json:"send_rate" validate:"gte=0"`
	SendBurst      int      `yaml:"send_burst" toml:"send_burst" json:"send_burst" validate:"gte=0"`
	// MaxRetries of 0 uses the default, -1 retries forever.
	MaxRetries     int      `yaml:"max_retries" toml:"max_retries" json:"max_retries" validate:"gte=-1"`
	MaxNickRetries int      `yaml:"max_nick_retries" toml:"max_nick_retries" json:"max_nick_retries" validate:"gte=0"`
	BackoffBase    Duration `yaml:"backoff_base" toml:"backoff_base" json:"backoff_base"`
	BackoffMax     Duration `yaml:"backoff_max" toml:"backoff_max" json:"backoff_max"`
	MinUptime      Duration `yaml:"min_uptime" toml:"min_uptime" json:"min_uptime"`
	PingInterval   Duration `yaml:"ping_interval" toml:"ping_interval" json:"ping_interval"`
}

// Duration reads "90s" style values in every supported format.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. A bare $ is left alone so
// passwords may contain one.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

func defaults() *Config {
	return &Config{
		History: History{Backend: HistoryMemory, Size: defaultHistorySize},
	}
}

// Load reads a YAML, TOML or JSON file chosen by extension, YAML when the
// extension is unknown, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	c.Source = path
	return c, nil
}

// Parse decodes data in the format named by ext (".yaml", ".toml", ".json").
func Parse(data []byte, ext string) (*Config, error) {
	c := defaults()
	data = expandEnv(data)

	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".json":
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if c.History.Size == 0 {
		c.History.Size = defaultHistorySize
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return validNick(fl.Field().String())
	})
	return v
}

// validNick rejects what no server accepts in a nickname.
func validNick(nick string) bool {
	if nick == "" || strings.ContainsAny(nick, " ,*?!@:") {
		return false
	}
	switch nick[0] {
	case '#', '&', '$', '-':
		return false
	}
	return nick[0] < '0' || nick[0] > '9'
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Server returns the server with the given name.
func (c *Config) Server(name string) (Server, bool) {
	for _, s := range c.Servers {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Server{}, false
}

// DefaultPath is ~/.ircc/conf.yaml.
func DefaultPath() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to look up home directory: %w", err)
	}
	return filepath.Join(u.HomeDir, ".ircc", "conf.yaml"), nil
}

const sample = `# ircc configuration
debug: false
log_file: ""
history:
  backend: memory
  size: 500
servers:
  - name: libera
    host: irc.libera.chat
    port: 6697
    tls: true
    nick: %s
    autojoin:
      - "#ircc"
`

// EnsureFile writes a sample configuration to path unless a file exists.
func EnsureFile(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	nick := "ircc-user"
	if u, err := user.Current(); err == nil && validNick(u.Username) {
		nick = u.Username
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf(sample, nick)), 0o600); err != nil {
		return false, fmt.Errorf("failed to write sample config: %w", err)
	}
	return true, nil
}
