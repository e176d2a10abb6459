package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks startup-time configuration problems. They are fatal
// for the process; nothing at runtime should produce this error.
var ErrConfiguration = errors.New("configuration error")

// Config holds all bot configuration. It is immutable after Load returns.
type Config struct {
	Server     string   `yaml:"server"`
	Port       int      `yaml:"port"`
	UseTLS     bool     `yaml:"tls"`
	TLSVerify  bool     `yaml:"tls_verify"`
	ServerPass string   `yaml:"server_pass"`
	Nick       string   `yaml:"nick"`
	AltNicks   []string `yaml:"alt_nicks"`
	NickPass   string   `yaml:"nick_pass"`
	Username   string   `yaml:"username"`
	RealName   string   `yaml:"realname"`
	Channels   []string `yaml:"channels"`

	CommandPrefix string `yaml:"command_prefix"`

	QueueSize     int           `yaml:"queue_size"`
	SendInterval  time.Duration `yaml:"send_interval"`
	PingTimeout   time.Duration `yaml:"ping_timeout"`
	PluginTimeout time.Duration `yaml:"plugin_timeout"`

	MetricsAddr string `yaml:"metrics_addr"`

	// Per-plugin settings (API keys and the like), keyed by plugin name.
	Plugins map[string]map[string]string `yaml:"plugins"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read config file"), ErrConfiguration)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse config file"), ErrConfiguration)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		if c.UseTLS {
			c.Port = 6697
		} else {
			c.Port = 6667
		}
	}
	if c.Username == "" {
		c.Username = c.Nick
	}
	if c.RealName == "" {
		c.RealName = c.Nick
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "."
	}
	if c.QueueSize == 0 {
		c.QueueSize = 32
	}
	if c.SendInterval == 0 {
		c.SendInterval = time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 3 * time.Minute
	}
	if c.PluginTimeout == 0 {
		c.PluginTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Server == "" {
		return errors.Mark(errors.New("server is required"), ErrConfiguration)
	}
	if c.Nick == "" {
		return errors.Mark(errors.New("nick is required"), ErrConfiguration)
	}
	if len(c.Channels) == 0 {
		return errors.Mark(errors.New("at least one channel is required"), ErrConfiguration)
	}
	for _, ch := range c.Channels {
		if ch == "" || ch[0] != '#' {
			return errors.Mark(errors.Newf("invalid channel name %q", ch), ErrConfiguration)
		}
	}
	if c.QueueSize < 1 {
		return errors.Mark(errors.Newf("queue_size must be positive, got %d", c.QueueSize), ErrConfiguration)
	}
	if c.SendInterval < 0 || c.PingTimeout < 0 || c.PluginTimeout < 0 {
		return errors.Mark(errors.New("intervals must not be negative"), ErrConfiguration)
	}
	return nil
}

// ApplyEnv overlays plugin settings from the process environment so that
// credentials can stay out of the config file. Variables take the form
// KESTREL_PLUGIN_<NAME>_<KEY>, e.g. KESTREL_PLUGIN_VIDEO_API_KEY.
func (c *Config) ApplyEnv(environ []string) {
	const prefix = "KESTREL_PLUGIN_"
	for _, kv := range environ {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		name, key, ok := strings.Cut(kv[len(prefix):eq], "_")
		if !ok || name == "" || key == "" {
			continue
		}
		name = strings.ToLower(name)
		key = strings.ToLower(key)

		if c.Plugins == nil {
			c.Plugins = make(map[string]map[string]string)
		}
		if c.Plugins[name] == nil {
			c.Plugins[name] = make(map[string]string)
		}
		c.Plugins[name][key] = kv[eq+1:]
	}
}

// Plugin returns the settings map for a named plugin, or an empty map.
func (c *Config) Plugin(name string) map[string]string {
	if m, ok := c.Plugins[name]; ok {
		return m
	}
	return map[string]string{}
}
