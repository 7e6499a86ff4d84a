package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Time zones must resolve on hosts without a zoneinfo database.

	"gopkg.in/yaml.v3"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// Config holds every setting of the camwatch monitor.
type Config struct {
	// PollIntervalSeconds is the fixed period between polling cycles.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// UpThreshold is the number of consecutive successes needed to declare a device UP.
	UpThreshold int `yaml:"up_threshold"`
	// DownThreshold is the number of consecutive failures needed to declare a device DOWN.
	DownThreshold int `yaml:"down_threshold"`
	// ProbeTimeoutSeconds bounds a single reachability probe.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds"`
	// Probe selects and tunes the probe adapter.
	Probe ProbeConfig `yaml:"probe"`
	// Devices is the camera inventory.
	Devices []DeviceConfig `yaml:"devices"`
	// Storage selects where monitor state and subscribers are persisted.
	Storage StorageConfig `yaml:"storage"`
	// Telegram configures the chat bot used for notifications and commands.
	Telegram TelegramConfig `yaml:"telegram"`
	// Heartbeat configures the daily summary message.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	// GRPC configures the local control surface.
	GRPC GRPCConfig `yaml:"grpc"`
	// MQTT configures the optional MQTT event sink.
	MQTT MQTTConfig `yaml:"mqtt"`
	// NATS configures the optional NATS JetStream event sink.
	NATS NATSConfig `yaml:"nats"`
	// Log configures the logger.
	Log LogConfig `yaml:"log"`
}

// DeviceConfig is one camera entry of the inventory.
type DeviceConfig struct {
	ID      string `yaml:"id,omitempty"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// ProbeConfig tunes how reachability is checked.
type ProbeConfig struct {
	// Method is one of ping, icmp or tcp.
	Method string `yaml:"method"`
	// Concurrency bounds the number of probes in flight during a cycle.
	Concurrency int `yaml:"concurrency"`
	// TCPPort is used by the tcp method when the address has no port.
	TCPPort int `yaml:"tcp_port"`
	// Privileged makes the icmp method use raw sockets instead of datagram ones.
	Privileged bool `yaml:"privileged"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is either file or sqlite.
	Backend string `yaml:"backend"`
	// StateFile is the JSON document holding monitor state (file backend).
	StateFile string `yaml:"state_file"`
	// SubscribersFile is the JSON document holding subscribers (file backend).
	SubscribersFile string `yaml:"subscribers_file"`
	// SQLitePath is the database file (sqlite backend).
	SQLitePath string `yaml:"sqlite_path"`
	// LockFile holds the PID of the running monitor.
	LockFile string `yaml:"lock_file"`
}

// TelegramConfig configures the Telegram bot.
type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Token        string  `yaml:"token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	SenderName   string  `yaml:"sender_name"`
	// Timezone is used to render timestamps in messages.
	Timezone string `yaml:"timezone"`
}

// HeartbeatConfig configures the daily summary.
type HeartbeatConfig struct {
	Enabled bool `yaml:"enabled"`
	// Time is the local wall clock time in HH:MM format.
	Time     string `yaml:"time"`
	Timezone string `yaml:"timezone"`
}

// GRPCConfig configures the control surface.
type GRPCConfig struct {
	// ListenAddress is where the gRPC server listens. Empty disables the server.
	ListenAddress string `yaml:"listen_address"`
}

// MQTTConfig configures the MQTT event sink.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// NATSConfig configures the NATS JetStream event sink.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "camwatch.yaml"

	// DefaultStateFilename is the default filename for monitor state JSON.
	DefaultStateFilename = "camwatch-state.json"

	// DefaultSubscribersFilename is the default filename for subscribers JSON.
	DefaultSubscribersFilename = "camwatch-subscribers.json"

	// DefaultSQLiteFilename is the default SQLite database filename.
	DefaultSQLiteFilename = "camwatch.db"

	// DefaultLockFilename is the default PID file of the running monitor.
	DefaultLockFilename = "camwatch.pid"

	// DefaultGRPCAddress is the default control surface address.
	DefaultGRPCAddress = "127.0.0.1:50061"

	// DefaultFilePermissions is the permission mode for files written by camwatch.
	DefaultFilePermissions = 0o600

	// DefaultTimeout bounds control surface calls.
	DefaultTimeout = 5 * time.Second

	// Probe methods.
	ProbeMethodPing = "ping"
	ProbeMethodICMP = "icmp"
	ProbeMethodTCP  = "tcp"

	// Storage backends.
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"

	// Defaults mirror the cadence the cameras were historically monitored with.
	defaultPollIntervalSeconds = 10
	defaultUpThreshold         = 2
	defaultDownThreshold       = 3
	defaultProbeTimeoutSeconds = 2
	defaultProbeConcurrency    = 50
	defaultTCPPort             = 554
	defaultSenderName          = "CCTV Ping Monitor"
	defaultHeartbeatTime       = "08:00"
	defaultMQTTTopicPrefix     = "camwatch"
	defaultMQTTClientID        = "camwatch"
	defaultNATSStream          = "CAMWATCH"
	defaultNATSSubject         = "camwatch.events"

	// Environment overrides for secrets.
	envTelegramToken = "CAMWATCH_TELEGRAM_TOKEN"
	envAdminChatIDs  = "CAMWATCH_ADMIN_CHAT_IDS"
	envMQTTPassword  = "CAMWATCH_MQTT_PASSWORD"
)

var (
	// ErrInvalid wraps every validation failure. It is a fatal startup error.
	ErrInvalid = errors.New("invalid configuration")

	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Load reads configuration from the provided path, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg.ApplyDefaults()

	if err = applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may contain the bot token.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyDefaults fills in values for keys absent from the file.
func (c *Config) ApplyDefaults() {
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = defaultPollIntervalSeconds
	}

	if c.UpThreshold == 0 {
		c.UpThreshold = defaultUpThreshold
	}

	if c.DownThreshold == 0 {
		c.DownThreshold = defaultDownThreshold
	}

	if c.ProbeTimeoutSeconds == 0 {
		c.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}

	if c.Probe.Method == "" {
		c.Probe.Method = ProbeMethodPing
	}

	if c.Probe.Concurrency == 0 {
		c.Probe.Concurrency = defaultProbeConcurrency
	}

	if c.Probe.TCPPort == 0 {
		c.Probe.TCPPort = defaultTCPPort
	}

	for i := range c.Devices {
		if c.Devices[i].ID == "" {
			c.Devices[i].ID = c.Devices[i].Name
		}

		if c.Devices[i].Name == "" {
			c.Devices[i].Name = c.Devices[i].ID
		}
	}

	c.applyStorageDefaults()
	c.applyIntegrationDefaults()
}

func (c *Config) applyStorageDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendFile
	}

	if c.Storage.StateFile == "" {
		c.Storage.StateFile = DefaultStateFilename
	}

	if c.Storage.SubscribersFile == "" {
		c.Storage.SubscribersFile = DefaultSubscribersFilename
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLiteFilename
	}

	if c.Storage.LockFile == "" {
		c.Storage.LockFile = DefaultLockFilename
	}
}

func (c *Config) applyIntegrationDefaults() {
	if c.Telegram.SenderName == "" {
		c.Telegram.SenderName = defaultSenderName
	}

	if c.Heartbeat.Time == "" {
		c.Heartbeat.Time = defaultHeartbeatTime
	}

	if c.Heartbeat.Timezone == "" {
		c.Heartbeat.Timezone = c.Telegram.Timezone
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = defaultMQTTTopicPrefix
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultMQTTClientID
	}

	if c.NATS.Stream == "" {
		c.NATS.Stream = defaultNATSStream
	}

	if c.NATS.Subject == "" {
		c.NATS.Subject = defaultNATSSubject
	}
}

// applyEnvOverrides keeps secrets out of the YAML file when the operator prefers.
func applyEnvOverrides(cfg *Config) error {
	if token := os.Getenv(envTelegramToken); token != "" {
		cfg.Telegram.Token = token
	}

	if password := os.Getenv(envMQTTPassword); password != "" {
		cfg.MQTT.Password = password
	}

	raw := os.Getenv(envAdminChatIDs)
	if raw == "" {
		return nil
	}

	ids, err := ParseChatIDs(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", envAdminChatIDs, err)
	}

	cfg.Telegram.AdminChatIDs = ids

	return nil
}

// ParseChatIDs parses a comma separated list of chat IDs.
func ParseChatIDs(raw string) ([]int64, error) {
	var ids []int64

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse chat id %q: %w", part, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// Validate checks the configuration. Every failure is reported, joined, and wrapped with ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	var problems []error

	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if cfg.PollIntervalSeconds <= 0 {
		add("poll_interval_seconds must be positive, got %d", cfg.PollIntervalSeconds)
	}

	if err := cfg.Thresholds().Validate(); err != nil {
		add("thresholds: %w", err)
	}

	if cfg.ProbeTimeoutSeconds <= 0 {
		add("probe_timeout_seconds must be positive, got %d", cfg.ProbeTimeoutSeconds)
	}

	switch cfg.Probe.Method {
	case ProbeMethodPing, ProbeMethodICMP, ProbeMethodTCP:
	default:
		add("unknown probe method %q", cfg.Probe.Method)
	}

	if cfg.Probe.Concurrency < 1 {
		add("probe concurrency must be at least 1, got %d", cfg.Probe.Concurrency)
	}

	if cfg.Probe.TCPPort < 1 || cfg.Probe.TCPPort > 65535 {
		add("probe tcp_port out of range: %d", cfg.Probe.TCPPort)
	}

	problems = append(problems, validateDevices(cfg.Devices)...)
	problems = append(problems, validateIntegrations(cfg)...)

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}

func validateDevices(devices []DeviceConfig) []error {
	if len(devices) == 0 {
		return []error{errors.New("at least one device must be configured")}
	}

	var (
		problems []error
		seen     = make(map[string]struct{}, len(devices))
	)

	for i, device := range devices {
		if strings.TrimSpace(device.ID) == "" {
			problems = append(problems, fmt.Errorf("device %d has neither id nor name", i))
			continue
		}

		if _, ok := seen[device.ID]; ok {
			problems = append(problems, fmt.Errorf("duplicate device id %q", device.ID))
		}

		seen[device.ID] = struct{}{}

		if err := ValidateAddress(device.Address); err != nil {
			problems = append(problems, fmt.Errorf("device %q: %w", device.ID, err))
		}
	}

	return problems
}

// ValidateAddress accepts a host name, an IP address, or either with a port.
func ValidateAddress(address string) error {
	if address == "" {
		return errors.New("address is empty")
	}

	if strings.ContainsAny(address, " \t\r\n/") {
		return fmt.Errorf("address %q contains illegal characters", address)
	}

	host := address

	if net.ParseIP(address) == nil && strings.Contains(address, ":") {
		var (
			port string
			err  error
		)

		host, port, err = net.SplitHostPort(address)
		if err != nil {
			return fmt.Errorf("malformed address %q: %w", address, err)
		}

		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("malformed port in address %q", address)
		}
	}

	if host == "" {
		return fmt.Errorf("address %q has no host", address)
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("malformed host name %q", host)
		}

		for _, r := range label {
			if !(r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return fmt.Errorf("malformed host name %q", host)
			}
		}
	}

	return nil
}

func validateIntegrations(cfg *Config) []error {
	var problems []error

	switch cfg.Storage.Backend {
	case StorageBackendFile, StorageBackendSQLite:
	default:
		problems = append(problems, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend))
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.Token == "" {
			problems = append(problems, errors.New("telegram token must be provided"))
		}

		if len(cfg.Telegram.AdminChatIDs) == 0 {
			problems = append(problems, errors.New("at least one telegram admin chat id must be provided"))
		}
	}

	if _, err := LoadLocation(cfg.Telegram.Timezone); err != nil {
		problems = append(problems, fmt.Errorf("telegram timezone: %w", err))
	}

	if cfg.Heartbeat.Enabled {
		if _, _, err := ParseClock(cfg.Heartbeat.Time); err != nil {
			problems = append(problems, fmt.Errorf("heartbeat time: %w", err))
		}

		if _, err := LoadLocation(cfg.Heartbeat.Timezone); err != nil {
			problems = append(problems, fmt.Errorf("heartbeat timezone: %w", err))
		}
	}

	if cfg.GRPC.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.GRPC.ListenAddress); err != nil {
			problems = append(problems, fmt.Errorf("grpc listen address: %w", err))
		}
	}

	if cfg.MQTT.Enabled {
		if _, err := url.Parse(cfg.MQTT.Broker); err != nil || cfg.MQTT.Broker == "" {
			problems = append(problems, fmt.Errorf("mqtt broker %q is not a valid URL", cfg.MQTT.Broker))
		}

		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			problems = append(problems, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS))
		}
	}

	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		problems = append(problems, errors.New("nats url must be provided"))
	}

	return problems
}

// ParseClock parses an HH:MM wall clock time.
func ParseClock(value string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}

	return parsed.Hour(), parsed.Minute(), nil
}

// LoadLocation resolves an IANA time zone name. Empty means local time.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}

	return time.LoadLocation(name)
}

// PollInterval returns the polling period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ProbeTimeout returns the probe timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// Thresholds returns the debounce thresholds of the state machine.
func (c *Config) Thresholds() liveness.Thresholds {
	return liveness.Thresholds{
		Up:   c.UpThreshold,
		Down: c.DownThreshold,
	}
}

// DeviceList converts the inventory into domain devices, preserving order.
func (c *Config) DeviceList() []liveness.Device {
	devices := make([]liveness.Device, 0, len(c.Devices))

	for _, d := range c.Devices {
		devices = append(devices, liveness.Device{
			ID:      d.ID,
			Name:    d.Name,
			Address: d.Address,
		})
	}

	return devices
}
