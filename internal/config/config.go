package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// FileName is the configuration file looked up in the config dir.
const FileName = "mk8gym.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. MK8GYM_MQTT_HOST.
const EnvPrefix = "MK8GYM"

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Host      string
	Port      int
	Prefix    string
	Username  string
	Password  string
	KeepAlive time.Duration
	Timeout   time.Duration
}

// Broker returns the broker URL.
func (c MQTTConfig) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// EngineConfig holds episode loop settings.
type EngineConfig struct {
	InstanceID     string
	Mode           core.RunMode
	Resolve        bool
	Validate       bool
	AutoStart      bool
	FreeRunRate    float64
	PollInterval   time.Duration
	StepSize       int
	ReferencesDir  string
	MatchThreshold float64
	NavPoll        time.Duration
	SettleDelay    time.Duration
	KeyGap         time.Duration
}

// EmulatorConfig holds the emulator launch settings.
type EmulatorConfig struct {
	Path           string
	Game           string
	LibraryPath    string
	GDBAddress     string
	StartTimeout   time.Duration
	WindowCommands []string
}

// InputConfig holds virtual controller settings.
type InputConfig struct {
	Name string
	Hold time.Duration
}

// CaptureConfig is the screen rectangle of the game window.
type CaptureConfig struct {
	X, Y, Width, Height int
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite backend settings.
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebsocketConfig holds the live stream collector settings.
type WebsocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the episode recording backend.
// Type is one of memory, sqlite, postgres, websocket or none.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Websocket WebsocketConfig
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// URL returns the server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
	MetricsAddr  string
}

// MonitorConfig holds status file and watchdog settings.
type MonitorConfig struct {
	StatusDir       string
	StatusInterval  time.Duration
	WatchdogTimeout time.Duration
	RelaunchDelay   time.Duration
}

// APIConfig holds the export upload target.
type APIConfig struct {
	ServerURL string
	APIKey    string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables override both.
func Load(configDir string) error {
	UseDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("instanceId", "00000000")
	viper.SetDefault("mode", "training")

	viper.SetDefault("mqtt.host", "127.0.0.1")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.prefix", "Mario_Kart_8")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.keepAlive", "60s")
	viper.SetDefault("mqtt.timeout", "10s")

	viper.SetDefault("engine.resolve", true)
	viper.SetDefault("engine.validate", true)
	viper.SetDefault("engine.autoStart", true)
	viper.SetDefault("engine.freeRunRate", 10.0)
	viper.SetDefault("engine.pollInterval", "33ms")
	viper.SetDefault("engine.stepSize", 6)
	viper.SetDefault("engine.referencesDir", "./rsrc/references")
	viper.SetDefault("engine.matchThreshold", 0.9)
	viper.SetDefault("engine.navPoll", "100ms")
	viper.SetDefault("engine.settleDelay", "1s")
	viper.SetDefault("engine.keyGap", "100ms")

	viper.SetDefault("emulator.path", "../rsrc/yuzu/yuzu")
	viper.SetDefault("emulator.game", "../rsrc/game/Mario Kart 8 Deluxe.nsp")
	viper.SetDefault("emulator.libraryPath", "../rsrc/yuzu/lib")
	viper.SetDefault("emulator.gdbAddress", "127.0.0.1:6543")
	viper.SetDefault("emulator.startTimeout", "60s")
	viper.SetDefault("emulator.windowCommands", []string{})

	viper.SetDefault("input.name", "mk8gym virtual pad")
	viper.SetDefault("input.hold", "50ms")

	viper.SetDefault("capture.x", 0)
	viper.SetDefault("capture.y", 0)
	viper.SetDefault("capture.width", 640)
	viper.SetDefault("capture.height", 360)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/mk8gym.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://127.0.0.1:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mk8gym")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "mk8gym")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mk8gym")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metricsAddr", ":9464")

	viper.SetDefault("monitor.statusDir", ".")
	viper.SetDefault("monitor.statusInterval", "1s")
	viper.SetDefault("monitor.watchdogTimeout", "120s")
	viper.SetDefault("monitor.relaunchDelay", "1s")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	def := core.DefaultGameSetup()
	for _, k := range core.SetupKeys {
		v, _ := def.Get(k)
		viper.SetDefault("game."+string(k), v)
	}
}

// UseDefaults registers the defaults and environment overrides without
// reading a file.
func UseDefaults() {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("instanceId", EnvPrefix+"_INSTANCE_ID")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Host:      viper.GetString("mqtt.host"),
		Port:      viper.GetInt("mqtt.port"),
		Prefix:    viper.GetString("mqtt.prefix"),
		Username:  viper.GetString("mqtt.username"),
		Password:  viper.GetString("mqtt.password"),
		KeepAlive: viper.GetDuration("mqtt.keepAlive"),
		Timeout:   viper.GetDuration("mqtt.timeout"),
	}
}

// GetEngineConfig returns the episode loop settings. An unknown mode
// falls back to training.
func GetEngineConfig() EngineConfig {
	mode, _ := core.ParseRunMode(viper.GetString("mode"))
	return EngineConfig{
		InstanceID:     viper.GetString("instanceId"),
		Mode:           mode,
		Resolve:        viper.GetBool("engine.resolve"),
		Validate:       viper.GetBool("engine.validate"),
		AutoStart:      viper.GetBool("engine.autoStart"),
		FreeRunRate:    viper.GetFloat64("engine.freeRunRate"),
		PollInterval:   viper.GetDuration("engine.pollInterval"),
		StepSize:       viper.GetInt("engine.stepSize"),
		ReferencesDir:  viper.GetString("engine.referencesDir"),
		MatchThreshold: viper.GetFloat64("engine.matchThreshold"),
		NavPoll:        viper.GetDuration("engine.navPoll"),
		SettleDelay:    viper.GetDuration("engine.settleDelay"),
		KeyGap:         viper.GetDuration("engine.keyGap"),
	}
}

func GetEmulatorConfig() EmulatorConfig {
	return EmulatorConfig{
		Path:           viper.GetString("emulator.path"),
		Game:           viper.GetString("emulator.game"),
		LibraryPath:    viper.GetString("emulator.libraryPath"),
		GDBAddress:     viper.GetString("emulator.gdbAddress"),
		StartTimeout:   viper.GetDuration("emulator.startTimeout"),
		WindowCommands: viper.GetStringSlice("emulator.windowCommands"),
	}
}

func GetInputConfig() InputConfig {
	return InputConfig{
		Name: viper.GetString("input.name"),
		Hold: viper.GetDuration("input.hold"),
	}
}

func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		X:      viper.GetInt("capture.x"),
		Y:      viper.GetInt("capture.y"),
		Width:  viper.GetInt("capture.width"),
		Height: viper.GetInt("capture.height"),
	}
}

// GetStorageConfig returns the recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
		MetricsAddr:  viper.GetString("otel.metricsAddr"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StatusDir:       viper.GetString("monitor.statusDir"),
		StatusInterval:  viper.GetDuration("monitor.statusInterval"),
		WatchdogTimeout: viper.GetDuration("monitor.watchdogTimeout"),
		RelaunchDelay:   viper.GetDuration("monitor.relaunchDelay"),
	}
}

func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetGameSetup returns the setup the first episode starts from.
func GetGameSetup() core.GameSetup {
	var g core.GameSetup
	for _, k := range core.SetupKeys {
		_ = g.Set(k, viper.GetInt32("game."+string(k)))
	}
	return g
}
