package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"` // "" = health service disabled

	// DB
	Env    string `yaml:"env"`     // "dev" | "prod"
	DBPath string `yaml:"db_path"` // e.g. "./data/attendance.db"

	Timezone string `yaml:"timezone"` // IANA name or "Local"

	Device     DeviceConfig     `yaml:"device"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Journal    JournalConfig    `yaml:"journal"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Log        LogConfig        `yaml:"log"`
}

type DeviceConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	StreamPath    string        `yaml:"stream_path"`
	StatusPath    string        `yaml:"status_path"`
	HeaderTimeout time.Duration `yaml:"header_timeout"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type MonitorConfig struct {
	AutoStart          bool          `yaml:"auto_start"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	MaxRetries         int           `yaml:"max_retries"`
	Cooldown           time.Duration `yaml:"cooldown"`
	LivenessWindow     time.Duration `yaml:"liveness_window"`
	ChunkSize          int           `yaml:"chunk_size"`
	MaxFrameBytes      int           `yaml:"max_frame_bytes"`
	StringAwareFraming bool          `yaml:"string_aware_framing"`
}

type AttendanceConfig struct {
	DuplicateWindow         time.Duration `yaml:"duplicate_window"`
	TimestampSource         string        `yaml:"timestamp_source"` // device | receipt
	DefaultDepartment       string        `yaml:"default_department"`
	MultiSegmentDepartments []string      `yaml:"multi_segment_departments"`
	LastWeekday             string        `yaml:"last_weekday"`
}

// Journal retention
type JournalConfig struct {
	Path               string `yaml:"path"`           // "" = journal disabled
	RetentionDays      int    `yaml:"retention_days"` // 0 = keep forever
	PruneIntervalHours int    `yaml:"prune_interval_hours"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // "" = disabled
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Env:      "dev",
		DBPath:   "./data/attendance.db",
		Timezone: "Local",
		Device: DeviceConfig{
			StreamPath:    "/ISAPI/Event/notification/alertStream",
			StatusPath:    "/ISAPI/System/deviceInfo",
			HeaderTimeout: 60 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Monitor: MonitorConfig{
			AutoStart:      true,
			BaseDelay:      5 * time.Second,
			MaxDelay:       30 * time.Second,
			MaxRetries:     5,
			Cooldown:       60 * time.Second,
			LivenessWindow: 30 * time.Second,
			ChunkSize:      1024,
			MaxFrameBytes:  1 << 20,
		},
		Attendance: AttendanceConfig{
			DuplicateWindow:   10 * time.Second,
			TimestampSource:   "device",
			DefaultDepartment: "General",
			LastWeekday:       "friday",
		},
		Journal: JournalConfig{
			RetentionDays:      30,
			PruneIntervalHours: 6,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "portunus/attendance",
			QoS:         1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the optional YAML file at path over the defaults, applies
// PORTUNUS_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenvDefault("PORTUNUS_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenvDefault("PORTUNUS_GRPC_ADDR", c.GRPCAddr)
	c.Env = strings.ToLower(getenvDefault("PORTUNUS_ENV", c.Env))
	c.DBPath = getenvDefault("PORTUNUS_DB_PATH", c.DBPath)
	c.Timezone = getenvDefault("PORTUNUS_TIMEZONE", c.Timezone)

	c.Device.BaseURL = getenvDefault("PORTUNUS_DEVICE_URL", c.Device.BaseURL)
	c.Device.Username = getenvDefault("PORTUNUS_DEVICE_USERNAME", c.Device.Username)
	c.Device.Password = getenvDefault("PORTUNUS_DEVICE_PASSWORD", c.Device.Password)

	c.Monitor.AutoStart = getenvBool("PORTUNUS_MONITOR_AUTO_START", c.Monitor.AutoStart)
	c.Monitor.LivenessWindow = getenvDuration("PORTUNUS_MONITOR_LIVENESS_WINDOW", c.Monitor.LivenessWindow)
	c.Monitor.StringAwareFraming = getenvBool("PORTUNUS_STRING_AWARE_FRAMING", c.Monitor.StringAwareFraming)

	c.Attendance.DuplicateWindow = getenvDuration("PORTUNUS_DUPLICATE_WINDOW", c.Attendance.DuplicateWindow)
	c.Attendance.TimestampSource = getenvDefault("PORTUNUS_TIMESTAMP_SOURCE", c.Attendance.TimestampSource)
	if v := splitCSV(os.Getenv("PORTUNUS_MULTI_SEGMENT_DEPARTMENTS")); v != nil {
		c.Attendance.MultiSegmentDepartments = v
	}

	c.Journal.Path = getenvDefault("PORTUNUS_JOURNAL_PATH", c.Journal.Path)
	c.Journal.RetentionDays = getenvInt("PORTUNUS_JOURNAL_RETENTION_DAYS", c.Journal.RetentionDays)
	c.Journal.PruneIntervalHours = getenvInt("PORTUNUS_PRUNE_INTERVAL_HOURS", c.Journal.PruneIntervalHours)

	c.MQTT.Broker = getenvDefault("PORTUNUS_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = getenvDefault("PORTUNUS_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getenvDefault("PORTUNUS_MQTT_PASSWORD", c.MQTT.Password)

	c.Log.Level = getenvDefault("PORTUNUS_LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getenvBool("PORTUNUS_LOG_PRETTY", c.Log.Pretty)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Env != "dev" && c.Env != "prod" {
		errs = append(errs, fmt.Errorf("env must be dev or prod, got %q", c.Env))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LastWeekday(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Attendance.TimestampSource)) {
	case "", "device", "receipt":
	default:
		errs = append(errs, fmt.Errorf("attendance.timestamp_source must be device or receipt, got %q", c.Attendance.TimestampSource))
	}
	if c.Attendance.DuplicateWindow < 0 {
		errs = append(errs, errors.New("attendance.duplicate_window must not be negative"))
	}
	if c.Monitor.MaxRetries < 1 {
		errs = append(errs, errors.New("monitor.max_retries must be at least 1"))
	}
	if c.Monitor.BaseDelay <= 0 || c.Monitor.MaxDelay < c.Monitor.BaseDelay {
		errs = append(errs, errors.New("monitor.base_delay must be positive and not above monitor.max_delay"))
	}
	if c.Monitor.LivenessWindow <= 0 {
		errs = append(errs, errors.New("monitor.liveness_window must be positive"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LastWeekday resolves Attendance.LastWeekday. Sunday is not accepted.
func (c Config) LastWeekday() (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(c.Attendance.LastWeekday))
	if v == "" {
		return time.Friday, nil
	}
	if d, ok := weekdays[v]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("attendance.last_weekday %q is not monday to saturday", c.Attendance.LastWeekday)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
