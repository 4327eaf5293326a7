package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

const EnvPrefix = "GRIPPER"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Gripper   GripperConfig   `mapstructure:"gripper"`
	Actions   ActionsConfig   `mapstructure:"actions"`
	Transport TransportConfig `mapstructure:"transport"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GripperConfig struct {
	Name              string              `mapstructure:"name"`
	JointName         string              `mapstructure:"joint_name"`
	Prefix            string              `mapstructure:"prefix"`
	FeedbackRate      float64             `mapstructure:"feedback_rate"`
	GoalTolerance     float64             `mapstructure:"goal_tolerance"`
	ActivationTimeout time.Duration       `mapstructure:"activation_timeout"`
	ActivationRetry   time.Duration       `mapstructure:"activation_retry"`
	ActivateOnStart   bool                `mapstructure:"activate_on_start"`
	StartupDelay      time.Duration       `mapstructure:"startup_delay"`
	ActivationDelay   time.Duration       `mapstructure:"activation_delay"`
	Profile           string              `mapstructure:"profile"`
	ProfilePaths      []string            `mapstructure:"profile_paths"`
	Calibration       gripper.Calibration `mapstructure:"calibration"`
}

// ActionConfig holds the knobs that differ between the two goal shapes.
type ActionConfig struct {
	StallGrace time.Duration `mapstructure:"stall_grace"`
	Activation string        `mapstructure:"activation"`
}

type ActionsConfig struct {
	Full    ActionConfig `mapstructure:"full"`
	Minimal ActionConfig `mapstructure:"minimal"`
}

type TransportConfig struct {
	Kind   string       `mapstructure:"kind"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Modbus ModbusConfig `mapstructure:"modbus"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

type ModbusConfig struct {
	Mode         string        `mapstructure:"mode"`
	Address      string        `mapstructure:"address"`
	BaudRate     int           `mapstructure:"baud_rate"`
	SlaveID      byte          `mapstructure:"slave_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// Load reads the YAML file at path on top of the built-in defaults. An
// empty path loads defaults and environment only. A .env file in the
// working directory is applied to the environment first, if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// GRIPPER_TRANSPORT_KIND -> transport.kind
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Gripper.Profile != "" {
		profile, err := NewProfileLoader(config.Gripper.ProfilePaths).Load(config.Gripper.Profile)
		if err != nil {
			return nil, err
		}
		config.Gripper.Calibration = profile.Calibration
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	def := gripper.DefaultCalibration()

	v.SetDefault("log.development", false)

	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("gripper.name", "gripper")
	v.SetDefault("gripper.joint_name", "robotiq_85_left_knuckle_joint")
	v.SetDefault("gripper.prefix", "")
	v.SetDefault("gripper.feedback_rate", 60.0)
	v.SetDefault("gripper.goal_tolerance", gripper.DefaultGoalTolerance)
	v.SetDefault("gripper.activation_timeout", "5s")
	v.SetDefault("gripper.activation_retry", gripper.DefaultActivationRetry.String())
	v.SetDefault("gripper.activate_on_start", true)
	v.SetDefault("gripper.startup_delay", "1s")
	v.SetDefault("gripper.activation_delay", "2s")
	v.SetDefault("gripper.profile", "")
	v.SetDefault("gripper.profile_paths", []string{"configs/profiles"})
	v.SetDefault("gripper.calibration.min_gap_counts", def.MinGapCounts)
	v.SetDefault("gripper.calibration.min_gap", def.MinGap)
	v.SetDefault("gripper.calibration.max_gap", def.MaxGap)
	v.SetDefault("gripper.calibration.min_speed", def.MinSpeed)
	v.SetDefault("gripper.calibration.max_speed", def.MaxSpeed)
	v.SetDefault("gripper.calibration.min_force", def.MinForce)
	v.SetDefault("gripper.calibration.max_force", def.MaxForce)

	v.SetDefault("actions.full.stall_grace", "500ms")
	v.SetDefault("actions.full.activation", string(gripper.ActivationConfirmed))
	v.SetDefault("actions.minimal.stall_grace", "1s")
	v.SetDefault("actions.minimal.activation", string(gripper.ActivationSilent))

	v.SetDefault("transport.kind", "mqtt")
	v.SetDefault("transport.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transport.mqtt.client_id", "gripperd")
	v.SetDefault("transport.mqtt.username", "")
	v.SetDefault("transport.mqtt.password", "")
	v.SetDefault("transport.mqtt.topic_prefix", "gripper")
	v.SetDefault("transport.mqtt.qos", 0)
	v.SetDefault("transport.modbus.mode", "rtu")
	v.SetDefault("transport.modbus.address", "/dev/ttyUSB0")
	v.SetDefault("transport.modbus.baud_rate", 115200)
	v.SetDefault("transport.modbus.slave_id", 9)
	v.SetDefault("transport.modbus.timeout", "1s")
	v.SetDefault("transport.modbus.poll_interval", "20ms")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "1m")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "gripper")
	v.SetDefault("database.user", "gripper")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
}

// Validate rejects settings the control loops cannot run with.
func (c *Config) Validate() error {
	if err := c.Gripper.Calibration.Validate(); err != nil {
		return err
	}
	if !(c.Gripper.FeedbackRate > 0) {
		return fmt.Errorf("gripper.feedback_rate: %w", gripper.ErrInvalidFeedbackRate)
	}
	if !(c.Gripper.GoalTolerance > 0) {
		return fmt.Errorf("gripper.goal_tolerance must be positive, got %v", c.Gripper.GoalTolerance)
	}
	if c.Gripper.ActivationTimeout <= 0 {
		return fmt.Errorf("gripper.activation_timeout must be positive, got %s", c.Gripper.ActivationTimeout)
	}

	for name, a := range map[string]ActionConfig{"full": c.Actions.Full, "minimal": c.Actions.Minimal} {
		if a.StallGrace < 0 {
			return fmt.Errorf("actions.%s.stall_grace must not be negative", name)
		}
		if !gripper.ActivationMode(a.Activation).Valid() {
			return fmt.Errorf("actions.%s.activation: unknown mode %q", name, a.Activation)
		}
	}

	switch c.Transport.Kind {
	case "mqtt":
		if c.Transport.MQTT.QoS > 2 {
			return fmt.Errorf("transport.mqtt.qos must be 0, 1 or 2, got %d", c.Transport.MQTT.QoS)
		}
	case "modbus":
		if m := c.Transport.Modbus.Mode; m != "rtu" && m != "tcp" {
			return fmt.Errorf("transport.modbus.mode: unknown mode %q", m)
		}
		if c.Transport.Modbus.PollInterval <= 0 {
			return fmt.Errorf("transport.modbus.poll_interval must be positive")
		}
	default:
		return fmt.Errorf("transport.kind: unknown transport %q", c.Transport.Kind)
	}

	return nil
}

// ExecConfig builds the per-goal settings for one of the goal shapes.
func (g GripperConfig) ExecConfig(a ActionConfig) gripper.ExecConfig {
	return gripper.ExecConfig{
		FeedbackRate:      g.FeedbackRate,
		StallGrace:        a.StallGrace,
		Activation:        gripper.ActivationMode(a.Activation),
		ActivationTimeout: g.ActivationTimeout,
		Tolerance:         g.GoalTolerance,
	}
}

func (g GripperConfig) DriverConfig() gripper.DriverConfig {
	return gripper.DriverConfig{
		Name:            g.Name,
		JointName:       g.JointName,
		Prefix:          g.Prefix,
		Calibration:     g.Calibration,
		ActivationRetry: g.ActivationRetry,
	}
}

func (g GripperConfig) StartupConfig() gripper.StartupConfig {
	return gripper.StartupConfig{
		Delay:             g.StartupDelay,
		ActivationDelay:   g.ActivationDelay,
		ActivateOnStart:   g.ActivateOnStart,
		ActivationTimeout: g.ActivationTimeout,
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devJWTSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
