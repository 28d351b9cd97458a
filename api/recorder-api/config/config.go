package config

import (
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/rapidaai/recorder/pkg/configs"
	"github.com/rapidaai/recorder/pkg/utils"
	"github.com/spf13/viper"
)

// Recording behaviour shared by every session the service creates.
type RecordingConfig struct {
	AutoStopTimeout        time.Duration `mapstructure:"auto_stop_timeout" validate:"gte=0"`
	DurationBalancing      bool          `mapstructure:"duration_balancing"`
	ExcludePausedFollowers bool          `mapstructure:"exclude_paused_followers"`
	StrictEventOrder       bool          `mapstructure:"strict_event_order"`
	LiveMonitor            bool          `mapstructure:"live_monitor"`
	VideoCodec             string        `mapstructure:"video_codec" validate:"required,oneof=vp8 h264"`
	AudioEncoding          string        `mapstructure:"audio_encoding" validate:"required,oneof=linear16 mulaw alaw"`
	AudioSampleRate        uint32        `mapstructure:"audio_sample_rate" validate:"required"`
	AudioChannels          uint16        `mapstructure:"audio_channels" validate:"required,lte=2"`
	StateTTL               time.Duration `mapstructure:"state_ttl"`
	WaitTimeout            time.Duration `mapstructure:"wait_timeout" validate:"required"`
}

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Env      string `mapstructure:"env" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`
	// sinks write here until the recording is finalized and uploaded
	WorkDir string `mapstructure:"work_dir" validate:"required"`
	// HS256 secret for bearer tokens on the recording routes; empty disables auth
	AuthSecret string `mapstructure:"auth_secret"`

	Recording        RecordingConfig          `mapstructure:"recording" validate:"required"`
	PostgresConfig   configs.PostgresConfig   `mapstructure:"postgres" validate:"required"`
	RedisConfig      configs.RedisConfig      `mapstructure:"redis" validate:"required"`
	AssetStoreConfig configs.AssetStoreConfig `mapstructure:"asset_store" validate:"required"`
}

func (cfg *AppConfig) IsDevelopment() bool {
	return !utils.FromEnvironmentStr(cfg.Env).IsProduction()
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil {
		log.Printf("Reading from env variables: %v", err)
	}
	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// keeping watch on https://github.com/spf13/viper/issues/188
	v.SetDefault("SERVICE_NAME", "recorder-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("ENV", "development")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9015)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("WORK_DIR", os.TempDir())
	v.SetDefault("AUTH_SECRET", "")

	v.SetDefault("RECORDING__AUTO_STOP_TIMEOUT", "4s")
	v.SetDefault("RECORDING__DURATION_BALANCING", true)
	v.SetDefault("RECORDING__EXCLUDE_PAUSED_FOLLOWERS", false)
	v.SetDefault("RECORDING__STRICT_EVENT_ORDER", false)
	v.SetDefault("RECORDING__LIVE_MONITOR", false)
	v.SetDefault("RECORDING__VIDEO_CODEC", "vp8")
	v.SetDefault("RECORDING__AUDIO_ENCODING", "linear16")
	v.SetDefault("RECORDING__AUDIO_SAMPLE_RATE", 16000)
	v.SetDefault("RECORDING__AUDIO_CHANNELS", 1)
	v.SetDefault("RECORDING__STATE_TTL", "24h")
	v.SetDefault("RECORDING__WAIT_TIMEOUT", "30s")

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "recorder")
	v.SetDefault("POSTGRES__AUTH__USER", "<>")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "<>")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__DB", 0)
	v.SetDefault("REDIS__MAX_CONNECTION", 10)

	v.SetDefault("ASSET_STORE__STORAGE_TYPE", "local")
	v.SetDefault("ASSET_STORE__STORAGE_PATH_PREFIX", os.TempDir())
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
