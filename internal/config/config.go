package config

import "github.com/spf13/viper"

const (
	BackendS3    = "s3"
	BackendMinIO = "minio"
)

type Config struct {
	Backend string         `mapstructure:"backend" yaml:"backend"`
	S3      *S3Config      `mapstructure:"s3" yaml:"s3"`
	Log     *LogConfig     `mapstructure:"log" yaml:"log"`
	Upload  *UploadConfig  `mapstructure:"upload" yaml:"upload"`
	Archive *ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	Lock    *LockConfig    `mapstructure:"lock" yaml:"lock"`
}

type S3Config struct {
	Endpoint  string     `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string     `mapstructure:"region" yaml:"region"`
	AccessKey string     `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string     `mapstructure:"secret_key" yaml:"secret_key"`
	PathStyle bool       `mapstructure:"path_style" yaml:"path_style"`
	TLS       *TLSConfig `mapstructure:"tls" yaml:"tls"`
}

type TLSConfig struct {
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type UploadConfig struct {
	// EmptyObject controls whether closing an upload that received no bytes
	// creates a zero-length object (true) or fails (false).
	EmptyObject bool `mapstructure:"empty_object" yaml:"empty_object"`
	AbortOnFail bool `mapstructure:"abort_on_failure" yaml:"abort_on_failure"`
}

type ArchiveConfig struct {
	PipeSizeKB  int    `mapstructure:"pipe_size_kb" yaml:"pipe_size_kb"`
	Compression string `mapstructure:"compression" yaml:"compression"`
}

type LockConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	TTL     string `mapstructure:"ttl" yaml:"ttl"`
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default is the configuration written by `s3stream init`.
func Default() *Config {
	return &Config{
		Backend: BackendS3,
		S3: &S3Config{
			Endpoint:  "http://127.0.0.1:9000",
			Region:    "us-east-1",
			PathStyle: true,
		},
		Log:     &LogConfig{Level: "info", Format: "console"},
		Upload:  &UploadConfig{EmptyObject: true, AbortOnFail: true},
		Archive: &ArchiveConfig{PipeSizeKB: 64, Compression: "none"},
		Lock:    &LockConfig{Enabled: false, TTL: "1h"},
	}
}
