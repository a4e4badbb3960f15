package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "S3STREAM"

// Load reads the YAML config at flagPath (or the resolved default) and
// overlays S3STREAM_* environment variables. A missing default config file is
// not an error; a missing explicit one is.
func Load(flagPath string, checkPerms bool) (*viper.Viper, error) {
	_ = godotenv.Load()

	path, explicit := ResolveConfigPath(flagPath)
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if checkPerms {
		if err := checkConfigPermissions(path); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return v, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.path_style", d.S3.PathStyle)
	v.SetDefault("s3.tls.insecure_skip_verify", false)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("upload.empty_object", d.Upload.EmptyObject)
	v.SetDefault("upload.abort_on_failure", d.Upload.AbortOnFail)
	v.SetDefault("archive.pipe_size_kb", d.Archive.PipeSizeKB)
	v.SetDefault("archive.compression", d.Archive.Compression)
	v.SetDefault("lock.enabled", d.Lock.Enabled)
	v.SetDefault("lock.ttl", d.Lock.TTL)
}

func checkConfigPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	mode := info.Mode().Perm()

	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %s (recommended: 0600)", path, mode)
	}
	return nil
}
