package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"llmhost/internal/common/fsutil"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LLMHOST_"

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" || !fsutil.PathExists(p) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// ApplyEnv overrides c with LLMHOST_* variables from the environment.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, key)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, key)
		}
		*dst = b
		return nil
	}

	str("ADDR", &c.Addr)
	str("MODELS_DIR", &c.ModelsDir)
	str("DEFAULT_MODEL", &c.DefaultModel)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	if v, ok := os.LookupEnv(EnvPrefix + "BACKENDS"); ok {
		c.Backends = splitList(v)
	}
	for key, dst := range map[string]*int{
		"GPU_OFFLOAD_PERCENT":   &c.GPUOffloadPercent,
		"CONTEXT_SIZE":          &c.ContextSize,
		"THREADS":               &c.Threads,
		"MAX_QUEUE_DEPTH":       &c.MaxQueueDepth,
		"MAX_WAIT_SECONDS":      &c.MaxWaitSeconds,
		"INFER_TIMEOUT_SECONDS": &c.InferTimeoutSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if err := flag("SWAGGER", &c.Swagger); err != nil {
		return err
	}
	return flag("CORS_ENABLED", &c.CORS.Enabled)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
