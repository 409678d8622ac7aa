package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and every duration field.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	durations := map[string]string{
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
		"storage.dial_timeout": cfg.Storage.DialTimeout,
	}
	if h := cfg.Ingress.HTTP; h != nil {
		durations["ingress.http.read_timeout"] = h.ReadTimeout
	}
	if tg := cfg.Delivery.Telegram; tg != nil {
		durations["delivery.telegram.timeout"] = tg.Timeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.Ingress.NATS.URL" into "ingress.nats.url".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}

// ParseDurationField parses a config duration. Empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
