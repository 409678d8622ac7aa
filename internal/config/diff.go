package config

import (
	logx "pushrelay/pkg/logx"
	"reflect"
	"sort"
	"strings"
)

// Sections whose changes only take effect after a restart.
var restartSections = map[string]bool{
	"storage":  true,
	"ingress":  true,
	"delivery": true,
}

// SummarizeChange lists the changed top-level sections and log-safe fields
// describing them. Secrets (tokens, passwords, DSNs) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Ingress, newCfg.Ingress) {
		changed = append(changed, "ingress")
		attrs = append(attrs,
			logx.Bool("ingress.nats", newCfg.Ingress.NATS != nil),
			logx.Bool("ingress.http", newCfg.Ingress.HTTP != nil),
		)
	}
	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.telegram", newCfg.Delivery.Telegram != nil),
			logx.Bool("delivery.desktop", newCfg.Delivery.Desktop != nil && newCfg.Delivery.Desktop.Enabled),
			logx.Bool("delivery.nats", newCfg.Delivery.NATS != nil),
		)
	}
	if oldCfg.State != newCfg.State {
		changed = append(changed, "state")
		attrs = append(attrs, logx.Bool("state.background", newCfg.State.Background))
	}
	if !reflect.DeepEqual(oldCfg.Localization, newCfg.Localization) {
		changed = append(changed, "localization")
		attrs = append(attrs, logx.Int("localization.strings", len(newCfg.Localization.Strings)))
	}
	if !reflect.DeepEqual(oldCfg.Receivers, newCfg.Receivers) {
		changed = append(changed, "receivers")
		var on []string
		for id, enabled := range newCfg.Receivers {
			if enabled {
				on = append(on, id)
			}
		}
		sort.Strings(on)
		attrs = append(attrs, logx.Strs("receivers.enabled", on))
	}
	return changed, attrs
}

// NeedsRestart reports which changed sections are not applied live.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
