package delivery

import (
	"context"
	"strings"

	"github.com/gen2brain/beeep"

	"pushrelay/internal/notification"
)

const desktopBodyLimit = 200

type DesktopConfig struct {
	AppName string
	Icon    string
}

type notifyFunc func(title, body string, icon any) error

// Desktop shows notifications through the OS notification service.
// High-priority notifications that carry a sound are raised as alerts.
type Desktop struct {
	cfg    DesktopConfig
	notify notifyFunc
	alert  notifyFunc
}

func NewDesktop(cfg DesktopConfig) *Desktop {
	if name := strings.TrimSpace(cfg.AppName); name != "" {
		beeep.AppName = name
	}
	return &Desktop{cfg: cfg, notify: beeep.Notify, alert: beeep.Alert}
}

func (d *Desktop) Render(ctx context.Context, desc notification.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt, _ := desc.RenderOptions()
	title, body := desc.Title(), truncate(desc.Body(), desktopBodyLimit)
	if opt.Visibility == notification.VisibilitySecret {
		title, body = "New notification", ""
	}
	icon := d.cfg.Icon
	if opt.Icon != "" {
		icon = opt.Icon
	}
	if opt.Priority >= notification.PriorityHigh && opt.Sound != "" {
		return d.alert(title, body, icon)
	}
	return d.notify(title, body, icon)
}
