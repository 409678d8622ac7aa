package notification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedField marks a render hint that could not be parsed. The hint is
// skipped and its default used.
var ErrMalformedField = errors.New("malformed notification field")

const (
	VisibilitySecret  = -1
	VisibilityPrivate = 0
	VisibilityPublic  = 1

	PriorityMin     = -2
	PriorityLow     = -1
	PriorityDefault = 0
	PriorityHigh    = 1
	PriorityMax     = 2
)

type ImageStyle string

const (
	ImageStyleNone       ImageStyle = ""
	ImageStyleCircle     ImageStyle = "circle"
	ImageStyleBigPicture ImageStyle = "big_picture"
)

// Light is an LED blink pattern: colour plus on/off durations in ms.
type Light struct {
	ARGB  uint32
	OnMS  int
	OffMS int
}

// RenderOptions are the presentation hints a renderer may honour.
type RenderOptions struct {
	Visibility int
	Priority   int
	// Sound is "" (silent), "default", or a custom sound name.
	Sound string
	// Color is ARGB; HasColor is false when no colour was given or it was malformed.
	Color      uint32
	HasColor   bool
	Light      *Light
	Vibrate    []int64 // ms pattern
	Icon       string
	ChannelID  string
	Image      string
	ImageStyle ImageStyle
	BodyHTML   bool
}

// RenderOptions parses the descriptor's presentation hints. Malformed hints
// fall back to defaults; the returned error (possibly joined) lists them.
func (d Descriptor) RenderOptions() (RenderOptions, error) {
	opt := RenderOptions{
		Visibility: VisibilityPublic,
		Priority:   PriorityMax,
		Sound:      d.Field(KeySound),
		Icon:       d.Field(KeyIcon),
		ChannelID:  d.Field(KeyChannelID),
		Image:      d.Field(KeyImage),
		BodyHTML:   d.Field(KeyBodyHTML) != "",
	}
	var errs []error

	if raw, ok := d.resolved[KeyVisibility]; ok {
		v, err := parseBounded(raw, VisibilitySecret, VisibilityPublic)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: visibility %q: %v", ErrMalformedField, raw, err))
		} else {
			opt.Visibility = v
		}
	}
	if raw, ok := d.resolved[KeyPriority]; ok {
		v, err := parseBounded(raw, PriorityMin, PriorityMax)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: priority %q: %v", ErrMalformedField, raw, err))
		} else {
			opt.Priority = v
		}
	}
	if raw := d.Field(KeyColor); raw != "" {
		c, err := ParseColor(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: color %q: %v", ErrMalformedField, raw, err))
		} else {
			opt.Color, opt.HasColor = c, true
		}
	}
	if raw := d.Field(KeyLight); raw != "" {
		l, err := ParseLight(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: light %q: %v", ErrMalformedField, raw, err))
		} else {
			opt.Light = &l
		}
	}
	if raw := d.Field(KeyVibrate); raw != "" {
		v, err := ParseVibrate(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: vibrate %q: %v", ErrMalformedField, raw, err))
		} else {
			opt.Vibrate = v
		}
	}
	switch ImageStyle(strings.ToLower(d.Field(KeyImageType))) {
	case ImageStyleCircle:
		opt.ImageStyle = ImageStyleCircle
	case ImageStyleBigPicture:
		opt.ImageStyle = ImageStyleBigPicture
	}

	return opt, errors.Join(errs...)
}

func parseBounded(raw string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("out of range [%d, %d]", lo, hi)
	}
	return v, nil
}

// ParseColor accepts #RRGGBB and #AARRGGBB. RGB colours get full alpha.
func ParseColor(raw string) (uint32, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "#") {
		return 0, errors.New("missing #")
	}
	s = s[1:]
	if len(s) != 6 && len(s) != 8 {
		return 0, errors.New("want 6 or 8 hex digits")
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	if len(s) == 6 {
		v |= 0xFF000000
	}
	return uint32(v), nil
}

// ParseLight parses "#AARRGGBB,onMs,offMs" (whitespace ignored).
func ParseLight(raw string) (Light, error) {
	parts := strings.Split(stripSpace(raw), ",")
	if len(parts) != 3 {
		return Light{}, errors.New("want color,on,off")
	}
	c, err := ParseColor(parts[0])
	if err != nil {
		return Light{}, err
	}
	on, err := strconv.Atoi(parts[1])
	if err != nil || on < 0 {
		return Light{}, fmt.Errorf("on: invalid %q", parts[1])
	}
	off, err := strconv.Atoi(parts[2])
	if err != nil || off < 0 {
		return Light{}, fmt.Errorf("off: invalid %q", parts[2])
	}
	return Light{ARGB: c, OnMS: on, OffMS: off}, nil
}

// ParseVibrate parses a comma separated millisecond pattern.
func ParseVibrate(raw string) ([]int64, error) {
	parts := strings.Split(stripSpace(raw), ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative duration %d", v)
		}
		out = append(out, v)
	}
	return out, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
