package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Localizer resolves a localization key with its format arguments.
// ok=false leaves the raw title/body untouched.
type Localizer interface {
	Localize(key string, args []string) (string, bool)
}

// CatalogLocalizer formats strings from an in-memory catalog of Printf-style
// templates. It can be replaced on config reload.
type CatalogLocalizer struct {
	mu      sync.RWMutex
	strings map[string]string
}

func NewCatalogLocalizer(catalog map[string]string) *CatalogLocalizer {
	l := &CatalogLocalizer{}
	l.Replace(catalog)
	return l
}

func (l *CatalogLocalizer) Replace(catalog map[string]string) {
	cp := make(map[string]string, len(catalog))
	for k, v := range catalog {
		cp[strings.TrimSpace(k)] = v
	}
	l.mu.Lock()
	l.strings = cp
	l.mu.Unlock()
}

func (l *CatalogLocalizer) Localize(key string, args []string) (string, bool) {
	l.mu.RLock()
	tmpl, ok := l.strings[strings.TrimSpace(key)]
	l.mu.RUnlock()
	if !ok {
		return "", false
	}
	if len(args) == 0 {
		return tmpl, true
	}
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a
	}
	return fmt.Sprintf(tmpl, vals...), true
}
