package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	timeFormat      = "2006-01-02T15:04:05.000Z07:00"
	defaultLogPath  = "./pushrelay.log"
	defaultLogLevel = zerolog.InfoLevel
)

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

// Config is the logging section of the relay config.
type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the log outputs. Loggers it hands out read the current outputs
// on every line, so Apply takes effect for all of them at once.
type Service struct {
	mu   sync.Mutex
	file *os.File
	zl   atomic.Pointer[zerolog.Logger]
}

// New builds a Service from cfg and returns it with a Logger bound to it.
// Close the Service to release the log file.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.zl.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply replaces level and outputs. A log file that cannot be opened is
// reported on stderr and the remaining outputs stay in use; with no output
// left the console is used.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, console(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pushrelay: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}
	if len(outs) == 0 {
		outs = append(outs, console(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(levelOf(cfg.Level, defaultLogLevel)).
		With().Timestamp().Logger()
	s.zl.Store(&zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		// The caller field is already file:line.
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
