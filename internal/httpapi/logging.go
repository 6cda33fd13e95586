package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "httpapi").Logger() }

func logger() *zerolog.Logger { return &zlog }

// loggingLineWriter logs complete NDJSON progress lines at debug level.
type loggingLineWriter struct {
	id  string
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if idx > 0 {
			zlog.Debug().Str("mutation_id", lw.id).Msgf("progress> %s", lw.buf[:idx])
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = func() LogLevel {
	if v, ok := os.LookupEnv("MODELDASH_HTTP_LOG_LEVEL"); ok {
		return parseLevel(v)
	}
	return LevelInfo
}()

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logStart and logEnd bracket mutation requests.
func logStart(r *http.Request, lvl LogLevel, msg, model string) {
	if lvl < LevelInfo {
		return
	}
	z := zlog.Info().Str("path", r.URL.Path).Str("model", model)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg(msg + " start")
}

func logEnd(r *http.Request, lvl LogLevel, msg string, status int, start time.Time, err error) {
	if lvl < LevelInfo && !(lvl == LevelError && err != nil) {
		return
	}
	z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg(msg + " end")
}
