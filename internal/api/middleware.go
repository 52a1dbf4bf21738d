package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/dengue.report/internal/monitoring"
)

const ansiReset = "\033[0m"

// statusStyles colors a status code by class; the first matching floor wins.
var statusStyles = []struct {
	floor int
	ansi  string
}{
	{500, "\033[1;35m"},
	{400, "\033[1;31m"},
	{300, "\033[33m"},
	{200, "\033[1;32m"},
}

// colorStatus wraps code in its class color. Informational codes are plain.
func colorStatus(code int) string {
	s := strconv.Itoa(code)
	for _, st := range statusStyles {
		if code >= st.floor {
			return st.ansi + s + ansiReset
		}
	}
	return s
}

// statusRecorder remembers the status and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// LoggingMiddleware logs one line per request: status, method, URI, response
// size and elapsed time.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		monitoring.Logf("%s %s %s %dB in %v",
			colorStatus(rec.status), r.Method, r.RequestURI, rec.bytes,
			time.Since(start).Round(time.Microsecond))
	})
}
