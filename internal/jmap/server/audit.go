package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"jmapproxy/internal/common/logger"
	"jmapproxy/internal/common/security"
)

var auditColumns = []string{"Remote", "Method", "Path", "Username", "Status", "Result", "State"}

// auditTrail writes one row per gated request. A nil trail is a no-op.
type auditTrail struct {
	out logger.Logger
	log *slog.Logger
}

func newAuditTrail(out logger.Logger, log *slog.Logger) (*auditTrail, error) {
	if out == nil {
		return nil, nil
	}
	writeHeader, err := out.ShouldWriteHeader()
	if err != nil {
		return nil, err
	}
	if writeHeader {
		if err := out.WriteHeader(auditColumns); err != nil {
			return nil, err
		}
	}
	return &auditTrail{out: out, log: log}, nil
}

func (a *auditTrail) record(r *http.Request, status int, state string) {
	if a == nil {
		return
	}
	username, _, _ := r.BasicAuth()
	row := []string{
		r.RemoteAddr,
		r.Method,
		r.URL.Path,
		security.MaskUsername(username),
		strconv.Itoa(status),
		resultFor(status),
		state,
	}
	if err := a.out.WriteRow(row); err != nil {
		logger.LogWarn(a.log, "Failed to write audit row", "error", err)
	}
}
