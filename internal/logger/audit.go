package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

// SetAuditWriter redirects the trade audit trail to w. A nil writer
// disables the trail. The audit trail records every pipeline decision
// (skip, retry, halt) with enough context to reconstruct why a trade
// was or wasn't taken.
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags|log.LUTC)
}

// Audit writes one decision record. Symbol and signal id may be empty
// for engine-level events.
func Audit(event, symbol, signalID, detail string) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strings.ToUpper(strings.TrimSpace(event)))
	b.WriteString("]")
	if symbol != "" {
		b.WriteString(" ")
		b.WriteString(symbol)
	}
	if signalID != "" {
		b.WriteString(" sig=")
		b.WriteString(signalID)
	}
	if detail != "" {
		b.WriteString(" ")
		b.WriteString(detail)
	}
	l.Print(b.String())
}
