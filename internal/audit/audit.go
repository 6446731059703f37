// Package audit appends forensic entries for every state transition.
// Appends are best-effort: a failed write is logged and swallowed so the
// primary mutation never fails because of the audit trail.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/tjms-tools/hallpass/internal/model"
)

type Store interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
}

type Trail struct {
	store Store
	now   func() time.Time
}

func NewTrail(store Store) *Trail {
	return &Trail{store: store, now: time.Now}
}

// Log records an entry against an actor. Deliberately outside any caller
// transaction: losing an audit line is acceptable, losing a state
// transition is not.
func (t *Trail) Log(ctx context.Context, actorID, reason string) {
	if t == nil {
		return
	}
	entry := model.AuditEntry{
		ActorID: actorID,
		Reason:  reason,
		Time:    t.now().UTC(),
	}
	log.Printf("[AUDIT] %s - %s", actorID, reason)
	if t.store == nil {
		return
	}
	if err := t.store.AppendAudit(ctx, entry); err != nil {
		log.Printf("audit append failed: %v", err)
	}
}
