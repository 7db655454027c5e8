package record

import (
	"context"

	"go.uber.org/zap"
)

// Fanout writes through a primary store and best-effort mirrors. Mirror
// failures are logged, never propagated: the primary copy is the artifact of
// record and a broken mirror must not fail the webhook path.
type Fanout struct {
	log     *zap.Logger
	primary Store
	mirrors []Store
}

// NewFanout creates a fanout over primary and any number of mirrors.
func NewFanout(log *zap.Logger, primary Store, mirrors ...Store) *Fanout {
	return &Fanout{log: log, primary: primary, mirrors: mirrors}
}

// Upsert writes to the primary, then mirrors.
func (f *Fanout) Upsert(ctx context.Context, rec Record) error {
	err := f.primary.Upsert(ctx, rec)
	for _, m := range f.mirrors {
		if merr := m.Upsert(ctx, rec); merr != nil {
			f.log.Error("mirror write failed", zap.String("meeting_id", rec.MeetingID), zap.Error(merr))
		}
	}
	return err
}

// List reads from the primary.
func (f *Fanout) List(ctx context.Context) ([]Record, error) {
	return f.primary.List(ctx)
}
