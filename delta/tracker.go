package delta

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/store"
)

// DefaultMaxChanges is the default per-resource ring-buffer capacity
// (spec §3, "maxChanges, default 1000, FIFO eviction").
const DefaultMaxChanges = 1000

// resourceLog is a single resource's change log: a FIFO ring buffer
// guarded by its own mutex, satisfying the per-resource linearizability
// requirement of spec §5 without contending with other resources' logs.
type resourceLog struct {
	mu            sync.Mutex
	events        []ChangeEvent
	lastTimestamp int64
}

// Tracker is the change-tracking / delta subsystem of spec §4.7.
type Tracker struct {
	maxChanges int
	conn       store.Connection // optional; nil disables persistence
	log        *logrus.Logger

	mu   sync.Mutex // guards logs map structure only, not its entries
	logs map[string]*resourceLog
}

// NewTracker builds a Tracker. conn may be nil to keep the tracker purely
// in-memory; when non-nil, TrackChangeWithData additionally persists to the
// delta_changes table (spec §4.7/§6) so change history survives restart.
// TrackChange on its own records in memory only.
func NewTracker(maxChanges int, conn store.Connection, log *logrus.Logger) *Tracker {
	if maxChanges <= 0 {
		maxChanges = DefaultMaxChanges
	}
	if log == nil {
		log = logrus.New()
	}
	return &Tracker{
		maxChanges: maxChanges,
		conn:       conn,
		log:        log,
		logs:       make(map[string]*resourceLog),
	}
}

// EnsureSchema creates the delta_changes table and its index if a
// persistence Connection was supplied (spec §6).
func (t *Tracker) EnsureSchema(ctx context.Context) error {
	const op = "delta.Tracker.EnsureSchema"
	if t.conn == nil {
		return nil
	}
	if _, err := t.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS delta_changes (
		resource_name TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		operation TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		data TEXT
	)`); err != nil {
		return errkind.Wrap(errkind.InternalError, err, "%s: failed to create delta_changes", op)
	}
	if _, err := t.conn.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_delta_changes_resource_ts ON delta_changes (resource_name, timestamp)`); err != nil {
		return errkind.Wrap(errkind.InternalError, err, "%s: failed to create index", op)
	}
	return nil
}

func (t *Tracker) logFor(resource string) *resourceLog {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.logs[resource]
	if !ok {
		l = &resourceLog{}
		t.logs[resource] = l
	}
	return l
}

// TrackChange validates and appends a ChangeEvent, assigning it a strictly
// increasing timestamp for its resource (spec §4.7's monotonicity rule):
// requestedTS is a hint (e.g. wall-clock ms); if it would not exceed the
// resource's last assigned timestamp, it is bumped to last+1.
func (t *Tracker) TrackChange(ctx context.Context, resource string, entityID int64, op Operation, requestedTS int64) (ChangeEvent, error) {
	const errOp = "delta.Tracker.TrackChange"
	if resource == "" {
		return ChangeEvent{}, errkind.BadRequestf("%s: resource must not be empty", errOp)
	}
	if entityID <= 0 {
		return ChangeEvent{}, errkind.BadRequestf("%s: entityID must be positive", errOp)
	}
	switch op {
	case Create, Update, Delete:
	default:
		return ChangeEvent{}, errkind.BadRequestf("%s: invalid operation %q", errOp, op)
	}
	if requestedTS <= 0 {
		return ChangeEvent{}, errkind.BadRequestf("%s: timestamp must be positive", errOp)
	}

	l := t.logFor(resource)
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := requestedTS
	if ts <= l.lastTimestamp {
		ts = l.lastTimestamp + 1
	}
	l.lastTimestamp = ts

	return t.appendLocked(ctx, l, resource, entityID, op, ts)
}

// TrackChangeWithData is TrackChange plus the mutated row's data, carried
// through to the synthesized delta feed.
func (t *Tracker) TrackChangeWithData(ctx context.Context, resource string, entityID int64, op Operation, requestedTS int64, data map[string]any) (ChangeEvent, error) {
	ev, err := t.TrackChange(ctx, resource, entityID, op, requestedTS)
	if err != nil {
		return ChangeEvent{}, err
	}
	l := t.logFor(resource)
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.events); n > 0 && l.events[n-1].Timestamp == ev.Timestamp {
		l.events[n-1].Data = data
		ev = l.events[n-1]
	}
	if t.conn != nil {
		if err := t.persist(ctx, resource, entityID, op, ev.Timestamp, data); err != nil {
			return ChangeEvent{}, err
		}
	}
	return ev, nil
}

func (t *Tracker) appendLocked(ctx context.Context, l *resourceLog, resource string, entityID int64, op Operation, ts int64) (ChangeEvent, error) {
	ev := ChangeEvent{Resource: resource, EntityID: entityID, Operation: op, Timestamp: ts}
	l.events = append(l.events, ev)
	if len(l.events) > t.maxChanges {
		evicted := l.events[0]
		l.events = l.events[1:]
		t.log.WithFields(logrus.Fields{"resource": resource, "timestamp": evicted.Timestamp}).Debug("evicted oldest change event")
	}
	return ev, nil
}

func (t *Tracker) persist(ctx context.Context, resource string, entityID int64, op Operation, ts int64, data map[string]any) error {
	const errOp = "delta.Tracker.persist"
	var dataJSON any
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return errkind.Wrap(errkind.InternalError, err, "%s: failed to marshal change data", errOp)
		}
		dataJSON = string(b)
	}
	if _, err := t.conn.Exec(ctx, `INSERT INTO delta_changes (resource_name, entity_id, operation, timestamp, data) VALUES (?, ?, ?, ?, ?)`,
		resource, entityID, string(op), ts, dataJSON); err != nil {
		return errkind.Wrap(errkind.InternalError, err, "%s: failed to persist change event", errOp)
	}
	return nil
}

// GetChanges returns every event for resource with Timestamp > sinceTS, in
// timestamp-ascending order (spec §3 invariant, Testable Property 4).
func (t *Tracker) GetChanges(resource string, sinceTS int64) []ChangeEvent {
	l := t.logFor(resource)
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ChangeEvent
	for _, ev := range l.events {
		if ev.Timestamp > sinceTS {
			out = append(out, ev)
		}
	}
	return out
}

// CleanupOldChanges drops every event across every resource with
// Timestamp <= now-maxAge, mirroring the deletion into delta_changes when
// persistence is enabled.
func (t *Tracker) CleanupOldChanges(ctx context.Context, now, maxAge int64) error {
	const op = "delta.Tracker.CleanupOldChanges"
	cutoff := now - maxAge
	t.mu.Lock()
	resources := make([]string, 0, len(t.logs))
	for r := range t.logs {
		resources = append(resources, r)
	}
	t.mu.Unlock()

	for _, r := range resources {
		l := t.logFor(r)
		l.mu.Lock()
		kept := l.events[:0]
		for _, ev := range l.events {
			if ev.Timestamp > cutoff {
				kept = append(kept, ev)
			}
		}
		l.events = kept
		l.mu.Unlock()
	}

	if t.conn != nil {
		if _, err := t.conn.Exec(ctx, `DELETE FROM delta_changes WHERE timestamp <= ?`, cutoff); err != nil {
			return errkind.Wrap(errkind.InternalError, err, "%s: failed to prune delta_changes", op)
		}
	}
	t.log.WithField("cutoff", cutoff).Debug("pruned old change events")
	return nil
}
