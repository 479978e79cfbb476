package collaboration

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"collab-engine/internal/metrics"
	"collab-engine/internal/middleware"
	"collab-engine/internal/models"
	"collab-engine/internal/services/ot"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: SERVER-SIDE OT SERIALIZATION

Every session has exactly one place where its history is decided: the
per-session lock around validate -> transform -> apply -> append -> increment.
Whatever order requests race in, each one is rebased over log[base:] (the
operations it did not see) and given the next applied_version. That version
sequence is the linearization point; clients converge because they all
replay it.

Locks:
  - Registry.mu guards the session table only (lookup/create/close/list).
  - session.sem is a one-slot channel used as a mutex that can time out and
    honour context cancellation. Writers hold it for the whole apply.
  - session.mu guards fields readers touch without the semaphore (status,
    participants, snapshots). Writers take it only to publish a commit.
*/

// ConflictPolicy decides what happens to an operation flagged as conflicting
type ConflictPolicy string

const (
	// PolicyAnnotate applies the transformed operation and reports the conflict
	PolicyAnnotate ConflictPolicy = "annotate"
	// PolicyReject refuses the operation with a *ConflictError
	PolicyReject ConflictPolicy = "reject"
)

const (
	defaultLockTimeout   = 5 * time.Second
	defaultSweepInterval = 30 * time.Second
	defaultHistoryDepth  = 256
)

// Options configures a Registry. Zero thresholds disable the check.
type Options struct {
	MaxLag         uint64        // base versions further behind are rejected as stale
	ConflictLag    uint64        // base versions further behind are flagged causal_lag
	LockTimeout    time.Duration // wait for the session lock before ErrBusy
	SessionTTL     time.Duration // default lifetime of new sessions
	SweepInterval  time.Duration
	ConflictPolicy ConflictPolicy

	Recorder  ConflictRecorder
	Auditor   ParticipantAuditor
	Snapshots SnapshotStore
	Events    EventSink
}

// ApplyResult is the outcome of ApplyOperation
type ApplyResult struct {
	Version   uint64
	Operation models.Operation // as logged, in current-document coordinates
	Conflict  *ot.Conflict     // nil unless flagged
	// ResolvedContent is the version-order merge of the conflicting edits
	// over the document they were computed against. Set with Conflict.
	ResolvedContent string
	// Duplicate is set when the operation ID was already logged; nothing
	// was applied and Version/Operation describe the earlier entry.
	Duplicate bool
	// Noop is set when transformation absorbed the edit entirely (a delete
	// of text someone else already removed). It is still logged.
	Noop bool
}

// CreateOption customises CreateSession
type CreateOption func(*createOptions)

type createOptions struct {
	content    *string
	ttl        time.Duration
	ttlDefined bool
}

// WithInitialContent seeds the session's document. Without it the latest
// stored snapshot of the file is used, or an empty document.
func WithInitialContent(content string) CreateOption {
	return func(o *createOptions) { o.content = &content }
}

// WithTTL sets when the session expires, overriding Options.SessionTTL.
// Zero means never.
func WithTTL(ttl time.Duration) CreateOption {
	return func(o *createOptions) {
		o.ttl = ttl
		o.ttlDefined = true
	}
}

type session struct {
	id        string
	fileID    string
	createdAt time.Time
	expiresAt *time.Time
	cursors   *CursorTracker
	sem       chan struct{}

	mu           sync.RWMutex
	closed       bool
	content      string
	version      uint64
	log          []models.Operation // log[i] has applied_version i+1
	submitted    []models.Operation // log[i] as the client sent it
	lengths      []int              // lengths[v] is the document length in runes at version v
	history      []string           // document text at versions historyStart..version
	historyStart uint64
	seen         map[string]uint64 // operation ID -> applied_version
	participants map[string]models.Participant
	lastActivity time.Time
}

// Registry is the in-memory table of collaboration sessions
type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*session

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a registry. Zero-valued options get defaults.
func NewRegistry(opts Options) *Registry {
	if opts.LockTimeout == 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = PolicyAnnotate
	}

	return &Registry{
		opts:     opts,
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
}

// Start launches the expiry sweep
func (r *Registry) Start() {
	log.Println("🔄 Starting session registry...")

	r.wg.Add(1)
	go r.sweepLoop()

	log.Printf("✓ Session registry started (policy: %s, max lag: %d, conflict lag: %d)",
		r.opts.ConflictPolicy, r.opts.MaxLag, r.opts.ConflictLag)
}

// Shutdown stops the sweep and snapshots every open session
func (r *Registry) Shutdown(ctx context.Context) {
	log.Println("🛑 Shutting down session registry...")

	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()

	for _, status := range r.ListSessions(ctx) {
		if err := r.CloseSession(ctx, status.ID); err != nil {
			log.Printf("⚠️  Failed to close session %s: %v", status.ID, err)
		}
	}

	log.Println("✓ Session registry shutdown complete")
}

// CreateSession opens a session at version 0 with no participants
func (r *Registry) CreateSession(ctx context.Context, sessionID, fileID string, opts ...CreateOption) (*models.SessionStatus, error) {
	ctx, span := middleware.StartSpan(ctx, "Registry.CreateSession",
		attribute.String("session.id", sessionID),
		attribute.String("file.id", fileID),
	)
	defer span.End()

	var co createOptions
	for _, opt := range opts {
		opt(&co)
	}

	r.mu.RLock()
	_, exists := r.sessions[sessionID]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("create session %s: %w", sessionID, ErrAlreadyExists)
	}

	content, err := r.initialContent(ctx, fileID, co.content)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	now := time.Now().UTC()
	ttl := r.opts.SessionTTL
	if co.ttlDefined {
		ttl = co.ttl
	}

	s := &session{
		id:           sessionID,
		fileID:       fileID,
		createdAt:    now,
		cursors:      NewCursorTracker(),
		sem:          make(chan struct{}, 1),
		content:      content,
		lengths:      []int{utf8.RuneCountInString(content)},
		history:      []string{content},
		seen:         make(map[string]uint64),
		participants: make(map[string]models.Participant),
		lastActivity: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		s.expiresAt = &expires
	}

	r.mu.Lock()
	if _, exists := r.sessions[sessionID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("create session %s: %w", sessionID, ErrAlreadyExists)
	}
	r.sessions[sessionID] = s
	r.mu.Unlock()

	metrics.ActiveSessions.Inc()
	log.Printf("  Session %s created for file %s (%d chars)", sessionID, fileID, s.lengths[0])

	return s.status(), nil
}

func (r *Registry) initialContent(ctx context.Context, fileID string, explicit *string) (string, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if r.opts.Snapshots == nil {
		return "", nil
	}

	latest, err := r.opts.Snapshots.LatestVersion(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("load latest version of file %s: %w", fileID, err)
	}
	if latest == nil {
		return "", nil
	}
	return latest.Content, nil
}

// CloseSession removes the session and snapshots its document when it was
// edited. In-flight operations on it finish first.
func (r *Registry) CloseSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("close session %s: %w", sessionID, ErrSessionNotFound)
	}
	metrics.ActiveSessions.Dec()

	// Wait out any writer; the session is unreachable for new ones.
	s.sem <- struct{}{}
	s.mu.Lock()
	s.closed = true
	content, version := s.content, s.version
	s.mu.Unlock()
	<-s.sem

	if version > 0 && r.opts.Snapshots != nil {
		snapshot := &models.DocumentVersion{
			FileID:         s.fileID,
			SessionID:      s.id,
			SessionVersion: version,
			Content:        content,
		}
		if err := r.opts.Snapshots.SaveVersion(ctx, snapshot); err != nil {
			log.Printf("⚠️  Failed to snapshot session %s: %v", sessionID, err)
		}
	}

	log.Printf("  Session %s closed at version %d", sessionID, version)
	return nil
}

// JoinSession adds userID to the session. Joining twice is a no-op.
func (r *Registry) JoinSession(ctx context.Context, sessionID, userID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	_, already := s.participants[userID]
	if !already {
		s.participants[userID] = models.Participant{UserID: userID, JoinedAt: now}
		s.lastActivity = now
	}
	version := s.version
	s.mu.Unlock()

	if already {
		return nil
	}

	r.audit(ctx, sessionID, userID, models.ParticipantJoined, now)
	r.publish(ctx, &models.CollabEvent{
		Type:      models.MessageTypeJoin,
		SessionID: sessionID,
		UserID:    userID,
		Version:   version,
		Timestamp: now,
	})
	return nil
}

// LeaveSession removes userID and their cursor. Logged operations stay.
// Leaving a session one is not part of is a no-op.
func (r *Registry) LeaveSession(ctx context.Context, sessionID, userID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	_, member := s.participants[userID]
	if member {
		delete(s.participants, userID)
		s.lastActivity = now
	}
	version := s.version
	s.mu.Unlock()

	if !member {
		return nil
	}
	s.cursors.Remove(userID)

	r.audit(ctx, sessionID, userID, models.ParticipantLeft, now)
	r.publish(ctx, &models.CollabEvent{
		Type:      models.MessageTypeLeave,
		SessionID: sessionID,
		UserID:    userID,
		Version:   version,
		Timestamp: now,
	})
	return nil
}

// GetParticipants lists the session's members ordered by user ID
func (r *Registry) GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// UpdateCursor upserts a participant's cursor
func (r *Registry) UpdateCursor(ctx context.Context, sessionID string, pos models.CursorPosition) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}

	pos.SessionID = sessionID
	pos.UpdatedAt = time.Time{}
	pos = s.cursors.Update(pos)

	s.mu.Lock()
	s.lastActivity = pos.UpdatedAt
	s.mu.Unlock()

	r.publish(ctx, &models.CollabEvent{
		Type:      models.MessageTypeCursor,
		SessionID: sessionID,
		UserID:    pos.UserID,
		Cursor:    &pos,
		Timestamp: pos.UpdatedAt,
	})
	return nil
}

// Cursors returns every cursor in the session
func (r *Registry) Cursors(ctx context.Context, sessionID string) ([]models.CursorPosition, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.cursors.All(), nil
}

// Cursor returns one participant's cursor
func (r *Registry) Cursor(ctx context.Context, sessionID, userID string) (*models.CursorPosition, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	pos, ok := s.cursors.Get(userID)
	if !ok {
		return nil, fmt.Errorf("user %s in session %s: %w", userID, sessionID, ErrCursorNotFound)
	}
	return &pos, nil
}

// Status reports version, participant count and last activity
func (r *Registry) Status(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.status(), nil
}

// ListSessions returns the status of every open session, oldest first
func (r *Registry) ListSessions(ctx context.Context) []models.SessionStatus {
	r.mu.RLock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	out := make([]models.SessionStatus, 0, len(all))
	for _, s := range all {
		out = append(out, *s.status())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns the current document and its version
func (r *Registry) Snapshot(ctx context.Context, sessionID string) (string, uint64, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return "", 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content, s.version, nil
}

// WithSnapshot calls fn with the current content and version while holding
// the session's write lock. No operation is applied or published until fn
// returns.
func (r *Registry) WithSnapshot(ctx context.Context, sessionID string, fn func(content string, version uint64)) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	if err := r.lock(ctx, s); err != nil {
		return fmt.Errorf("snapshot session %s: %w", sessionID, err)
	}
	defer func() { <-s.sem }()

	s.mu.RLock()
	content, version := s.content, s.version
	s.mu.RUnlock()

	fn(content, version)
	return nil
}

// OperationsSince returns the logged operations with applied_version > version
func (r *Registry) OperationsSince(ctx context.Context, sessionID string, version uint64) ([]models.Operation, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version > s.version {
		return nil, fmt.Errorf("%w: version %d is ahead of session %s (at %d)",
			ErrInvalidOperation, version, sessionID, s.version)
	}
	out := make([]models.Operation, len(s.log)-int(version))
	copy(out, s.log[version:])
	return out, nil
}

// ApplyOperation serializes op into the session's history. op is rebased
// over every operation logged after its base version, checked for
// conflicts and appended with the next applied_version.
func (r *Registry) ApplyOperation(ctx context.Context, sessionID string, op models.Operation) (*ApplyResult, error) {
	ctx, span := middleware.StartSpan(ctx, "Registry.ApplyOperation",
		attribute.String("session.id", sessionID),
		attribute.String("operation.kind", string(op.Kind())),
		attribute.Int64("operation.base_version", int64(op.BaseVersion)),
	)
	defer span.End()

	res, rec, err := r.applyOperation(ctx, sessionID, op)
	// The conflict log is written after the session lock is released, for
	// rejected and applied operations alike.
	r.recordConflict(ctx, rec)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(resultLabel(err)).Inc()
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	if res.Duplicate {
		metrics.OperationsTotal.WithLabelValues("duplicate").Inc()
		return res, nil
	}
	metrics.OperationsTotal.WithLabelValues("applied").Inc()
	span.SetAttributes(attribute.Int64("operation.applied_version", int64(res.Version)))

	if res.Conflict != nil {
		metrics.ConflictsTotal.WithLabelValues(string(res.Conflict.Classification)).Inc()
		middleware.AddSpanEvent(ctx, "conflict",
			attribute.String("conflict.classification", string(res.Conflict.Classification)),
			attribute.Int("conflict.operations", len(res.Conflict.Conflicting)),
		)
	}

	return res, nil
}

func (r *Registry) applyOperation(ctx context.Context, sessionID string, op models.Operation) (*ApplyResult, *models.ConflictRecord, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if op.Edit == nil {
		return nil, nil, fmt.Errorf("%w: operation has no edit", ErrInvalidOperation)
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	if err := r.lock(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("apply to session %s: %w", sessionID, err)
	}
	defer func() { <-s.sem }()

	start := time.Now()
	defer func() { metrics.OperationDuration.Observe(time.Since(start).Seconds()) }()

	// Only writers holding sem mutate these fields, so reading them here
	// without s.mu is safe.
	if s.closed {
		return nil, nil, fmt.Errorf("apply to session %s: %w", sessionID, ErrSessionNotFound)
	}
	if v, ok := s.seen[op.ID]; ok {
		return &ApplyResult{Version: v, Operation: s.log[v-1], Duplicate: true}, nil, nil
	}

	version := s.version
	if op.BaseVersion > version {
		return nil, nil, fmt.Errorf("%w: base version %d is ahead of session version %d",
			ErrInvalidOperation, op.BaseVersion, version)
	}
	if r.opts.MaxLag > 0 && version-op.BaseVersion > r.opts.MaxLag {
		return nil, nil, fmt.Errorf("%w: base version %d is %d versions behind (max %d)",
			ErrStaleOperation, op.BaseVersion, version-op.BaseVersion, r.opts.MaxLag)
	}

	// The operation was computed against the document at its base version.
	if err := ot.Validate(op, s.lengths[op.BaseVersion]); err != nil {
		return nil, nil, err
	}

	concurrent := s.log[op.BaseVersion:]
	metrics.TransformDepth.Observe(float64(len(concurrent)))

	transformed := ot.TransformAll(op, concurrent)
	transformed = ot.Materialize(s.content, transformed)
	next, err := ot.Apply(s.content, transformed)
	if err != nil {
		return nil, nil, fmt.Errorf("apply transformed operation %s: %w", op.ID, err)
	}

	newVersion := version + 1
	transformed.AppliedVersion = newVersion
	if transformed.Timestamp.IsZero() {
		transformed.Timestamp = time.Now().UTC()
	}

	conflict := ot.DetectConflicts(op, concurrent, version, r.opts.ConflictLag)
	var (
		resolved string
		pre      string
	)
	if conflict != nil {
		pre, resolved = s.resolve(op, newVersion, conflict, next)
		if r.opts.ConflictPolicy == PolicyReject {
			metrics.ConflictsTotal.WithLabelValues(string(conflict.Classification)).Inc()
			// Nothing was applied: the record keeps the document as it stands.
			rec, err := conflictRecord(s, conflict, 0, pre, s.content, resolved)
			if err != nil {
				log.Printf("⚠️  Failed to encode conflict for session %s: %v", sessionID, err)
			}
			return nil, rec, &ConflictError{
				SessionID:       sessionID,
				Conflict:        conflict,
				ResolvedContent: resolved,
			}
		}
	}

	submitted := op
	s.mu.Lock()
	s.content = next
	s.version = newVersion
	s.log = append(s.log, transformed)
	s.submitted = append(s.submitted, submitted)
	s.lengths = append(s.lengths, utf8.RuneCountInString(next))
	s.appendHistory(next, r.historyDepth())
	s.seen[op.ID] = newVersion
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()

	// Published while sem is still held, so the fan-out queue sees this
	// session's operations in applied_version order.
	logged := transformed
	r.publish(ctx, &models.CollabEvent{
		Type:      models.MessageTypeOperation,
		SessionID: sessionID,
		UserID:    logged.Author,
		Version:   newVersion,
		Operation: &logged,
		Timestamp: logged.Timestamp,
	})

	res := &ApplyResult{
		Version:   newVersion,
		Operation: transformed,
		Conflict:  conflict,
		Noop:      ot.IsNoop(transformed),
	}
	if conflict == nil {
		return res, nil, nil
	}

	res.ResolvedContent = resolved
	rec, err := conflictRecord(s, conflict, newVersion, pre, next, resolved)
	if err != nil {
		log.Printf("⚠️  Failed to encode conflict for session %s: %v", sessionID, err)
		return res, nil, nil
	}
	return res, rec, nil
}

func (r *Registry) historyDepth() int {
	if r.opts.MaxLag > 0 {
		return int(r.opts.MaxLag) + 1
	}
	return defaultHistoryDepth
}

func (r *Registry) lock(ctx context.Context, s *session) error {
	timer := time.NewTimer(r.opts.LockTimeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBusy
	}
}

func (r *Registry) get(sessionID string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return s, nil
}

func (r *Registry) audit(ctx context.Context, sessionID, userID string, kind models.ParticipantEventKind, at time.Time) {
	if r.opts.Auditor == nil {
		return
	}
	event := &models.ParticipantEvent{
		SessionID:  sessionID,
		UserID:     userID,
		Kind:       kind,
		OccurredAt: at,
	}
	if err := r.opts.Auditor.RecordEvent(ctx, event); err != nil {
		log.Printf("⚠️  Failed to record %s of %s in session %s: %v", kind, userID, sessionID, err)
	}
}

func (r *Registry) recordConflict(ctx context.Context, rec *models.ConflictRecord) {
	if r.opts.Recorder == nil || rec == nil {
		return
	}
	if err := r.opts.Recorder.Record(ctx, rec); err != nil {
		log.Printf("⚠️  Failed to record conflict in session %s: %v", rec.SessionID, err)
		middleware.AddSpanError(ctx, err)
	}
}

func (r *Registry) publish(ctx context.Context, event *models.CollabEvent) {
	if r.opts.Events == nil {
		return
	}
	event.Origin = OriginFrom(ctx)
	if err := r.opts.Events.Publish(ctx, event); err != nil {
		log.Printf("⚠️  Failed to publish %s event for session %s: %v", event.Type, event.SessionID, err)
	}
}

// sweepLoop closes expired sessions
func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	var expired []string

	r.mu.RLock()
	for id, s := range r.sessions {
		if s.expiresAt != nil && now.After(*s.expiresAt) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		log.Printf("  Session %s expired", id)
		if err := r.CloseSession(context.Background(), id); err != nil {
			log.Printf("⚠️  Failed to close expired session %s: %v", id, err)
		}
	}
}

func (s *session) status() *models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &models.SessionStatus{
		ID:               s.id,
		FileID:           s.fileID,
		Version:          s.version,
		ParticipantCount: len(s.participants),
		ContentLength:    s.lengths[len(s.lengths)-1],
		CreatedAt:        s.createdAt,
		LastActivityAt:   s.lastActivity,
		ExpiresAt:        s.expiresAt,
	}
}

// appendHistory records the text at the new version, dropping entries
// older than depth versions. Caller holds s.mu.
func (s *session) appendHistory(content string, depth int) {
	s.history = append(s.history, content)
	if len(s.history) < 2*depth {
		return
	}
	drop := len(s.history) - depth
	s.history = append([]string(nil), s.history[drop:]...)
	s.historyStart += uint64(drop)
}

func (s *session) contentAt(version uint64) (string, bool) {
	if version < s.historyStart || version-s.historyStart >= uint64(len(s.history)) {
		return "", false
	}
	return s.history[version-s.historyStart], true
}

// resolve returns the document incoming was computed against and the
// version-order merge of incoming with the conflicting operations that share
// its base. When the base text is gone or a conflicting operation was
// computed against another version, the merge is the registry's own result.
func (s *session) resolve(incoming models.Operation, appliedVersion uint64, c *ot.Conflict, applied string) (string, string) {
	pre, ok := s.contentAt(incoming.BaseVersion)
	if !ok {
		return s.content, applied
	}

	ops := make([]models.Operation, 0, len(c.Conflicting)+1)
	for _, logged := range c.Conflicting {
		orig := s.submitted[logged.AppliedVersion-1]
		if orig.BaseVersion != incoming.BaseVersion {
			return pre, applied
		}
		orig.AppliedVersion = logged.AppliedVersion
		ops = append(ops, orig)
	}
	incoming.AppliedVersion = appliedVersion
	ops = append(ops, incoming)

	resolved, err := ot.ResolveConflicts(pre, ops)
	if err != nil {
		log.Printf("⚠️  Failed to resolve conflict on session %s: %v", s.id, err)
		return pre, applied
	}
	return pre, resolved
}
