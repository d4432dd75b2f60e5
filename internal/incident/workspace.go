package incident

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritas-protocol/veritas-console/internal/police"
)

// Analyzer proposes candidate law violations for a draft.
type Analyzer interface {
	AnalyzeDraft(ctx context.Context, draft Draft) ([]LawViolation, error)
}

// Responder generates the assistant side of the case chat.
type Responder interface {
	Reply(ctx context.Context, transcript []ChatMessage) (string, error)
}

// Submitter sends a mapped draft to the external Incident API.
type Submitter interface {
	CreateIncident(ctx context.Context, p police.Payload) (string, error)
}

// BusyState tracks whether a save/submit is in flight. Owned by the
// workspace so double-submission is impossible regardless of the caller.
type BusyState string

const (
	BusyIdle       BusyState = "idle"
	BusySubmitting BusyState = "submitting"
	BusyError      BusyState = "error"
)

// Delays configures the staged analysis pipeline and chat reply pacing.
// Zero values make the stages run back to back, which tests rely on.
type Delays struct {
	AnalysisStart   time.Duration
	AnalysisLaws    time.Duration
	AnalysisSummary time.Duration
	ChatReply       time.Duration
}

// DefaultDelays paces the pipeline so status changes are observable by a
// polling client.
func DefaultDelays() Delays {
	return Delays{
		AnalysisStart:   500 * time.Millisecond,
		AnalysisLaws:    1500 * time.Millisecond,
		AnalysisSummary: 1200 * time.Millisecond,
		ChatReply:       900 * time.Millisecond,
	}
}

// Options wires the workspace collaborators.
type Options struct {
	Analyzer  Analyzer
	Responder Responder
	Submitter Submitter
	Logger    *log.Logger
	Delays    Delays
}

// EvidenceFile describes an uploaded file before it becomes an Evidence
// record.
type EvidenceFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MIMEType    string `json:"mime_type"`
	Description string `json:"description,omitempty"`
}

// Workspace is the single-owner controller for one incident draft. All
// mutations go through it; background work (analysis, chat replies) is tied
// to the workspace lifetime and cancelled by Close so nothing mutates the
// draft after teardown.
type Workspace struct {
	mu    sync.Mutex
	draft *Draft

	analyzer  Analyzer
	responder Responder
	submitter Submitter
	logger    *log.Logger
	delays    Delays

	isAnalyzing   bool
	isChatLoading bool
	busy          BusyState
	analysisErr   error
	chatErr       error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewWorkspace initializes a workspace around a fresh draft built from the
// wizard seed.
func NewWorkspace(seed WizardSeed, opts Options) *Workspace {
	return NewWorkspaceFromDraft(NewDraft(seed), opts)
}

// NewWorkspaceFromDraft wraps an existing draft, e.g. one reloaded from
// storage.
func NewWorkspaceFromDraft(draft *Draft, opts Options) *Workspace {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Workspace{
		draft:     draft,
		analyzer:  opts.Analyzer,
		responder: opts.Responder,
		submitter: opts.Submitter,
		logger:    logger,
		delays:    opts.Delays,
		busy:      BusyIdle,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close cancels any in-flight background work and waits for it to stop.
// Safe to call more than once.
func (w *Workspace) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}

// Wait blocks until all background work has finished. Intended for the CLI
// and tests; servers poll Snapshot instead.
func (w *Workspace) Wait() {
	w.wg.Wait()
}

// Snapshot returns a deep copy of the current draft.
func (w *Workspace) Snapshot() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Clone()
}

// ID returns the draft id.
func (w *Workspace) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.ID
}

// CanSubmit evaluates the submission gate against current state.
func (w *Workspace) CanSubmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.CanSubmit()
}

// IsAnalyzing reports whether the analysis pipeline is running.
func (w *Workspace) IsAnalyzing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isAnalyzing
}

// IsChatLoading reports whether an assistant reply is pending.
func (w *Workspace) IsChatLoading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isChatLoading
}

// Busy returns the save/submit state machine position.
func (w *Workspace) Busy() BusyState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// AnalysisErr returns the error from the last analysis run, if any.
func (w *Workspace) AnalysisErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.analysisErr
}

// StartAnalysis kicks off the three-stage analysis pipeline in the
// background: mark analyzing, populate identified laws, then append one
// ai-suggestion timeline event and mark the draft ready. The pipeline stops
// silently if the workspace is closed mid-flight.
func (w *Workspace) StartAnalysis() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.isAnalyzing {
		w.mu.Unlock()
		return fmt.Errorf("analysis already running")
	}
	if w.analyzer == nil {
		w.mu.Unlock()
		return fmt.Errorf("no analyzer configured")
	}
	if w.draft.Status != StatusDraft {
		w.mu.Unlock()
		return fmt.Errorf("%w: analysis requires status draft, have %s", ErrInvalidTransition, w.draft.Status)
	}
	w.analysisErr = nil
	w.mu.Unlock()

	w.wg.Add(1)
	go w.runAnalysis()
	return nil
}

func (w *Workspace) runAnalysis() {
	defer w.wg.Done()

	// Stage 1: flag the run as started.
	if !w.sleep(w.delays.AnalysisStart) {
		return
	}
	w.mu.Lock()
	w.isAnalyzing = true
	snapshot := w.draft.Clone()
	w.mu.Unlock()

	// Stage 2: identify candidate laws.
	if !w.sleep(w.delays.AnalysisLaws) {
		w.clearAnalyzing()
		return
	}
	laws, err := w.analyzer.AnalyzeDraft(w.ctx, snapshot)
	if err != nil {
		w.logger.Printf("analysis failed for draft %s: %v", snapshot.ID, err)
		w.mu.Lock()
		w.analysisErr = err
		w.isAnalyzing = false
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.draft.IdentifiedLaws = laws
	if err := w.draft.Transition(StatusAnalyzing); err != nil {
		w.logger.Printf("analysis transition rejected for draft %s: %v", w.draft.ID, err)
	}
	w.draft.Touch()
	w.mu.Unlock()

	// Stage 3: summarize the findings on the timeline.
	if !w.sleep(w.delays.AnalysisSummary) {
		w.clearAnalyzing()
		return
	}

	violated := 0
	for _, law := range laws {
		if law.IsViolated {
			violated++
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.draft.Timeline = append(w.draft.Timeline, TimelineEvent{
		ID:            uuid.NewString(),
		Type:          EventAISuggestion,
		Title:         "Potential Law Violations Identified",
		Description:   fmt.Sprintf("Analysis flagged %d of %d candidate laws as likely violated.", violated, len(laws)),
		Timestamp:     time.Now(),
		IsAISuggested: true,
	})
	if err := w.draft.Transition(StatusReady); err != nil {
		w.logger.Printf("ready transition rejected for draft %s: %v", w.draft.ID, err)
	}
	w.draft.Touch()
	w.isAnalyzing = false
}

func (w *Workspace) clearAnalyzing() {
	w.mu.Lock()
	w.isAnalyzing = false
	w.mu.Unlock()
}

// sleep waits for d unless the workspace is torn down first.
func (w *Workspace) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-w.ctx.Done():
			return false
		default:
			return true
		}
	}
	select {
	case <-w.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// AddTimelineEvent appends an event, generating an id and timestamp when
// absent.
func (w *Workspace) AddTimelineEvent(ev TimelineEvent) TimelineEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	w.draft.Timeline = append(w.draft.Timeline, ev)
	w.draft.Touch()
	return ev
}

// UpdateTimelineEvent replaces the event with a matching id. Absent ids are
// a no-op, never an error.
func (w *Workspace) UpdateTimelineEvent(ev TimelineEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Timeline {
		if w.draft.Timeline[i].ID == ev.ID {
			w.draft.Timeline[i] = ev
			w.draft.Touch()
			return
		}
	}
}

// DeleteTimelineEvent removes the event with the given id; absent ids are a
// no-op.
func (w *Workspace) DeleteTimelineEvent(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Timeline {
		if w.draft.Timeline[i].ID == id {
			w.draft.Timeline = append(w.draft.Timeline[:i], w.draft.Timeline[i+1:]...)
			w.draft.Touch()
			return
		}
	}
}

// AcceptSuggestion clears the AI-suggested flag on a timeline event without
// altering its content.
func (w *Workspace) AcceptSuggestion(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Timeline {
		if w.draft.Timeline[i].ID == id {
			w.draft.Timeline[i].IsAISuggested = false
			w.draft.Touch()
			return
		}
	}
}

// AddEvidence converts uploaded files into evidence records, inferring the
// file type from the MIME type, and appends one linked evidence timeline
// event referencing the new ids.
func (w *Workspace) AddEvidence(files []EvidenceFile) []Evidence {
	if len(files) == 0 {
		return nil
	}
	now := time.Now()
	added := make([]Evidence, 0, len(files))
	ids := make([]string, 0, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		ev := Evidence{
			ID:          uuid.NewString(),
			FileName:    f.Name,
			FileSize:    f.Size,
			FileType:    FileTypeForMIME(f.MIMEType),
			MIMEType:    f.MIMEType,
			UploadedAt:  now,
			IsEncrypted: true,
			Description: f.Description,
		}
		added = append(added, ev)
		ids = append(ids, ev.ID)
		names = append(names, f.Name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Evidence = append(w.draft.Evidence, added...)
	w.draft.Timeline = append(w.draft.Timeline, TimelineEvent{
		ID:                uuid.NewString(),
		Type:              EventEvidence,
		Title:             "Evidence Added",
		Description:       fmt.Sprintf("%d file(s) attached: %s", len(added), strings.Join(names, ", ")),
		Timestamp:         now,
		LinkedEvidenceIDs: ids,
	})
	w.draft.Touch()
	return added
}

// DeleteEvidence removes an evidence record by id and strips the id from
// any timeline event references so the timeline never points at missing
// evidence. Backing blob cleanup belongs to the external evidence store.
func (w *Workspace) DeleteEvidence(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.draft.Evidence[:0]
	removed := false
	for _, ev := range w.draft.Evidence {
		if ev.ID == id {
			removed = true
			continue
		}
		kept = append(kept, ev)
	}
	if !removed {
		return
	}
	w.draft.Evidence = kept
	for i := range w.draft.Timeline {
		refs := w.draft.Timeline[i].LinkedEvidenceIDs
		if len(refs) == 0 {
			continue
		}
		filtered := refs[:0]
		for _, ref := range refs {
			if ref != id {
				filtered = append(filtered, ref)
			}
		}
		if len(filtered) == 0 {
			w.draft.Timeline[i].LinkedEvidenceIDs = nil
		} else {
			w.draft.Timeline[i].LinkedEvidenceIDs = filtered
		}
	}
	w.draft.Touch()
}

// UpdateEvidenceDescription updates the free-text description of an
// evidence record in place.
func (w *Workspace) UpdateEvidenceDescription(id, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Evidence {
		if w.draft.Evidence[i].ID == id {
			w.draft.Evidence[i].Description = text
			w.draft.Touch()
			return
		}
	}
}

// ToggleLawIncluded sets the report-inclusion flag on a candidate law.
// IsViolated and Confidence are analysis outputs and stay untouched.
func (w *Workspace) ToggleLawIncluded(id string, included bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.IdentifiedLaws {
		if w.draft.IdentifiedLaws[i].ID == id {
			w.draft.IdentifiedLaws[i].IncludedInReport = included
			w.draft.Touch()
			return
		}
	}
}

// SendMessage appends the user's message immediately and schedules the
// assistant reply in the background. The reply is dropped if the workspace
// closes first.
func (w *Workspace) SendMessage(text string) ChatMessage {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}

	w.mu.Lock()
	w.draft.Chat = append(w.draft.Chat, msg)
	w.draft.Touch()
	if w.closed || w.responder == nil {
		w.mu.Unlock()
		return msg
	}
	w.isChatLoading = true
	transcript := append([]ChatMessage(nil), w.draft.Chat...)
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if !w.sleep(w.delays.ChatReply) {
			w.mu.Lock()
			w.isChatLoading = false
			w.mu.Unlock()
			return
		}
		reply, err := w.responder.Reply(w.ctx, transcript)

		w.mu.Lock()
		defer w.mu.Unlock()
		w.isChatLoading = false
		if w.closed {
			return
		}
		if err != nil {
			w.chatErr = err
			w.logger.Printf("chat reply failed for draft %s: %v", w.draft.ID, err)
			return
		}
		w.chatErr = nil
		w.draft.Chat = append(w.draft.Chat, ChatMessage{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			Content:   reply,
			Timestamp: time.Now(),
		})
		w.draft.Touch()
	}()

	return msg
}

// SaveDraft maps the draft to the Incident API payload and creates the
// remote record. On success the draft id is rewritten to the server-assigned
// id; on failure state is left unchanged and the error is surfaced. The
// lifecycle status is not advanced by a save.
func (w *Workspace) SaveDraft(ctx context.Context) error {
	return w.submit(ctx, false)
}

// SubmitToPolice maps the draft — with included violated laws appended to
// the description — to the Incident API, appends a report timeline event and
// advances the draft to submitted.
func (w *Workspace) SubmitToPolice(ctx context.Context) error {
	return w.submit(ctx, true)
}

func (w *Workspace) submit(ctx context.Context, final bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.submitter == nil {
		w.mu.Unlock()
		return fmt.Errorf("no incident api client configured")
	}
	if w.busy == BusySubmitting {
		w.mu.Unlock()
		return ErrBusy
	}
	if final {
		if !w.draft.CanSubmit() {
			w.mu.Unlock()
			return ErrNotReady
		}
		if !w.draft.Status.CanTransition(StatusSubmitted) {
			status := w.draft.Status
			w.mu.Unlock()
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusSubmitted)
		}
	}
	w.busy = BusySubmitting
	payload := w.buildPayload(final)
	w.mu.Unlock()

	id, err := w.submitter.CreateIncident(ctx, payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.busy = BusyError
		return fmt.Errorf("create incident: %w", err)
	}
	w.busy = BusyIdle
	if w.closed {
		return nil
	}
	w.draft.ID = id
	if final {
		w.draft.Timeline = append(w.draft.Timeline, TimelineEvent{
			ID:          uuid.NewString(),
			Type:        EventReport,
			Title:       "Report Submitted to Authorities",
			Description: fmt.Sprintf("Case forwarded to the cybercrime cell under jurisdiction %s.", police.DefaultJurisdiction),
			Timestamp:   time.Now(),
		})
		if terr := w.draft.Transition(StatusSubmitted); terr != nil {
			w.logger.Printf("submitted transition rejected for draft %s: %v", w.draft.ID, terr)
		}
	}
	w.draft.Touch()
	return nil
}

// buildPayload maps the draft to the Incident API creation payload.
// Callers must hold w.mu.
func (w *Workspace) buildPayload(includeLaws bool) police.Payload {
	d := w.draft

	description := d.Description
	if includeLaws {
		var included []string
		for _, law := range d.IdentifiedLaws {
			if law.IncludedInReport {
				included = append(included, fmt.Sprintf("- %s (%s): %s", law.Name, law.Section, law.Description))
			}
		}
		if len(included) > 0 {
			description += "\n\nIdentified law violations:\n" + strings.Join(included, "\n")
		}
	}

	p := police.Payload{
		IncidentType: string(d.Type),
		Title:        d.Title,
		Description:  description,
		Jurisdiction: police.DefaultJurisdiction,
	}
	if !d.DateOccurred.IsZero() {
		iso := d.DateOccurred.Format("2006-01-02")
		p.DateOccurred = &iso
	}
	if len(d.PlatformsInvolved) > 0 {
		joined := strings.Join(d.PlatformsInvolved, ",")
		p.PlatformsInvolved = &joined
	}
	if d.PerpetratorInfo != "" {
		info := d.PerpetratorInfo
		p.PerpetratorInfo = &info
	}
	if len(d.Evidence) > 0 {
		notes := make([]string, 0, len(d.Evidence))
		for _, ev := range d.Evidence {
			notes = append(notes, fmt.Sprintf("%s: %s", ev.FileName, ev.Description))
		}
		joined := strings.Join(notes, "\n")
		p.EvidenceNotes = &joined
	}
	return p
}
