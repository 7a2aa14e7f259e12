package conversation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/audio"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/notify"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/transcript"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/voice"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

func str(s string) *string { return &s }

// recordingStore logs every write on top of an in-memory database
type recordingStore struct {
	*sqlite.Gateway

	mu      sync.Mutex
	calls   []string
	upserts []sqlite.ConversationData
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	g, err := sqlite.Open(":memory:", logger.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return &recordingStore{Gateway: g}
}

func (s *recordingStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingStore) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingStore) count(call string) int {
	n := 0
	for _, c := range s.log() {
		if c == call {
			n++
		}
	}
	return n
}

func (s *recordingStore) InsertTranscript(ctx context.Context, id, text string) (bool, error) {
	s.record("InsertTranscript")
	return s.Gateway.InsertTranscript(ctx, id, text)
}

func (s *recordingStore) UpsertConversationData(ctx context.Context, d sqlite.ConversationData) error {
	s.record("UpsertConversationData")
	s.mu.Lock()
	s.upserts = append(s.upserts, d)
	s.mu.Unlock()
	return s.Gateway.UpsertConversationData(ctx, d)
}

func (s *recordingStore) UpdateDefectAnalysis(ctx context.Context, caseID string, number int, brist, atgard, motivering *string) error {
	s.record("UpdateDefectAnalysis")
	return s.Gateway.UpdateDefectAnalysis(ctx, caseID, number, brist, atgard, motivering)
}

type fakeAnalyzer struct {
	store *recordingStore
	seen  []string
	in    []extraction.DefectInput
	err   error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, in extraction.DefectInput) ([]extraction.DefectAnalysis, error) {
	a.seen = a.store.log()
	a.in = append(a.in, in)
	if a.err != nil {
		return nil, a.err
	}
	out := make([]extraction.DefectAnalysis, 0, len(in.Defects))
	for _, d := range in.Defects {
		out = append(out, extraction.DefectAnalysis{
			CaseID:       in.CaseID,
			DefectNumber: d.Number,
			Brist:        str("Brist " + d.Description),
		})
	}
	return out, nil
}

type stubExtractor struct {
	record extraction.Record
	err    error
	inputs []extraction.Input
}

func (s *stubExtractor) Extract(_ context.Context, in extraction.Input) (extraction.Record, error) {
	s.inputs = append(s.inputs, in)
	return s.record, s.err
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.got {
		out = append(out, n.Title)
	}
	return out
}

func regexEngine(t *testing.T) *extraction.Engine {
	t.Helper()
	e, err := extraction.NewEngineForMode(extraction.Options{Mode: extraction.ModeRegex}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewEngineForMode() error = %v", err)
	}
	return e
}

func newTestPipeline(t *testing.T, opts PipelineOptions) *Pipeline {
	t.Helper()
	p, err := NewPipeline(opts, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

var sampleEntries = []transcript.Entry{
	{Role: transcript.RoleAssistant, Text: "Hej! Vad har du jobbat med idag?"},
	{Role: transcript.RoleUser, Text: "Uppdrag 12345, 3 timmar, arbetet är klart."},
}

func TestPipeline_TranscriptSavedOnce(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	p := newTestPipeline(t, PipelineOptions{Store: store, Extractor: regexEngine(t)})

	conv := Conversation{ID: "conv_1", Entries: sampleEntries}
	first, err := p.Process(ctx, conv)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	second, err := p.Process(ctx, conv)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := store.count("InsertTranscript"); got != 1 {
		t.Errorf("InsertTranscript calls = %d, want 1", got)
	}
	if !first.TranscriptSaved || second.TranscriptSaved {
		t.Errorf("TranscriptSaved = %v then %v, want true then false", first.TranscriptSaved, second.TranscriptSaved)
	}

	saved, err := store.GetTranscript(ctx, "conv_1")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if saved.Transcript != transcript.Render(sampleEntries) {
		t.Errorf("stored transcript = %q", saved.Transcript)
	}
}

func TestPipeline_TranscriptSavedBeforeDefectAnalysis(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	for i, desc := range []string{"Nödutgång blockerad", "Branddörr uppställd"} {
		if _, err := store.UpsertDefect(ctx, sqlite.Defect{CaseID: "2", DefectNumber: i + 1, Description: desc}); err != nil {
			t.Fatalf("UpsertDefect() error = %v", err)
		}
	}

	selection := cases.NewSelection()
	selection.Select(cases.Reference[1])
	analyzer := &fakeAnalyzer{store: store}

	p := newTestPipeline(t, PipelineOptions{
		Store:     store,
		Extractor: regexEngine(t),
		Analyzer:  analyzer,
		Selection: selection,
	})

	result, err := p.Process(ctx, Conversation{ID: "conv_2", Entries: sampleEntries})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(analyzer.seen) == 0 || analyzer.seen[0] != "InsertTranscript" {
		t.Fatalf("store calls before analysis = %v, want InsertTranscript first", analyzer.seen)
	}
	if len(analyzer.in) != 1 || analyzer.in[0].Transcript != result.Transcript || analyzer.in[0].CaseID != "2" {
		t.Errorf("analyzer input = %+v", analyzer.in)
	}
	if got := store.count("UpdateDefectAnalysis"); got != 2 {
		t.Errorf("UpdateDefectAnalysis calls = %d, want 2", got)
	}

	defects, err := store.ListDefects(ctx, "2")
	if err != nil {
		t.Fatalf("ListDefects() error = %v", err)
	}
	if defects[0].Brist == nil || *defects[0].Brist != "Brist Nödutgång blockerad" {
		t.Errorf("defect 1 brist = %v", defects[0].Brist)
	}
}

func TestPipeline_AnalysisFailureStillStoresRecord(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	if _, err := store.UpsertDefect(ctx, sqlite.Defect{CaseID: "1", DefectNumber: 1, Description: "x"}); err != nil {
		t.Fatalf("UpsertDefect() error = %v", err)
	}
	selection := cases.NewSelection()
	selection.Select(cases.Reference[0])
	notifier := &recordingNotifier{}

	p := newTestPipeline(t, PipelineOptions{
		Store:     store,
		Extractor: regexEngine(t),
		Analyzer:  &fakeAnalyzer{store: store, err: &extraction.CompletionError{StatusCode: 500, Err: errors.New("upstream")}},
		Selection: selection,
		Notifier:  notifier,
	})

	result, err := p.Process(ctx, Conversation{ID: "conv_3", Entries: sampleEntries})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Persisted {
		t.Error("record not persisted after analysis failure")
	}
	if !contains(notifier.titles(), "Analys fel") {
		t.Errorf("notifications = %v, want Analys fel", notifier.titles())
	}
}

func TestPipeline_ExtractionErrorIsReturned(t *testing.T) {
	store := newRecordingStore(t)
	parseErr := &extraction.ParseError{Content: "not json", Err: errors.New("invalid character")}
	p := newTestPipeline(t, PipelineOptions{Store: store, Extractor: &stubExtractor{err: parseErr}})

	_, err := p.Process(context.Background(), Conversation{ID: "conv_4", Entries: sampleEntries})
	var target *extraction.ParseError
	if !errors.As(err, &target) {
		t.Fatalf("Process() error = %v, want *ParseError", err)
	}
	if got := store.count("UpsertConversationData"); got != 0 {
		t.Errorf("UpsertConversationData calls = %d, want 0", got)
	}
}

func TestPipeline_EmptyRecordPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy extraction.EmptyRecordPolicy
		record extraction.Record
		want   bool
	}{
		{"placeholder skips empty", extraction.PolicyPlaceholder, extraction.Record{}, false},
		{"placeholder keeps fallback", extraction.PolicyPlaceholder, extraction.FallbackRecord(), true},
		{"skip drops fallback", extraction.PolicySkip, extraction.FallbackRecord(), false},
		{"always keeps empty", extraction.PolicyAlways, extraction.Record{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newRecordingStore(t)
			notifier := &recordingNotifier{}
			p := newTestPipeline(t, PipelineOptions{
				Store:     store,
				Extractor: &stubExtractor{record: tt.record},
				Policy:    tt.policy,
				Notifier:  notifier,
			})

			result, err := p.Process(context.Background(), Conversation{ID: "conv_p", Entries: sampleEntries})
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if result.Persisted != tt.want {
				t.Errorf("Persisted = %v, want %v", result.Persisted, tt.want)
			}
			if tt.want && tt.record.Partial && !contains(notifier.titles(), "Limited data collected") {
				t.Errorf("no partial warning in %v", notifier.titles())
			}
		})
	}
}

func TestPipeline_ProjectOptionsAndCollected(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	if err := store.UpsertProject(ctx, sqlite.Project{Uppdragsnr: "4711", Kund: "Volvo"}); err != nil {
		t.Fatalf("UpsertProject() error = %v", err)
	}
	ex := &stubExtractor{record: extraction.Record{Project: str("4711")}}
	p := newTestPipeline(t, PipelineOptions{Store: store, Extractor: ex})

	_, err := p.Process(ctx, Conversation{
		ID:        "conv_5",
		Collected: map[string]string{"project": "4711", "closed": "Ja"},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := store.count("InsertTranscript"); got != 0 {
		t.Errorf("empty transcript saved %d times", got)
	}
	in := ex.inputs[0]
	if len(in.ProjectOptions) != 1 || in.ProjectOptions[0].Customer != "Volvo" {
		t.Errorf("project options = %+v", in.ProjectOptions)
	}
	if in.Collected == nil || extraction.Value(in.Collected.Closed) != extraction.ClosedYes {
		t.Errorf("collected = %+v", in.Collected)
	}
}

func TestPipeline_ReanalyzeAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	p := newTestPipeline(t, PipelineOptions{Store: store, Extractor: regexEngine(t)})

	if _, err := p.Reanalyze(ctx, "missing"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("Reanalyze(missing) error = %v, want ErrNotFound", err)
	}

	if _, err := store.Gateway.InsertTranscript(ctx, "conv_6", "You: projekt 555, 2 timmar"); err != nil {
		t.Fatalf("InsertTranscript() error = %v", err)
	}
	result, err := p.Reanalyze(ctx, "conv_6")
	if err != nil {
		t.Fatalf("Reanalyze() error = %v", err)
	}
	if extraction.Value(result.Record.Project) != "555" || extraction.Value(result.Record.Hours) != "2" {
		t.Errorf("record = %s", result.Record)
	}

	updated, err := p.UpdateRecord(ctx, "conv_6", extraction.Record{Project: str("556"), Closed: str("nej")})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if extraction.Value(updated.Project) != "556" || extraction.Value(updated.Closed) != extraction.ClosedNo || updated.Source != string(extraction.SourceManual) {
		t.Errorf("updated = %+v", updated)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// fakeClient replays scripted provider events
type fakeClient struct {
	id     string
	events chan voice.Event
}

func (f *fakeClient) StartSession(context.Context, string) (string, error) {
	f.events <- voice.Connection{State: voice.Connected, ConversationID: f.id}
	return f.id, nil
}

func (f *fakeClient) EndSession(context.Context) error {
	f.events <- voice.Connection{State: voice.Disconnected, ConversationID: f.id}
	close(f.events)
	return nil
}

func (f *fakeClient) SetVolume(float64) error    { return nil }
func (f *fakeClient) Events() <-chan voice.Event { return f.events }

type silentStream struct{ io.Reader }

func (silentStream) Close() error         { return nil }
func (silentStream) Format() audio.Format { return audio.Format{SampleRate: 16000, Channels: 1} }

type silentMic struct{}

func (silentMic) Open() (audio.Stream, error) {
	return silentStream{Reader: bytes.NewReader(make([]byte, 320))}, nil
}

func TestController_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	pipeline := newTestPipeline(t, PipelineOptions{Store: store, Extractor: regexEngine(t)})
	controller := NewController(pipeline, nil, logger.NewNop())

	client := &fakeClient{id: "conv_e2e", events: make(chan voice.Event, 8)}
	session := voice.NewSession(client, silentMic{}, logger.NewNop())

	if err := session.Start(ctx, "agent_test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	client.events <- voice.AssistantUtterance{Text: "Hej! Berätta om dagens arbete."}
	client.events <- voice.UserUtterance{Text: "Vi jobbade på projekt 99887 i fem timmar, allt är klart"}
	if err := session.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := session.Run(ctx, controller); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !controller.Ended() || controller.ConversationID() != "conv_e2e" {
		t.Fatalf("controller ended=%v id=%q", controller.Ended(), controller.ConversationID())
	}

	result, err := controller.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !strings.Contains(result.Transcript, "You: Vi jobbade") {
		t.Errorf("transcript = %q", result.Transcript)
	}

	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(store.upserts))
	}
	got := store.upserts[0]
	if extraction.Value(got.Project) != "99887" || extraction.Value(got.Hours) != "5" || extraction.Value(got.Closed) != extraction.ClosedYes {
		t.Errorf("upserted = project %q hours %q closed %q",
			extraction.Value(got.Project), extraction.Value(got.Hours), extraction.Value(got.Closed))
	}
	if got.ConversationID != "conv_e2e" {
		t.Errorf("conversation id = %q", got.ConversationID)
	}
}

func TestRunner_StartStopWait(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(t)
	pipeline := newTestPipeline(t, PipelineOptions{Store: store, Extractor: regexEngine(t)})
	client := &fakeClient{id: "conv_run", events: make(chan voice.Event, 8)}
	runner := NewRunner(
		voice.NewSession(client, silentMic{}, logger.NewNop()),
		NewController(pipeline, nil, logger.NewNop()),
		logger.NewNop(),
	)

	if _, err := runner.Wait(ctx); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Wait() before start error = %v, want ErrNotRunning", err)
	}

	if err := runner.Start(ctx, "agent_test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	client.events <- voice.UserUtterance{Text: "Uppdrag 4711, två timmar"}
	if err := runner.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	result, err := runner.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.ConversationID != "conv_run" || extraction.Value(result.Record.Project) != "4711" || extraction.Value(result.Record.Hours) != "2" {
		t.Errorf("result = %+v", result)
	}

	last, ok := runner.Last()
	if !ok || last.Err != nil || last.Result.ConversationID != "conv_run" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}
