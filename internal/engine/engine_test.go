package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kasalabs/ussd-server-go/directory/memorydir"
	"github.com/kasalabs/ussd-server-go/location"
	"github.com/kasalabs/ussd-server-go/notify"
	"github.com/kasalabs/ussd-server-go/reports"
	"github.com/kasalabs/ussd-server-go/reports/memoryreports"
	"github.com/kasalabs/ussd-server-go/sessions"
	"github.com/kasalabs/ussd-server-go/sessions/memorystore"
	"github.com/kasalabs/ussd-server-go/ussd"
)

type captureDispatcher struct {
	mu    sync.Mutex
	sends [][]string
}

func (d *captureDispatcher) Send(ctx context.Context, recipients []string, message string) (*notify.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, append([]string(nil), recipients...))
	rep := &notify.Report{}
	for _, r := range recipients {
		rep.Results = append(rep.Results, notify.DeliveryResult{Recipient: r, Status: notify.StatusSuccess})
	}
	return rep, nil
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sends)
}

type fixture struct {
	engine     *Engine
	store      *memorystore.Store
	dir        *memorydir.Directory
	reports    reports.Store
	dispatcher *captureDispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:      memorystore.New(memorystore.WithSweepInterval(0)),
		dir:        memorydir.New(),
		reports:    memoryreports.New(),
		dispatcher: &captureDispatcher{},
	}
	t.Cleanup(func() { _ = f.store.Close() })

	base := []Option{
		WithDispatcher(f.dispatcher),
		WithResolver(location.NewPrefixResolver(location.DefaultAreas())),
		WithReportStore(f.reports),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	f.engine = New(f.store, f.dir, append(base, opts...)...)
	return f
}

func (f *fixture) turn(sessionID, phone, text string) ussd.Response {
	return f.engine.HandleTurn(context.Background(), ussd.Request{
		SessionID:   sessionID,
		ServiceCode: "*384#",
		PhoneNumber: phone,
		Text:        text,
	})
}

func TestFirstTurnRendersMainMenu(t *testing.T) {
	f := newFixture(t)
	resp := f.turn("sess-1", "+254711000111", "")
	if got := resp.Render(); !strings.HasPrefix(got, "CON Welcome to KASA - Local Alert System\n") {
		t.Fatalf("render = %q", got)
	}
	if !strings.Contains(resp.Text, "1. Send Emergency Alert") {
		t.Fatalf("menu missing alert option: %q", resp.Text)
	}
}

func TestRegistrationHappyPath(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-reg"
	const phone = "+254712000222"

	steps := []struct {
		text         string
		wantFinal    bool
		wantContains string
	}{
		{"", false, "Welcome to KASA"},
		{"2", false, "Enter your full name:"},
		{"2*John Doe", false, "Hello John Doe!\nEnter your location/area:"},
		{"2*John Doe*Westlands", false, "Confirm registration:\nName: John Doe\nLocation: Westlands"},
		{"2*John Doe*Westlands*1", true, "Registration successful!"},
	}
	for _, st := range steps {
		resp := f.turn(sid, phone, st.text)
		if resp.Final != st.wantFinal {
			t.Fatalf("turn %q: final = %v, want %v (%q)", st.text, resp.Final, st.wantFinal, resp.Text)
		}
		if !strings.Contains(resp.Text, st.wantContains) {
			t.Fatalf("turn %q: response %q does not contain %q", st.text, resp.Text, st.wantContains)
		}
	}

	u, err := f.dir.Find(context.Background(), phone)
	if err != nil {
		t.Fatalf("Find after registration: %v", err)
	}
	if u.Name != "John Doe" || u.Location != "Westlands" {
		t.Fatalf("registered user = %+v", u)
	}
	if _, err := f.store.Get(context.Background(), sid); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("session still present after terminal turn: %v", err)
	}
}

func TestAlreadyRegisteredShortCircuitsFlow(t *testing.T) {
	f := newFixture(t)
	const phone = "+254712000333"
	if _, err := f.dir.Register(context.Background(), phone, "Jane", "Kilimani"); err != nil {
		t.Fatalf("seed register: %v", err)
	}

	f.turn("sess-dup", phone, "")
	resp := f.turn("sess-dup", phone, "2")
	if !resp.Final || !strings.Contains(resp.Text, "You are already registered!") {
		t.Fatalf("response = %+v", resp)
	}

	u, err := f.dir.Find(context.Background(), phone)
	if err != nil || u.Name != "Jane" {
		t.Fatalf("record changed: %+v, %v", u, err)
	}
}

func TestDuplicateAtCommitLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-race"
	const phone = "+254712000444"

	f.turn(sid, phone, "")
	f.turn(sid, phone, "2")
	f.turn(sid, phone, "2*Imposter")
	f.turn(sid, phone, "2*Imposter*CBD")

	// Someone registers the phone between the confirmation prompt and the
	// confirm keystroke.
	if _, err := f.dir.Register(context.Background(), phone, "Original", "Westlands"); err != nil {
		t.Fatalf("seed register: %v", err)
	}

	resp := f.turn(sid, phone, "2*Imposter*CBD*1")
	if !resp.Final || !strings.Contains(resp.Text, "already registered") {
		t.Fatalf("response = %+v", resp)
	}
	u, err := f.dir.Find(context.Background(), phone)
	if err != nil || u.Name != "Original" {
		t.Fatalf("record = %+v, %v", u, err)
	}
}

func TestEmergencyDispatchNotifiesNeighbors(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-alert"
	const caller = "+254711000111"
	ctx := context.Background()

	for _, u := range []struct{ phone, name, loc string }{
		{caller, "Alice", "Westlands"},
		{"+254711000222", "Bob", "westlands"},
		{"+254711000333", "Carol", "Kilimani"},
	} {
		if _, err := f.dir.Register(ctx, u.phone, u.name, u.loc); err != nil {
			t.Fatalf("seed %s: %v", u.phone, err)
		}
	}

	f.turn(sid, caller, "")
	f.turn(sid, caller, "1")
	confirm := f.turn(sid, caller, "1*1")
	if confirm.Final || !strings.Contains(confirm.Text, "Confirm sending Fire Emergency?") {
		t.Fatalf("confirm prompt = %+v", confirm)
	}

	resp := f.turn(sid, caller, "1*1*1")
	if !resp.Final {
		t.Fatalf("dispatch turn not final: %+v", resp)
	}
	for _, want := range []string{"Fire Emergency alert sent!", "Reference: EMR-", "1 local users notified", "Stay safe!"} {
		if !strings.Contains(resp.Text, want) {
			t.Fatalf("response %q missing %q", resp.Text, want)
		}
	}

	if f.dispatcher.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", f.dispatcher.count())
	}
	sent := f.dispatcher.sends[0]
	if len(sent) != 1 || sent[0] != "+254711000222" {
		t.Fatalf("recipients = %v", sent)
	}

	filed, err := f.reports.List(ctx)
	if err != nil || len(filed) != 1 {
		t.Fatalf("reports = %v, %v", filed, err)
	}
	r := filed[0]
	if r.AlertType != "Fire Emergency" || r.Notified != 1 || r.Status != reports.StatusPending {
		t.Fatalf("report = %+v", r)
	}
	if !strings.HasPrefix(r.Reference, "EMR-") || len(r.Reference) != len("EMR-")+8 {
		t.Fatalf("reference = %q", r.Reference)
	}
	if !strings.Contains(r.Location, "Nairobi Central Business District") {
		t.Fatalf("location = %q", r.Location)
	}
}

func TestUnregisteredCallerStillGetsConfirmation(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-unreg"
	const caller = "+254720000555"

	f.turn(sid, caller, "")
	f.turn(sid, caller, "1")
	f.turn(sid, caller, "1*3")
	resp := f.turn(sid, caller, "1*3*1")

	if !resp.Final || !strings.Contains(resp.Text, "Security Alert alert sent!") {
		t.Fatalf("response = %+v", resp)
	}
	if strings.Contains(resp.Text, "local users notified") {
		t.Fatalf("unregistered caller should not fan out: %q", resp.Text)
	}
	if f.dispatcher.count() != 0 {
		t.Fatalf("dispatch count = %d, want 0", f.dispatcher.count())
	}
}

func TestConcurrentConfirmDispatchesOnce(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-retrans"
	const caller = "+254711000111"
	ctx := context.Background()

	for _, u := range []struct{ phone, name, loc string }{
		{caller, "Alice", "Westlands"},
		{"+254711000222", "Bob", "Westlands"},
	} {
		if _, err := f.dir.Register(ctx, u.phone, u.name, u.loc); err != nil {
			t.Fatalf("seed %s: %v", u.phone, err)
		}
	}

	f.turn(sid, caller, "")
	f.turn(sid, caller, "1")
	f.turn(sid, caller, "1*2")

	const n = 8
	responses := make([]ussd.Response, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = f.turn(sid, caller, "1*2*1")
		}(i)
	}
	wg.Wait()

	if f.dispatcher.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", f.dispatcher.count())
	}
	dispatched := 0
	for _, resp := range responses {
		if strings.Contains(resp.Text, "alert sent!") {
			dispatched++
		}
	}
	if dispatched != 1 {
		t.Fatalf("%d responses reported a dispatch, want 1", dispatched)
	}
	filed, err := f.reports.List(ctx)
	if err != nil || len(filed) != 1 {
		t.Fatalf("reports = %v, %v", filed, err)
	}
}

func TestStatusReportsUserCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, phone := range []string{"+254711000661", "+254711000662"} {
		if _, err := f.dir.Register(ctx, phone, "U", "Loc"); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	f.turn("sess-status", "+254711000663", "")
	resp := f.turn("sess-status", "+254711000663", "3")
	if !resp.Final || !strings.Contains(resp.Text, "Registered Users: 2") {
		t.Fatalf("response = %+v", resp)
	}
}

func TestExpiredSessionStartsOver(t *testing.T) {
	f := &fixture{
		store: memorystore.New(memorystore.WithTTL(50*time.Millisecond), memorystore.WithSweepInterval(0)),
		dir:   memorydir.New(),
	}
	t.Cleanup(func() { _ = f.store.Close() })
	f.engine = New(f.store, f.dir, WithLogger(slog.New(slog.DiscardHandler)))

	const sid = "sess-exp"
	const phone = "+254711000777"
	f.turn(sid, phone, "")
	f.turn(sid, phone, "2")

	time.Sleep(80 * time.Millisecond)

	// The gateway re-sends the cumulative text, but the session is gone; the
	// newest token is judged against a fresh MAIN state.
	resp := f.turn(sid, phone, "2*John Doe")
	if !resp.Final || !strings.Contains(resp.Text, "Invalid option") {
		t.Fatalf("response = %+v", resp)
	}
}

func TestEmergencyTypeZeroReturnsToMain(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-back"
	const phone = "+254711000888"

	f.turn(sid, phone, "")
	f.turn(sid, phone, "1")
	resp := f.turn(sid, phone, "1*0")
	if resp.Final || !strings.Contains(resp.Text, "Welcome to KASA") {
		t.Fatalf("response = %+v", resp)
	}

	// The dialog is genuinely back at the top: "2" starts registration.
	resp = f.turn(sid, phone, "1*0*2")
	if resp.Final || !strings.Contains(resp.Text, "Enter your full name:") {
		t.Fatalf("response = %+v", resp)
	}
}

func TestBlankNameRepromptsThenEnds(t *testing.T) {
	f := newFixture(t)
	const sid = "sess-blank"
	const phone = "+254711000999"

	f.turn(sid, phone, "")
	f.turn(sid, phone, "2")

	text := "2"
	var resp ussd.Response
	for i := 0; i < DefaultMaxRetries; i++ {
		text += "* "
		resp = f.turn(sid, phone, text)
		if resp.Final {
			t.Fatalf("ended after %d blank entries: %+v", i+1, resp)
		}
		if !strings.Contains(resp.Text, "Please enter your full name:") {
			t.Fatalf("re-prompt = %+v", resp)
		}
	}

	text += "* "
	resp = f.turn(sid, phone, text)
	if !resp.Final || !strings.Contains(resp.Text, "Registration error") {
		t.Fatalf("response after exhausted retries = %+v", resp)
	}
}

func TestEveryTerminalPathRemovesSession(t *testing.T) {
	paths := [][]string{
		{"", "0"},
		{"", "4"},
		{"", "9"},
		{"", "1", "1*5"},
		{"", "1", "1*1", "1*1*2"},
		{"", "2", "2*Ann", "2*Ann*CBD", "2*Ann*CBD*2"},
	}
	for _, path := range paths {
		f := newFixture(t)
		sid := "sess-term"
		var resp ussd.Response
		for _, text := range path {
			resp = f.turn(sid, "+254711001111", text)
		}
		if !resp.Final {
			t.Fatalf("path %v did not terminate: %+v", path, resp)
		}
		if f.store.Len() != 0 {
			t.Fatalf("path %v left %d sessions in store", path, f.store.Len())
		}
	}
}
