package registry

import (
	"reflect"
	"sync"
	"testing"

	"github.com/tessro/fbmon/internal/project"
	"github.com/tessro/fbmon/internal/transport/transporttest"
)

type recorder struct {
	mu       sync.Mutex
	payloads []Payload
}

func (r *recorder) HandlePush(_ string, p Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func setup(t *testing.T, active string) (*Registry, *transporttest.Fake, *project.Context) {
	t.Helper()
	fake := transporttest.NewFake()
	ctx := project.NewContext()
	if active != "" {
		ctx.SetActive(active)
	}
	return New(fake, ctx), fake, ctx
}

func status(project, value string) map[string]string {
	return map[string]string{"projectName": project, "status": value}
}

func TestRegister_InstallsOneHandlerPerEvent(t *testing.T) {
	r, fake, _ := setup(t, "p1")

	r.Register("update_status", &recorder{})
	r.Register("update_status", &recorder{})
	r.Register("update_status", ListenerFunc(func(string, Payload) {}))

	if got := fake.Installs("update_status"); got != 1 {
		t.Errorf("Installs(update_status) = %d, want 1", got)
	}
	if got := r.Listeners("update_status"); got != 3 {
		t.Errorf("Listeners(update_status) = %d, want 3", got)
	}
}

func TestRegister_DuplicateListenerDeliversOnce(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	rec := &recorder{}

	tok1 := r.Register("update_status", rec)
	tok2 := r.Register("update_status", rec)
	if tok1 != tok2 {
		t.Errorf("tokens differ for same listener: %v != %v", tok1, tok2)
	}

	fake.Push("update_status", status("p1", "RUNNING"))

	if rec.count() != 1 {
		t.Errorf("deliveries = %d, want 1", rec.count())
	}
}

func TestDispatch_FiltersForeignProject(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	rec := &recorder{}
	r.Register("update_status", rec)

	fake.Push("update_status", status("p2", "RUNNING"))

	if rec.count() != 0 {
		t.Errorf("deliveries = %d, want 0", rec.count())
	}
}

func TestDispatch_NoActiveProject(t *testing.T) {
	r, fake, _ := setup(t, "")
	rec := &recorder{}
	r.Register("update_status", rec)

	fake.Push("update_status", status("p1", "RUNNING"))
	fake.Push("update_status", status("", "RUNNING"))

	if rec.count() != 0 {
		t.Errorf("deliveries = %d, want 0", rec.count())
	}
}

func TestDispatch_DropsPayloadWithoutProject(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	rec := &recorder{}
	r.Register("update_status", rec)

	fake.Push("update_status", map[string]string{"status": "RUNNING"})
	fake.Push("update_status", []string{"not", "an", "object"})

	if rec.count() != 0 {
		t.Errorf("deliveries = %d, want 0", rec.count())
	}
}

func TestDispatch_FollowsProjectChanges(t *testing.T) {
	r, fake, ctx := setup(t, "p1")
	rec := &recorder{}
	r.Register("update_status", rec)

	fake.Push("update_status", status("p1", "RUNNING"))
	ctx.SetActive("p2")
	fake.Push("update_status", status("p1", "FINISHED"))
	fake.Push("update_status", status("p2", "IDLE"))

	if rec.count() != 2 {
		t.Fatalf("deliveries = %d, want 2", rec.count())
	}
	if rec.payloads[1].ProjectName != "p2" {
		t.Errorf("second delivery project = %q, want p2", rec.payloads[1].ProjectName)
	}
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	var order []string
	r.Register("update_status", ListenerFunc(func(string, Payload) { order = append(order, "A") }))
	r.Register("update_status", ListenerFunc(func(string, Payload) { order = append(order, "B") }))

	fake.Push("update_status", status("p1", "RUNNING"))

	if !reflect.DeepEqual(order, []string{"A", "B"}) {
		t.Errorf("order = %v, want [A B]", order)
	}
}

func TestDispatch_PayloadContents(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	var got struct {
		ProjectName string `json:"projectName"`
		Status      string `json:"status"`
	}
	var event string
	r.Register("update_status", ListenerFunc(func(name string, p Payload) {
		event = name
		if err := p.Decode(&got); err != nil {
			t.Errorf("Decode() error = %v", err)
		}
	}))

	fake.Push("update_status", status("p1", "FINISHED"))

	if event != "update_status" {
		t.Errorf("event = %q, want update_status", event)
	}
	if got.ProjectName != "p1" || got.Status != "FINISHED" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestUnregister_LastListenerRemovesHandler(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	rec := &recorder{}
	tokA := r.Register("update_status", rec)
	tokB := r.Register("update_status", ListenerFunc(func(string, Payload) {}))

	if !r.Unregister(tokA) {
		t.Fatal("Unregister(tokA) = false, want true")
	}
	if !fake.HasHandler("update_status") {
		t.Fatal("handler removed while a listener remains")
	}

	r.Unregister(tokB)
	if fake.HasHandler("update_status") {
		t.Error("handler still installed after last unregister")
	}
	if got := r.Events(); len(got) != 0 {
		t.Errorf("Events() = %v, want none", got)
	}
	if fake.Push("update_status", status("p1", "RUNNING")) {
		t.Error("push reached a transport handler after teardown")
	}
	if rec.count() != 0 {
		t.Errorf("deliveries = %d, want 0", rec.count())
	}
}

func TestUnregister_UnknownToken(t *testing.T) {
	r, _, _ := setup(t, "p1")
	tok := r.Register("update_status", &recorder{})

	if r.Unregister(Token{}) {
		t.Error("Unregister(zero) = true, want false")
	}
	r.Unregister(tok)
	if r.Unregister(tok) {
		t.Error("second Unregister = true, want false")
	}
}

func TestRegister_AfterTeardownReinstalls(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	tok := r.Register("update_opt_state", &recorder{})
	r.Unregister(tok)

	rec := &recorder{}
	r.Register("update_opt_state", rec)
	fake.Push("update_opt_state", map[string]any{"projectName": "p1", "iteration": 2})

	if got := fake.Installs("update_opt_state"); got != 2 {
		t.Errorf("Installs = %d, want 2", got)
	}
	if rec.count() != 1 {
		t.Errorf("deliveries = %d, want 1", rec.count())
	}
}

func TestUnregister_StaleTokenAfterResubscribe(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	a, b := &recorder{}, &recorder{}

	tokA := r.Register("update_status", a)
	r.Unregister(tokA)
	r.Register("update_status", b)

	if r.Unregister(tokA) {
		t.Error("stale Unregister(tokA) = true, want false")
	}
	if !fake.HasHandler("update_status") {
		t.Fatal("stale token tore down the handler")
	}
	if got := r.Listeners("update_status"); got != 1 {
		t.Errorf("Listeners = %d, want 1", got)
	}

	fake.Push("update_status", status("p1", "RUNNING"))

	if b.count() != 1 {
		t.Errorf("b deliveries = %d, want 1", b.count())
	}
	if a.count() != 0 {
		t.Errorf("a deliveries = %d, want 0", a.count())
	}
}

func TestDispatch_ProjectSwitchDuringDelivery(t *testing.T) {
	r, fake, ctx := setup(t, "p1")
	r.Register("update_status", ListenerFunc(func(string, Payload) {
		ctx.SetActive("p2")
	}))
	late := &recorder{}
	r.Register("update_status", late)

	fake.Push("update_status", status("p1", "RUNNING"))

	if late.count() != 0 {
		t.Errorf("deliveries after switch = %d, want 0", late.count())
	}

	fake.Push("update_status", status("p2", "IDLE"))

	if late.count() != 1 {
		t.Errorf("deliveries for new project = %d, want 1", late.count())
	}
}

func TestDispatch_ListenerUnregistersItself(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	calls := 0
	var tok Token
	tok = r.Register("update_status", ListenerFunc(func(string, Payload) {
		calls++
		r.Unregister(tok)
	}))
	other := &recorder{}
	r.Register("update_status", other)

	fake.Push("update_status", status("p1", "RUNNING"))
	fake.Push("update_status", status("p1", "FINISHED"))

	if calls != 1 {
		t.Errorf("self-removing listener calls = %d, want 1", calls)
	}
	if other.count() != 2 {
		t.Errorf("other deliveries = %d, want 2", other.count())
	}
}

func TestDispatch_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	r.Register("update_status", ListenerFunc(func(string, Payload) { panic("boom") }))
	rec := &recorder{}
	r.Register("update_status", rec)

	fake.Push("update_status", status("p1", "RUNNING"))

	if rec.count() != 1 {
		t.Errorf("deliveries = %d, want 1", rec.count())
	}
}

func TestClose(t *testing.T) {
	r, fake, _ := setup(t, "p1")
	r.Register("update_status", &recorder{})
	r.Register("update_work_queue_status", &recorder{})

	if got := r.Events(); !reflect.DeepEqual(got, []string{"update_status", "update_work_queue_status"}) {
		t.Errorf("Events() = %v", got)
	}

	r.Close()

	if fake.Handlers() != 0 {
		t.Errorf("Handlers() = %d, want 0", fake.Handlers())
	}
	if len(r.Events()) != 0 {
		t.Errorf("Events() = %v, want none", r.Events())
	}
}

func TestToken(t *testing.T) {
	r, _, _ := setup(t, "p1")
	tok := r.Register("update_status", &recorder{})

	if !tok.Valid() || tok.Event() != "update_status" {
		t.Errorf("token = %+v", tok)
	}
	if (Token{}).Valid() {
		t.Error("zero token is valid")
	}
}
