package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/gatekeep/internal/access"
	"github.com/dukerupert/gatekeep/internal/model"
	"github.com/dukerupert/gatekeep/internal/payment"
	"github.com/dukerupert/gatekeep/internal/plan"
	"github.com/dukerupert/gatekeep/internal/scheduler"
	"github.com/dukerupert/gatekeep/internal/store"
	"github.com/dukerupert/gatekeep/internal/subscription"
	"github.com/dukerupert/gatekeep/internal/telegram"
)

type fakeAPI struct {
	mu        sync.Mutex
	messages  []string
	keyboards []*telegram.InlineKeyboardMarkup
	photos    int
	edits     []string
	deleted   []int64
	answered  []string
	nextID    int64
}

func (f *fakeAPI) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error) {
	return nil, context.Canceled
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.messages = append(f.messages, text)
	f.keyboards = append(f.keyboards, kb)
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeAPI) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.photos++
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeAPI) EditMessageText(ctx context.Context, chatID, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeAPI) lastMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeCharges struct {
	charge *model.PixCharge
	err    error
}

func (f *fakeCharges) CreatePix(ctx context.Context, amount decimal.Decimal, description string, principal int64) (*model.PixCharge, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.charge, nil
}

type fakeGranter struct {
	mu      sync.Mutex
	grants  []int64
	planIDs []string
}

func (f *fakeGranter) Grant(ctx context.Context, principal int64, p plan.Plan) (access.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, principal)
	f.planIDs = append(f.planIDs, p.ID)
	return access.OutcomeDirect, nil
}

func (f *fakeGranter) granted() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.grants...)
}

type scriptedGateway struct {
	mu     sync.Mutex
	status model.PaymentStatus
}

func (s *scriptedGateway) Status(ctx context.Context, txID string) (model.PaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func validCharge() *model.PixCharge {
	return &model.PixCharge{
		TransactionID: "123456789",
		QRCodeBase64:  base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}),
		QRCodeText:    "00020126PIXCODE",
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
}

func newTestBot(t *testing.T, api *fakeAPI, charges ChargeCreator, granter Granter, gw payment.Gateway) *Bot {
	t.Helper()
	sched := scheduler.New(nil)
	t.Cleanup(sched.StopAll)
	subs := subscription.NewService(store.NewMemory(), sched, nil)

	watcher := payment.NewWatcher(gw, nil,
		payment.WithInterval(10*time.Millisecond),
		payment.WithCeiling(time.Second),
		payment.WithRetry(1, time.Millisecond),
	)
	t.Cleanup(watcher.StopAll)

	return New(api, plan.Default(), subs, granter, charges, watcher, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func callback(data string) *telegram.CallbackQuery {
	return &telegram.CallbackQuery{
		ID:      "cb1",
		From:    telegram.User{ID: 7},
		Data:    data,
		Message: &telegram.Message{MessageID: 1, Chat: telegram.Chat{ID: 7}},
	}
}

func TestStartShowsWelcomeWithoutSubscription(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.handleMessage(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 7}, Text: "/start"})

	msgs := api.lastMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "VER PLANOS") {
		t.Errorf("messages = %v, want welcome with plan button", msgs)
	}
}

func TestStartShowsActiveSubscription(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	p, _ := b.catalog.Get("plano_teste")
	if _, err := b.subs.Record(7, p); err != nil {
		t.Fatalf("record: %v", err)
	}

	b.handleMessage(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 7}, Text: "/start"})

	msgs := api.lastMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "ASSINATURA ATIVA") {
		t.Errorf("messages = %v, want active-subscription status", msgs)
	}
}

func TestFreeTextNudgesToPlans(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.handleMessage(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 7}, Text: "oi"})

	if msgs := api.lastMessages(); len(msgs) != 1 {
		t.Errorf("messages = %v, want a single nudge", msgs)
	}
}

func TestUnknownCallbackIsLoggedNoop(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.handleCallback(context.Background(), callback("xyz_123"))

	if msgs := api.lastMessages(); len(msgs) != 0 {
		t.Errorf("messages = %v, want none for unknown payload", msgs)
	}
	// The press is still acknowledged so the client spinner stops.
	if len(api.answered) != 1 {
		t.Errorf("answered = %v, want one ack", api.answered)
	}
}

func TestShowPlansKeyboard(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.handleCallback(context.Background(), callback("ver_planos"))

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.keyboards) != 1 || api.keyboards[0] == nil {
		t.Fatal("expected a plan keyboard")
	}
	if rows := len(api.keyboards[0].InlineKeyboard); rows != 4 {
		t.Errorf("keyboard rows = %d, want 4", rows)
	}
}

func TestPurchaseUnknownPlan(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.processPlan(context.Background(), 7, "plano_inexistente")

	msgs := api.lastMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "não encontrado") {
		t.Errorf("messages = %v, want plan-not-found", msgs)
	}
}

func TestPurchasePixFailureEditsToRetryPrompt(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{err: errors.New("provider down")}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.processPlan(context.Background(), 7, "plano_teste")

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.edits) != 1 || !strings.Contains(api.edits[0], "Erro ao gerar PIX") {
		t.Errorf("edits = %v, want pix-error prompt", api.edits)
	}
}

func TestPurchaseApprovedGrantsAccess(t *testing.T) {
	api := &fakeAPI{}
	granter := &fakeGranter{}
	gw := &scriptedGateway{status: model.StatusApproved}
	b := newTestBot(t, api, &fakeCharges{charge: validCharge()}, granter, gw)

	b.processPlan(context.Background(), 7, "plano_teste")

	// QR delivered as a photo, progress message cleaned up.
	api.mu.Lock()
	if api.photos != 1 {
		t.Errorf("photos = %d, want 1", api.photos)
	}
	if len(api.deleted) != 1 {
		t.Errorf("deleted = %v, want the progress message", api.deleted)
	}
	api.mu.Unlock()

	waitFor(t, time.Second, func() bool { return len(granter.granted()) == 1 })
	granter.mu.Lock()
	defer granter.mu.Unlock()
	if granter.grants[0] != 7 || granter.planIDs[0] != "plano_teste" {
		t.Errorf("grant = (%d, %s), want (7, plano_teste)", granter.grants[0], granter.planIDs[0])
	}
}

func TestPurchaseRejectedNotifies(t *testing.T) {
	api := &fakeAPI{}
	gw := &scriptedGateway{status: model.StatusRejected}
	b := newTestBot(t, api, &fakeCharges{charge: validCharge()}, &fakeGranter{}, gw)

	b.processPlan(context.Background(), 7, "plano_teste")

	waitFor(t, time.Second, func() bool {
		for _, m := range api.lastMessages() {
			if strings.Contains(m, "não aprovado") {
				return true
			}
		}
		return false
	})
}

func TestVerifyConfirmedSubscription(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	p, _ := b.catalog.Get("plano_teste")
	if _, err := b.subs.Record(7, p); err != nil {
		t.Fatalf("record: %v", err)
	}

	b.handleCallback(context.Background(), callback("verificar_123456789"))

	msgs := api.lastMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Pagamento confirmado") {
		t.Errorf("messages = %v, want confirmation", msgs)
	}
}

func TestVerifyWhileWatchPending(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{charge: validCharge()}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.processPlan(context.Background(), 7, "plano_teste")
	b.handleCallback(context.Background(), callback("verificar_123456789"))

	var found bool
	for _, m := range api.lastMessages() {
		if strings.Contains(m, "ainda não confirmado") {
			found = true
		}
	}
	if !found {
		t.Errorf("messages = %v, want still-pending notice", api.lastMessages())
	}
}

func TestVerifyUnknownTransaction(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.handleCallback(context.Background(), callback("verificar_999"))

	msgs := api.lastMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "não encontrada") {
		t.Errorf("messages = %v, want charge-not-found notice", msgs)
	}
}

func TestPaidAcknowledgement(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &fakeCharges{}, &fakeGranter{}, &scriptedGateway{status: model.StatusPending})

	b.handleCallback(context.Background(), callback("ja_paguei_123456789_plano_teste"))

	msgs := api.lastMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "PAGAMENTO REGISTRADO") {
		t.Errorf("messages = %v, want paid acknowledgement", msgs)
	}
}
