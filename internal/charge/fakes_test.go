package charge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/events"
	"github.com/AnuragDani/subscription-charger/internal/ledger"
	"github.com/AnuragDani/subscription-charger/internal/models"
	"github.com/AnuragDani/subscription-charger/internal/policy"
	"github.com/AnuragDani/subscription-charger/internal/renewal"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dueSubscription(id string) *models.SubscriptionItem {
	return &models.SubscriptionItem{
		ID:             id,
		UserID:         "user-" + id,
		IsActive:       true,
		IsChargeable:   true,
		NextChargeDate: now.Add(-24 * time.Hour),
		DateEnding:     now.Add(48 * time.Hour),
		PaymentInfo:    &models.PaymentInfo{ID: "pi-" + id, SubscriptionTokenID: "tok-" + id},
		Package: models.SubscriptionPackage{
			ID:         "pkg-1",
			Type:       models.PackageTypePeriod,
			Amount:     999,
			Currency:   "USD",
			PeriodDays: 30,
		},
	}
}

type fakeStore struct {
	due     []*models.SubscriptionItem
	dueErr  error
	saveErr error
	getErr  error
	saves   []*models.SubscriptionItem
	logs    []models.ChargeLogEntry
	rows    map[string]*models.SubscriptionItem
}

func (s *fakeStore) GetDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.SubscriptionItem, error) {
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	return s.due, nil
}

// GetSubscription returns the last saved row, or the due copy when nothing was saved yet
func (s *fakeStore) GetSubscription(ctx context.Context, id string) (*models.SubscriptionItem, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if row, ok := s.rows[id]; ok {
		return row.Clone(), nil
	}
	for _, sub := range s.due {
		if sub.ID == id {
			return sub.Clone(), nil
		}
	}
	return nil, fmt.Errorf("subscription %s not found", id)
}

func (s *fakeStore) SaveChargeState(ctx context.Context, sub *models.SubscriptionItem) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	sub.Version++
	s.saves = append(s.saves, sub.Clone())
	if s.rows == nil {
		s.rows = make(map[string]*models.SubscriptionItem)
	}
	s.rows[sub.ID] = sub.Clone()
	return nil
}

func (s *fakeStore) LogCharge(ctx context.Context, entry *models.ChargeLogEntry) error {
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *fakeStore) actions() []string {
	var actions []string
	for _, l := range s.logs {
		actions = append(actions, l.Action)
	}
	return actions
}

type fakeLedger struct {
	created   []*models.PayTransaction
	createErr error
	updateErr error
	updates   map[string][]string
}

func (l *fakeLedger) CreateTransaction(ctx context.Context, p ledger.CreateParams) (*models.PayTransaction, error) {
	if l.createErr != nil {
		return nil, l.createErr
	}
	txn := &models.PayTransaction{
		ID:                 fmt.Sprintf("txn-%d", len(l.created)+1),
		SubscriptionItemID: p.SubscriptionItemID,
		UserID:             p.UserID,
		Amount:             p.Amount,
		Currency:           p.Currency,
		PaymentSystem:      p.PaymentSystem,
		PayAccount:         p.PayAccount,
		ReturnURL:          p.ReturnURL,
		IdempotencyKey:     fmt.Sprintf("key-%d", len(l.created)+1),
		Status:             models.TransactionStatusCreated,
	}
	l.created = append(l.created, txn)
	return txn, nil
}

func (l *fakeLedger) record(txn *models.PayTransaction, status, bank, gw, msg, raw string) error {
	if l.updates == nil {
		l.updates = make(map[string][]string)
	}
	l.updates[txn.ID] = append(l.updates[txn.ID], status)
	if l.updateErr != nil {
		return l.updateErr
	}
	txn.Status = status
	txn.BankTransactionID = bank
	txn.GatewayTransactionID = gw
	txn.ErrorMessage = msg
	txn.ErrorMessageRaw = raw
	return nil
}

func (l *fakeLedger) OnPending(ctx context.Context, txn *models.PayTransaction, bank, gw string) error {
	return l.record(txn, models.TransactionStatusPending, bank, gw, "", "")
}

func (l *fakeLedger) OnSuccess(ctx context.Context, txn *models.PayTransaction, bank, gw string) error {
	return l.record(txn, models.TransactionStatusSuccess, bank, gw, "", "")
}

func (l *fakeLedger) OnFail(ctx context.Context, txn *models.PayTransaction, bank, gw, msg, raw string) error {
	return l.record(txn, models.TransactionStatusFail, bank, gw, msg, raw)
}

type fakeGateway struct {
	chargeFn func(txn *models.PayTransaction, token string) (*models.ChargeResponse, error)
	calls    []string
}

func (g *fakeGateway) Charge(ctx context.Context, txn *models.PayTransaction, token string) (*models.ChargeResponse, error) {
	g.calls = append(g.calls, txn.SubscriptionItemID)
	if g.chargeFn == nil {
		return &models.ChargeResponse{Outcome: models.OutcomeSuccess, BankTransactionID: "bank-1", GatewayTransactionID: "gw-1"}, nil
	}
	return g.chargeFn(txn, token)
}

func (g *fakeGateway) Name() string { return "mock_gateway" }

func respondWith(outcome models.Outcome) func(*models.PayTransaction, string) (*models.ChargeResponse, error) {
	return func(*models.PayTransaction, string) (*models.ChargeResponse, error) {
		return &models.ChargeResponse{
			Outcome:              outcome,
			BankTransactionID:    "bank-1",
			GatewayTransactionID: "gw-1",
			ErrorMessage:         "Insufficient funds",
			ErrorMessageRaw:      "code 51",
		}, nil
	}
}

type fakeEffector struct {
	updates []string
	err     error
}

func (e *fakeEffector) Update(ctx context.Context, sub *models.SubscriptionItem) error {
	e.updates = append(e.updates, sub.ID)
	return e.err
}

type fakeRenewals struct {
	effector *fakeEffector
}

func (r *fakeRenewals) Get(packageType models.PackageType) (renewal.Effector, error) {
	if packageType != models.PackageTypePeriod {
		return nil, fmt.Errorf("%w: %q", renewal.ErrNoEffector, packageType)
	}
	return r.effector, nil
}

type recordingDispatcher struct {
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, e events.Event) {
	d.events = append(d.events, e)
}

func (d *recordingDispatcher) names() []string {
	var names []string
	for _, e := range d.events {
		names = append(names, e.Name())
	}
	return names
}

type notification struct {
	subject, body, recipient string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, subject, body, recipient string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{subject, body, recipient})
}

func (n *recordingNotifier) subjects() []string {
	var subjects []string
	for _, s := range n.sent {
		subjects = append(subjects, s.subject)
	}
	return subjects
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) Acquire(ctx context.Context, id string) (string, bool, error) {
	if l.held[id] {
		return "", false, nil
	}
	return "token-" + id, true, nil
}

func (l *fakeLocker) Release(ctx context.Context, id, token string) error {
	l.released = append(l.released, id)
	return nil
}

type harness struct {
	store        *fakeStore
	ledger       *fakeLedger
	gateway      *fakeGateway
	effector     *fakeEffector
	events       *recordingDispatcher
	notifier     *recordingNotifier
	transitioner *Transitioner
	validator    *Validator
	orchestrator *Orchestrator
}

const recipient = "billing-alerts@example.com"

func newHarness(t *testing.T, subs ...*models.SubscriptionItem) *harness {
	t.Helper()
	h := &harness{
		store:    &fakeStore{due: subs},
		ledger:   &fakeLedger{},
		gateway:  &fakeGateway{},
		effector: &fakeEffector{},
		events:   &recordingDispatcher{},
		notifier: &recordingNotifier{},
	}

	p := policy.DefaultAttemptPolicy().WithClock(clock)
	logger := discardLogger()

	h.validator = NewValidator(p, h.notifier, recipient, logger)
	h.validator.now = clock

	h.transitioner = NewTransitioner(TransitionerConfig{
		Store:     h.store,
		Ledger:    h.ledger,
		Renewals:  &fakeRenewals{effector: h.effector},
		Policy:    p,
		Events:    h.events,
		Notifier:  h.notifier,
		Recipient: recipient,
		Logger:    logger,
	})

	h.orchestrator = NewOrchestrator(OrchestratorConfig{
		Store:          h.store,
		Ledger:         h.ledger,
		Gateway:        h.gateway,
		Validator:      h.validator,
		Transitioner:   h.transitioner,
		Logger:         logger,
		PayAccount:     "default",
		BatchSize:      100,
		GatewayTimeout: time.Second,
	})
	h.orchestrator.now = clock
	return h
}
