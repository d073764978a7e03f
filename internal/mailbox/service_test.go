package mailbox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/nordvolt/edi-hub/pkg/config"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
	"github.com/nordvolt/edi-hub/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeOutbox struct {
	mtx    sync.Mutex
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) byType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var matched []outbox.DomainEvent
	for _, event := range f.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestService(t *testing.T, cfg config.MailboxConfig) (*Service, Repository, *fakeOutbox, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repo := NewRepository(db)
	publisher := &fakeOutbox{}
	svc, err := NewService(gormTxRunner{db: db}, repo, publisher, cfg, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo, publisher, db
}

func testMailboxConfig() config.MailboxConfig {
	return config.MailboxConfig{
		BundlingWindow: time.Hour,
		MaxBundleSize:  5,
	}
}

func enqueueParams() EnqueueParams {
	return EnqueueParams{
		ReceiverNumber: "5790001330552",
		ReceiverRole:   enums.RoleEnergySupplier,
		Category:       enums.CategoryMeasureData,
		DocumentType:   enums.TypeNotifyValidatedMeasureData,
		BusinessReason: enums.ReasonPeriodicMetering,
		Payload:        json.RawMessage(`{"transactionId":"tx-1"}`),
	}
}

func TestEnqueueCreatesBundleAndSequences(t *testing.T) {
	t.Parallel()

	svc, repo, publisher, _ := newTestService(t, testMailboxConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Enqueue(ctx, enqueueParams()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	bundle, err := repo.GetOpenBundle(ctx, testPartition())
	if err != nil {
		t.Fatalf("get open bundle: %v", err)
	}
	if bundle == nil {
		t.Fatal("expected an open bundle")
	}
	if bundle.MessageCount != 3 {
		t.Fatalf("message count = %d, want 3", bundle.MessageCount)
	}

	messages, err := repo.ListMessages(ctx, bundle.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, message := range messages {
		if message.SequenceNo != i+1 {
			t.Fatalf("message %d has sequence %d", i, message.SequenceNo)
		}
	}

	if events := publisher.byType(enums.EventMessageEnqueued); len(events) != 3 {
		t.Fatalf("expected 3 enqueue events, got %d", len(events))
	}
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t, testMailboxConfig())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(p *EnqueueParams)
	}{
		{"missing receiver", func(p *EnqueueParams) { p.ReceiverNumber = "" }},
		{"bad role", func(p *EnqueueParams) { p.ReceiverRole = "XXX" }},
		{"bad category", func(p *EnqueueParams) { p.Category = "invoices" }},
		{"bad document type", func(p *EnqueueParams) { p.DocumentType = "Unknown" }},
		{"category mismatch", func(p *EnqueueParams) { p.Category = enums.CategoryAggregations }},
		{"bad reason", func(p *EnqueueParams) { p.BusinessReason = "Z99" }},
		{"empty payload", func(p *EnqueueParams) { p.Payload = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := enqueueParams()
			tc.mutate(&params)
			_, err := svc.Enqueue(ctx, params)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestEnqueueRejectsMixedDocumentTypes(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t, testMailboxConfig())
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, enqueueParams()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	params := enqueueParams()
	params.DocumentType = enums.TypeRejectRequestMeasureData
	_, err := svc.Enqueue(ctx, params)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCloseRipeBundlesByWindow(t *testing.T) {
	t.Parallel()

	svc, repo, publisher, db := newTestService(t, testMailboxConfig())
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, enqueueParams()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	bundle, err := repo.GetOpenBundle(ctx, testPartition())
	if err != nil || bundle == nil {
		t.Fatalf("get open bundle: %+v err=%v", bundle, err)
	}
	if err := db.Exec("UPDATE bundles SET opened_at = ? WHERE id = ?",
		time.Now().UTC().Add(-2*time.Hour), bundle.ID).Error; err != nil {
		t.Fatalf("age bundle: %v", err)
	}

	closed, err := svc.CloseRipeBundles(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("close ripe: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}
	if events := publisher.byType(enums.EventBundleClosed); len(events) != 1 {
		t.Fatalf("expected 1 close event, got %d", len(events))
	}

	// Repeat runs are no-ops.
	closed, err = svc.CloseRipeBundles(ctx, time.Now().UTC())
	if err != nil || closed != 0 {
		t.Fatalf("second sweep: closed=%d err=%v", closed, err)
	}
}

func TestCloseRipeBundlesBySize(t *testing.T) {
	t.Parallel()

	cfg := testMailboxConfig()
	cfg.MaxBundleSize = 2
	svc, repo, _, _ := newTestService(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Enqueue(ctx, enqueueParams()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	closed, err := svc.CloseRipeBundles(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("close ripe: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}
	deliverable, err := repo.GetDeliverableBundle(ctx, testPartition())
	if err != nil || deliverable == nil {
		t.Fatalf("expected a deliverable bundle: %+v err=%v", deliverable, err)
	}
}

func TestCloseRipeBundlesSkipsOccupiedSlot(t *testing.T) {
	t.Parallel()

	svc, repo, _, db := newTestService(t, testMailboxConfig())
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, enqueueParams()); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	first, err := repo.GetOpenBundle(ctx, testPartition())
	if err != nil || first == nil {
		t.Fatalf("get first: %+v err=%v", first, err)
	}
	if ok, err := repo.CloseBundle(ctx, first.ID, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("close first: ok=%v err=%v", ok, err)
	}

	// A new bundle accumulates while the delivery slot is occupied.
	if _, err := svc.Enqueue(ctx, enqueueParams()); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	second, err := repo.GetOpenBundle(ctx, testPartition())
	if err != nil || second == nil {
		t.Fatalf("get second: %+v err=%v", second, err)
	}
	if err := db.Exec("UPDATE bundles SET opened_at = ? WHERE id = ?",
		time.Now().UTC().Add(-2*time.Hour), second.ID).Error; err != nil {
		t.Fatalf("age second: %v", err)
	}

	closed, err := svc.CloseRipeBundles(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("close ripe: %v", err)
	}
	if closed != 0 {
		t.Fatalf("closed = %d, want 0 while slot occupied", closed)
	}
	reloaded, err := repo.FindByID(ctx, second.ID)
	if err != nil || reloaded.State != enums.BundleOpen {
		t.Fatalf("second bundle state = %v err=%v, want open", reloaded, err)
	}
}
