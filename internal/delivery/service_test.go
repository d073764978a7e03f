package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/internal/documents/catalog"
	"github.com/nordvolt/edi-hub/internal/mailbox"
	"github.com/nordvolt/edi-hub/pkg/config"
	"github.com/nordvolt/edi-hub/pkg/db/models"
	"github.com/nordvolt/edi-hub/pkg/enums"
	"github.com/nordvolt/edi-hub/pkg/outbox"
	"github.com/nordvolt/edi-hub/pkg/storage"
)

var testSchema = []string{
	`CREATE TABLE bundles (
		id TEXT PRIMARY KEY,
		receiver_number TEXT NOT NULL,
		receiver_role TEXT NOT NULL,
		category TEXT NOT NULL,
		document_type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'open',
		peek_message_id TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		opened_at DATETIME,
		closed_at DATETIME,
		document_format TEXT,
		storage_ref TEXT,
		dequeued_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_bundles_open_partition
		ON bundles (receiver_number, receiver_role, category)
		WHERE state = 'open'`,
	`CREATE UNIQUE INDEX ux_bundles_deliverable_partition
		ON bundles (receiver_number, receiver_role, category)
		WHERE state IN ('closed', 'materialized')`,
	`CREATE TABLE outgoing_messages (
		id TEXT PRIMARY KEY,
		bundle_id TEXT NOT NULL,
		receiver_number TEXT NOT NULL,
		receiver_role TEXT NOT NULL,
		category TEXT NOT NULL,
		document_type TEXT NOT NULL,
		business_reason TEXT NOT NULL,
		payload BLOB NOT NULL,
		related_to_message_id TEXT,
		sequence_no INTEGER NOT NULL,
		created_at DATETIME
	)`,
}

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

type fakeCache struct {
	mtx  sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	value, ok := c.data[key]
	return value, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if data, ok := value.([]byte); ok {
		c.data[key] = data
	}
	return nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

func (c *fakeCache) DocumentKey(bundleID string) string {
	return "edihub:doc:" + bundleID
}

type testEnv struct {
	svc     *Service
	repo    mailbox.Repository
	store   *storage.MemoryStore
	cache   *fakeCache
	db      *gorm.DB
	outbox  *fakeOutbox
	mailbox *mailbox.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:delivery_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	repo := mailbox.NewRepository(db)
	store := storage.NewMemoryStore()
	cache := newFakeCache()
	publisher := &fakeOutbox{}
	tx := gormTxRunner{db: db}
	sender := config.SenderConfig{ActorNumber: "5790000000005", ActorRole: "MDR"}
	mailboxCfg := config.MailboxConfig{
		BundlingWindow:   time.Hour,
		MaxBundleSize:    100,
		DocumentCacheTTL: time.Minute,
	}

	svc, err := NewService(tx, repo, catalog.NewSelector(), documents.NewRecordParser(),
		store, cache, publisher, sender, mailboxCfg, nil, nil)
	if err != nil {
		t.Fatalf("new delivery service: %v", err)
	}
	mailboxSvc, err := mailbox.NewService(tx, repo, publisher, mailboxCfg, nil, nil)
	if err != nil {
		t.Fatalf("new mailbox service: %v", err)
	}
	return &testEnv{svc: svc, repo: repo, store: store, cache: cache, db: db, outbox: publisher, mailbox: mailboxSvc}
}

func peekParams() PeekParams {
	return PeekParams{
		ReceiverNumber: "5790001330552",
		ReceiverRole:   enums.RoleEnergySupplier,
		Category:       enums.CategoryMeasureData,
		Format:         enums.FormatCIMXML,
	}
}

func decimalFromString(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func measurePayload(id string) json.RawMessage {
	record := documents.MeasureDataRecord{
		ID:              id,
		MeteringPointID: "571313180000000005",
		Resolution:      "PT1H",
		Unit:            "KWH",
		PeriodStart:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:       time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		Points: []documents.MeasurePoint{
			{Position: 1, Quantity: decimalFromString("10.5"), Quality: "A04"},
			{Position: 2, Quantity: decimalFromString("11.25"), Quality: "A03"},
		},
	}
	data, _ := json.Marshal(record)
	return data
}

// seedClosedBundle enqueues count messages and force-closes the bundle.
func (e *testEnv) seedClosedBundle(t *testing.T, count int) *models.Bundle {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		_, err := e.mailbox.Enqueue(ctx, mailbox.EnqueueParams{
			ReceiverNumber: "5790001330552",
			ReceiverRole:   enums.RoleEnergySupplier,
			Category:       enums.CategoryMeasureData,
			DocumentType:   enums.TypeNotifyValidatedMeasureData,
			BusinessReason: enums.ReasonPeriodicMetering,
			Payload:        measurePayload(uuid.NewString()),
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	bundle, err := e.repo.GetOpenBundle(ctx, mailbox.PartitionKey{
		ReceiverNumber: "5790001330552",
		ReceiverRole:   enums.RoleEnergySupplier,
		Category:       enums.CategoryMeasureData,
	})
	if err != nil || bundle == nil {
		t.Fatalf("get open bundle: %+v err=%v", bundle, err)
	}
	if ok, err := e.repo.CloseBundle(ctx, bundle.ID, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("close bundle: ok=%v err=%v", ok, err)
	}
	return bundle
}

func TestPeekEmptyPartition(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	result, err := env.svc.Peek(context.Background(), peekParams())
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no content, got %+v", result)
	}
}

func TestPeekIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	bundle := env.seedClosedBundle(t, 3)

	first, err := env.svc.Peek(ctx, peekParams())
	if err != nil {
		t.Fatalf("first peek: %v", err)
	}
	if first == nil {
		t.Fatal("expected a delivery")
	}
	if first.MessageID != bundle.PeekMessageID {
		t.Fatalf("message id = %s, want the bundle's peek id %s", first.MessageID, bundle.PeekMessageID)
	}
	if first.ContentType != enums.FormatCIMXML.ContentType() {
		t.Fatalf("content type = %q", first.ContentType)
	}

	second, err := env.svc.Peek(ctx, peekParams())
	if err != nil {
		t.Fatalf("second peek: %v", err)
	}
	if second == nil || second.MessageID != first.MessageID {
		t.Fatalf("repeat peek changed the message id: %+v", second)
	}
	if !bytes.Equal(first.Document, second.Document) {
		t.Fatal("repeat peek returned different bytes")
	}
	if env.store.Len() != 1 {
		t.Fatalf("expected exactly one stored document, got %d", env.store.Len())
	}
}

// raceRepo simulates a concurrent peek winning the materialize race: the
// first MaterializeDocument call lets a rival write first, then reports the
// caller as the loser.
type raceRepo struct {
	mailbox.Repository
	store  *storage.MemoryStore
	rival  []byte
	format enums.DocumentFormat
	once   sync.Once
}

func (r *raceRepo) WithTx(tx *gorm.DB) mailbox.Repository {
	return &rivalTxRepo{Repository: r.Repository.WithTx(tx), parent: r}
}

type rivalTxRepo struct {
	mailbox.Repository
	parent *raceRepo
}

func (r *rivalTxRepo) MaterializeDocument(ctx context.Context, bundleID uuid.UUID, format enums.DocumentFormat, storageRef string) (bool, error) {
	lost := false
	r.parent.once.Do(func() {
		ref := "documents/rival"
		if err := r.parent.store.Put(ctx, ref, r.parent.rival, r.parent.format.ContentType()); err != nil {
			panic(err)
		}
		if ok, err := r.Repository.MaterializeDocument(ctx, bundleID, r.parent.format, ref); err != nil || !ok {
			panic("rival materialize failed")
		}
		lost = true
	})
	if lost {
		return false, nil
	}
	return r.Repository.MaterializeDocument(ctx, bundleID, format, storageRef)
}

func TestPeekLostRaceServesWinnerDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.seedClosedBundle(t, 2)

	rival := []byte("<rival-document/>")
	raced := &raceRepo{Repository: env.repo, store: env.store, rival: rival, format: enums.FormatCIMXML}

	sender := config.SenderConfig{ActorNumber: "5790000000005", ActorRole: "MDR"}
	mailboxCfg := config.MailboxConfig{BundlingWindow: time.Hour, MaxBundleSize: 100, DocumentCacheTTL: time.Minute}
	svc, err := NewService(gormTxRunner{db: env.db}, raced, catalog.NewSelector(), documents.NewRecordParser(),
		env.store, nil, env.outbox, sender, mailboxCfg, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Peek(ctx, peekParams())
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if result == nil {
		t.Fatal("expected a delivery")
	}
	if !bytes.Equal(result.Document, rival) {
		t.Fatal("race loser must serve the winning write's document")
	}
}

func TestDequeueFinality(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.seedClosedBundle(t, 1)

	delivered, err := env.svc.Peek(ctx, peekParams())
	if err != nil || delivered == nil {
		t.Fatalf("peek: %+v err=%v", delivered, err)
	}

	acknowledged, err := env.svc.Dequeue(ctx, delivered.MessageID)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if !acknowledged {
		t.Fatal("expected acknowledgment")
	}

	// Repeated dequeue is a definite negative, not an error.
	acknowledged, err = env.svc.Dequeue(ctx, delivered.MessageID)
	if err != nil || acknowledged {
		t.Fatalf("repeat dequeue: acknowledged=%v err=%v", acknowledged, err)
	}

	// The dequeued bundle's message id never comes back.
	result, err := env.svc.Peek(ctx, peekParams())
	if err != nil {
		t.Fatalf("peek after dequeue: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no content after dequeue, got %+v", result)
	}
}

func TestDequeueUnknownMessageID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	acknowledged, err := env.svc.Dequeue(context.Background(), uuid.New())
	if err != nil || acknowledged {
		t.Fatalf("unknown message id: acknowledged=%v err=%v", acknowledged, err)
	}
}

func TestFullDeliveryLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.seedClosedBundle(t, 3)

	first, err := env.svc.Peek(ctx, peekParams())
	if err != nil || first == nil {
		t.Fatalf("first peek: %+v err=%v", first, err)
	}
	second, err := env.svc.Peek(ctx, peekParams())
	if err != nil || second == nil {
		t.Fatalf("second peek: %+v err=%v", second, err)
	}
	if first.MessageID != second.MessageID || !bytes.Equal(first.Document, second.Document) {
		t.Fatal("repeat peeks must return the same message id and identical bytes")
	}

	if acknowledged, err := env.svc.Dequeue(ctx, first.MessageID); err != nil || !acknowledged {
		t.Fatalf("dequeue: acknowledged=%v err=%v", acknowledged, err)
	}

	empty, err := env.svc.Peek(ctx, peekParams())
	if err != nil || empty != nil {
		t.Fatalf("peek after dequeue: %+v err=%v", empty, err)
	}

	// A fresh bundle becomes deliverable once enqueued and closed.
	env.seedClosedBundle(t, 1)
	next, err := env.svc.Peek(ctx, peekParams())
	if err != nil || next == nil {
		t.Fatalf("peek next delivery: %+v err=%v", next, err)
	}
	if next.MessageID == first.MessageID {
		t.Fatal("new delivery must carry a new message id")
	}
}

func TestPurgeDequeuedRemovesRowsAndDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	bundle := env.seedClosedBundle(t, 2)

	delivered, err := env.svc.Peek(ctx, peekParams())
	if err != nil || delivered == nil {
		t.Fatalf("peek: %+v err=%v", delivered, err)
	}
	if acknowledged, err := env.svc.Dequeue(ctx, delivered.MessageID); err != nil || !acknowledged {
		t.Fatalf("dequeue: acknowledged=%v err=%v", acknowledged, err)
	}

	purged, err := env.svc.PurgeDequeued(ctx, time.Now().UTC().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected document deleted, store holds %d objects", env.store.Len())
	}
	if reloaded, err := env.repo.FindByID(ctx, bundle.ID); err != nil || reloaded != nil {
		t.Fatalf("bundle survived purge: %+v err=%v", reloaded, err)
	}
	messages, err := env.repo.ListMessages(ctx, bundle.ID)
	if err != nil || len(messages) != 0 {
		t.Fatalf("messages survived purge: %d err=%v", len(messages), err)
	}
}
