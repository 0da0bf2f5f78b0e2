package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"salesbridge/internal/model"
	"salesbridge/internal/wa"
	"salesbridge/internal/ws"
)

// fakeHandle is a scriptable wa.Handle that records what the registry did
// to it.
type fakeHandle struct {
	mu sync.Mutex

	connected    bool
	disconnected bool
	loggedOut    bool

	// When set, Disconnect blocks until the channel is closed.
	disconnectGate chan struct{}

	jid   string
	phone string

	qrItems chan wa.QREvent

	sendResult wa.SendResult
	sendErr    error
	sendCalls  int

	editErr   error
	revokeErr error
	reactErr  error

	contacts     []wa.ContactEntry
	contactsErr  error
	contactsErrs []error // consumed one per call when set
	contactCalls int

	onWhatsApp    bool
	onWhatsAppErr error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		qrItems:    make(chan wa.QREvent, 8),
		sendResult: wa.SendResult{MessageID: "SRV-MSG-1", Timestamp: time.Now()},
		onWhatsApp: true,
	}
}

func (h *fakeHandle) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = true
	return nil
}

func (h *fakeHandle) Disconnect() {
	h.mu.Lock()
	gate := h.disconnectGate
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
	h.connected = false
}

func (h *fakeHandle) Logout(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loggedOut = true
	return nil
}

func (h *fakeHandle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHandle) IsLoggedIn() bool { return h.jid != "" }

func (h *fakeHandle) PairedJID() string   { return h.jid }
func (h *fakeHandle) PairedPhone() string { return h.phone }

func (h *fakeHandle) QRChannel(ctx context.Context) (<-chan wa.QREvent, error) {
	return h.qrItems, nil
}

func (h *fakeHandle) SendText(ctx context.Context, toJID, body string) (wa.SendResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendCalls++
	if h.sendErr != nil {
		return wa.SendResult{}, h.sendErr
	}
	return h.sendResult, nil
}

func (h *fakeHandle) EditText(ctx context.Context, toJID, messageID, body string) error {
	return h.editErr
}

func (h *fakeHandle) RevokeMessage(ctx context.Context, toJID, messageID string) error {
	return h.revokeErr
}

func (h *fakeHandle) React(ctx context.Context, toJID, messageID, emoji string) error {
	return h.reactErr
}

func (h *fakeHandle) Contacts(ctx context.Context) ([]wa.ContactEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contactCalls++
	if len(h.contactsErrs) > 0 {
		err := h.contactsErrs[0]
		h.contactsErrs = h.contactsErrs[1:]
		if err != nil {
			return nil, err
		}
		return h.contacts, nil
	}
	if h.contactsErr != nil {
		return nil, h.contactsErr
	}
	return h.contacts, nil
}

func (h *fakeHandle) IsOnWhatsApp(ctx context.Context, phone string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.onWhatsAppErr != nil {
		return false, h.onWhatsAppErr
	}
	return h.onWhatsApp, nil
}

func (h *fakeHandle) released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnected
}

// fakeFactory hands out pre-built handles and counts creations.
type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	created int
	newErr  error

	stored  []string
	deleted int
}

func (f *fakeFactory) NewHandle(tenantID string, onEvent wa.EventFunc) (wa.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	h := newFakeHandle()
	f.handles = append(f.handles, h)
	f.created++
	return h, nil
}

func (f *fakeFactory) RestoreHandle(ctx context.Context, jid string, onEvent wa.EventFunc) (wa.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := newFakeHandle()
	h.jid = jid
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeFactory) StoredJIDs(ctx context.Context) ([]string, error) {
	return f.stored, nil
}

func (f *fakeFactory) DeleteStored(ctx context.Context, h wa.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeFactory) lastHandle() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

// memConnStore is an in-memory ConnectionStore.
type memConnStore struct {
	mu     sync.Mutex
	conns  map[string]*model.Connection
	getErr error // when set, GetByTenant fails with this
}

func newMemConnStore() *memConnStore {
	return &memConnStore{conns: make(map[string]*model.Connection)}
}

func (s *memConnStore) GetByTenant(tenantID string) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	conn, ok := s.conns[tenantID]
	if !ok {
		return nil, model.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

func (s *memConnStore) TenantByJID(jid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if conn.JID.Valid && conn.JID.String == jid {
			return conn.TenantID, nil
		}
	}
	return "", model.ErrConnectionNotFound
}

func (s *memConnStore) ListActive() ([]model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Connection
	for _, conn := range s.conns {
		if conn.Status == "connected" {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (s *memConnStore) Upsert(conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conn
	s.conns[conn.TenantID] = &cp
	return nil
}

func (s *memConnStore) UpdateQR(tenantID, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[tenantID]; ok {
		conn.Status = "qr_required"
		conn.QRCode.String = code
		conn.QRCode.Valid = true
	}
	return nil
}

func (s *memConnStore) OnConnected(tenantID, jid, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[tenantID]
	if !ok {
		conn = &model.Connection{TenantID: tenantID}
		s.conns[tenantID] = conn
	}
	conn.Status = "connected"
	conn.JID.String = jid
	conn.JID.Valid = true
	conn.PhoneNumber.String = phone
	conn.PhoneNumber.Valid = true
	return nil
}

func (s *memConnStore) OnDisconnected(tenantID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[tenantID]; ok {
		conn.Status = status
	}
	return nil
}

func (s *memConnStore) MarkStale(tenantID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[tenantID]; ok {
		conn.Status = "stale"
		conn.StaleReason.String = reason
		conn.StaleReason.Valid = true
	}
	return nil
}

func (s *memConnStore) status(tenantID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[tenantID]; ok {
		return conn.Status
	}
	return ""
}

// memMsgStore is an in-memory MessageStore keyed by message id.
type memMsgStore struct {
	mu   sync.Mutex
	rows map[string]*model.Message
}

func newMemMsgStore() *memMsgStore {
	return &memMsgStore{rows: make(map[string]*model.Message)}
}

func (s *memMsgStore) Insert(m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.rows[m.MessageID] = &cp
	return nil
}

func (s *memMsgStore) ByDedupeKey(tenantID, key string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.TenantID == tenantID && m.DedupeKey.Valid && m.DedupeKey.String == key {
			cp := *m
			return &cp, nil
		}
	}
	return nil, model.ErrMessageNotFound
}

func (s *memMsgStore) ByID(tenantID, messageID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[messageID]
	if !ok || m.TenantID != tenantID {
		return nil, model.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMsgStore) UpdateBody(tenantID, messageID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[messageID]; ok {
		m.Body = body
	}
	return nil
}

func (s *memMsgStore) SetReaction(tenantID, messageID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[messageID]; ok {
		m.Reaction.String = emoji
		m.Reaction.Valid = true
	}
	return nil
}

func (s *memMsgStore) Redact(tenantID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[messageID]; ok {
		m.Body = ""
		m.Redacted = true
	}
	return nil
}

func (s *memMsgStore) Delete(tenantID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[messageID]; !ok {
		return model.ErrMessageNotFound
	}
	delete(s.rows, messageID)
	return nil
}

func (s *memMsgStore) get(messageID string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[messageID]
	if !ok {
		return model.Message{}, false
	}
	return *m, true
}

// memContactStore records upserted batches.
type memContactStore struct {
	mu       sync.Mutex
	batches  [][]model.Contact
	failOn   int // 1-based batch index to fail, 0 = never
	upserted int
}

func (s *memContactStore) UpsertBatch(tenantID string, batch []model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	if s.failOn > 0 && len(s.batches) == s.failOn {
		return errors.New("storage unavailable")
	}
	s.upserted += len(batch)
	return nil
}

func (s *memContactStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// recordingPublisher captures realtime events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.WsEvent
}

func (p *recordingPublisher) Publish(event ws.WsEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type testEnv struct {
	reg      *Registry
	factory  *fakeFactory
	conns    *memConnStore
	msgs     *memMsgStore
	contacts *memContactStore
	pub      *recordingPublisher
}

func newTestEnv(opts Options) *testEnv {
	factory := &fakeFactory{}
	conns := newMemConnStore()
	msgs := newMemMsgStore()
	contacts := &memContactStore{}
	pub := &recordingPublisher{}

	reg := NewRegistry(factory, Stores{
		Conns:    conns,
		Messages: msgs,
		Contacts: contacts,
	}, pub, opts)

	return &testEnv{reg: reg, factory: factory, conns: conns, msgs: msgs, contacts: contacts, pub: pub}
}

// connect drives a tenant straight to the connected state through the event
// sink, the same path production takes.
func (e *testEnv) connect(t interface{ Fatalf(string, ...interface{}) }, tenantID string) *fakeHandle {
	_, err := e.reg.GetOrCreate(context.Background(), tenantID, "", false)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	handle := e.factory.lastHandle()
	if handle == nil {
		t.Fatalf("factory created no handle")
	}
	e.reg.handleEvent(tenantID, wa.Event{
		Kind:  wa.KindConnected,
		JID:   tenantID + "@s.whatsapp.net",
		Phone: "628111" + tenantID,
	})
	// Let the automatic first sync settle so tests observe a quiet session.
	waitFor(time.Second, func() bool {
		v, ok := e.reg.ViewOf(tenantID)
		return ok && (v.SyncStatus == model.SyncCompleted || v.SyncStatus == model.SyncError)
	})
	return handle
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func eventLoggedOut() wa.Event {
	return wa.Event{Kind: wa.KindLoggedOut}
}

func eventDisconnected() wa.Event {
	return wa.Event{Kind: wa.KindDisconnected}
}
