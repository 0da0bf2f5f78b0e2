package wa

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// MeowFactory builds live handles backed by whatsmeow clients over the
// shared sqlstore device container.
type MeowFactory struct {
	container *sqlstore.Container
}

func NewMeowFactory(container *sqlstore.Container, deviceName string) *MeowFactory {
	// Global whatsmeow setting: nama device yang tampil di HP user.
	store.DeviceProps.Os = proto.String(deviceName)
	return &MeowFactory{container: container}
}

func (f *MeowFactory) NewHandle(tenantID string, onEvent EventFunc) (Handle, error) {
	device := f.container.NewDevice()

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(device, clientLog)

	h := &meowHandle{client: client}
	client.AddEventHandler(h.translate(onEvent))
	return h, nil
}

func (f *MeowFactory) RestoreHandle(ctx context.Context, jid string, onEvent EventFunc) (Handle, error) {
	devices, err := f.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	for _, device := range devices {
		if device.ID == nil || device.ID.String() != jid {
			continue
		}
		client := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
		h := &meowHandle{client: client}
		client.AddEventHandler(h.translate(onEvent))
		return h, nil
	}

	return nil, fmt.Errorf("no stored device for jid %s", jid)
}

func (f *MeowFactory) StoredJIDs(ctx context.Context) ([]string, error) {
	devices, err := f.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var jids []string
	for _, device := range devices {
		if device.ID == nil {
			continue
		}
		jids = append(jids, device.ID.String())
	}
	return jids, nil
}

func (f *MeowFactory) DeleteStored(ctx context.Context, h Handle) error {
	mh, ok := h.(*meowHandle)
	if !ok || mh.client.Store == nil || mh.client.Store.ID == nil {
		return nil
	}
	return f.container.DeleteDevice(ctx, mh.client.Store)
}

// meowHandle wraps one whatsmeow client as a Handle. The client runs its own
// event loop per session, so handle methods never need an external lock.
type meowHandle struct {
	client *whatsmeow.Client
}

// translate converts whatsmeow events into registry events for one tenant.
func (h *meowHandle) translate(onEvent EventFunc) func(interface{}) {
	return func(raw interface{}) {
		switch evt := raw.(type) {
		case *events.Connected:
			onEvent(Event{Kind: KindConnected, JID: h.PairedJID(), Phone: h.PairedPhone()})

		case *events.PairSuccess:
			onEvent(Event{Kind: KindPairSuccess, JID: evt.ID.String(), Phone: evt.ID.User})

		case *events.LoggedOut:
			onEvent(Event{Kind: KindLoggedOut})

		case *events.Disconnected:
			onEvent(Event{Kind: KindDisconnected})

		case *events.StreamReplaced:
			onEvent(Event{Kind: KindStreamReplaced})

		case *events.Message:
			body := evt.Message.GetConversation()
			if body == "" {
				body = evt.Message.GetExtendedTextMessage().GetText()
			}
			if body == "" {
				// Pesan non-teks (media dsb) tidak diarsipkan di sini.
				return
			}
			onEvent(Event{
				Kind:      KindMessage,
				JID:       evt.Info.Chat.String(),
				Phone:     evt.Info.Sender.User,
				MessageID: string(evt.Info.ID),
				Body:      body,
				Timestamp: evt.Info.Timestamp,
			})
		}
	}
}

func (h *meowHandle) Connect() error { return h.client.Connect() }

func (h *meowHandle) Disconnect() { h.client.Disconnect() }

func (h *meowHandle) Logout(ctx context.Context) error { return h.client.Logout(ctx) }

func (h *meowHandle) IsConnected() bool { return h.client.IsConnected() }

func (h *meowHandle) IsLoggedIn() bool {
	return h.client.Store != nil && h.client.Store.ID != nil
}

func (h *meowHandle) PairedJID() string {
	if h.client.Store == nil || h.client.Store.ID == nil {
		return ""
	}
	return h.client.Store.ID.String()
}

func (h *meowHandle) PairedPhone() string {
	if h.client.Store == nil || h.client.Store.ID == nil {
		return ""
	}
	return h.client.Store.ID.User
}

func (h *meowHandle) QRChannel(ctx context.Context) (<-chan QREvent, error) {
	qrChan, err := h.client.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan QREvent)
	go func() {
		defer close(out)
		for item := range qrChan {
			select {
			case out <- QREvent{Event: item.Event, Code: item.Code}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (h *meowHandle) SendText(ctx context.Context, toJID, body string) (SendResult, error) {
	jid, err := types.ParseJID(toJID)
	if err != nil {
		return SendResult{}, fmt.Errorf("invalid jid: %w", err)
	}

	msg := &waE2E.Message{
		Conversation: proto.String(body),
	}

	resp, err := h.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (h *meowHandle) EditText(ctx context.Context, toJID, messageID, body string) error {
	jid, err := types.ParseJID(toJID)
	if err != nil {
		return fmt.Errorf("invalid jid: %w", err)
	}

	edited := &waE2E.Message{
		Conversation: proto.String(body),
	}

	_, err = h.client.SendMessage(ctx, jid, h.client.BuildEdit(jid, types.MessageID(messageID), edited))
	return err
}

func (h *meowHandle) RevokeMessage(ctx context.Context, toJID, messageID string) error {
	jid, err := types.ParseJID(toJID)
	if err != nil {
		return fmt.Errorf("invalid jid: %w", err)
	}

	_, err = h.client.SendMessage(ctx, jid, h.client.BuildRevoke(jid, types.EmptyJID, types.MessageID(messageID)))
	return err
}

func (h *meowHandle) React(ctx context.Context, toJID, messageID, emoji string) error {
	if h.client.Store.ID == nil {
		return fmt.Errorf("not logged in")
	}

	jid, err := types.ParseJID(toJID)
	if err != nil {
		return fmt.Errorf("invalid jid: %w", err)
	}

	_, err = h.client.SendMessage(ctx, jid, h.client.BuildReaction(jid, *h.client.Store.ID, types.MessageID(messageID), emoji))
	return err
}

func (h *meowHandle) Contacts(ctx context.Context) ([]ContactEntry, error) {
	contacts, err := h.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ContactEntry, 0, len(contacts))
	for jid, contact := range contacts {
		// Skip linked-device (LID) duplicates, sama seperti daftar kontak di UI.
		if jid.Server == "lid" {
			continue
		}

		name := contact.FullName
		if name == "" {
			if contact.BusinessName != "" {
				name = contact.BusinessName
			} else if contact.PushName != "" {
				name = contact.PushName
			} else {
				name = jid.User
			}
		}

		entries = append(entries, ContactEntry{
			JID:        jid.String(),
			Phone:      jid.User,
			Name:       name,
			IsBusiness: contact.BusinessName != "",
			IsGroup:    jid.Server == "g.us",
		})
	}
	return entries, nil
}

func (h *meowHandle) IsOnWhatsApp(ctx context.Context, phone string) (bool, error) {
	resp, err := h.client.IsOnWhatsApp(ctx, []string{phone})
	if err != nil {
		return false, err
	}
	if len(resp) == 0 {
		return false, fmt.Errorf("unable to verify number")
	}
	return resp[0].IsIn, nil
}
