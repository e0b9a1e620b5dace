package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gprojets/gprojets/auth"
	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePersister records stored messages in memory and can be switched to
// fail, to check that failed messages are never broadcast.
type fakePersister struct {
	messages []types.Message
	fail     bool
}

func (f *fakePersister) StoreMessage(msg *types.Message) error {
	if f.fail {
		return fmt.Errorf("store failed")
	}
	msg.Id = int64(len(f.messages) + 1)
	msg.SentAt = time.Now().UTC()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakePersister) MessageHistory(limit int) ([]types.Message, error) {
	return f.messages, nil
}

func (f *fakePersister) UrgentTasks(now, horizon time.Time) ([]types.Task, error) {
	return nil, nil
}

func (f *fakePersister) StoreProject(project *types.Project) error { return nil }
func (f *fakePersister) Projects() ([]types.Project, error)        { return nil, nil }
func (f *fakePersister) StoreTask(task *types.Task) error          { return nil }
func (f *fakePersister) Close() error                              { return nil }

func newTestHub(t *testing.T) (*Hub, *fakePersister, context.CancelFunc) {
	t.Helper()
	persister := &fakePersister{}
	hub := NewHub(&config.Config{}, persister)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, persister, cancel
}

// register pushes a connection-less client through the hub's register
// channel the same way the websocket handler does.
func register(hub *Hub, role types.Role) *Client {
	ident := &auth.Identity{Email: "user@example.com", Nick: "user", Role: role}
	client := NewClient(hub, nil, ident, make(chan struct{}))
	client.Add(1)
	hub.Register <- client
	client.Wait()
	return client
}

// receiveEvent waits for the next frame of the given event, skipping the
// info frames the hub broadcasts on connect and disconnect.
func receiveEvent(t *testing.T, c *Client, event string) json.RawMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case data := <-c.Send:
			frame := types.WebsocketMessage{}
			require.NoError(t, json.Unmarshal(data, &frame))
			if frame.Event == event {
				return frame.Data
			}
		case <-deadline:
			t.Fatalf("no %s frame received", event)
		}
	}
}

// assertNoEvent drains all queued frames and fails if one of them carries
// the given event.
func assertNoEvent(t *testing.T, c *Client, event string) {
	t.Helper()
	for {
		select {
		case data := <-c.Send:
			frame := types.WebsocketMessage{}
			require.NoError(t, json.Unmarshal(data, &frame))
			assert.NotEqual(t, event, frame.Event)
		default:
			return
		}
	}
}

func TestHubRegisterGroups(t *testing.T) {
	hub, _, cancel := newTestHub(t)
	defer cancel()

	admin := register(hub, types.RoleAdmin)
	chef := register(hub, types.RoleChef)
	guest := register(hub, types.RoleUnknown)

	assert.Equal(t, 3, hub.NoClients())
	assert.True(t, hub.Groups().IsMember(admin.Id, "admin"))
	assert.True(t, hub.Groups().IsMember(admin.Id, AdminsGroup))
	assert.True(t, hub.Groups().IsMember(chef.Id, "chef"))
	assert.False(t, hub.Groups().IsMember(chef.Id, AdminsGroup))
	assert.False(t, hub.Groups().IsMember(guest.Id, AdminsGroup))
	assert.Empty(t, hub.Groups().Members("unknown"))

	hub.Unregister <- admin
	// the unregister case closes the send channel last, wait for it
	for range admin.Send {
	}
	assert.Equal(t, 2, hub.NoClients())
	assert.False(t, hub.Groups().IsMember(admin.Id, "admin"))
	assert.False(t, hub.Groups().IsMember(admin.Id, AdminsGroup))

	// a second unregister of the same client is a no-op
	hub.Unregister <- admin
	assert.Equal(t, 2, hub.NoClients())
}

func TestHubSendMessagePersistsBeforeBroadcast(t *testing.T) {
	hub, persister, cancel := newTestHub(t)
	defer cancel()

	admin := register(hub, types.RoleAdmin)
	guest := register(hub, types.RoleUnknown)

	msg, err := hub.SendMessage("hello", "chef@example.com", "chef")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Id)
	require.Len(t, persister.messages, 1)
	assert.Equal(t, "hello", persister.messages[0].Content)

	// chat messages reach every connection regardless of group
	for _, client := range []*Client{admin, guest} {
		data := receiveEvent(t, client, types.EventReceiveMessage)
		got := types.Message{}
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "hello", got.Content)
		assert.Equal(t, "chef@example.com", got.SenderEmail)
		assert.Equal(t, int64(1), got.Id)
	}
}

func TestHubSendMessageStoreFailure(t *testing.T) {
	hub, persister, cancel := newTestHub(t)
	defer cancel()

	client := register(hub, types.RoleMembre)

	persister.fail = true
	_, err := hub.SendMessage("lost", "a@example.com", "membre")
	require.Error(t, err)

	// a message that failed to persist is never broadcast
	assertNoEvent(t, client, types.EventReceiveMessage)
}

func TestHubSendMessageNoPersister(t *testing.T) {
	hub := NewHub(&config.Config{}, nil)
	_, err := hub.SendMessage("hello", "a@example.com", "membre")
	assert.Error(t, err)
}

func TestHubNotifyGroupOnly(t *testing.T) {
	hub, _, cancel := newTestHub(t)
	defer cancel()

	admin := register(hub, types.RoleAdmin)
	membre := register(hub, types.RoleMembre)

	hub.Notify(AdminsGroup, "task overdue")

	data := receiveEvent(t, admin, types.EventReceiveNotification)
	text := ""
	require.NoError(t, json.Unmarshal(data, &text))
	assert.Equal(t, "task overdue", text)

	assertNoEvent(t, membre, types.EventReceiveNotification)

	// notifying an empty group is silently dropped
	hub.Notify("nobody", "into the void")
}

func TestHubSendErrorOnlyToSender(t *testing.T) {
	hub, _, cancel := newTestHub(t)
	defer cancel()

	sender := register(hub, types.RoleMembre)
	other := register(hub, types.RoleMembre)

	sender.sendError("message could not be delivered")

	data := receiveEvent(t, sender, types.EventError)
	errMsg := types.ErrorMessage{}
	require.NoError(t, json.Unmarshal(data, &errMsg))
	assert.Equal(t, "message could not be delivered", errMsg.Error)

	assertNoEvent(t, other, types.EventError)
}
