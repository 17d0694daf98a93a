package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRegisterUnregisterCountsDevices(t *testing.T) {
	hub := NewHub()
	first := NewConnection(1, nil)
	second := NewConnection(1, nil)

	hub.Register(first)
	hub.Register(second)
	assert.True(t, hub.UserOnline(1))

	remaining, _ := hub.Unregister(first)
	assert.Equal(t, 1, remaining)
	assert.True(t, hub.UserOnline(1))

	remaining, _ = hub.Unregister(second)
	assert.Equal(t, 0, remaining)
	assert.False(t, hub.UserOnline(1))
}

func TestHubJoinAndLeaveRoom(t *testing.T) {
	hub := NewHub()
	conn := NewConnection(1, nil)
	hub.Register(conn)

	hub.JoinRoom(7, conn)
	assert.True(t, hub.IsUserInRoom(7, 1))

	hub.LeaveRoom(7, conn)
	assert.False(t, hub.IsUserInRoom(7, 1))
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	hub := NewHub()
	conn := NewConnection(1, nil)
	hub.Register(conn)
	hub.JoinRoom(7, conn)
	hub.JoinRoom(8, conn)

	remaining, vacated := hub.Unregister(conn)

	assert.Equal(t, 0, remaining)
	assert.ElementsMatch(t, []int{7, 8}, vacated)
	assert.False(t, hub.IsUserInRoom(7, 1))
	assert.False(t, hub.IsUserInRoom(8, 1))
}

func TestUnregisterReportsOnlyFullyVacatedRooms(t *testing.T) {
	hub := NewHub()
	phone := NewConnection(1, nil)
	laptop := NewConnection(1, nil)
	hub.Register(phone)
	hub.Register(laptop)
	hub.JoinRoom(7, phone)
	hub.JoinRoom(8, phone)
	hub.JoinRoom(8, laptop)

	remaining, vacated := hub.Unregister(phone)

	// Room 8 is still covered by the laptop; only room 7 lost the user.
	assert.Equal(t, 1, remaining)
	assert.Equal(t, []int{7}, vacated)
	assert.False(t, hub.IsUserInRoom(7, 1))
	assert.True(t, hub.IsUserInRoom(8, 1))
}

func TestBroadcastToRoomExcludesSender(t *testing.T) {
	hub := NewHub()
	sender := NewConnection(1, nil)
	receiver := NewConnection(2, nil)
	hub.Register(sender)
	hub.Register(receiver)
	hub.JoinRoom(7, sender)
	hub.JoinRoom(7, receiver)

	delivered := hub.BroadcastToRoom(7, []byte(`{"event":"new-message"}`), 1)
	assert.Equal(t, 1, delivered)

	select {
	case payload := <-receiver.send:
		assert.JSONEq(t, `{"event":"new-message"}`, string(payload))
	default:
		t.Fatal("receiver got no payload")
	}

	select {
	case <-sender.send:
		t.Fatal("sender must not receive its own broadcast")
	default:
	}
}

func TestSendToUserHitsEveryDevice(t *testing.T) {
	hub := NewHub()
	phone := NewConnection(1, nil)
	laptop := NewConnection(1, nil)
	hub.Register(phone)
	hub.Register(laptop)

	require.True(t, hub.SendToUser(1, []byte(`{}`)))

	for _, conn := range []*Connection{phone, laptop} {
		select {
		case <-conn.send:
		default:
			t.Fatal("device got no payload")
		}
	}
}

func TestSendToOfflineUserReturnsFalse(t *testing.T) {
	hub := NewHub()
	assert.False(t, hub.SendToUser(42, []byte(`{}`)))
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	hub := NewHub()
	conn := NewConnection(1, nil)
	hub.Register(conn)
	hub.JoinRoom(7, conn)

	// Never drain the send buffer; once it is full the hub closes the
	// connection instead of blocking the broadcast path.
	for i := 0; i < cap(conn.send)+1; i++ {
		hub.BroadcastToRoom(7, []byte(`{}`), 0)
	}

	select {
	case <-conn.close:
	default:
		t.Fatal("expected slow connection to be closed")
	}
}
