package websocket

import (
	"testing"
	"time"
)

func testManager(maxConnPerUser int) *Manager {
	return NewManager(maxConnPerUser, 1<<20, 10*time.Second, time.Minute, 54*time.Second)
}

func TestNewManager_RetainsConnectionSettings(t *testing.T) {
	m := testManager(3)

	if m.maxConnPerUser != 3 {
		t.Errorf("expected max connections 3, got %d", m.maxConnPerUser)
	}
	if m.maxMessageSize != 1<<20 {
		t.Errorf("expected message size limit %d, got %d", 1<<20, m.maxMessageSize)
	}
}

func TestManager_MaxConnectionsPerOperator(t *testing.T) {
	m := testManager(1)

	first := NewClient("client-1", "operator-1", nil, m)
	second := NewClient("client-2", "operator-1", nil, m)

	m.registerClient(first)
	m.registerClient(second)

	if got := m.SubscriberCount(); got != 1 {
		t.Errorf("expected one registered subscriber, got %d", got)
	}

	select {
	case _, open := <-second.Send:
		if open {
			t.Error("expected rejected client's send channel closed, got a message")
		}
	default:
		t.Error("expected rejected client's send channel closed")
	}
}

func TestManager_UnregisterFreesOperatorSlot(t *testing.T) {
	m := testManager(1)

	first := NewClient("client-1", "operator-1", nil, m)
	m.registerClient(first)
	m.unregisterClient(first)

	replacement := NewClient("client-2", "operator-1", nil, m)
	m.registerClient(replacement)

	if got := m.SubscriberCount(); got != 1 {
		t.Errorf("expected replacement subscriber registered, got %d", got)
	}
}
