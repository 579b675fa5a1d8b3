package ws

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeConn struct {
	messages []int
	closes   int
	fail     error
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.fail != nil {
		return c.fail
	}
	c.messages = append(c.messages, messageType)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closes++
	return nil
}

func TestSessionSendWritesBinaryFrames(t *testing.T) {
	conn := &fakeConn{}
	session := newSession(conn)

	if err := session.Send([]byte{1, 2}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(conn.messages) != 1 || conn.messages[0] != websocket.BinaryMessage {
		t.Fatalf("expected one binary frame, got %v", conn.messages)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	session := newSession(conn)

	session.Close()
	session.Close()
	if conn.closes != 1 {
		t.Fatalf("expected one close, got %d", conn.closes)
	}
	if err := session.Send([]byte{1}); !errors.Is(err, websocket.ErrCloseSent) {
		t.Fatalf("expected ErrCloseSent after close, got %v", err)
	}
}

func TestSessionSendReportsWriteErrors(t *testing.T) {
	conn := &fakeConn{fail: errors.New("reset")}
	if err := newSession(conn).Send([]byte{1}); err == nil {
		t.Fatalf("expected write error")
	}
}
