// internal/server/handlers/websocket_test.go

package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueWelcomeBeforePumps(t *testing.T) {
	client := &WebSocketClient{send: make(chan []byte, 256)}
	client.queueWelcome("record")

	select {
	case msg := <-client.send:
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &decoded))
		assert.Equal(t, "welcome", decoded["type"])
		assert.Equal(t, "record", decoded["topic"])
	default:
		t.Fatal("welcome message was not queued")
	}
}

func TestCloseConnectionAfterWelcomeDoesNotPanic(t *testing.T) {
	client := &WebSocketClient{send: make(chan []byte, 256)}
	client.queueWelcome("record")

	assert.NotPanics(t, func() {
		client.closeConnection()
		client.closeConnection() // idempotent
	})
}

func TestQueueWelcomeFullChannelDoesNotBlock(t *testing.T) {
	client := &WebSocketClient{send: make(chan []byte)}

	done := make(chan struct{})
	go func() {
		client.queueWelcome("record")
		close(done)
	}()

	select {
	case <-done:
	case <-client.send:
		t.Fatal("unexpected receive")
	}
}
