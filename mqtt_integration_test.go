package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/tudoscout/scout"
)

// TestMQTTServicePublishesStatus explores a simulated world against a real
// broker on localhost:1883 and waits for the retained status message.
func TestMQTTServicePublishesStatus(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	t.Setenv("MQTT_BROKER", "")

	prefix := "tudoscout-test"
	statuses := make(chan scout.StatusMessage, 64)

	opts := mqtt.NewClientOptions().AddBroker("tcp://localhost:1883").SetClientID("tudoscout-test-sub")
	sub := mqtt.NewClient(opts)
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second), "connect timeout")
	require.NoError(t, token.Error())
	defer sub.Disconnect(250)

	token = sub.Subscribe(prefix+"/status", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var status scout.StatusMessage
		if err := json.Unmarshal(msg.Payload(), &status); err == nil {
			statuses <- status
		}
	})
	require.True(t, token.WaitTimeout(5*time.Second), "subscribe timeout")
	require.NoError(t, token.Error())

	app := NewApp()
	app.ConfigFile = writeTestConfig(t, smallWorldConfig+`mqtt:
  broker: "tcp://localhost:1883"
  publishPrefix: "`+prefix+`"
  clientId: "tudoscout-test"
`)
	app.OutputDir = t.TempDir()
	app.Simulate = true
	// keep the service up after exploring so late publishes reach the broker
	app.HttpMode = true
	app.HttpPort = 0

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.runService(ctx) }()

	select {
	case status := <-statuses:
		assert.NotEmpty(t, status.SessionID)
		assert.Positive(t, status.Cycle)
	case <-time.After(20 * time.Second):
		t.Fatal("no status message published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Error("service did not shut down within timeout")
	}
}
