package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/tudoscout/scout"
)

// TestMQTTServiceSetup checks the wiring when a broker is configured: the
// telemetry client becomes the robot and the publisher observes cycles.
func TestMQTTServiceSetup(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		simulate   bool
		wantSource interface{}
		wantPrefix string
	}{
		{
			name:       "broker from config drives the robot",
			wantSource: &scout.MQTTClient{},
			wantPrefix: "scout-test",
		},
		{
			name:       "environment overrides prefix",
			env:        map[string]string{"MQTT_PUBLISH_PREFIX": "lab"},
			wantSource: &scout.MQTTClient{},
			wantPrefix: "lab",
		},
		{
			name:       "simulator still publishes",
			simulate:   true,
			wantSource: &scout.SimRobot{},
			wantPrefix: "scout-test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ROBOT_API_URL", "")
			t.Setenv("MQTT_BROKER", "")
			t.Setenv("MQTT_PUBLISH_PREFIX", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			app := NewApp()
			app.ConfigFile = writeTestConfig(t, smallWorldConfig+`mqtt:
  broker: "tcp://127.0.0.1:1"
  publishPrefix: "scout-test"
  clientId: "scout-test"
`)
			app.Simulate = tt.simulate

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			require.NoError(t, app.setup(ctx))

			require.NotNil(t, app.MQTTClient)
			require.NotNil(t, app.Publisher)
			assert.Equal(t, tt.wantPrefix, app.Config.MQTT.PublishPrefix)
			assert.Equal(t, tt.wantPrefix+"/robot/pose", app.MQTTClient.PoseTopic())
			assert.Equal(t, tt.wantPrefix+"/robot/cmd", app.MQTTClient.CommandTopic())
			assert.False(t, app.MQTTClient.IsConnected())
			assert.NotNil(t, app.Explorer)
			assert.NotNil(t, app.Saver)

			source, _, err := app.buildRobot(app.Config)
			require.NoError(t, err)
			assert.IsType(t, tt.wantSource, source)
		})
	}
}

func TestMQTTServiceSetup_NoBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app := NewApp()
	app.ConfigFile = writeTestConfig(t, smallWorldConfig)
	app.Simulate = true

	require.NoError(t, app.setup(context.Background()))
	assert.Nil(t, app.MQTTClient)
	assert.Nil(t, app.Publisher)
}
