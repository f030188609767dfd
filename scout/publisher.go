package scout

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// StatusMessage is the payload published to <prefix>/status after each cycle.
type StatusMessage struct {
	SessionID  string  `json:"sessionId"`
	Cycle      int     `json:"cycle"`
	Status     Status  `json:"status"`
	Pose       Pose    `json:"pose"`
	Frontiers  int     `json:"frontiers"`
	PathLength float64 `json:"pathLength"`
	Stalls     int     `json:"stalls"`
	Generation uint64  `json:"generation"`
	Timestamp  int64   `json:"timestamp"`
}

// Publisher publishes exploration progress to MQTT under a topic prefix:
// <prefix>/status, <prefix>/frontiers and <prefix>/path.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *StatusMessage
	mu            sync.RWMutex
}

// NewPublisher creates a publisher. If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "tudoscout"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// PublishReport publishes the status, frontiers and path of one cycle.
// Frontier cells are converted to world coordinates through grid.
func (p *Publisher) PublishReport(report CycleReport, grid *OccupancyGrid) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	status := &StatusMessage{
		SessionID:  report.SessionID,
		Cycle:      report.Cycle,
		Status:     report.Status,
		Pose:       report.Pose,
		Frontiers:  len(report.Frontiers),
		PathLength: PathLength(report.Waypoints),
		Stalls:     report.Stalls,
		Generation: report.Generation,
		Timestamp:  report.Time.Unix(),
	}
	p.mu.Lock()
	p.last = status
	p.mu.Unlock()

	if err := p.publishJSON("status", status); err != nil {
		return err
	}
	if err := p.publishJSON("frontiers", FrontiersGeoJSON(report.Frontiers, grid)); err != nil {
		return err
	}
	return p.publishJSON("path", PathGeoJSON(report.Waypoints))
}

// Observer returns an explorer observer that publishes every report.
func (p *Publisher) Observer(grid *OccupancyGrid) Observer {
	return func(report CycleReport) {
		if err := p.PublishReport(report, grid); err != nil {
			Logf("[MQTT] publish cycle %d: %v", report.Cycle, err)
		}
	}
}

func (p *Publisher) publishJSON(suffix string, v interface{}) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastStatus returns the most recently published status
func (p *Publisher) LastStatus() (StatusMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return StatusMessage{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
