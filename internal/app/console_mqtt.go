// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/config"
)

type statusMsg Status

type brokerMsg struct {
	connected bool
	err       error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f172a")).Background(lipgloss.Color("#e2e8f0")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748b"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	logStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#475569"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#cbd5e1")).Padding(0, 1)
)

// ConsoleModel shows the mirrored scope status.
type ConsoleModel struct {
	topic    string
	status   *Status
	received time.Time
	broker   brokerMsg
	width    int
	now      func() time.Time
}

// NewConsoleModel creates the console view for topic.
func NewConsoleModel(topic string) *ConsoleModel {
	return &ConsoleModel{topic: topic, now: time.Now}
}

// Init implements tea.Model.
func (m *ConsoleModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m *ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusMsg:
		st := Status(msg)
		m.status = &st
		m.received = m.now()
	case brokerMsg:
		m.broker = msg
	}
	return m, nil
}

// View implements tea.Model.
func (m *ConsoleModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("inertial scope") + " " + labelStyle.Render(m.topic) + "\n\n")

	if !m.broker.connected {
		msg := "waiting for MQTT broker"
		if m.broker.err != nil {
			msg += ": " + m.broker.err.Error()
		}
		b.WriteString(labelStyle.Render(msg) + "\n")
	}
	if m.status == nil {
		b.WriteString(labelStyle.Render("no status received yet") + "\n")
		return b.String()
	}

	st := m.status
	state := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(st.StateColor)).Render("● " + st.StateText)
	paused := "running"
	if st.Paused {
		paused = "paused"
	}
	b.WriteString(fmt.Sprintf("%s  %s  %s\n\n", state, valueStyle.Render(st.Device), labelStyle.Render(paused)))

	mt := st.Metrics
	rows := []string{
		field("msg/s", fmt.Sprintf("%.1f", mt.MessagesPerSec)) + field("samples/s", fmt.Sprintf("%.0f", mt.SamplesPerSec)) + field("plot/s", fmt.Sprintf("%.0f", mt.PlotSamplesPerSec)),
		field("sensors", fmt.Sprintf("%d", mt.SensorCount)) + field("fifo", fmt.Sprintf("%.0f", mt.QueueDepth)) + field("full scale", fmt.Sprintf("±%g g", mt.DeviceFullScale)),
		field("received", fmt.Sprintf("%d", mt.MessagesReceived)) + field("decode errors", fmt.Sprintf("%d", mt.DecodeErrors)) + field("dropped", fmt.Sprintf("%d", mt.DroppedBatches)),
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")) + "\n")

	for _, c := range st.Charts {
		b.WriteString(fmt.Sprintf("%s %s [%.2f, %.2f] %d/%d draws=%d\n",
			valueStyle.Render(c.Title), labelStyle.Render(c.Mode), c.Range.Min, c.Range.Max, c.Samples, c.Capacity, c.Draws))
	}

	b.WriteString("\n")
	for _, e := range st.Events {
		b.WriteString(logStyle.Render(e.String()) + "\n")
	}
	b.WriteString("\n" + labelStyle.Render(fmt.Sprintf("updated %s ago · q to quit", m.now().Sub(m.received).Round(time.Second))))
	return b.String()
}

func field(label, value string) string {
	return labelStyle.Render(label+" ") + valueStyle.Render(fmt.Sprintf("%-10s", value))
}

// RunConsoleMQTT follows the scope status topic in a full-screen console.
func RunConsoleMQTT(cfg *config.Config, logger *zap.Logger) error {
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not configured")
	}
	model := NewConsoleModel(cfg.TopicStatus)
	program := tea.NewProgram(model, tea.WithAltScreen())

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("console: connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
			program.Send(brokerMsg{connected: true})

			// Subscribe on every connect so a broker restart resubscribes.
			token := c.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
				var st Status
				if err := json.Unmarshal(msg.Payload(), &st); err != nil {
					logger.Warn("console: status unmarshal error", zap.Error(err))
					return
				}
				program.Send(statusMsg(st))
			})
			if token.Wait() && token.Error() != nil {
				logger.Error("console: subscribe failed", zap.Error(token.Error()))
				program.Send(brokerMsg{err: token.Error()})
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("console: MQTT connection lost", zap.Error(err))
			program.Send(brokerMsg{err: err})
		})

	client := mqtt.NewClient(opts)
	client.Connect()
	defer client.Disconnect(250)

	_, err := program.Run()
	return err
}
