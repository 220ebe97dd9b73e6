// Package chat is the socket layer: connection management, rooms, the
// cross-instance backplane, and duplicate-tab arbitration.
package chat

import (
	"time"

	dao "edulead_chat_server/internal/dao/mysql/repository"
	"edulead_chat_server/internal/notify"
	"edulead_chat_server/internal/presence"
	"edulead_chat_server/internal/service/chatflow"
)

// ChatServer aggregates the socket components and manages their
// lifecycle. The backplane implementation follows the configured mode:
// "channel" for a single instance, "kafka" for a fleet.
type ChatServer struct {
	Gateway   *Gateway
	backplane Backplane
	mode      string
}

type ChatServerConfig struct {
	Mode          string // "channel" or "kafka"
	Registry      *presence.Registry
	Dispatcher    *notify.Dispatcher
	Flow          *chatflow.Service
	Repos         *dao.Repositories
	TabGrace      time.Duration
	KafkaHostPort string
	KafkaTopic    string
	KafkaTimeout  time.Duration
}

// NewChatServer builds the gateway on the backplane the config asks for
// and wires it into the lifecycle manager and dispatcher call paths.
func NewChatServer(cfg ChatServerConfig) *ChatServer {
	var backplane Backplane
	if cfg.Mode == "kafka" {
		backplane = NewKafkaBackplane(KafkaBackplaneConfig{
			HostPort: cfg.KafkaHostPort,
			Topic:    cfg.KafkaTopic,
			Timeout:  cfg.KafkaTimeout,
		})
	} else {
		backplane = NewChannelBackplane()
	}

	gateway := NewGateway(cfg.Registry, cfg.Dispatcher, cfg.Flow, cfg.Repos, backplane, cfg.TabGrace)
	return &ChatServer{
		Gateway:   gateway,
		backplane: backplane,
		mode:      cfg.Mode,
	}
}

// Start begins backplane consumption.
func (cs *ChatServer) Start() {
	cs.Gateway.Start()
}

// Close tears down all sockets and the backplane.
func (cs *ChatServer) Close() {
	cs.Gateway.Close()
}
