package chat

import (
	"context"
	"encoding/json"

	"edulead_chat_server/pkg/constants"

	"go.uber.org/zap"
)

// Frame is one backplane message: an event addressed to a room. Every
// gateway instance consumes every frame and delivers it to whichever room
// members it holds locally.
type Frame struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Backplane fans frames out across gateway instances.
// Two implementations: ChannelBackplane (single process) and
// KafkaBackplane (multi-instance).
type Backplane interface {
	// Publish hands a frame to every instance, including the publisher.
	Publish(ctx context.Context, frame Frame) error
	// Start begins the consume loop, invoking deliver for each frame.
	Start(deliver func(Frame))
	// Close stops the consume loop and releases resources.
	Close()
}

// ChannelBackplane loops frames through an in-process channel. Single
// instance only; frames never leave the process.
type ChannelBackplane struct {
	transmit chan Frame
	done     chan struct{}
}

func NewChannelBackplane() *ChannelBackplane {
	return &ChannelBackplane{
		transmit: make(chan Frame, constants.CHANNEL_SIZE),
		done:     make(chan struct{}),
	}
}

func (b *ChannelBackplane) Publish(ctx context.Context, frame Frame) error {
	select {
	case b.transmit <- frame:
		return nil
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChannelBackplane) Start(deliver func(Frame)) {
	go func() {
		zap.L().Info("channel backplane consume loop start")
		for {
			select {
			case frame := <-b.transmit:
				deliver(frame)
			case <-b.done:
				return
			}
		}
	}()
}

func (b *ChannelBackplane) Close() {
	close(b.done)
}

var _ Backplane = (*ChannelBackplane)(nil)
