package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hospital-ms/chatrelay/internal/core"
	"github.com/hospital-ms/chatrelay/internal/proto"
)

var errUnknownType = errors.New("unknown message type")

func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeSend:
		var msg proto.SendData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &msg); err != nil {
				return nil, fmt.Errorf("decode send data: %w", err)
			}
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Message: core.Message{
				User: msg.User,
				Text: msg.Text,
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, inbound.Type)
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventHistory:
		messages := make([]proto.Message, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, wireMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventHistory,
			Data:  messages,
		}
	case core.EventMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data:  wireMessage(event.Message),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func wireMessage(msg core.Message) proto.Message {
	return proto.Message{
		User: msg.User,
		Text: msg.Text,
		Time: msg.Time,
	}
}
