package poller

import "strings"

// update is the Bot API getUpdates record, reduced to the fields we route on.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		WebAppData *struct {
			Data       string `json:"data"`
			ButtonText string `json:"button_text"`
		} `json:"web_app_data"`
	} `json:"message"`
}

type inboundKind int

const (
	inboundIgnore inboundKind = iota
	inboundCommand
	inboundSyncPayload
)

// inbound is the decoded-once, closed variant of everything the poller can
// receive. Routing happens on kind, not on probing optional fields downstream.
type inbound struct {
	kind     inboundKind
	senderID int64
	text     string // inboundCommand
	data     []byte // inboundSyncPayload
}

func classify(u update) inbound {
	m := u.Message
	if m == nil {
		return inbound{kind: inboundIgnore}
	}
	if m.WebAppData != nil && strings.TrimSpace(m.WebAppData.Data) != "" {
		return inbound{kind: inboundSyncPayload, senderID: m.Chat.ID, data: []byte(m.WebAppData.Data)}
	}
	if strings.HasPrefix(strings.TrimSpace(m.Text), "/") {
		return inbound{kind: inboundCommand, senderID: m.Chat.ID, text: m.Text}
	}
	return inbound{kind: inboundIgnore}
}
