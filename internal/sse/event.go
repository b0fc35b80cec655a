package sse

import (
	"encoding/json"
	"strings"
)

const (
	EventHeartbeat        = "heartbeat"
	EventDrawResult       = "draw.result"
	EventBalanceUpdate    = "balance.update"
	EventWithdrawalUpdate = "withdrawal.update"
	EventDepositUpdate    = "deposit.update"
	EventTicketUpdate     = "ticket.update"
	EventSystemAlert      = "system.alert"
)

type SSEEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`

	seq int64

	// audience is stamped when the hub records the event; zero means everyone.
	audience audience
}

type audience struct {
	userID string
	roles  []string
}

func (a audience) admits(sub *Subscriber) bool {
	if sub == nil {
		return false
	}
	if a.userID != "" {
		return a.userID == sub.UserID
	}
	if len(a.roles) == 0 {
		return true
	}
	for _, role := range a.roles {
		if strings.EqualFold(sub.Role, strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

// NewEvent encodes payload. The id is assigned when the hub records the
// event, so ids follow replay order.
func NewEvent(eventType string, payload any) SSEEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}
	return SSEEvent{Type: eventType, Data: string(data)}
}
