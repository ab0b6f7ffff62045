package domain

import "time"

// EventType 工作流事件类型
type EventType string

const (
	EventRequestSubmitted    EventType = "request.submitted"
	EventRequestTransitioned EventType = "request.transitioned"
	EventRequestRemoved      EventType = "request.removed"
)

// Event 推送给管理端的工作流事件
type Event struct {
	Type       EventType     `json:"type"`
	RequestID  string        `json:"requestId"`
	DomainID   string        `json:"domainId"`
	Address    string        `json:"address"`
	Status     RequestStatus `json:"status"`
	ActorID    string        `json:"actorId"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// NewRequestEvent 根据申请当前状态生成事件
func NewRequestEvent(typ EventType, req *EmailRequest, actorID string, at time.Time) Event {
	return Event{
		Type:       typ,
		RequestID:  req.ID,
		DomainID:   req.DomainID,
		Address:    req.FullEmailAddress,
		Status:     req.Status,
		ActorID:    actorID,
		OccurredAt: at,
	}
}
