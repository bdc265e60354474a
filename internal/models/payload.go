package models

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind identifies the type of a queued mutation. The set is closed but
// extensible: adding a kind means adding a payload shape, a route, and a
// registry entry below.
type Kind string

const (
	KindCheckIn         Kind = "check-in"
	KindEventRSVP       Kind = "event-rsvp"
	KindGroupJoin       Kind = "group-join"
	KindProgressUpdate  Kind = "progress-update"
	KindProfileUpdate   Kind = "profile-update"
	KindNotificationAck Kind = "notification-ack"
)

// Payload is the kind-specific request body of a sync operation.
// Read-only kinds have no payload and are never queued.
type Payload interface {
	PayloadKind() Kind
}

// CheckInPayload records a member's attendance at an event.
type CheckInPayload struct {
	MemberID    string `json:"member_id"`
	EventID     string `json:"event_id"`
	CheckedInAt int64  `json:"checked_in_at"`
}

func (CheckInPayload) PayloadKind() Kind { return KindCheckIn }

// EventRSVPPayload records a member's RSVP to an event.
type EventRSVPPayload struct {
	MemberID string `json:"member_id"`
	EventID  string `json:"event_id"`
	Response string `json:"response"` // going, declined, maybe
}

func (EventRSVPPayload) PayloadKind() Kind { return KindEventRSVP }

// GroupJoinPayload requests membership in a group.
type GroupJoinPayload struct {
	MemberID string `json:"member_id"`
	GroupID  string `json:"group_id"`
	Role     string `json:"role,omitempty"`
}

func (GroupJoinPayload) PayloadKind() Kind { return KindGroupJoin }

// ProgressUpdatePayload marks a pathway step complete or incomplete.
type ProgressUpdatePayload struct {
	MemberID  string `json:"member_id"`
	PathwayID string `json:"pathway_id"`
	StepID    string `json:"step_id"`
	Completed bool   `json:"completed"`
}

func (ProgressUpdatePayload) PayloadKind() Kind { return KindProgressUpdate }

// ProfileUpdatePayload carries changed member profile fields.
type ProfileUpdatePayload struct {
	MemberID string            `json:"member_id"`
	Fields   map[string]string `json:"fields"`
}

func (ProfileUpdatePayload) PayloadKind() Kind { return KindProfileUpdate }

// NotificationAckPayload acknowledges a delivered notification.
type NotificationAckPayload struct {
	NotificationID string `json:"notification_id"`
	AckedAt        int64  `json:"acked_at"`
}

func (NotificationAckPayload) PayloadKind() Kind { return KindNotificationAck }

// payloadRegistry maps each kind to a constructor for its payload shape.
var payloadRegistry = map[Kind]func() Payload{
	KindCheckIn:         func() Payload { return &CheckInPayload{} },
	KindEventRSVP:       func() Payload { return &EventRSVPPayload{} },
	KindGroupJoin:       func() Payload { return &GroupJoinPayload{} },
	KindProgressUpdate:  func() Payload { return &ProgressUpdatePayload{} },
	KindProfileUpdate:   func() Payload { return &ProfileUpdatePayload{} },
	KindNotificationAck: func() Payload { return &NotificationAckPayload{} },
}

// Route is the default HTTP target for a kind.
type Route struct {
	Method   string
	Endpoint string
}

// routes maps each kind to its API route. Endpoints are relative to the
// configured API base URL.
var routes = map[Kind]Route{
	KindCheckIn:         {http.MethodPost, "/api/v1/attendance/check-ins"},
	KindEventRSVP:       {http.MethodPost, "/api/v1/events/rsvps"},
	KindGroupJoin:       {http.MethodPost, "/api/v1/groups/joins"},
	KindProgressUpdate:  {http.MethodPut, "/api/v1/pathways/progress"},
	KindProfileUpdate:   {http.MethodPatch, "/api/v1/members/profile"},
	KindNotificationAck: {http.MethodPost, "/api/v1/notifications/acks"},
}

// IsValidKind reports whether k is a registered operation kind.
func IsValidKind(k Kind) bool {
	_, ok := payloadRegistry[k]
	return ok
}

// RouteFor returns the default method and endpoint for a kind.
func RouteFor(k Kind) (Route, error) {
	r, ok := routes[k]
	if !ok {
		return Route{}, fmt.Errorf("no route registered for kind %q", k)
	}
	return r, nil
}

// EncodePayload marshals a payload to its JSON wire form.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.PayloadKind(), err)
	}
	return data, nil
}

// DecodePayload unmarshals data into the payload shape registered for kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	ctor, ok := payloadRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	p := ctor()
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
