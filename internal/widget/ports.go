package widget

import (
	"context"
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
)

type Attachment struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	// Durable is false when URL is a local preview reference left by a failed upload.
	Durable bool `json:"durable"`
}

// ReplyExtras are the interactive payloads a reply may carry. They are opaque to the
// engine and only ever set on the last fragment of a reply.
type ReplyExtras struct {
	QuickReplies     json.RawMessage `json:"quickReplies,omitempty"`
	CallActions      json.RawMessage `json:"callActions,omitempty"`
	DayPicker        json.RawMessage `json:"dayPicker,omitempty"`
	TimePicker       json.RawMessage `json:"timePicker,omitempty"`
	LinkPreviews     json.RawMessage `json:"linkPreviews,omitempty"`
	BookingConfirmed json.RawMessage `json:"bookingConfirmed,omitempty"`
	Reactions        json.RawMessage `json:"reactions,omitempty"`
}

func (e *ReplyExtras) empty() bool {
	return e == nil || (len(e.QuickReplies) == 0 && len(e.CallActions) == 0 &&
		len(e.DayPicker) == 0 && len(e.TimePicker) == 0 && len(e.LinkPreviews) == 0 &&
		len(e.BookingConfirmed) == 0 && len(e.Reactions) == 0)
}

type Message struct {
	ID          string        `json:"id,omitempty"`
	ClientRef   string        `json:"clientRef"`
	Role        Role          `json:"role"`
	Content     string        `json:"content"`
	Attachments []Attachment  `json:"attachments"`
	CreatedAt   time.Time     `json:"createdAt"`
	Delivery    DeliveryState `json:"deliveryState"`
	Read        bool          `json:"readState"`
	Extras      *ReplyExtras  `json:"extras,omitempty"`
}

// LocalFile is a file staged in the composer, not yet uploaded.
type LocalFile struct {
	Name       string
	MimeType   string
	Data       []byte
	PreviewURL string
}

// Draft is the composer content handed to Send.
type Draft struct {
	Text  string
	Files []LocalFile
}

type PageVisit struct {
	URL   string    `json:"url"`
	Title string    `json:"title,omitempty"`
	At    time.Time `json:"at"`
}

type OutboundMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type ChatRequest struct {
	AgentID         string          `json:"agentId"`
	ConversationID  *string         `json:"conversationId"`
	Message         OutboundMessage `json:"message"`
	LeadID          string          `json:"leadId,omitempty"`
	PageVisits      []PageVisit     `json:"pageVisits,omitempty"`
	ReferrerJourney []string        `json:"referrerJourney,omitempty"`
	VisitorID       string          `json:"visitorId"`
	Locale          string          `json:"locale,omitempty"`
}

const (
	StatusOK            = "ok"
	StatusHumanTakeover = "human_takeover"
)

type ReplyFragment struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type Agent struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type ChatResponse struct {
	ConversationID   string          `json:"conversationId"`
	Status           string          `json:"status"`
	UserMessageID    string          `json:"userMessageId"`
	Response         *string         `json:"response,omitempty"`
	Messages         []ReplyFragment `json:"messages,omitempty"`
	LinkPreviews     json.RawMessage `json:"linkPreviews,omitempty"`
	QuickReplies     json.RawMessage `json:"quickReplies,omitempty"`
	CallActions      json.RawMessage `json:"callActions,omitempty"`
	DayPicker        json.RawMessage `json:"dayPicker,omitempty"`
	TimePicker       json.RawMessage `json:"timePicker,omitempty"`
	BookingConfirmed json.RawMessage `json:"bookingConfirmed,omitempty"`
	AIMarkedComplete bool            `json:"aiMarkedComplete,omitempty"`
	TakenOverBy      *Agent          `json:"takenOverBy,omitempty"`
}

// KnownUser is the only state that survives a widget reload.
type KnownUser struct {
	FirstName      string `json:"firstName"`
	LeadID         string `json:"leadId"`
	ConversationID string `json:"conversationId"`
}

// Backend is the chat round trip. Any error is treated as one failure class.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HistoryFetcher loads the persisted transcript of a conversation.
type HistoryFetcher interface {
	History(ctx context.Context, conversationID string) ([]Message, error)
}

// ObjectStorage stores one file. path must be unique per call.
type ObjectStorage interface {
	Upload(ctx context.Context, path string, file LocalFile) (publicURL string, err error)
}

// UserProfileStore persists the known-user record scoped to agent and visitor.
type UserProfileStore interface {
	Load(ctx context.Context, agentID, visitorID string) (*KnownUser, error)
	Save(ctx context.Context, agentID, visitorID string, u KnownUser) error
}

// Greeter produces the first-contact greeting.
type Greeter interface {
	Greeting(ctx context.Context, agentID, locale string) (string, error)
}
