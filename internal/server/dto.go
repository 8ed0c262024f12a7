package server

import (
	"encoding/json"

	"gigline/internal/domain"
)

// Request payloads

type CreateJobRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Budget      *int64 `json:"budget,omitempty"`
	// Either an explicit RFC3339 deadline or a window in hours.
	BiddingDeadline *string `json:"bidding_deadline,omitempty" format:"date-time"`
	DurationHours   *int    `json:"duration_hours,omitempty"`
}

type UpdateJobRequest struct {
	Title           *string `json:"title,omitempty"`
	Company         *string `json:"company,omitempty"`
	Location        *string `json:"location,omitempty"`
	Description     *string `json:"description,omitempty"`
	Budget          *int64  `json:"budget,omitempty"`
	BiddingDeadline *string `json:"bidding_deadline,omitempty" format:"date-time"`
	DurationHours   *int    `json:"duration_hours,omitempty"`
	Cancel          bool    `json:"cancel,omitempty"`
}

type PlaceBidRequest struct {
	Amount      int64  `json:"amount"`
	CoverLetter string `json:"cover_letter,omitempty"`
}

type UpdateProgressRequest struct {
	Level int `json:"level" minimum:"0" maximum:"5"`
}

type CreatePaymentRequest struct {
	Level int `json:"level" minimum:"1" maximum:"5"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"employer,freelancer,admin"`
}

// Response payloads

type JobResponse struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Company              string  `json:"company"`
	Location             string  `json:"location"`
	Description          string  `json:"description"`
	Budget               *int64  `json:"budget,omitempty"`
	Status               string  `json:"status" enum:"open,bidding,closed,cancelled"`
	PostedBy             string  `json:"posted_by"`
	BiddingDeadline      string  `json:"bidding_deadline" format:"date-time"`
	AllocatedTo          *string `json:"allocated_to,omitempty"`
	AllocatedAt          *string `json:"allocated_at,omitempty" format:"date-time"`
	AcceptedBidID        *string `json:"accepted_bid_id,omitempty"`
	ProgressLevel        int     `json:"progress_level"`
	CompletionPercentage int     `json:"completion_percentage"`
	ProjectStatus        string  `json:"project_status"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	ClosedAt             *string `json:"closed_at,omitempty" format:"date-time"`
}

type BidResponse struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	FreelancerID string `json:"freelancer_id"`
	RecruiterID  string `json:"recruiter_id"`
	Amount       int64  `json:"amount"`
	CoverLetter  string `json:"cover_letter,omitempty"`
	Status       string `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type AcceptBidResponse struct {
	Job JobResponse `json:"job"`
	Bid BidResponse `json:"bid"`
}

type MilestoneResponse struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Percentage    int    `json:"percentage"`
	Amount        int64  `json:"amount"`
	PaymentStatus string `json:"payment_status" enum:"PENDING,PAID,RELEASED"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type PaymentResponse struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	MilestoneID    string `json:"milestone_id"`
	RecruiterID    string `json:"recruiter_id"`
	FreelancerID   string `json:"freelancer_id"`
	Amount         int64  `json:"amount"`
	GatewayOrderID string `json:"gateway_order_id"`
	Status         string `json:"status" enum:"CREATED,SUCCESS,FAILED"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type MessageResponse struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ConversationResponse struct {
	JobID         string           `json:"job_id"`
	JobTitle      string           `json:"job_title"`
	CounterpartID string           `json:"counterpart_id"`
	LatestMessage *MessageResponse `json:"latest_message,omitempty"`
	UnreadCount   int              `json:"unread_count"`
	ProjectStatus string           `json:"project_status,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	JobID      string         `json:"job_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedJobs struct {
	Items      []JobResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func jobResponse(j domain.Job) JobResponse {
	return JobResponse(j)
}

func bidResponse(b domain.Bid) BidResponse {
	return BidResponse(b)
}

func mapBids(items []domain.Bid) []BidResponse {
	res := make([]BidResponse, 0, len(items))
	for _, b := range items {
		res = append(res, bidResponse(b))
	}
	return res
}

func milestoneResponse(m domain.Milestone) MilestoneResponse {
	return MilestoneResponse(m)
}

func mapMilestones(items []domain.Milestone) []MilestoneResponse {
	res := make([]MilestoneResponse, 0, len(items))
	for _, m := range items {
		res = append(res, milestoneResponse(m))
	}
	return res
}

func paymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse(p)
}

func messageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		JobID:      m.JobID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

func conversationResponse(c domain.Conversation) ConversationResponse {
	res := ConversationResponse{
		JobID:         c.JobID,
		JobTitle:      c.JobTitle,
		CounterpartID: c.CounterpartID,
		UnreadCount:   c.UnreadCount,
		ProjectStatus: c.ProjectStatus,
	}
	if c.LatestMessage != nil {
		m := messageResponse(*c.LatestMessage)
		res.LatestMessage = &m
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		JobID:      e.JobID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
