package giglinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Gigline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "api/v1",
		Timeout:  10 * time.Second,
	}
}

// Job represents the API job model.
type Job struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Company              string  `json:"company"`
	Location             string  `json:"location"`
	Description          string  `json:"description"`
	Budget               *int64  `json:"budget,omitempty"`
	Status               string  `json:"status"`
	PostedBy             string  `json:"posted_by"`
	BiddingDeadline      string  `json:"bidding_deadline"`
	AllocatedTo          *string `json:"allocated_to,omitempty"`
	AcceptedBidID        *string `json:"accepted_bid_id,omitempty"`
	ProgressLevel        int     `json:"progress_level"`
	CompletionPercentage int     `json:"completion_percentage"`
	ProjectStatus        string  `json:"project_status"`
	CreatedAt            string  `json:"created_at"`
}

// Bid represents a freelancer's offer on a job.
type Bid struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	FreelancerID string `json:"freelancer_id"`
	RecruiterID  string `json:"recruiter_id"`
	Amount       int64  `json:"amount"`
	CoverLetter  string `json:"cover_letter,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// Milestone is one rung of the payment ladder.
type Milestone struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Percentage    int    `json:"percentage"`
	Amount        int64  `json:"amount"`
	PaymentStatus string `json:"payment_status"`
	CreatedAt     string `json:"created_at"`
}

// Payment is a gateway-backed payment order.
type Payment struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	MilestoneID    string `json:"milestone_id"`
	RecruiterID    string `json:"recruiter_id"`
	FreelancerID   string `json:"freelancer_id"`
	Amount         int64  `json:"amount"`
	GatewayOrderID string `json:"gateway_order_id"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

// Payable summarizes what the employer owes at the current progress level.
type Payable struct {
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Percentage    int    `json:"percentage"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
	PaymentExists bool   `json:"payment_exists"`
}

// Message is one chat entry on an allocated job.
type Message struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at"`
}

// Conversation is an inbox row for one allocated job.
type Conversation struct {
	JobID         string   `json:"job_id"`
	JobTitle      string   `json:"job_title"`
	CounterpartID string   `json:"counterpart_id"`
	LatestMessage *Message `json:"latest_message,omitempty"`
	UnreadCount   int      `json:"unread_count"`
	ProjectStatus string   `json:"project_status,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	JobID      string         `json:"job_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// AcceptBidResult carries the allocated job and the winning bid.
type AcceptBidResult struct {
	Job Job `json:"job"`
	Bid Bid `json:"bid"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedJobs wraps job listings with cursors.
type PaginatedJobs struct {
	Items      []Job  `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// CreateJobOptions holds the fields for posting a job.
type CreateJobOptions struct {
	Title           string `json:"title"`
	Company         string `json:"company"`
	Location        string `json:"location"`
	Description     string `json:"description"`
	Budget          *int64 `json:"budget,omitempty"`
	BiddingDeadline string `json:"bidding_deadline,omitempty"`
	DurationHours   int    `json:"duration_hours,omitempty"`
}

// CreateJob posts a job.
func (c *Client) CreateJob(ctx context.Context, opts CreateJobOptions) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "jobs", opts, &resp)
	return resp, err
}

// GetJob fetches a job by id.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListJobs returns a page of jobs. Pass a status of "" for all.
func (c *Client) ListJobs(ctx context.Context, status string, limit int, cursor string) (PaginatedJobs, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "jobs"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedJobs
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CancelJob cancels a job that has no allocation.
func (c *Client) CancelJob(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPatch, "jobs/"+url.PathEscape(id), map[string]any{"cancel": true}, &resp)
	return resp, err
}

// PlaceBid submits a bid on a job.
func (c *Client) PlaceBid(ctx context.Context, jobID string, amount int64, coverLetter string) (Bid, error) {
	body := map[string]any{"amount": amount}
	if coverLetter != "" {
		body["cover_letter"] = coverLetter
	}
	var resp Bid
	endpoint := fmt.Sprintf("jobs/%s/bids", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListJobBids returns all bids on a job.
func (c *Client) ListJobBids(ctx context.Context, jobID string) ([]Bid, error) {
	var resp []Bid
	endpoint := fmt.Sprintf("jobs/%s/bids", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AcceptBid accepts a bid, allocating the job to its freelancer.
func (c *Client) AcceptBid(ctx context.Context, bidID string) (AcceptBidResult, error) {
	var resp AcceptBidResult
	endpoint := fmt.Sprintf("bids/%s/accept", url.PathEscape(bidID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// RejectBid rejects a pending bid.
func (c *Client) RejectBid(ctx context.Context, bidID string) (Bid, error) {
	var resp Bid
	endpoint := fmt.Sprintf("bids/%s/reject", url.PathEscape(bidID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// UpdateProgress advances the project to the given level.
func (c *Client) UpdateProgress(ctx context.Context, jobID string, level int) (Job, error) {
	var resp Job
	endpoint := fmt.Sprintf("jobs/%s/progress", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"level": level}, &resp)
	return resp, err
}

// InitializeMilestones creates the milestone schedule for a job.
func (c *Client) InitializeMilestones(ctx context.Context, jobID string) ([]Milestone, error) {
	var resp []Milestone
	endpoint := fmt.Sprintf("jobs/%s/milestones", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ListMilestones lists the milestone schedule.
func (c *Client) ListMilestones(ctx context.Context, jobID string) ([]Milestone, error) {
	var resp []Milestone
	endpoint := fmt.Sprintf("jobs/%s/milestones", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PayableAmount returns the amount due at the current progress level.
func (c *Client) PayableAmount(ctx context.Context, jobID string) (Payable, error) {
	var resp Payable
	endpoint := fmt.Sprintf("jobs/%s/payable", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreatePayment creates a payment order for a milestone level.
func (c *Client) CreatePayment(ctx context.Context, jobID string, level int) (Payment, error) {
	var resp Payment
	endpoint := fmt.Sprintf("jobs/%s/payments", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"level": level}, &resp)
	return resp, err
}

// ConfirmPayment confirms a payment order with the gateway.
func (c *Client) ConfirmPayment(ctx context.Context, jobID, orderID string) (Payment, error) {
	var resp Payment
	endpoint := fmt.Sprintf("jobs/%s/payments/%s/confirm", url.PathEscape(jobID), url.PathEscape(orderID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ListPayments lists a job's payments.
func (c *Client) ListPayments(ctx context.Context, jobID string) ([]Payment, error) {
	var resp []Payment
	endpoint := fmt.Sprintf("jobs/%s/payments", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SendMessage posts a message on an allocated job.
func (c *Client) SendMessage(ctx context.Context, jobID, body string) (Message, error) {
	var resp Message
	endpoint := fmt.Sprintf("jobs/%s/messages", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": body}, &resp)
	return resp, err
}

// JobMessages returns the message history and marks incoming messages read.
func (c *Client) JobMessages(ctx context.Context, jobID string) ([]Message, error) {
	var resp []Message
	endpoint := fmt.Sprintf("jobs/%s/messages", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Conversations returns inbox summaries for the given user.
func (c *Client) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	var resp []Conversation
	endpoint := "conversations"
	if userID != "" {
		endpoint += "?user_id=" + url.QueryEscape(userID)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
