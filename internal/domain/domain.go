package domain

// Job statuses.
const (
	JobOpen      = "open"
	JobBidding   = "bidding"
	JobClosed    = "closed"
	JobCancelled = "cancelled"
)

// Bid statuses.
const (
	BidPending  = "pending"
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

// Milestone payment statuses.
const (
	MilestonePending  = "PENDING"
	MilestonePaid     = "PAID"
	MilestoneReleased = "RELEASED"
)

// Payment transaction statuses.
const (
	PaymentCreated = "CREATED"
	PaymentSuccess = "SUCCESS"
	PaymentFailed  = "FAILED"
)

// Principal roles.
const (
	RoleEmployer   = "employer"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

type Job struct {
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

type Bid struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	FreelancerID string `json:"freelancer_id"`
	RecruiterID  string `json:"recruiter_id"`
	Amount       int64  `json:"amount"`
	CoverLetter  string `json:"cover_letter,omitempty"`
	Status       string `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Milestone struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Percentage    int    `json:"percentage"`
	Amount        int64  `json:"amount"`
	PaymentStatus string `json:"payment_status" enum:"PENDING,PAID,RELEASED"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Payment struct {
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

type Message struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	IsRead     bool   `json:"is_read"`
	IsDeleted  bool   `json:"is_deleted,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Conversation summarizes one allocated job's message thread for a user.
type Conversation struct {
	JobID         string   `json:"job_id"`
	JobTitle      string   `json:"job_title"`
	CounterpartID string   `json:"counterpart_id"`
	LatestMessage *Message `json:"latest_message,omitempty"`
	UnreadCount   int      `json:"unread_count"`
	ProjectStatus string   `json:"project_status,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	JobID      string `json:"job_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
