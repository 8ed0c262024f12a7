package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gigline/internal/domain"
	"gigline/internal/events"
)

const maxCoverLetterLen = 2000

// BidOptions are parameters for placing a bid.
type BidOptions struct {
	JobID       string
	Amount      int64
	CoverLetter string
}

// PlaceBid records a freelancer's bid on an open job. The preconditions are
// checked in order so each failure mode surfaces as its own error.
func (e Engine) PlaceBid(ctx context.Context, actor Actor, opts BidOptions) (domain.Bid, error) {
	if opts.Amount < 0 {
		return domain.Bid{}, validationf("bid amount must be non-negative")
	}
	if len(opts.CoverLetter) > maxCoverLetterLen {
		return domain.Bid{}, validationf("cover letter too long")
	}
	if actor.Role != domain.RoleFreelancer {
		return domain.Bid{}, forbidden("only freelancers can place bids")
	}
	j, err := e.Repo.GetJob(ctx, opts.JobID)
	if err != nil {
		return domain.Bid{}, err
	}
	if j.Status == domain.JobClosed || j.Status == domain.JobCancelled {
		return domain.Bid{}, conflict("job is no longer accepting bids")
	}
	now := e.now().UTC()
	deadline, err := time.Parse(time.RFC3339, j.BiddingDeadline)
	if err == nil && now.After(deadline) {
		return domain.Bid{}, conflict("bidding deadline has passed")
	}
	if j.AllocatedTo != nil {
		return domain.Bid{}, conflict("job is already allocated")
	}
	exists, err := e.Repo.BidExists(ctx, j.ID, actor.ID)
	if err != nil {
		return domain.Bid{}, err
	}
	if exists {
		return domain.Bid{}, conflict("you have already bid on this job")
	}
	b := domain.Bid{
		ID:           uuid.NewString(),
		JobID:        j.ID,
		FreelancerID: actor.ID,
		// Cached from the job at creation time, never refreshed.
		RecruiterID: j.PostedBy,
		Amount:      opts.Amount,
		CoverLetter: opts.CoverLetter,
		Status:      domain.BidPending,
		CreatedAt:   now.Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertBidTx(ctx, tx, b); err != nil {
		return domain.Bid{}, err
	}
	if err := e.Repo.SetJobBidding(ctx, tx, j.ID); err != nil {
		return domain.Bid{}, err
	}
	if err := e.Events.Append(ctx, tx, "bid.placed", j.ID, "bid", b.ID, actor.ID, events.EventPayload{
		"amount": b.Amount,
	}); err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	return b, nil
}

func (e Engine) ListBidsForJob(ctx context.Context, actor Actor, jobID string) ([]domain.Bid, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if actor.ID != j.PostedBy && !actor.IsAdmin() {
		return nil, forbidden("only the posting employer can list bids on this job")
	}
	return e.Repo.ListBidsForJob(ctx, jobID)
}

func (e Engine) ListBidsForFreelancer(ctx context.Context, actor Actor, freelancerID string) ([]domain.Bid, error) {
	if actor.ID != freelancerID && !actor.IsAdmin() {
		return nil, forbidden("cannot list bids for another freelancer")
	}
	return e.Repo.ListBidsForFreelancer(ctx, freelancerID)
}

func (e Engine) ListBidsForRecruiter(ctx context.Context, actor Actor, recruiterID string) ([]domain.Bid, error) {
	if actor.ID != recruiterID && !actor.IsAdmin() {
		return nil, forbidden("cannot list bids for another recruiter")
	}
	return e.Repo.ListBidsForRecruiter(ctx, recruiterID)
}

// AcceptBid allocates the job to the bid's freelancer. The whole transition
// commits as one transaction: winning bid accepted, sibling bids rejected,
// job bound and closed. The allocated_to compare-and-swap inside the
// transaction guarantees that of two concurrent accepts exactly one wins and
// the other sees a conflict.
func (e Engine) AcceptBid(ctx context.Context, actor Actor, bidID string) (domain.Job, domain.Bid, error) {
	b, err := e.Repo.GetBid(ctx, bidID)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	j, err := e.Repo.GetJob(ctx, b.JobID)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	if actor.ID != j.PostedBy {
		return domain.Job{}, domain.Bid{}, forbidden("only the posting employer can accept a bid")
	}
	if j.AllocatedTo != nil {
		return domain.Job{}, domain.Bid{}, conflict("job is already allocated")
	}
	if b.Status != domain.BidPending {
		return domain.Job{}, domain.Bid{}, conflict("bid is not pending")
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	defer tx.Rollback()
	won, err := e.Repo.AllocateJobTx(ctx, tx, j.ID, b.FreelancerID, b.ID, now)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	if !won {
		return domain.Job{}, domain.Bid{}, conflict("job is already allocated")
	}
	accepted, err := e.Repo.MarkBidAcceptedTx(ctx, tx, b.ID)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	if !accepted {
		return domain.Job{}, domain.Bid{}, conflict("bid is not pending")
	}
	if err := e.Repo.RejectSiblingBidsTx(ctx, tx, j.ID, b.ID); err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	if err := e.Events.Append(ctx, tx, "job.allocated", j.ID, "bid", b.ID, actor.ID, events.EventPayload{
		"freelancer_id": b.FreelancerID,
		"amount":        b.Amount,
	}); err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	j, err = e.Repo.GetJobTx(ctx, tx, j.ID)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	b, err = e.Repo.GetBidTx(ctx, tx, b.ID)
	if err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, domain.Bid{}, err
	}
	return j, b, nil
}

// RejectBid declines a single pending bid. No job-side effects.
func (e Engine) RejectBid(ctx context.Context, actor Actor, bidID string) (domain.Bid, error) {
	b, err := e.Repo.GetBid(ctx, bidID)
	if err != nil {
		return domain.Bid{}, err
	}
	j, err := e.Repo.GetJob(ctx, b.JobID)
	if err != nil {
		return domain.Bid{}, err
	}
	if actor.ID != j.PostedBy {
		return domain.Bid{}, forbidden("only the posting employer can reject a bid")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()
	rejected, err := e.Repo.MarkBidRejectedTx(ctx, tx, b.ID)
	if err != nil {
		return domain.Bid{}, err
	}
	if !rejected {
		return domain.Bid{}, conflict("bid is not pending")
	}
	if err := e.Events.Append(ctx, tx, "bid.rejected", j.ID, "bid", b.ID, actor.ID, nil); err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	b.Status = domain.BidRejected
	return b, nil
}
