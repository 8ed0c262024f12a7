package repo

import (
	"context"
	"database/sql"

	"gigline/internal/domain"
)

const bidColumns = `id,job_id,freelancer_id,recruiter_id,amount,cover_letter,status,created_at`

func scanBid(scan func(dest ...any) error) (domain.Bid, error) {
	var b domain.Bid
	var cover sql.NullString
	err := scan(&b.ID, &b.JobID, &b.FreelancerID, &b.RecruiterID, &b.Amount, &cover, &b.Status, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if cover.Valid {
		b.CoverLetter = cover.String
	}
	return b, nil
}

func (r Repo) InsertBidTx(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bids(`+bidColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.JobID, b.FreelancerID, b.RecruiterID, b.Amount, nullable(b.CoverLetter), b.Status, b.CreatedAt)
	return err
}

func (r Repo) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id=?`, id)
	return scanBid(row.Scan)
}

func (r Repo) GetBidTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bid, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id=?`, id)
	return scanBid(row.Scan)
}

// BidExists reports whether the freelancer already has a bid on the job.
func (r Repo) BidExists(ctx context.Context, jobID, freelancerID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM bids WHERE job_id=? AND freelancer_id=? LIMIT 1`, jobID, freelancerID).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) listBids(ctx context.Context, query string, args ...any) ([]domain.Bid, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) ListBidsForJob(ctx context.Context, jobID string) ([]domain.Bid, error) {
	return r.listBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE job_id=? ORDER BY created_at DESC, id DESC`, jobID)
}

func (r Repo) ListBidsForFreelancer(ctx context.Context, freelancerID string) ([]domain.Bid, error) {
	return r.listBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE freelancer_id=? ORDER BY created_at DESC, id DESC`, freelancerID)
}

func (r Repo) ListBidsForRecruiter(ctx context.Context, recruiterID string) ([]domain.Bid, error) {
	return r.listBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE recruiter_id=? ORDER BY created_at DESC, id DESC`, recruiterID)
}

// MarkBidAcceptedTx flips a pending bid to accepted. Zero rows means the bid
// already left the pending state.
func (r Repo) MarkBidAcceptedTx(ctx context.Context, tx *sql.Tx, bidID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status=? WHERE id=? AND status=?`, domain.BidAccepted, bidID, domain.BidPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RejectSiblingBidsTx rejects every other pending bid on the job.
func (r Repo) RejectSiblingBidsTx(ctx context.Context, tx *sql.Tx, jobID, winningBidID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE bids SET status=? WHERE job_id=? AND id<>? AND status=?`,
		domain.BidRejected, jobID, winningBidID, domain.BidPending)
	return err
}

// MarkBidRejectedTx rejects a single pending bid outside any allocation.
func (r Repo) MarkBidRejectedTx(ctx context.Context, tx *sql.Tx, bidID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status=? WHERE id=? AND status=?`, domain.BidRejected, bidID, domain.BidPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
