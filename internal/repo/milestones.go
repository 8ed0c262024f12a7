package repo

import (
	"context"
	"database/sql"

	"gigline/internal/domain"
)

const milestoneColumns = `id,job_id,level,status,percentage,amount,payment_status,created_at`

func scanMilestone(scan func(dest ...any) error) (domain.Milestone, error) {
	var m domain.Milestone
	err := scan(&m.ID, &m.JobID, &m.Level, &m.Status, &m.Percentage, &m.Amount, &m.PaymentStatus, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMilestoneTx(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(`+milestoneColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.JobID, m.Level, m.Status, m.Percentage, m.Amount, m.PaymentStatus, m.CreatedAt)
	return err
}

func (r Repo) GetMilestoneByLevel(ctx context.Context, jobID string, level int) (domain.Milestone, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE job_id=? AND level=?`, jobID, level)
	return scanMilestone(row.Scan)
}

func (r Repo) ListMilestones(ctx context.Context, jobID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE job_id=? ORDER BY level ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountMilestones reports how many milestones exist for a job. Used to keep
// InitializeMilestones idempotent-safe.
func (r Repo) CountMilestones(ctx context.Context, jobID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM milestones WHERE job_id=?`, jobID).Scan(&n)
	return n, err
}

func (r Repo) SetMilestonePaymentStatusTx(ctx context.Context, tx *sql.Tx, milestoneID, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET payment_status=? WHERE id=?`, status, milestoneID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const paymentColumns = `id,job_id,milestone_id,recruiter_id,freelancer_id,amount,gateway_order_id,status,created_at`

func scanPayment(scan func(dest ...any) error) (domain.Payment, error) {
	var p domain.Payment
	err := scan(&p.ID, &p.JobID, &p.MilestoneID, &p.RecruiterID, &p.FreelancerID, &p.Amount, &p.GatewayOrderID, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPaymentTx(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(`+paymentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.JobID, p.MilestoneID, p.RecruiterID, p.FreelancerID, p.Amount, p.GatewayOrderID, p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetPaymentByMilestone(ctx context.Context, milestoneID string) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE milestone_id=?`, milestoneID)
	return scanPayment(row.Scan)
}

func (r Repo) GetPaymentByMilestoneTx(ctx context.Context, tx *sql.Tx, milestoneID string) (domain.Payment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE milestone_id=?`, milestoneID)
	return scanPayment(row.Scan)
}

func (r Repo) GetMilestoneByLevelTx(ctx context.Context, tx *sql.Tx, jobID string, level int) (domain.Milestone, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE job_id=? AND level=?`, jobID, level)
	return scanMilestone(row.Scan)
}

func (r Repo) GetPaymentByOrderID(ctx context.Context, jobID, orderID string) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE job_id=? AND gateway_order_id=?`, jobID, orderID)
	return scanPayment(row.Scan)
}

func (r Repo) ListPayments(ctx context.Context, jobID string) ([]domain.Payment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE job_id=? ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SettlePaymentTx moves a CREATED payment to a terminal status. Zero rows means
// the payment already settled.
func (r Repo) SettlePaymentTx(ctx context.Context, tx *sql.Tx, paymentID, status string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE payments SET status=? WHERE id=? AND status=?`, status, paymentID, domain.PaymentCreated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
