package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gigline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const jobColumns = `id,title,company,location,description,budget,status,posted_by,bidding_deadline,allocated_to,allocated_at,accepted_bid_id,progress_level,completion_percentage,project_status,created_at,closed_at`

func scanJob(scan func(dest ...any) error) (domain.Job, error) {
	var j domain.Job
	var budget sql.NullInt64
	var allocatedTo, allocatedAt, acceptedBid, closedAt sql.NullString
	err := scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.Description, &budget, &j.Status, &j.PostedBy,
		&j.BiddingDeadline, &allocatedTo, &allocatedAt, &acceptedBid, &j.ProgressLevel, &j.CompletionPercentage,
		&j.ProjectStatus, &j.CreatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if budget.Valid {
		b := budget.Int64
		j.Budget = &b
	}
	if allocatedTo.Valid {
		j.AllocatedTo = &allocatedTo.String
	}
	if allocatedAt.Valid {
		j.AllocatedAt = &allocatedAt.String
	}
	if acceptedBid.Valid {
		j.AcceptedBidID = &acceptedBid.String
	}
	if closedAt.Valid {
		j.ClosedAt = &closedAt.String
	}
	return j, nil
}

func (r Repo) InsertJobTx(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Title, j.Company, j.Location, j.Description, nullableInt64Ptr(j.Budget), j.Status, j.PostedBy,
		j.BiddingDeadline, nullableStringPtr(j.AllocatedTo), nullableStringPtr(j.AllocatedAt), nullableStringPtr(j.AcceptedBidID),
		j.ProgressLevel, j.CompletionPercentage, j.ProjectStatus, j.CreatedAt, nullableStringPtr(j.ClosedAt))
	return err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

func (r Repo) GetJobTx(ctx context.Context, tx *sql.Tx, id string) (domain.Job, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

type JobFilters struct {
	Status      string
	PostedBy    string
	AllocatedTo string
	// OpenOnly restricts results to jobs still visible to bidders: status
	// open or bidding with a deadline after Now.
	OpenOnly        bool
	Now             string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PostedBy != "" {
		clauses = append(clauses, "posted_by=?")
		args = append(args, f.PostedBy)
	}
	if f.AllocatedTo != "" {
		clauses = append(clauses, "allocated_to=?")
		args = append(args, f.AllocatedTo)
	}
	if f.OpenOnly {
		clauses = append(clauses, "status IN (?,?)", "bidding_deadline > ?")
		args = append(args, domain.JobOpen, domain.JobBidding, f.Now)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + jobColumns + ` FROM jobs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// UpdateJobPostingTx rewrites the employer-editable fields of a job. Allocation
// and progress columns are never touched here.
func (r Repo) UpdateJobPostingTx(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET title=?, company=?, location=?, description=?, budget=?, status=?, bidding_deadline=? WHERE id=?`,
		j.Title, j.Company, j.Location, j.Description, nullableInt64Ptr(j.Budget), j.Status, j.BiddingDeadline, j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteJobTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AllocateJobTx binds a job to a freelancer with a compare-and-swap on
// allocated_to being null. It reports false when another allocation already
// won, which is how concurrent accepts serialize to exactly one winner.
func (r Repo) AllocateJobTx(ctx context.Context, tx *sql.Tx, jobID, freelancerID, bidID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET allocated_to=?, allocated_at=?, accepted_bid_id=?, status=?, closed_at=? WHERE id=? AND allocated_to IS NULL`,
		freelancerID, now, bidID, domain.JobClosed, now, jobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetJobBidding flips an open job to bidding once the first bid lands.
func (r Repo) SetJobBidding(ctx context.Context, tx *sql.Tx, jobID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE jobs SET status=? WHERE id=? AND status=?`, domain.JobBidding, jobID, domain.JobOpen)
	return err
}

// AdvanceJobProgressTx moves the progress fields forward as one record update,
// guarded on the stored level still being the one the caller read.
func (r Repo) AdvanceJobProgressTx(ctx context.Context, tx *sql.Tx, jobID string, fromLevel int, l domain.Level) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET progress_level=?, completion_percentage=?, project_status=? WHERE id=? AND progress_level=?`,
		l.Value, l.Percentage, l.Label, jobID, fromLevel)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// LatestEvents returns recent events, newest first, with optional filters.
func (r Repo) LatestEvents(ctx context.Context, limit int, jobID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if jobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, jobID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(job_id,''),entity_kind,COALESCE(entity_id,''),actor_id,COALESCE(payload_json,'') FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.JobID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(job_id,''),entity_kind,COALESCE(entity_id,''),actor_id,COALESCE(payload_json,'') FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.JobID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}
