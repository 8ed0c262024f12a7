package repo

import (
	"context"
	"database/sql"

	"gigline/internal/domain"
)

const messageColumns = `id,job_id,sender_id,receiver_id,body,is_read,is_deleted,created_at`

func scanMessage(scan func(dest ...any) error) (domain.Message, error) {
	var m domain.Message
	err := scan(&m.ID, &m.JobID, &m.SenderID, &m.ReceiverID, &m.Body, &m.IsRead, &m.IsDeleted, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMessageTx(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(`+messageColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.JobID, m.SenderID, m.ReceiverID, m.Body, m.IsRead, m.IsDeleted, m.CreatedAt)
	return err
}

// ListJobMessages returns the bidirectional, non-deleted history for a job in
// chronological order.
func (r Repo) ListJobMessages(ctx context.Context, jobID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE job_id=? AND is_deleted=0 ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MarkMessagesRead marks every unread message addressed to the reader on this
// job as read. Returns the number of messages flipped.
func (r Repo) MarkMessagesRead(ctx context.Context, jobID, readerID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE messages SET is_read=1 WHERE job_id=? AND receiver_id=? AND is_read=0`, jobID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LatestJobMessage returns the newest non-deleted message on a job, ErrNotFound
// if the thread is empty.
func (r Repo) LatestJobMessage(ctx context.Context, jobID string) (domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE job_id=? AND is_deleted=0 ORDER BY created_at DESC, id DESC LIMIT 1`, jobID)
	return scanMessage(row.Scan)
}

// CountUnread counts unread messages addressed to a user on a job.
func (r Repo) CountUnread(ctx context.Context, jobID, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE job_id=? AND receiver_id=? AND is_read=0 AND is_deleted=0`, jobID, userID).Scan(&n)
	return n, err
}

// ListAllocatedJobsForUser returns jobs where the user is either the poster
// with an allocation or the allocated freelancer, newest allocation first.
func (r Repo) ListAllocatedJobsForUser(ctx context.Context, userID string) ([]domain.Job, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE allocated_to IS NOT NULL AND (posted_by=? OR allocated_to=?) ORDER BY allocated_at DESC, id DESC`, userID, userID)
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
