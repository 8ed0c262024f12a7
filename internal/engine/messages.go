package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigline/internal/domain"
	"gigline/internal/events"
	"gigline/internal/repo"
)

const maxMessageLen = 4000

// messageCounterpart resolves who the other participant of an allocated job
// is from the sender's point of view.
func messageCounterpart(j domain.Job, senderID string) (string, error) {
	if j.AllocatedTo == nil {
		return "", conflict("messaging opens once the job is allocated")
	}
	switch senderID {
	case j.PostedBy:
		return *j.AllocatedTo, nil
	case *j.AllocatedTo:
		return j.PostedBy, nil
	default:
		return "", forbidden("not a participant of this job")
	}
}

// SendMessage appends a message to an allocated job's thread. Only the
// posting employer and the allocated freelancer can write; the receiver is
// always the counterpart.
func (e Engine) SendMessage(ctx context.Context, actor Actor, jobID, body string) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Message{}, validationf("message body is required")
	}
	if len(body) > maxMessageLen {
		return domain.Message{}, validationf("message body exceeds %d characters", maxMessageLen)
	}
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.Message{}, err
	}
	receiver, err := messageCounterpart(j, actor.ID)
	if err != nil {
		return domain.Message{}, err
	}
	m := domain.Message{
		ID:         uuid.NewString(),
		JobID:      j.ID,
		SenderID:   actor.ID,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMessageTx(ctx, tx, m); err != nil {
		return domain.Message{}, err
	}
	if err := e.Events.Append(ctx, tx, "message.sent", j.ID, "message", m.ID, actor.ID, events.EventPayload{
		"receiver_id": receiver,
	}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// JobMessages returns a job's thread oldest first and marks messages
// addressed to the reader as read.
func (e Engine) JobMessages(ctx context.Context, actor Actor, jobID string) ([]domain.Message, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if _, err := messageCounterpart(j, actor.ID); err != nil {
			return nil, err
		}
	}
	msgs, err := e.Repo.ListJobMessages(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if _, err := e.Repo.MarkMessagesRead(ctx, jobID, actor.ID); err != nil {
			return nil, err
		}
		for i := range msgs {
			if msgs[i].ReceiverID == actor.ID {
				msgs[i].IsRead = true
			}
		}
	}
	return msgs, nil
}

// Conversations lists the user's allocated jobs with the latest message and
// unread count per thread. Admins may inspect any user's inbox.
func (e Engine) Conversations(ctx context.Context, actor Actor, userID string) ([]domain.Conversation, error) {
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.IsAdmin() {
		return nil, forbidden("cannot read another user's conversations")
	}
	jobs, err := e.Repo.ListAllocatedJobsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	convs := make([]domain.Conversation, 0, len(jobs))
	for _, j := range jobs {
		counterpart := j.PostedBy
		if j.PostedBy == userID && j.AllocatedTo != nil {
			counterpart = *j.AllocatedTo
		}
		c := domain.Conversation{
			JobID:         j.ID,
			JobTitle:      j.Title,
			CounterpartID: counterpart,
			ProjectStatus: j.ProjectStatus,
		}
		latest, err := e.Repo.LatestJobMessage(ctx, j.ID)
		switch {
		case err == nil:
			c.LatestMessage = &latest
		case errors.Is(err, repo.ErrNotFound):
			// Thread may be empty right after allocation.
		default:
			return nil, err
		}
		unread, err := e.Repo.CountUnread(ctx, j.ID, userID)
		if err != nil {
			return nil, err
		}
		c.UnreadCount = unread
		convs = append(convs, c)
	}
	return convs, nil
}
