package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gigline/internal/domain"
	"gigline/internal/events"
	"gigline/internal/repo"
)

func (e Engine) requireLedgerWrite(j domain.Job, actor Actor) error {
	if actor.ID == j.PostedBy || actor.IsAdmin() {
		return nil
	}
	return forbidden("only the posting employer can manage payments for this job")
}

func (e Engine) requireLedgerRead(j domain.Job, actor Actor) error {
	if actor.ID == j.PostedBy || actor.IsAdmin() {
		return nil
	}
	if j.AllocatedTo != nil && *j.AllocatedTo == actor.ID {
		return nil
	}
	return forbidden("not a participant of this job")
}

// projectTotal is the amount milestone percentages apply to: the job budget
// when set, otherwise the accepted bid amount, otherwise zero. Read once when
// a milestone is created; later changes do not recompute existing amounts.
func (e Engine) projectTotal(ctx context.Context, j domain.Job) (int64, error) {
	if j.Budget != nil {
		return *j.Budget, nil
	}
	if j.AcceptedBidID != nil {
		b, err := e.Repo.GetBid(ctx, *j.AcceptedBidID)
		if err != nil {
			return 0, err
		}
		return b.Amount, nil
	}
	return 0, nil
}

// InitializeMilestones eagerly creates one milestone per payable level.
func (e Engine) InitializeMilestones(ctx context.Context, actor Actor, jobID string) ([]domain.Milestone, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.requireLedgerWrite(j, actor); err != nil {
		return nil, err
	}
	n, err := e.Repo.CountMilestones(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, conflict("milestones already initialized for this job")
	}
	total, err := e.projectTotal(ctx, j)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	var created []domain.Milestone
	for _, level := range domain.PayableLevels() {
		m := domain.Milestone{
			ID:            uuid.NewString(),
			JobID:         j.ID,
			Level:         level.Value,
			Status:        level.Label,
			Percentage:    level.Percentage,
			Amount:        domain.MilestoneAmount(total, level.Percentage),
			PaymentStatus: domain.MilestonePending,
			CreatedAt:     now,
		}
		if err := e.Repo.InsertMilestoneTx(ctx, tx, m); err != nil {
			return nil, err
		}
		created = append(created, m)
	}
	if err := e.Events.Append(ctx, tx, "milestones.initialized", j.ID, "job", j.ID, actor.ID, events.EventPayload{
		"count": len(created),
		"total": total,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (e Engine) ListMilestones(ctx context.Context, actor Actor, jobID string) ([]domain.Milestone, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.requireLedgerRead(j, actor); err != nil {
		return nil, err
	}
	return e.Repo.ListMilestones(ctx, jobID)
}

// Payable describes what is due at the job's current progress level.
type Payable struct {
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Percentage    int    `json:"percentage"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
	PaymentExists bool   `json:"payment_exists"`
}

// PayableAmount reports the milestone due at the current progress level and
// whether a payment already exists for it.
func (e Engine) PayableAmount(ctx context.Context, actor Actor, jobID string) (Payable, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return Payable{}, err
	}
	if err := e.requireLedgerRead(j, actor); err != nil {
		return Payable{}, err
	}
	if j.ProgressLevel == 0 {
		return Payable{}, conflict("project has not reached a payable level yet")
	}
	level, ok := domain.LevelByValue(j.ProgressLevel)
	if !ok {
		return Payable{}, fmt.Errorf("job %s has off-ladder progress level %d", j.ID, j.ProgressLevel)
	}
	p := Payable{
		Level:      level.Value,
		Status:     level.Label,
		Percentage: level.Percentage,
		Currency:   e.Config.Payments.Currency,
	}
	m, err := e.Repo.GetMilestoneByLevel(ctx, jobID, level.Value)
	switch {
	case err == nil:
		// Amount was fixed when the milestone was created.
		p.AmountDue = m.Amount
		if _, perr := e.Repo.GetPaymentByMilestone(ctx, m.ID); perr == nil {
			p.PaymentExists = true
		} else if !errors.Is(perr, repo.ErrNotFound) {
			return Payable{}, perr
		}
	case errors.Is(err, repo.ErrNotFound):
		total, terr := e.projectTotal(ctx, j)
		if terr != nil {
			return Payable{}, terr
		}
		p.AmountDue = domain.MilestoneAmount(total, level.Percentage)
	default:
		return Payable{}, err
	}
	return p, nil
}

// CreatePaymentOrder opens a gateway order for the milestone at the given
// level, lazily creating the milestone when it does not exist yet. At most
// one payment per milestone; a second call conflicts.
func (e Engine) CreatePaymentOrder(ctx context.Context, actor Actor, jobID string, level int) (domain.Payment, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := e.requireLedgerWrite(j, actor); err != nil {
		return domain.Payment{}, err
	}
	if j.AllocatedTo == nil {
		return domain.Payment{}, conflict("job has no allocated freelancer")
	}
	l, ok := domain.LevelByValue(level)
	if !ok || level == 0 {
		return domain.Payment{}, validationf("level is not payable")
	}
	if level > j.ProgressLevel {
		return domain.Payment{}, conflict("project has not reached this level yet")
	}
	now := e.now().UTC().Format(time.RFC3339)

	m, err := e.Repo.GetMilestoneByLevel(ctx, jobID, level)
	newMilestone := false
	if errors.Is(err, repo.ErrNotFound) {
		total, terr := e.projectTotal(ctx, j)
		if terr != nil {
			return domain.Payment{}, terr
		}
		m = domain.Milestone{
			ID:            uuid.NewString(),
			JobID:         j.ID,
			Level:         l.Value,
			Status:        l.Label,
			Percentage:    l.Percentage,
			Amount:        domain.MilestoneAmount(total, l.Percentage),
			PaymentStatus: domain.MilestonePending,
			CreatedAt:     now,
		}
		newMilestone = true
	} else if err != nil {
		return domain.Payment{}, err
	}
	if !newMilestone {
		if _, err := e.Repo.GetPaymentByMilestone(ctx, m.ID); err == nil {
			return domain.Payment{}, conflict("payment already exists for this milestone")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Payment{}, err
		}
	}
	order, err := e.Gateway.CreateOrder(ctx, m.Amount, e.Config.Payments.Currency, j.ID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("create gateway order: %w", err)
	}
	p := domain.Payment{
		ID:             uuid.NewString(),
		JobID:          j.ID,
		MilestoneID:    m.ID,
		RecruiterID:    j.PostedBy,
		FreelancerID:   *j.AllocatedTo,
		Amount:         m.Amount,
		GatewayOrderID: order.OrderID,
		Status:         domain.PaymentCreated,
		CreatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()
	if newMilestone {
		// a concurrent order for the same level may have created the
		// milestone since the read above
		switch existing, merr := e.Repo.GetMilestoneByLevelTx(ctx, tx, j.ID, l.Value); {
		case merr == nil:
			m = existing
			p.MilestoneID = m.ID
			p.Amount = m.Amount
			newMilestone = false
		case errors.Is(merr, repo.ErrNotFound):
			if err := e.Repo.InsertMilestoneTx(ctx, tx, m); err != nil {
				return domain.Payment{}, err
			}
		default:
			return domain.Payment{}, merr
		}
	}
	if !newMilestone {
		if _, err := e.Repo.GetPaymentByMilestoneTx(ctx, tx, m.ID); err == nil {
			// Re-checked inside the transaction; the UNIQUE(milestone_id)
			// index backs this up either way.
			return domain.Payment{}, conflict("payment already exists for this milestone")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Payment{}, err
		}
	}
	if err := e.Repo.InsertPaymentTx(ctx, tx, p); err != nil {
		return domain.Payment{}, err
	}
	if err := e.Events.Append(ctx, tx, "payment.order.created", j.ID, "payment", p.ID, actor.ID, events.EventPayload{
		"level":    level,
		"amount":   p.Amount,
		"order_id": p.GatewayOrderID,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

// ConfirmPayment settles a CREATED payment against the gateway, moving it to
// SUCCESS (and the milestone to PAID) or FAILED.
func (e Engine) ConfirmPayment(ctx context.Context, actor Actor, jobID, orderID string) (domain.Payment, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := e.requireLedgerWrite(j, actor); err != nil {
		return domain.Payment{}, err
	}
	p, err := e.Repo.GetPaymentByOrderID(ctx, jobID, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status != domain.PaymentCreated {
		return domain.Payment{}, conflict("payment is already settled")
	}
	ok, err := e.Gateway.ConfirmOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("confirm gateway order: %w", err)
	}
	status := domain.PaymentFailed
	if ok {
		status = domain.PaymentSuccess
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()
	settled, err := e.Repo.SettlePaymentTx(ctx, tx, p.ID, status)
	if err != nil {
		return domain.Payment{}, err
	}
	if !settled {
		return domain.Payment{}, conflict("payment is already settled")
	}
	if ok {
		if err := e.Repo.SetMilestonePaymentStatusTx(ctx, tx, p.MilestoneID, domain.MilestonePaid); err != nil {
			return domain.Payment{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "payment.settled", j.ID, "payment", p.ID, actor.ID, events.EventPayload{
		"status": status,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	p.Status = status
	return p, nil
}

func (e Engine) ListProjectPayments(ctx context.Context, actor Actor, jobID string) ([]domain.Payment, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.requireLedgerRead(j, actor); err != nil {
		return nil, err
	}
	return e.Repo.ListPayments(ctx, jobID)
}
