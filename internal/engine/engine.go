package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"gigline/internal/config"
	"gigline/internal/domain"
	"gigline/internal/engine/gateway"
	"gigline/internal/events"
	"gigline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Gateway gateway.PaymentGateway
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, gw gateway.PaymentGateway) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Gateway: gw,
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Actor is the authenticated principal an operation runs as.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// JobCreateOptions are parameters for posting a job.
type JobCreateOptions struct {
	Title       string
	Company     string
	Location    string
	Description string
	Budget      *int64
	// Deadline is an explicit RFC3339 bidding deadline. When empty the
	// window is derived from DurationHours.
	Deadline      string
	DurationHours int
}

func (e Engine) resolveDeadline(deadline string, durationHours int) (string, error) {
	now := e.now().UTC()
	if deadline != "" {
		t, err := time.Parse(time.RFC3339, deadline)
		if err != nil {
			return "", validationf("bidding_deadline must be RFC3339")
		}
		if !t.After(now) {
			return "", validationf("bidding_deadline must be in the future")
		}
		return t.UTC().Format(time.RFC3339), nil
	}
	hours := durationHours
	if hours == 0 {
		hours = e.Config.Bidding.DefaultWindowHours
	}
	if hours < config.MinBiddingWindowHours || hours > e.Config.Bidding.MaxWindowHours {
		return "", validationf("bidding duration out of range")
	}
	return now.Add(time.Duration(hours) * time.Hour).Format(time.RFC3339), nil
}

func (e Engine) CreateJob(ctx context.Context, actor Actor, opts JobCreateOptions) (domain.Job, error) {
	if actor.Role != domain.RoleEmployer && !actor.IsAdmin() {
		return domain.Job{}, forbidden("only employers can post jobs")
	}
	if opts.Title == "" || opts.Company == "" || opts.Location == "" || opts.Description == "" {
		return domain.Job{}, validationf("title, company, location and description are required")
	}
	if opts.Budget != nil && *opts.Budget < 0 {
		return domain.Job{}, validationf("budget must be non-negative")
	}
	deadline, err := e.resolveDeadline(opts.Deadline, opts.DurationHours)
	if err != nil {
		return domain.Job{}, err
	}
	start, _ := domain.LevelByValue(0)
	j := domain.Job{
		ID:              uuid.NewString(),
		Title:           opts.Title,
		Company:         opts.Company,
		Location:        opts.Location,
		Description:     opts.Description,
		Budget:          opts.Budget,
		Status:          domain.JobOpen,
		PostedBy:        actor.ID,
		BiddingDeadline: deadline,
		ProjectStatus:   start.Label,
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJobTx(ctx, tx, j); err != nil {
		return domain.Job{}, err
	}
	if err := e.Events.Append(ctx, tx, "job.created", j.ID, "job", j.ID, actor.ID, events.EventPayload{
		"title":    j.Title,
		"deadline": j.BiddingDeadline,
	}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

func (e Engine) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return e.Repo.GetJob(ctx, id)
}

// JobListOptions filter ListJobs. Visibility is decided by the actor's role,
// not by the caller-supplied filters.
type JobListOptions struct {
	Status          string
	PostedBy        string
	AllocatedTo     string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (e Engine) ListJobs(ctx context.Context, actor Actor, opts JobListOptions) ([]domain.Job, error) {
	f := repo.JobFilters{
		Status:          opts.Status,
		PostedBy:        opts.PostedBy,
		AllocatedTo:     opts.AllocatedTo,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}
	// Non-employer callers only see jobs still open for bidding. This is a
	// visibility policy, not a deletion.
	if actor.Role != domain.RoleEmployer && !actor.IsAdmin() {
		f.OpenOnly = true
		f.Now = e.now().UTC().Format(time.RFC3339)
	}
	return e.Repo.ListJobs(ctx, f)
}

// JobUpdateOptions carry the employer-editable patch. Nil fields are left
// unchanged.
type JobUpdateOptions struct {
	ID            string
	Title         *string
	Company       *string
	Location      *string
	Description   *string
	Budget        *int64
	Deadline      *string
	DurationHours *int
	// Cancel closes the job without allocation.
	Cancel bool
}

func (e Engine) UpdateJob(ctx context.Context, actor Actor, opts JobUpdateOptions) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, opts.ID)
	if err != nil {
		return domain.Job{}, err
	}
	if actor.ID != j.PostedBy && !actor.IsAdmin() {
		return domain.Job{}, forbidden("only the posting employer can update this job")
	}
	if j.Status == domain.JobClosed || j.Status == domain.JobCancelled {
		return domain.Job{}, conflict("job is " + j.Status + " and can no longer be updated")
	}
	if opts.Title != nil {
		j.Title = *opts.Title
	}
	if opts.Company != nil {
		j.Company = *opts.Company
	}
	if opts.Location != nil {
		j.Location = *opts.Location
	}
	if opts.Description != nil {
		j.Description = *opts.Description
	}
	if j.Title == "" || j.Company == "" || j.Location == "" || j.Description == "" {
		return domain.Job{}, validationf("title, company, location and description are required")
	}
	if opts.Budget != nil {
		if *opts.Budget < 0 {
			return domain.Job{}, validationf("budget must be non-negative")
		}
		j.Budget = opts.Budget
	}
	if opts.Deadline != nil || opts.DurationHours != nil {
		deadline := ""
		hours := 0
		if opts.Deadline != nil {
			deadline = *opts.Deadline
		}
		if opts.DurationHours != nil {
			hours = *opts.DurationHours
		}
		resolved, err := e.resolveDeadline(deadline, hours)
		if err != nil {
			return domain.Job{}, err
		}
		j.BiddingDeadline = resolved
	}
	evtType := "job.updated"
	if opts.Cancel {
		j.Status = domain.JobCancelled
		evtType = "job.cancelled"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateJobPostingTx(ctx, tx, j); err != nil {
		return domain.Job{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, j.ID, "job", j.ID, actor.ID, nil); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

func (e Engine) DeleteJob(ctx context.Context, actor Actor, id string) error {
	j, err := e.Repo.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if actor.ID != j.PostedBy && !actor.IsAdmin() {
		return forbidden("only the posting employer can delete this job")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteJobTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "job.deleted", id, "job", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
