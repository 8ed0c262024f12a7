package engine

import (
	"context"

	"gigline/internal/domain"
	"gigline/internal/events"
)

// UpdateProgress advances a job's progress level. Only the allocated
// freelancer may advance, and only strictly forward; there is no operation
// that decreases or resets progress.
func (e Engine) UpdateProgress(ctx context.Context, actor Actor, jobID string, newLevel int) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if j.AllocatedTo == nil {
		return domain.Job{}, forbidden("no freelancer is allocated to this job yet")
	}
	if *j.AllocatedTo != actor.ID {
		return domain.Job{}, forbidden("job is allocated to a different freelancer")
	}
	level, ok := domain.LevelByValue(newLevel)
	if !ok {
		return domain.Job{}, validationf("unknown progress level")
	}
	if j.ProgressLevel >= domain.TerminalLevel() {
		return domain.Job{}, conflict("project is already completed")
	}
	if newLevel <= j.ProgressLevel {
		return domain.Job{}, conflict("cannot move progress backwards")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	moved, err := e.Repo.AdvanceJobProgressTx(ctx, tx, j.ID, j.ProgressLevel, level)
	if err != nil {
		return domain.Job{}, err
	}
	if !moved {
		return domain.Job{}, conflict("progress was updated concurrently; reload and retry")
	}
	if err := e.Events.Append(ctx, tx, "job.progress", j.ID, "job", j.ID, actor.ID, events.EventPayload{
		"level":      level.Value,
		"status":     level.Label,
		"percentage": level.Percentage,
	}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	j.ProgressLevel = level.Value
	j.CompletionPercentage = level.Percentage
	j.ProjectStatus = level.Label
	return j, nil
}
