package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Tasks interface {
	repository.Repository[*Task]
	ResourceStore

	FindTask(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Task, error)
	CreateTask(ctx context.Context, task *Task) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) (*Task, error)
	RemoveTask(ctx context.Context, id uuid.UUID) error
}

type tasks struct {
	repository.Repository[*Task]
	db  *bun.DB
	now Clock
}

var _ Tasks = (*tasks)(nil)

func NewTasksRepository(db *bun.DB) Tasks {
	repo := repository.NewRepository[*Task](db, repository.ModelHandlers[*Task]{
		NewRecord: func() *Task { return &Task{} },
		GetID: func(t *Task) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Task, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &tasks{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

// FindOwner returns the owner of the task. Unknown or malformed ids report found=false.
func (r *tasks) FindOwner(ctx context.Context, resourceID string) (uuid.UUID, bool, error) {
	id, err := uuid.Parse(resourceID)
	if err != nil {
		return uuid.Nil, false, nil
	}

	var owner uuid.UUID
	err = r.db.NewSelect().
		Model((*Task)(nil)).
		Column("owner_id").
		Where("id = ?", id).
		Limit(1).
		Scan(ctx, &owner)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}

	return owner, true, nil
}

func (r *tasks) FindTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	record := &Task{}
	err := r.db.NewSelect().
		Model(record).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *tasks) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Task, error) {
	records := make([]*Task, 0)
	err := r.db.NewSelect().
		Model(&records).
		Where("owner_id = ?", owner).
		Order("priority ASC", "created_at ASC").
		Scan(ctx)
	return records, err
}

func (r *tasks) CreateTask(ctx context.Context, task *Task) (*Task, error) {
	prepareTaskDefaults(task, r.now())
	return r.Repository.CreateTx(ctx, r.db, task)
}

func (r *tasks) UpdateTask(ctx context.Context, task *Task) (*Task, error) {
	res, err := r.db.NewUpdate().
		Model(task).
		Column("title", "description", "completed", "priority").
		Where("id = ?", task.ID).
		Exec(ctx)
	if err := affectedOne(res, err, ErrResourceNotFound); err != nil {
		return nil, err
	}
	return r.FindTask(ctx, task.ID)
}

func (r *tasks) RemoveTask(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Task)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, ErrResourceNotFound)
}

func prepareTaskDefaults(task *Task, now time.Time) {
	if task == nil {
		return
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Priority < PriorityHigh || task.Priority > PriorityLow {
		task.Priority = PriorityMedium
	}
	if task.CreatedAt == nil {
		task.CreatedAt = &now
	}
}
