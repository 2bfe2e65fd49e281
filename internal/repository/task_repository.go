package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/navid-fn/radar-history/internal/models"
)

var ErrNotFound = errors.New("record not found")

// TaskRecord is one row of the tasks table.
type TaskRecord struct {
	TaskID       string     `gorm:"column:task_id;primaryKey"`
	TaskType     string     `gorm:"column:task_type"`
	Status       string     `gorm:"column:status"`
	Total        int        `gorm:"column:total"`
	Completed    int        `gorm:"column:completed"`
	Failed       int        `gorm:"column:failed"`
	Current      string     `gorm:"column:current"`
	Percentage   int        `gorm:"column:percentage"`
	Params       string     `gorm:"column:params"`
	StartTime    *time.Time `gorm:"column:start_time"`
	EndTime      *time.Time `gorm:"column:end_time"`
	ErrorMessage string     `gorm:"column:error_message"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (TaskRecord) TableName() string { return "tasks" }

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Delete(ctx context.Context, id string) error
}

type gormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	rec, err := toRecord(task)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// Update writes the whole task, inserting it when missing.
func (r *gormTaskRepository) Update(ctx context.Context, task *models.Task) error {
	rec, err := toRecord(task)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (r *gormTaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	var rec TaskRecord
	err := r.db.WithContext(ctx).Where("task_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}

func (r *gormTaskRepository) List(ctx context.Context) ([]*models.Task, error) {
	var recs []TaskRecord
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	tasks := make([]*models.Task, 0, len(recs))
	for i := range recs {
		t, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *gormTaskRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("task_id = ?", id).Delete(&TaskRecord{}).Error
}

func toRecord(t *models.Task) (*TaskRecord, error) {
	params := []byte("{}")
	if t.Params != nil {
		var err error
		if params, err = json.Marshal(t.Params); err != nil {
			return nil, fmt.Errorf("encode params of %s: %w", t.ID, err)
		}
	}
	return &TaskRecord{
		TaskID:       t.ID,
		TaskType:     t.Type,
		Status:       string(t.Status),
		Total:        t.Progress.Total,
		Completed:    t.Progress.Completed,
		Failed:       t.Progress.Failed,
		Current:      t.Progress.Current,
		Percentage:   t.Progress.Percentage,
		Params:       string(params),
		StartTime:    utcPtr(t.StartTime),
		EndTime:      utcPtr(t.EndTime),
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}, nil
}

func fromRecord(rec *TaskRecord) (*models.Task, error) {
	params, err := models.DecodeParams(rec.TaskType, []byte(rec.Params))
	if err != nil {
		return nil, err
	}
	return &models.Task{
		ID:     rec.TaskID,
		Type:   rec.TaskType,
		Status: models.TaskStatus(rec.Status),
		Progress: models.Progress{
			Total:      rec.Total,
			Completed:  rec.Completed,
			Failed:     rec.Failed,
			Current:    rec.Current,
			Percentage: rec.Percentage,
		},
		Params:       params,
		StartTime:    utcPtr(rec.StartTime),
		EndTime:      utcPtr(rec.EndTime),
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
