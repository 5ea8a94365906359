package gormstore

import (
	"time"

	"github.com/feitianbubu/vidgate/model"
)

// taskEntity is the GORM row for a gateway task.
type taskEntity struct {
	LocalTaskID    string    `gorm:"column:local_task_id;primaryKey;size:64"`
	ProviderTaskID string    `gorm:"column:provider_task_id;size:128;index"`
	Provider       string    `gorm:"column:provider;size:32;not null"`
	ModelFamily    string    `gorm:"column:model_family;size:64;not null"`
	Modality       string    `gorm:"column:modality;size:32;not null"`
	Status         string    `gorm:"column:status;size:16;not null;index"`
	ResultVideoURL string    `gorm:"column:result_video_url"`
	ResultCoverURL string    `gorm:"column:result_cover_url"`
	ErrorDetail    string    `gorm:"column:error_detail"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName returns the table name for taskEntity.
func (taskEntity) TableName() string {
	return "video_generation_tasks"
}

// toDomain converts to the domain task.
func (e *taskEntity) toDomain() *model.Task {
	return &model.Task{
		LocalTaskID:    e.LocalTaskID,
		ProviderTaskID: e.ProviderTaskID,
		Provider:       model.Provider(e.Provider),
		ModelFamily:    e.ModelFamily,
		Modality:       model.Modality(e.Modality),
		Status:         model.Status(e.Status),
		ResultVideoURL: e.ResultVideoURL,
		ResultCoverURL: e.ResultCoverURL,
		ErrorDetail:    e.ErrorDetail,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromDomain(t *model.Task) *taskEntity {
	return &taskEntity{
		LocalTaskID:    t.LocalTaskID,
		ProviderTaskID: t.ProviderTaskID,
		Provider:       string(t.Provider),
		ModelFamily:    t.ModelFamily,
		Modality:       string(t.Modality),
		Status:         string(t.Status),
		ResultVideoURL: t.ResultVideoURL,
		ResultCoverURL: t.ResultCoverURL,
		ErrorDetail:    t.ErrorDetail,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// columns returns the mutable columns of e keyed by column name. Zero values
// are included so Update can clear a field.
func (e *taskEntity) columns() map[string]any {
	return map[string]any{
		"provider_task_id": e.ProviderTaskID,
		"provider":         e.Provider,
		"model_family":     e.ModelFamily,
		"modality":         e.Modality,
		"status":           e.Status,
		"result_video_url": e.ResultVideoURL,
		"result_cover_url": e.ResultCoverURL,
		"error_detail":     e.ErrorDetail,
		"updated_at":       e.UpdatedAt,
	}
}
