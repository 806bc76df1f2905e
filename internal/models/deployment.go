package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ModelType string

const (
	ModelTypeChat        ModelType = "openai-chat"
	ModelTypeCompletions ModelType = "openai-completions"
	ModelTypeEmbeddings  ModelType = "openai-embeddings"
	ModelTypeImage       ModelType = "openai-dalle3"
)

func (t ModelType) Valid() bool {
	switch t {
	case ModelTypeChat, ModelTypeCompletions, ModelTypeEmbeddings, ModelTypeImage:
		return true
	}
	return false
}

type ModelDeployment struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	OwnerID        uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	DeploymentName string    `gorm:"type:varchar(64);not null;index" json:"deployment_name"`
	ResourceName   string    `gorm:"type:varchar(64);not null" json:"-"`
	// EndpointURL overrides the URL derived from ResourceName when set.
	EndpointURL string    `gorm:"type:varchar(255)" json:"-"`
	EndpointKey string    `gorm:"type:varchar(255);not null" json:"-"`
	ModelType   ModelType `gorm:"type:varchar(32);not null" json:"model_type"`
	Active      bool      `gorm:"not null;default:false" json:"-"`
}

func (ModelDeployment) TableName() string {
	return "model_deployments"
}

func (d *ModelDeployment) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
