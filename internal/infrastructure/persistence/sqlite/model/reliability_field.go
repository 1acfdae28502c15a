package model

type ReliabilityField struct {
	Model      string  `gorm:"column:model;type:text;primaryKey;index:idx_reliability_fields_model_field,priority:1"`
	ForeignKey string  `gorm:"column:foreign_key;type:text;primaryKey"`
	Field      string  `gorm:"column:field;type:text;primaryKey;index:idx_reliability_fields_model_field,priority:2"`
	Score      float64 `gorm:"column:score;type:numeric(3,2);not null;default:0"`
	Weight     float64 `gorm:"column:weight;type:numeric(4,3);not null;default:0"`
	MaxScore   float64 `gorm:"column:max_score;type:numeric(3,2);not null;default:0"`
	Notes      *string `gorm:"column:notes;type:text"`
	CreatedAt  string  `gorm:"column:created_at;type:text;not null"`
	ModifiedAt string  `gorm:"column:modified_at;type:text;not null"`
}

func (ReliabilityField) TableName() string {
	return "reliability_fields"
}
