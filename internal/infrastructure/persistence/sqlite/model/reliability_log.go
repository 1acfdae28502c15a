package model

type ReliabilityLog struct {
	ID                  string   `gorm:"column:id;type:text;primaryKey"`
	Model               string   `gorm:"column:model;type:text;not null;index:idx_reliability_logs_entity,priority:1"`
	ForeignKey          string   `gorm:"column:foreign_key;type:text;not null;index:idx_reliability_logs_entity,priority:2"`
	FromTotalScore      *float64 `gorm:"column:from_total_score;type:numeric(3,2)"`
	ToTotalScore        float64  `gorm:"column:to_total_score;type:numeric(3,2);not null"`
	FromFieldScoresJSON *string  `gorm:"column:from_field_scores_json;type:text"`
	ToFieldScoresJSON   string   `gorm:"column:to_field_scores_json;type:text;not null"`
	Source              string   `gorm:"column:source;type:text;not null;index"`
	ActorUserID         *string  `gorm:"column:actor_user_id;type:text;index"`
	ActorService        *string  `gorm:"column:actor_service;type:text"`
	Message             *string  `gorm:"column:message;type:text"`
	ChecksumSHA256      string   `gorm:"column:checksum_sha256;type:text;not null"`
	CreatedAt           string   `gorm:"column:created_at;type:text;not null;index"`
}

func (ReliabilityLog) TableName() string {
	return "reliability_logs"
}
