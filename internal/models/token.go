package models

import "time"

type EvaluationToken struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	Token         string     `json:"token" gorm:"not null;uniqueIndex;size:64"`
	EvaluationID  string     `json:"evaluation_id" gorm:"not null;size:36;index:idx_token_evaluation_student"`
	StudentID     string     `json:"student_id" gorm:"not null;size:255;index:idx_token_evaluation_student"`
	AttemptNumber int        `json:"attempt_number" gorm:"not null"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at" gorm:"not null;index"`
	IsUsed        bool       `json:"is_used" gorm:"not null;default:false"`
	UsedAt        *time.Time `json:"used_at"`
	IPAddress     *string    `json:"ip_address" gorm:"size:45"`
	UserAgent     *string    `json:"user_agent" gorm:"type:text"`
}

func (EvaluationToken) TableName() string {
	return "evaluation_tokens"
}

// ClientFingerprint is the optional client identity stamped on tokens and attempts.
type ClientFingerprint struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

func (f ClientFingerprint) IPPtr() *string {
	if f.IPAddress == "" {
		return nil
	}
	v := f.IPAddress
	return &v
}

func (f ClientFingerprint) UserAgentPtr() *string {
	if f.UserAgent == "" {
		return nil
	}
	v := f.UserAgent
	return &v
}
