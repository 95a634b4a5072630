package models

import (
	"encoding/json"
	"time"
)

// SubmissionAction is the kind of change recorded in a submission log.
type SubmissionAction string

const (
	SubmissionActionCreate SubmissionAction = "create"
	SubmissionActionUpdate SubmissionAction = "update"
	SubmissionActionDelete SubmissionAction = "delete"
)

// SubmissionLog records a back-office change for later review.
type SubmissionLog struct {
	LogID         string           `db:"log_id" json:"logId"`
	AdminUsername string           `db:"admin_username" json:"adminUsername"`
	StudentID     *int             `db:"student_id" json:"studentId"`
	Entity        string           `db:"entity" json:"entity"`
	EntityID      string           `db:"entity_id" json:"entityId"`
	Action        SubmissionAction `db:"action" json:"action"`
	Reason        *string          `db:"reason" json:"reason"`
	ChangesJSON   json.RawMessage  `db:"changes_json" json:"changesJson"`
	TS            time.Time        `db:"ts" json:"ts"`
}

// SubmissionLogFilter narrows submission log listings. From and To are inclusive instants.
type SubmissionLogFilter struct {
	AdminUsername string
	StudentID     *int
	Entity        string
	EntityID      string
	Action        SubmissionAction
	From          *time.Time
	To            *time.Time
	Page          int
	PageSize      int
}
