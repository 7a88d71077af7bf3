package audit

import (
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

var schemaVersion = "0.1.0"
var logContext = "audit"

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type FileArchivedEntity string

const (
	EntitySubmissionBundle FileArchivedEntity = "submission_bundle"
)

type EventType string

const (
	EvtSubmissionAccepted EventType = "submission_accepted"
	EvtSubmissionFinished EventType = "submission_finished"
	EvtFileArchived       EventType = "file_archived"
	EvtLockReset          EventType = "lock_reset"
)

type Message struct {
	SubmissionID  *string     `json:"submission_id"`
	Team          string      `json:"team"        validate:"required"`
	LogContext    string      `json:"log_context" validate:"required"`
	SchemaVersion string      `json:"version"     validate:"required"`
	Disposition   Disposition `json:"disposition" validate:"required"`
	Type          EventType   `json:"event_type"  validate:"required"`

	Timestamp types.UnixMilli `json:"timestamp" validate:"required"`
}

type SubmissionAcceptedEvent struct {
	FileCount   int    `json:"file_count"`
	ArchiveSize int64  `json:"archive_size"`
	Filename    string `json:"filename"`
}

type SubmissionAccepted struct {
	Event SubmissionAcceptedEvent `json:"event" validate:"required"`
	Message
}

type SubmissionFinishedEvent struct {
	Total    int `json:"total"`
	Uploaded int `json:"uploaded"`
	Failed   int `json:"failed"`
}

type SubmissionFinished struct {
	Event SubmissionFinishedEvent `json:"event" validate:"required"`
	Message
}

type FileArchivedEvent struct {
	BucketName string             `json:"bucket_name" validate:"required"`
	ObjectName string             `json:"object_name" validate:"required"`
	Entity     FileArchivedEntity `json:"entity"      validate:"required"`
	EntityID   string             `json:"entity_id"   validate:"required"` // submission id
}

type FileArchived struct {
	Event FileArchivedEvent `json:"event" validate:"required"`
	Message
}

type LockResetEvent struct {
	// team that requested the reset
	Actor string `json:"actor" validate:"required"`
}

type LockReset struct {
	Event LockResetEvent `json:"event" validate:"required"`
	Message
}
