package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

type Context struct {
	Team         string
	SubmissionID *string
}

func newMessage(c Context, evtType EventType, disposition Disposition) Message {
	return Message{
		SubmissionID:  c.SubmissionID,
		Team:          c.Team,
		LogContext:    logContext,
		SchemaVersion: schemaVersion,
		Disposition:   disposition,
		Type:          evtType,
		Timestamp:     types.UnixMilli(time.Now().UTC().UnixMilli()),
	}
}

func emit(evtType EventType, event any) {
	evtStr, err := json.Marshal(event)
	if err != nil {
		logger.Logger.Error("could not serialize audit event", "type", evtType, "error", err)
		return
	}

	fmt.Println(string(evtStr))
}

func LogSubmissionAccepted(c Context, filename string, archiveSize int64, fileCount int) {
	event := SubmissionAccepted{Message: newMessage(c, EvtSubmissionAccepted, DispositionNeutral)}

	event.Event.Filename = filename
	event.Event.ArchiveSize = archiveSize
	event.Event.FileCount = fileCount

	emit(EvtSubmissionAccepted, event)
}

func LogSubmissionFinished(c Context, total, uploaded, failed int) {
	disposition := DispositionGood
	if failed > 0 {
		disposition = DispositionBad
	}
	event := SubmissionFinished{Message: newMessage(c, EvtSubmissionFinished, disposition)}

	event.Event.Total = total
	event.Event.Uploaded = uploaded
	event.Event.Failed = failed

	emit(EvtSubmissionFinished, event)
}

func LogFileArchived(
	c Context,
	bucketName string,
	objectName string,
	entity FileArchivedEntity,
	entityID string,
) {
	event := FileArchived{Message: newMessage(c, EvtFileArchived, DispositionNeutral)}

	event.Event.BucketName = bucketName
	event.Event.ObjectName = objectName
	event.Event.Entity = entity
	event.Event.EntityID = entityID

	emit(EvtFileArchived, event)
}

func LogLockReset(c Context, actor string) {
	event := LockReset{Message: newMessage(c, EvtLockReset, DispositionNeutral)}

	event.Event.Actor = actor

	emit(EvtLockReset, event)
}
