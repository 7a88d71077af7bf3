package types

import (
	"encoding/json"
	"fmt"
)

// Kind of a progress event, used verbatim as the event name on the stream
type EventKind string

const (
	EventInfo        EventKind = "info"
	EventUploadStart EventKind = "upload_start"
	EventUploadDone  EventKind = "upload_done"
	EventUploadError EventKind = "upload_error"
	EventFinished    EventKind = "finished"
	// Terminal event, always the last one for a submission
	EventClosed EventKind = "closed"
)

func (k EventKind) Terminal() bool {
	return k == EventClosed
}

type (
	UploadStart struct {
		File  string `json:"file"`
		Index int    `json:"index"`
		Total int    `json:"total"`
	}

	UploadDone struct {
		File   string `json:"file"`
		Status int    `json:"status"`
	}

	UploadError struct {
		File     string `json:"file"`
		Status   int    `json:"status"`
		Response string `json:"response"`
	}

	// One ordered notification about a submission. Data is a string for info, finished and closed.
	ProgressEvent struct {
		Kind EventKind
		Data any
	}
)

func InfoEvent(msg string) ProgressEvent {
	return ProgressEvent{Kind: EventInfo, Data: msg}
}

func UploadStartEvent(file string, index, total int) ProgressEvent {
	return ProgressEvent{Kind: EventUploadStart, Data: UploadStart{File: file, Index: index, Total: total}}
}

func UploadDoneEvent(file string, status int) ProgressEvent {
	return ProgressEvent{Kind: EventUploadDone, Data: UploadDone{File: file, Status: status}}
}

func UploadErrorEvent(file string, status int, response string) ProgressEvent {
	return ProgressEvent{
		Kind: EventUploadError,
		Data: UploadError{File: file, Status: status, Response: response},
	}
}

func FinishedEvent(msg string) ProgressEvent {
	return ProgressEvent{Kind: EventFinished, Data: msg}
}

func ClosedEvent(msg string) ProgressEvent {
	return ProgressEvent{Kind: EventClosed, Data: msg}
}

// Server-sent events frame: `event: <kind>` followed by the JSON encoded payload
func (e ProgressEvent) MarshalSSE() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", e.Kind, err)
	}

	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Kind, data), nil
}
