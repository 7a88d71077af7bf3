package types

type (
	// One archive upload by a team and its relay to the remote store
	Submission struct {
		ID    string
		Owner string
		// Exclusively owned by the upload worker once launched
		StagingRoot string
		// Slash separated paths relative to StagingRoot, in walk order
		Files []string
	}

	SubmissionStatusResponse struct {
		SubmissionID string `json:"submission_id"`
		Owner        string `json:"owner"`
		Total        int    `json:"total"`
		Current      int    `json:"current"`
		Finished     bool   `json:"finished"`
	}

	SubmissionAcceptedResponse struct {
		SubmissionID string `json:"submission_id"`
		StatusURL    string `json:"status_url"`
		EventsURL    string `json:"events_url"`
	}

	LockStatus struct {
		Team      string `json:"team"`
		Submitted bool   `json:"submitted"`
	}

	PingResponse struct {
		Status string `json:"status"`
	}
)
