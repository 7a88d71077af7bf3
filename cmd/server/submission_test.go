package main

import (
	"bytes"
	"crypto/rand"
	"net/http"
	"strings"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func (s *ServerTestSuite) Test_Health() {
	res := s.doRequest(http.MethodGet, "/health/", nil, nil, "")
	s.Equal(http.StatusOK, res.code)
}

func (s *ServerTestSuite) Test_Ping() {
	tests := map[string]struct {
		auth           *clientAuth
		expectedStatus int
	}{
		"Valid":       {auth: teamX, expectedStatus: http.StatusOK},
		"WrongPIN":    {auth: &clientAuth{"teamX", "nope"}, expectedStatus: http.StatusUnauthorized},
		"UnknownTeam": {auth: &clientAuth{"nobody", teamPIN}, expectedStatus: http.StatusUnauthorized},
		"NoAuth":      {expectedStatus: http.StatusUnauthorized},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			res := s.doRequest(http.MethodGet, "/v1/ping/", tt.auth, nil, "")
			s.Equal(tt.expectedStatus, res.code, res.body)
		})
	}
}

func (s *ServerTestSuite) Test_SubmissionLifecycle() {
	t := s.T()
	archive := zipArchive(t, map[string]string{
		"a.txt":     "alpha",
		"dir/b.txt": "bravo",
	})

	res := s.submit(teamX, archive)
	s.Require().Equal(http.StatusSeeOther, res.code, res.body)
	s.Require().True(strings.HasPrefix(res.location, "/v1/submission/"), res.location)

	status := s.doRequest(http.MethodGet, res.location, teamX, nil, "")
	s.Equal(http.StatusOK, status.code)
	assert.Contains(t, status.body, `"owner":"teamX"`)

	other := s.doRequest(http.MethodGet, res.location+"events/", teamY, nil, "")
	s.Equal(http.StatusNotFound, other.code, "other teams can't watch")

	stream := s.doRequest(http.MethodGet, res.location+"events/", teamX, nil, "")
	s.Require().Equal(http.StatusOK, stream.code)
	s.Equal([]string{
		"info",
		"upload_start", "upload_done",
		"upload_start", "upload_done",
		"finished",
		"closed",
	}, eventKinds(stream.body))
	assert.Contains(t, stream.body, `data: "2 files to upload."`)
	assert.Contains(t, stream.body, `"file":"submissions/teamX/dir/b.txt","status":201`)

	s.mu.Lock()
	s.Equal(map[string]string{
		"submissions/teamX/a.txt":     "alpha",
		"submissions/teamX/dir/b.txt": "bravo",
	}, s.uploaded)
	s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, "/tmp/submissionrelay")
	s.Require().NoError(err)
	s.Empty(entries, "staging removed before closed")

	gone := s.doRequest(http.MethodGet, res.location, teamX, nil, "")
	s.Equal(http.StatusNotFound, gone.code, "entry removed after the stream ended")

	again := s.submit(teamX, archive)
	s.Equal(http.StatusConflict, again.code)

	locks := s.doRequest(http.MethodGet, "/admin/lock/", adminAuth, nil, "")
	s.Require().Equal(http.StatusOK, locks.code)
	assert.Contains(t, locks.body, `{"team":"teamX","submitted":true}`)
	assert.Contains(t, locks.body, `{"team":"teamY","submitted":false}`)

	reset := s.doRequest(http.MethodPost, "/admin/reset/teamX/", adminAuth, nil, "")
	s.Require().Equal(http.StatusOK, reset.code)

	afterReset := s.submit(teamX, archive)
	s.Equal(http.StatusSeeOther, afterReset.code)

	// a reset allows exactly one more submission
	third := s.submit(teamX, archive)
	s.Equal(http.StatusConflict, third.code)
}

func (s *ServerTestSuite) Test_SubmissionRejected() {
	t := s.T()

	s.Run("CorruptArchive", func() {
		res := s.submit(teamY, []byte("this is not an archive"))
		s.Equal(http.StatusBadRequest, res.code)
	})

	s.Run("TooLarge", func() {
		big := make([]byte, 128*1024)
		_, err := rand.Read(big)
		s.Require().NoError(err)

		res := s.submit(teamY, big)
		s.Equal(http.StatusRequestEntityTooLarge, res.code)
	})

	s.Run("MissingFile", func() {
		res := s.doRequest(
			http.MethodPost,
			"/v1/submission/",
			teamY,
			bytes.NewBufferString("file=nope"),
			"application/x-www-form-urlencoded",
		)
		s.Equal(http.StatusBadRequest, res.code)
	})

	s.Run("NoSubmitPermission", func() {
		res := s.submit(viewer, zipArchive(t, map[string]string{"a.txt": "alpha"}))
		s.Equal(http.StatusForbidden, res.code)
	})

	submitted, err := s.ledger.Submitted(t.Context(), "teamY")
	s.Require().NoError(err)
	s.False(submitted, "rejected submissions never take the lock")
}

func (s *ServerTestSuite) Test_AdminRoutes() {
	s.Run("NotAdmin", func() {
		res := s.doRequest(http.MethodGet, "/admin/lock/", teamX, nil, "")
		s.Equal(http.StatusForbidden, res.code)
	})

	s.Run("NoAuth", func() {
		res := s.doRequest(http.MethodGet, "/admin/lock/", nil, nil, "")
		s.Equal(http.StatusUnauthorized, res.code)
	})

	s.Run("UnknownTeam", func() {
		res := s.doRequest(http.MethodPost, "/admin/reset/nobody/", adminAuth, nil, "")
		s.Equal(http.StatusNotFound, res.code)
	})
}
