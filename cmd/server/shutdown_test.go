package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/stretchr/testify/assert"
)

type streamResult struct {
	body string
	err  error
}

func (s *ServerTestSuite) Test_ShutdownWithOpenStream() {
	t := s.T()

	s.srv.config.Relay.GraceDelay = time.Hour
	s.srv.config.GracefulShutdownSecs = 5
	s.Require().NoError(s.srv.build(context.Background(), s.fs, s.upserter, s.ledger, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.srv.router.Listener = ln

	started := make(chan error, 1)
	go func() {
		err := s.srv.router.Start("")
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		started <- err
	}()
	s.baseURL = "http://" + ln.Addr().String()

	res := s.submit(teamX, zipArchive(t, map[string]string{"a.txt": "alpha"}))
	s.Require().Equal(http.StatusSeeOther, res.code, res.body)

	req, err := http.NewRequest(http.MethodGet, s.baseURL+res.location+"events/", nil)
	s.Require().NoError(err)
	req.SetBasicAuth(teamX.team, teamX.pin)

	streaming := make(chan struct{})
	result := make(chan streamResult, 1)
	go func() {
		res, err := s.client.Do(req)
		close(streaming)
		if err != nil {
			result <- streamResult{err: err}
			return
		}
		defer res.Body.Close()

		raw, err := io.ReadAll(res.Body)
		result <- streamResult{body: string(raw), err: err}
	}()

	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		s.FailNow("event stream never opened")
	}

	begin := time.Now()
	s.Require().NoError(s.srv.Shutdown())
	assert.Less(t, time.Since(begin), 5*time.Second, "grace delay is cut short on shutdown")

	stream := <-result
	s.Require().NoError(stream.err)
	s.Equal("closed", lastKind(eventKinds(stream.body)))

	s.Require().NoError(<-started)
}

func lastKind(kinds []string) string {
	if len(kinds) == 0 {
		return ""
	}
	return kinds[len(kinds)-1]
}
