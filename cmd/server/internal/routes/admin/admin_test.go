package admin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	mockledger "github.com/aixcyberchallenge/submission-relay/internal/ledger/mock"
)

var adminTeam = &config.Team{Name: "admin", Permissions: config.TeamPermissions{Admin: true}}

func testConfig() *config.Config {
	return &config.Config{
		Teams: []config.Team{
			{Name: "teamX", Permissions: config.TeamPermissions{Submit: true}},
			{Name: "teamY", Permissions: config.TeamPermissions{Submit: true}},
			*adminTeam,
		},
	}
}

func doRequest(e *echo.Echo, c echo.Context, handler echo.HandlerFunc) {
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
}

func TestListLocks(t *testing.T) {
	e := echo.New()

	newContext := func() (echo.Context, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/admin/lock/", nil), rec)
		c.Set(servermiddleware.TeamKey, adminTeam)
		return c, rec
	}

	t.Run("MergesConfiguredTeams", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)
		led.EXPECT().Snapshot(gomock.Any()).Return(map[string]bool{"teamX": true, "retired": false}, nil)

		h := NewHandler(testConfig(), led)
		c, rec := newContext()
		doRequest(e, c, h.ListLocks)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[
			{"team":"admin","submitted":false},
			{"team":"retired","submitted":false},
			{"team":"teamX","submitted":true},
			{"team":"teamY","submitted":false}
		]`, rec.Body.String())
	})

	t.Run("LedgerFailure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)
		led.EXPECT().Snapshot(gomock.Any()).Return(nil, errors.New("expected error"))

		h := NewHandler(testConfig(), led)
		c, rec := newContext()
		doRequest(e, c, h.ListLocks)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestResetLock(t *testing.T) {
	e := echo.New()

	newContext := func(team string) (echo.Context, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/admin/reset/"+team+"/", nil), rec)
		c.Set(servermiddleware.TeamKey, adminTeam)
		c.SetParamNames("team")
		c.SetParamValues(team)
		return c, rec
	}

	t.Run("Reset", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)
		led.EXPECT().Reset(gomock.Any(), "teamX").Return(nil)

		h := NewHandler(testConfig(), led)
		c, rec := newContext("teamX")
		doRequest(e, c, h.ResetLock)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"team":"teamX","submitted":false}`, rec.Body.String())
	})

	t.Run("UnknownTeam", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)

		h := NewHandler(testConfig(), led)
		c, rec := newContext("nobody")
		doRequest(e, c, h.ResetLock)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("LedgerFailure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)
		led.EXPECT().Reset(gomock.Any(), "teamY").Return(errors.New("expected error"))

		h := NewHandler(testConfig(), led)
		c, rec := newContext("teamY")
		doRequest(e, c, h.ResetLock)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
