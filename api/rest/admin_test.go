package rest_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/api/rest"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth_NoKey_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(rest.AdminAuth(""))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	s := &server{r: r}

	code, env := s.do(t, http.MethodGet, "/x", nil, map[string]string{mw.AdminKeyHeader: "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodGet, "/api/admin/missions", nil, map[string]string{mw.AdminKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(t, http.MethodGet, "/api/admin/missions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdmin_CreateMission(t *testing.T) {
	s := newServer(t)

	code, env := s.admin(t, http.MethodPost, "/api/admin/missions", gin.H{
		"title": "Read 3 Chapters", "target_value": 3, "reward_keys": 2, "event": "chapter_read",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var m model.MissionConfig
	decode(t, env, &m)
	assert.Equal(t, "read_3_chapters", m.MissionKey)
	assert.True(t, m.IsActive)
	assert.Equal(t, model.MissionTypeDaily, m.MissionType)

	code, env = s.admin(t, http.MethodPost, "/api/admin/missions", gin.H{
		"title": "Read three chapters", "mission_key": "read_3_chapters", "target_value": 3,
	})
	assert.Equal(t, http.StatusConflict, code, env.Message)

	for _, body := range []gin.H{
		{"title": "x", "mission_key": "Bad Key", "target_value": 1},
		{"title": "x", "target_value": 0},
		{"title": "x", "target_value": 1, "event": "review_written"},
		{"target_value": 1},
	} {
		code, _ = s.admin(t, http.MethodPost, "/api/admin/missions", body)
		assert.Equal(t, http.StatusBadRequest, code, "%v", body)
	}

	code, env = s.admin(t, http.MethodGet, "/api/admin/missions", nil)
	require.Equal(t, http.StatusOK, code)
	var defs []model.MissionConfig
	decode(t, env, &defs)
	assert.Len(t, defs, 1)
}

func TestAdmin_UpdateMission(t *testing.T) {
	s := newServer(t)
	m := s.seedMission(t, "read_2_chapters", 2, "chapter_read")
	path := fmt.Sprintf("/api/admin/missions/%d", m.ID)

	code, env := s.admin(t, http.MethodPut, path, gin.H{"target_value": 4, "is_active": false, "event": "none"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var got model.MissionConfig
	decode(t, env, &got)
	assert.Equal(t, 4, got.TargetValue)
	assert.False(t, got.IsActive)
	assert.Empty(t, got.Event)

	code, _ = s.admin(t, http.MethodPut, path, gin.H{"target_value": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.admin(t, http.MethodPut, "/api/admin/missions/9999", gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_SweepUnlocks(t *testing.T) {
	s := newServer(t)
	due := s.clk.Now().Add(-time.Minute).UTC()
	require.NoError(t, s.db.Create(&model.ChapterUnlock{
		UserID: s.user.ID, ChapterID: 1, UnlockMethod: model.UnlockMethodTime,
		Status: model.UnlockStatusPending, UnlockAt: &due,
	}).Error)

	code, env := s.admin(t, http.MethodPost, "/api/admin/unlocks/sweep", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var out struct {
		Promoted int64 `json:"promoted"`
	}
	decode(t, env, &out)
	assert.EqualValues(t, 1, out.Promoted)
}

func TestAdmin_SchedulerList(t *testing.T) {
	s := newServer(t)
	code, env := s.admin(t, http.MethodGet, "/api/admin/scheduler", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"tasks":[]}`, string(env.Data))
}
