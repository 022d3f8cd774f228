package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/api/rest"
	"github.com/shi0417/kongfuworld-sub004/checkin"
	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/config"
	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/shi0417/kongfuworld-sub004/reading"
	"github.com/shi0417/kongfuworld-sub004/scheduler"
	"github.com/shi0417/kongfuworld-sub004/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSecret   = "rest-test-secret"
	testAdminKey = "admin-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	r       *gin.Engine
	db      *gorm.DB
	clk     *clock.Fake
	catalog *mission.Catalog
	user    *model.User
	token   string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := zap.NewNop()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	clk := testutil.NewClock()
	led := ledger.New(db)
	hc := hook.NewCenter()

	catalog := mission.NewCatalog(db, c, time.Minute, logger)
	missions := mission.NewService(db, catalog, led, clk, logger).
		WithLocker(c, time.Second, 500*time.Millisecond).
		WithPublisher(ps)
	missions.Subscribe(hc)
	readingSvc := reading.NewService(db, reading.NewGate(db, clk, true), clk, hc, logger)
	checkinSvc := checkin.NewService(db, led, clk, nil, hc, logger)
	sched, err := scheduler.New(logger, testutil.CST)
	require.NoError(t, err)
	t.Cleanup(sched.Stop)

	missionH := rest.NewMissionHandler(missions, nil, logger)
	readingH := rest.NewReadingHandler(readingSvc, logger)
	checkinH := rest.NewCheckinHandler(checkinSvc, nil, logger)
	keysH := rest.NewKeysHandler(led, logger)
	adminH := rest.NewAdminHandler(catalog, sched, readingSvc, logger)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	api := r.Group("/api")
	user := api.Group("", mw.Auth(config.SecurityConfig{JWTSecret: testSecret}))
	user.GET("/missions", missionH.List)
	user.GET("/missions/completion", missionH.Completion)
	user.POST("/missions/progress", missionH.Progress)
	user.POST("/missions/:id/claim", missionH.Claim)
	user.POST("/reading/chapters/:id/read", readingH.Read)
	user.GET("/reading/chapters/:id/eligibility", readingH.Eligibility)
	user.GET("/checkin", checkinH.Status)
	user.POST("/checkin", checkinH.CheckIn)
	user.GET("/checkin/history", checkinH.History)
	user.GET("/keys/transactions", keysH.Transactions)

	admin := api.Group("/admin", rest.AdminAuth(testAdminKey))
	admin.GET("/missions", adminH.ListMissions)
	admin.POST("/missions", adminH.CreateMission)
	admin.PUT("/missions/:id", adminH.UpdateMission)
	admin.GET("/scheduler", adminH.ListSchedulerTasks)
	admin.POST("/unlocks/sweep", adminH.SweepUnlocks)

	u := testutil.SeedUser(t, db, "reader", 0)
	token, err := mw.GenerateToken(u.ID, testSecret, time.Hour)
	require.NoError(t, err)
	return &server{r: r, db: db, clk: clk, catalog: catalog, user: u, token: token}
}

func (s *server) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (s *server) call(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + s.token})
}

func (s *server) admin(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{mw.AdminKeyHeader: testAdminKey})
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v), string(env.Data))
}

func (s *server) seedMission(t *testing.T, key string, target int, event string) model.MissionConfig {
	t.Helper()
	m := model.MissionConfig{
		MissionKey: key, Title: key, TargetValue: target, RewardKeys: 2, RewardKarma: 1,
		MissionType: model.MissionTypeDaily, ResetType: model.MissionTypeDaily, Event: event, IsActive: true,
	}
	require.NoError(t, s.db.Create(&m).Error)
	return m
}

