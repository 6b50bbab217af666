package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/robotslacker/testcli-sub000/manager/app"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*app.Engine, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	engine := app.NewEngine(nil, nil, false)
	server := httptest.NewServer(InitHttpHandler(engine, service.NewDispatcher(engine)))
	t.Cleanup(func() {
		server.Close()
		_ = engine.StopManager(context.Background())
	})
	return engine, server
}

func get(t *testing.T, url string, out interface{}) int {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestDispatchOverHttp(t *testing.T) {
	_, server := newTestServer(t)
	address := strings.TrimPrefix(server.URL, "http://")
	ctx := context.Background()

	require.Equal(t, http.StatusOK, get(t, server.URL+HealthCheckPath, nil))
	require.Equal(t, http.StatusServiceUnavailable, get(t, server.URL+"/job", nil))

	resp, err := SendDispatch(ctx, address, &service.Request{Action: "show"})
	require.NoError(t, err)
	require.Equal(t, service.ResponseTypeError, resp.Type)
	require.Equal(t, "ManagerNotStarted", resp.Status)

	for _, req := range []*service.Request{
		{Action: "startManager", Param: map[string]string{"store": "memory"}},
		{Action: "create", JobName: "job1", Param: map[string]string{"parallel": "3"}},
	} {
		resp, err = SendDispatch(ctx, address, req)
		require.NoError(t, err)
		require.Equal(t, service.StatusOK, resp.Status, resp.Message)
	}

	var table service.Table
	require.Equal(t, http.StatusOK, get(t, server.URL+"/job/job1", &table))
	require.Len(t, table.Rows, 1)
	require.Equal(t, "job1", table.Rows[0][1])
	require.Equal(t, "3", table.Rows[0][4])

	require.Equal(t, http.StatusOK, get(t, server.URL+"/job", &table))
	require.Len(t, table.Rows, 1)

	var body map[string]interface{}
	require.Equal(t, http.StatusNotFound, get(t, server.URL+"/job/missing", &body))
	require.Contains(t, body["error"], "job not found")

	var workers struct {
		Workers []workerView `json:"workers"`
		History []workerView `json:"history"`
	}
	require.Equal(t, http.StatusOK, get(t, server.URL+"/job/job1/worker", &workers))
	require.Empty(t, workers.Workers)
	require.Empty(t, workers.History)
}

func TestDispatchRejectsBadJson(t *testing.T) {
	_, server := newTestServer(t)
	resp, err := http.Post(server.URL+"/dispatch", "application/json", strings.NewReader("{action"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = SendDispatch(context.Background(), strings.TrimPrefix(server.URL, "http://")+"/missing",
		&service.Request{Action: "show"})
	require.Error(t, err)
}
