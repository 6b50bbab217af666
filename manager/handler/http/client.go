package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/robotslacker/testcli-sub000/pkg/middleware"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

// SendDispatch 把请求交给远端Agent的/dispatch处理，timer/wait可能阻塞很久，由ctx控制超时
func SendDispatch(ctx context.Context, address string, dispatchReq *service.Request) (*service.Response, error) {
	jsonData, err := json.Marshal(dispatchReq)
	if err != nil {
		return nil, err
	}
	url := "http://" + address + "/dispatch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceContext := util.TraceCtx2String(ctx); traceContext != "" {
		req.Header.Set(middleware.TraceHeader, traceContext)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dispatch to %v failed with status code:%v", url, resp.StatusCode)
	}
	ret := new(service.Response)
	if err = json.NewDecoder(resp.Body).Decode(ret); err != nil {
		return nil, err
	}
	klog.Debugf("Request to %s completed, response type:%v", url, ret.Type)
	return ret, nil
}
