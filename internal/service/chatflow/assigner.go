package chatflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"edulead_chat_server/pkg/errorx"
)

// Lead is the intake payload handed to the assignment collaborator.
type Lead struct {
	StudentId    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	StudentPhone string `json:"studentPhone"`
}

// Assigner is the external round-robin counsellor-assignment service. The
// algorithm itself lives outside this repository.
type Assigner interface {
	AssignCounsellor(ctx context.Context, lead Lead) (string, error)
}

// HTTPAssigner calls the lead-service assignment endpoint.
type HTTPAssigner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAssigner builds the client for the lead service.
func NewHTTPAssigner(baseURL string, timeout time.Duration) *HTTPAssigner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAssigner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAssigner) AssignCounsellor(ctx context.Context, lead Lead) (string, error) {
	body, err := json.Marshal(lead)
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeServerBusy, "marshal lead")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/assign", bytes.NewReader(body))
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeServerBusy, "build assign request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeServerBusy, "call lead assigner")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorx.Newf(errorx.CodeServerBusy, "lead assigner returned %d", resp.StatusCode)
	}

	var out struct {
		CounsellorId string `json:"counsellorId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errorx.Wrap(err, errorx.CodeServerBusy, "decode assigner response")
	}
	if out.CounsellorId == "" {
		return "", fmt.Errorf("lead assigner returned no counsellor")
	}
	return out.CounsellorId, nil
}

var _ Assigner = (*HTTPAssigner)(nil)
