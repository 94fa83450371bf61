package coordinator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/coordinator"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *coordinator.Service) {
	t.Helper()
	svc, _ := newService(nil)
	server := httptest.NewServer(coordinator.Routes(svc, nil))
	t.Cleanup(server.Close)
	return server, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestCreateAndFetchBattleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/battle", map[string]any{
		"quizId": 1, "userId": 1, "displayName": "Alice", "battleMode": "CLASSIC",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created domain.BattleSession
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != domain.StatusWaiting || created.QuizName != "Capitals" {
		t.Fatalf("unexpected session %+v", created)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/battle/%d", server.URL, created.ID))
	if err != nil {
		t.Fatalf("get battle: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
	var fetched domain.BattleSession
	if err := json.NewDecoder(getResp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fetched.ID != created.ID || len(fetched.Participants) != 1 {
		t.Fatalf("unexpected fetched session %+v", fetched)
	}
}

func TestJoinAndParticipantsOverHTTP(t *testing.T) {
	server, svc := newTestServer(t)
	session, err := svc.CreateBattle(context.Background(), 1, 1, "Alice", "")
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}

	resp := postJSON(t, fmt.Sprintf("%s/battle/%d/join", server.URL, session.ID), map[string]any{
		"userId": 2, "displayName": "Bob",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(fmt.Sprintf("%s/battle/%d/participants", server.URL, session.ID))
	if err != nil {
		t.Fatalf("get participants: %v", err)
	}
	defer listResp.Body.Close()
	var participants []domain.Participant
	if err := json.NewDecoder(listResp.Body).Decode(&participants); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %+v", participants)
	}
}

func TestErrorMapping(t *testing.T) {
	server, svc := newTestServer(t)
	session, err := svc.CreateBattle(context.Background(), 1, 1, "Alice", "")
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}

	// Unknown battle id maps to 404.
	resp, err := http.Get(server.URL + "/battle/999999999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	// Disband by a non-leader maps to 403.
	resp = postJSON(t, fmt.Sprintf("%s/battle/%d/disband", server.URL, session.ID), domain.UserSignal{UserID: 2})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	// Malformed path ids map to 400.
	resp, err = http.Get(server.URL + "/battle/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Missing quiz maps to 404.
	resp, err = http.Get(server.URL + "/quiz/999/preview")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDisbandAndRemoveOverHTTP(t *testing.T) {
	server, svc := newTestServer(t)
	session, err := svc.CreateBattle(context.Background(), 1, 1, "Alice", "")
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}
	if _, err := svc.Join(context.Background(), session.ID, 2, "Bob", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/battle/%d/participants/2", server.URL, session.ID), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = postJSON(t, fmt.Sprintf("%s/battle/%d/disband", server.URL, session.ID), domain.UserSignal{UserID: 1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if _, err := svc.GetBattle(session.ID); err == nil {
		t.Fatalf("expected battle gone after disband")
	}
}

func TestQuizPreviewOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/quiz/1/preview")
	if err != nil {
		t.Fatalf("get preview: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var preview domain.QuizPreview
	if err := json.NewDecoder(resp.Body).Decode(&preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if preview.Name != "Capitals" || preview.TotalQuestions() != 2 {
		t.Fatalf("unexpected preview %+v", preview)
	}
}
