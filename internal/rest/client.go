// Package rest is the HTTP client for the battle backend: bootstrap reads
// before the first broadcast arrives, quiz content retrieval, and the
// best-effort cleanup calls issued when a lobby page goes away.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// Client talks to the battle REST collaborator. A single base URL selects
// the host; everything else is fixed paths.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL (e.g. http://localhost:8080/api/v1).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWithHTTPClient injects the underlying http.Client (tests).
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// CreateBattle asks the backend to open a new waiting battle led by userID.
func (c *Client) CreateBattle(ctx context.Context, quizID, userID int64, displayName, mode string) (domain.BattleSession, error) {
	payload := map[string]any{
		"quizId":      quizID,
		"userId":      userID,
		"displayName": displayName,
		"battleMode":  mode,
	}
	var session domain.BattleSession
	if err := c.postJSON(ctx, fmt.Sprintf("%s/battle", c.baseURL), payload, &session); err != nil {
		return domain.BattleSession{}, fmt.Errorf("create battle: %w", err)
	}
	return session, nil
}

// JoinBattle adds userID to a waiting battle.
func (c *Client) JoinBattle(ctx context.Context, battleID, userID int64, displayName, avatarURL string) (domain.BattleSession, error) {
	if battleID <= 0 {
		return domain.BattleSession{}, domain.ErrInvalidBattleID
	}
	payload := map[string]any{
		"userId":      userID,
		"displayName": displayName,
		"avatarUrl":   avatarURL,
	}
	var session domain.BattleSession
	if err := c.postJSON(ctx, fmt.Sprintf("%s/battle/%d/join", c.baseURL, battleID), payload, &session); err != nil {
		return domain.BattleSession{}, fmt.Errorf("join battle: %w", err)
	}
	return session, nil
}

// GetBattle fetches the battle summary.
func (c *Client) GetBattle(ctx context.Context, battleID int64) (domain.BattleSession, error) {
	if battleID <= 0 {
		return domain.BattleSession{}, domain.ErrInvalidBattleID
	}
	var session domain.BattleSession
	err := c.getJSON(ctx, fmt.Sprintf("%s/battle/%d", c.baseURL, battleID), &session)
	if err != nil {
		return domain.BattleSession{}, fmt.Errorf("get battle: %w", err)
	}
	return session, nil
}

// GetParticipants fetches the initial participant snapshot used before the
// first leaderboard broadcast arrives.
func (c *Client) GetParticipants(ctx context.Context, battleID int64) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := c.getJSON(ctx, fmt.Sprintf("%s/battle/%d/participants", c.baseURL, battleID), &participants)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	return participants, nil
}

// GetQuizPreview fetches quiz content: grouped and standalone questions with
// options and correctness flags.
func (c *Client) GetQuizPreview(ctx context.Context, quizID int64) (domain.QuizPreview, error) {
	var preview domain.QuizPreview
	err := c.getJSON(ctx, fmt.Sprintf("%s/quiz/%d/preview", c.baseURL, quizID), &preview)
	if err != nil {
		return domain.QuizPreview{}, fmt.Errorf("get quiz preview: %w", err)
	}
	return preview, nil
}

// Disband asks the server to cancel a waiting battle. Only the leader may
// call it.
func (c *Client) Disband(ctx context.Context, battleID, userID int64) error {
	body, _ := json.Marshal(domain.UserSignal{UserID: userID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/battle/%d/disband", c.baseURL, battleID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doDiscard(req)
}

// RemoveParticipant withdraws a non-leader from a waiting battle.
func (c *Client) RemoveParticipant(ctx context.Context, battleID, userID int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/battle/%d/participants/%d", c.baseURL, battleID, userID), nil)
	if err != nil {
		return err
	}
	return c.doDiscard(req)
}

// DisbandBeacon delivers a disband notice without blocking the caller, the
// way a page-unload beacon would. Errors are logged and swallowed; the user
// is leaving regardless.
func (c *Client) DisbandBeacon(battleID, userID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Disband(ctx, battleID, userID); err != nil {
			log.Printf("disband beacon failed for battle=%d: %v", battleID, err)
		}
	}()
}

// RemoveParticipantBeacon delivers a participant-removal notice without
// blocking the caller. Errors are logged and swallowed.
func (c *Client) RemoveParticipantBeacon(battleID, userID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.RemoveParticipant(ctx, battleID, userID); err != nil {
			log.Printf("remove participant beacon failed for battle=%d: %v", battleID, err)
		}
	}()
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrBattleNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doDiscard(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
