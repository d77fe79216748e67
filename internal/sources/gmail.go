package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	gmailBaseURL   = "https://gmail.googleapis.com"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	unreadLabel    = "UNREAD"
)

var (
	htmlBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</tr>`)
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
)

// GmailSource implements the Gmail REST API source
type GmailSource struct {
	client       *resty.Client
	baseURL      string
	tokenURL     string
	userID       string
	clientID     string
	clientSecret string
	refreshToken string
	maxResults   int
	location     *time.Location

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type gmailListResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

type gmailMessage struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"threadId"`
	LabelIDs     []string  `json:"labelIds"`
	InternalDate string    `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

type gmailPart struct {
	MimeType string        `json:"mimeType"`
	Headers  []gmailHeader `json:"headers"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// NewGmailSource creates a new Gmail source
func NewGmailSource(cfg *config.Config) *GmailSource {
	return &GmailSource{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Review-Notifier/1.0"),
		baseURL:      gmailBaseURL,
		tokenURL:     googleTokenURL,
		userID:       cfg.GmailUserID,
		clientID:     cfg.GmailClientID,
		clientSecret: cfg.GmailClientSecret,
		refreshToken: cfg.GmailRefreshToken,
		accessToken:  cfg.GmailAccessToken,
		maxResults:   cfg.SearchMaxResults,
		location:     cfg.Location(),
	}
}

func (g *GmailSource) GetName() string {
	return "gmail"
}

func (g *GmailSource) IsEnabled() bool {
	return g.accessToken != "" || g.canRefresh()
}

func (g *GmailSource) canRefresh() bool {
	return g.clientID != "" && g.clientSecret != "" && g.refreshToken != ""
}

// Search lists matching messages and fetches each one in full
func (g *GmailSource) Search(ctx context.Context, subjectFilter string, since time.Duration, unreadOnly bool) ([]models.Email, error) {
	if !g.IsEnabled() {
		return nil, fmt.Errorf("gmail source is not configured")
	}

	token, err := g.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	query := BuildQuery(subjectFilter, since, unreadOnly, time.Now(), g.location)
	ids, err := g.listMessageIDs(ctx, token, query)
	if err != nil {
		return nil, err
	}

	logrus.Debugf("Gmail query %q matched %d messages", query, len(ids))

	var emails []models.Email
	for _, id := range ids {
		msg, err := g.getMessage(ctx, token, id)
		if err != nil {
			return nil, err
		}

		if unreadOnly && !slices.Contains(msg.LabelIDs, unreadLabel) {
			continue
		}

		emails = append(emails, g.toEmail(msg))
	}

	return emails, nil
}

// BuildQuery renders a Gmail search query. The lower bound has day precision,
// formatted in loc.
func BuildQuery(subjectFilter string, since time.Duration, unreadOnly bool, now time.Time, loc *time.Location) string {
	after := now.Add(-since).In(loc).Format("2006/01/02")
	query := fmt.Sprintf("subject:%s after:%s", quoteTerm(subjectFilter), after)
	if unreadOnly {
		query += " is:unread"
	}
	return query
}

func quoteTerm(term string) string {
	if strings.ContainsAny(term, " \t") {
		return `"` + strings.ReplaceAll(term, `"`, "") + `"`
	}
	return term
}

func (g *GmailSource) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.canRefresh() {
		return g.accessToken, nil
	}
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     g.clientID,
			"client_secret": g.clientSecret,
			"refresh_token": g.refreshToken,
		}).
		Post(g.tokenURL)

	if err != nil {
		return "", err
	}

	if resp.IsError() {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(resp.Body(), &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	g.accessToken = tokenResp.AccessToken
	// refresh a minute early
	g.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - time.Minute)
	return g.accessToken, nil
}

func (g *GmailSource) listMessageIDs(ctx context.Context, token, query string) ([]string, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"q":          query,
			"maxResults": strconv.Itoa(g.maxResults),
		}).
		Get(fmt.Sprintf("%s/gmail/v1/users/%s/messages", g.baseURL, g.userID))

	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("gmail API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var listResp gmailListResponse
	if err := json.Unmarshal(resp.Body(), &listResp); err != nil {
		return nil, fmt.Errorf("failed to decode message list: %w", err)
	}

	ids := make([]string, 0, len(listResp.Messages))
	for _, m := range listResp.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (g *GmailSource) getMessage(ctx context.Context, token, id string) (*gmailMessage, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("format", "full").
		Get(fmt.Sprintf("%s/gmail/v1/users/%s/messages/%s", g.baseURL, g.userID, id))

	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("gmail API returned status %d for message %s", resp.StatusCode(), id)
	}

	var msg gmailMessage
	if err := json.Unmarshal(resp.Body(), &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return &msg, nil
}

func (g *GmailSource) toEmail(msg *gmailMessage) models.Email {
	email := models.Email{
		ID:      msg.ID,
		Subject: msg.Payload.header("Subject"),
		Sender:  msg.Payload.header("From"),
		Body:    plainBody(msg.Payload),
	}

	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		email.Date = time.UnixMilli(ms)
	} else if date, err := mail.ParseDate(msg.Payload.header("Date")); err == nil {
		email.Date = date
	}

	return email
}

func (p gmailPart) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// plainBody prefers the first text/plain part and falls back to stripped HTML
func plainBody(p gmailPart) string {
	if text, ok := findPart(p, "text/plain"); ok {
		return text
	}
	if markup, ok := findPart(p, "text/html"); ok {
		return stripHTML(markup)
	}
	return ""
}

func findPart(p gmailPart, mimeType string) (string, bool) {
	if strings.EqualFold(p.MimeType, mimeType) && p.Body.Data != "" {
		data, err := decodeBase64URL(p.Body.Data)
		if err != nil {
			logrus.Debugf("Failed to decode %s part: %v", mimeType, err)
			return "", false
		}
		return data, true
	}
	for _, child := range p.Parts {
		if text, ok := findPart(child, mimeType); ok {
			return text, true
		}
	}
	return "", false
}

func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func stripHTML(content string) string {
	content = htmlBreakPattern.ReplaceAllString(content, "\n")
	content = htmlTagPattern.ReplaceAllString(content, "")
	content = strings.ReplaceAll(html.UnescapeString(content), "\u00a0", " ")
	return strings.TrimSpace(content)
}
