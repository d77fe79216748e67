package sources

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func newTestGmail(serverURL string, cfg *config.Config) *GmailSource {
	if cfg.GmailUserID == "" {
		cfg.GmailUserID = "me"
	}
	if cfg.SearchMaxResults == 0 {
		cfg.SearchMaxResults = 20
	}
	cfg.TimeZone = "UTC"

	g := NewGmailSource(cfg)
	g.baseURL = serverURL
	g.tokenURL = serverURL + "/token"
	return g
}

func gmailServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/token":
			atomic.AddInt32(tokenCalls, 1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh", r.PostForm.Get("refresh_token"))
			fmt.Fprint(w, `{"access_token":"fresh","expires_in":3600,"token_type":"Bearer"}`)

		case r.URL.Path == "/gmail/v1/users/me/messages":
			assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
			assert.True(t, strings.HasPrefix(r.URL.Query().Get("q"), `subject:"You have a new booking" after:`))
			assert.Equal(t, "20", r.URL.Query().Get("maxResults"))
			fmt.Fprint(w, `{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t1"},{"id":"m3","threadId":"t3"}]}`)

		case r.URL.Path == "/gmail/v1/users/me/messages/m1":
			assert.Equal(t, "full", r.URL.Query().Get("format"))
			fmt.Fprintf(w, `{
				"id":"m1","threadId":"t1","labelIds":["INBOX","UNREAD"],"internalDate":"1765000000000",
				"payload":{"mimeType":"multipart/alternative",
					"headers":[{"name":"Subject","value":"You have a new booking"},{"name":"From","value":"Intra <noreply@intra.example>"}],
					"parts":[
						{"mimeType":"text/html","body":{"data":%q}},
						{"mimeType":"text/plain","body":{"data":%q}}
					]}}`,
				encode("<p>html version</p>"),
				encode("from December 07, 2025 11:45 for 30 minutes"))

		case r.URL.Path == "/gmail/v1/users/me/messages/m2":
			fmt.Fprint(w, `{"id":"m2","threadId":"t1","labelIds":["INBOX"],"internalDate":"1765000000000","payload":{"mimeType":"text/plain","headers":[]}}`)

		case r.URL.Path == "/gmail/v1/users/me/messages/m3":
			fmt.Fprintf(w, `{
				"id":"m3","threadId":"t3","labelIds":["UNREAD"],"internalDate":"bad",
				"payload":{"mimeType":"text/html",
					"headers":[{"name":"subject","value":"You have a new booking"},{"name":"Date","value":"Sun, 7 Dec 2025 09:00:00 +0900"}],
					"body":{"data":%q}}}`,
				encode("<div>2024/12/07&nbsp;14:30</div><br/>done"))

		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGmailSource_Search(t *testing.T) {
	var tokenCalls int32
	server := gmailServer(t, &tokenCalls)
	defer server.Close()

	g := newTestGmail(server.URL, &config.Config{
		GmailClientID:     "id",
		GmailClientSecret: "secret",
		GmailRefreshToken: "refresh",
	})
	require.True(t, g.IsEnabled())

	emails, err := g.Search(context.Background(), "You have a new booking", 24*time.Hour, true)
	require.NoError(t, err)
	require.Len(t, emails, 2)

	assert.Equal(t, "m1", emails[0].ID)
	assert.Equal(t, "You have a new booking", emails[0].Subject)
	assert.Equal(t, "Intra <noreply@intra.example>", emails[0].Sender)
	assert.Equal(t, "from December 07, 2025 11:45 for 30 minutes", emails[0].Body)
	assert.Equal(t, int64(1765000000000), emails[0].Date.UnixMilli())

	assert.Equal(t, "m3", emails[1].ID)
	assert.Equal(t, "You have a new booking", emails[1].Subject)
	assert.Contains(t, emails[1].Body, "2024/12/07 14:30")
	assert.Equal(t, 2025, emails[1].Date.Year())

	// token is cached for the second search
	_, err = g.Search(context.Background(), "You have a new booking", 24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestGmailSource_SearchIncludesReadWhenRequested(t *testing.T) {
	var tokenCalls int32
	server := gmailServer(t, &tokenCalls)
	defer server.Close()

	g := newTestGmail(server.URL, &config.Config{
		GmailClientID:     "id",
		GmailClientSecret: "secret",
		GmailRefreshToken: "refresh",
	})

	emails, err := g.Search(context.Background(), "You have a new booking", 24*time.Hour, false)
	require.NoError(t, err)
	assert.Len(t, emails, 3)
}

func TestGmailSource_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	g := newTestGmail(server.URL, &config.Config{GmailAccessToken: "stale"})

	_, err := g.Search(context.Background(), "booking", time.Hour, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGmailSource_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		expected bool
	}{
		{name: "Static token", cfg: config.Config{GmailAccessToken: "tok"}, expected: true},
		{name: "Refresh credentials", cfg: config.Config{GmailClientID: "a", GmailClientSecret: "b", GmailRefreshToken: "c"}, expected: true},
		{name: "Partial refresh credentials", cfg: config.Config{GmailClientID: "a", GmailRefreshToken: "c"}, expected: false},
		{name: "Nothing", cfg: config.Config{}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			assert.Equal(t, tt.expected, NewGmailSource(&cfg).IsEnabled())
		})
	}
}

func TestGmailSource_DisabledSearchFails(t *testing.T) {
	g := NewGmailSource(&config.Config{})

	_, err := g.Search(context.Background(), "booking", time.Hour, true)
	assert.Error(t, err)
}

func TestBuildQuery(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	now := time.Date(2025, time.December, 7, 16, 0, 0, 0, time.UTC) // 01:00 on the 8th in Tokyo

	assert.Equal(t,
		`subject:"You have a new booking" after:2025/12/07 is:unread`,
		BuildQuery("You have a new booking", 24*time.Hour, true, now, loc))

	assert.Equal(t,
		`subject:booking after:2025/12/08`,
		BuildQuery("booking", time.Hour, false, now, loc))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello\nworld &", stripHTML("<p>Hello</p><b>world</b> &amp;"))
}
