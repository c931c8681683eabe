package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/app/session"
)

type fakeSource struct {
	status *session.Status
}

func (f *fakeSource) GetStatus() *session.Status {
	return f.status
}

func newSource() *fakeSource {
	return &fakeSource{status: &session.Status{
		Guilds: []session.GuildStatus{
			{GuildID: "g1", Presence: "active", Playback: "playing", Current: "Song", Songs: 3, Loop: "off", Volume: 50},
		},
		PrefetchActive:  1,
		PendingFiles:    []string{},
		ConnectedGuilds: 1,
	}}
}

func TestHandler_Status(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newSource(), ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 1, body["connected_guilds"])
	guilds := body["guilds"].([]any)
	require.Len(t, guilds, 1)
	assert.Equal(t, "g1", guilds[0].(map[string]any)["guild_id"])
	assert.Equal(t, "Song", guilds[0].(map[string]any)["current"])
}

func TestHandler_Token(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newSource(), "secret"))
	defer srv.Close()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing", token: "", want: http.StatusUnauthorized},
		{name: "wrong", token: "nope", want: http.StatusUnauthorized},
		{name: "valid", token: "secret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
			require.NoError(t, err)
			if tt.token != "" {
				req.Header.Set(AdminTokenHeader, tt.token)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHandler_Healthz(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newSource(), "secret"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health checks need no token")

	resp, err = http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
