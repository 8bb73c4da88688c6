package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/portalgate/pkg/adapters/memory"
	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/portal"
	"github.com/aretw0/portalgate/pkg/ports"
	"github.com/aretw0/portalgate/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("password") != "secret" {
			_, _ = w.Write([]byte(`{"logged_in":false,"error":"bad credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		_, _ = w.Write([]byte(`{"logged_in":true}`))
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("sid"); err != nil || ck.Value != "ok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Has("token") {
			http.Error(w, "token leaked", http.StatusTeapot)
			return
		}
		switch r.URL.Path {
		case "/api/homework/done":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"done": r.URL.Query().Get("homeworkId")})
		case "/api/missing":
			http.NotFound(w, r)
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{
				"resource": strings.TrimPrefix(r.URL.Path, "/api/"),
				"query":    r.URL.RawQuery,
			})
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	handler http.Handler
	portal  *httptest.Server
	clock   *ports.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := ports.NewFakeClock(time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC))
	store := memory.NewStore(memory.WithClock(clock.Now))
	reg := prometheus.NewRegistry()

	h, err := NewHandler(Options{
		Sessions:      session.NewManager(store),
		Authenticator: &portal.Authenticator{},
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		InstanceID:    "a",
		Version:       "test",
	})
	require.NoError(t, err)
	return &fixture{handler: h, portal: newPortal(t), clock: clock}
}

func (f *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	body, _ := json.Marshal(ports.Credentials{URL: f.portal.URL, Username: "alice", Password: "secret"})
	w := f.do(http.MethodPost, "/generatetoken", "application/json", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token, ok := resp.Token.(string)
	require.True(t, ok)
	assert.Equal(t, false, resp.Error)
	return token
}

func TestGenerateToken_JSONAndForm(t *testing.T) {
	f := newFixture(t)
	assert.NotEmpty(t, f.login(t))

	form := url.Values{"url": {f.portal.URL}, "username": {"alice"}, "password": {"secret"}}
	w := f.do(http.MethodPost, "/generatetoken", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"error":false`)
}

func TestGenerateToken_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"NoBody", "", http.StatusBadRequest, `{"token":false,"error":"missingbody"}`},
		{"Garbage", "{", http.StatusBadRequest, `{"token":false,"error":"invalidbody"}`},
		{"MissingURL", `{"username":"a","password":"b"}`, http.StatusBadRequest, `{"token":false,"error":"missingurl"}`},
		{"MissingPassword", `{"url":"` + f.portal.URL + `","username":"a"}`, http.StatusBadRequest, `{"token":false,"error":"missingpassword"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/generatetoken", "application/json", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}

	t.Run("BadCredentials", func(t *testing.T) {
		w := f.do(http.MethodPost, "/generatetoken", "application/json",
			`{"url":"`+f.portal.URL+`","username":"alice","password":"nope"}`)
		assert.Equal(t, StatusInvalidToken, w.Code)
		assert.JSONEq(t, `{"token":false,"error":"loginfailed"}`, w.Body.String())
	})

	t.Run("UnreachablePortal", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		down.Close()

		w := f.do(http.MethodPost, "/generatetoken", "application/json",
			`{"url":"`+down.URL+`","username":"alice","password":"secret"}`)
		assert.Equal(t, StatusInvalidToken, w.Code)
		assert.JSONEq(t, `{"token":false,"error":"loginfailed"}`, w.Body.String())
		assert.NotContains(t, w.Body.String(), strings.TrimPrefix(down.URL, "http://"))
	})
}

func TestLoginErrorCode(t *testing.T) {
	assert.Equal(t, "missingfield", loginErrorCode(fmt.Errorf("%w: ent", portal.ErrMissingField)))
	assert.Equal(t, "loginfailed", loginErrorCode(fmt.Errorf("%w: dial tcp 10.0.0.1:443", domain.ErrLoginFailed)))
	assert.Equal(t, "loginfailed", loginErrorCode(errors.New("boom")))
}

func TestResources_ProxyWithoutToken(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(http.MethodGet, "/homework?token="+token+"&dateFrom=2024-09-02&dateTo=2024-09-09", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "homework", got["resource"])
	q, err := url.ParseQuery(got["query"])
	require.NoError(t, err)
	assert.Equal(t, "2024-09-02", q.Get("dateFrom"))
	assert.False(t, q.Has("token"))
}

func TestResources_SetAsDoneIsPost(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(http.MethodGet, "/homework/setAsDone?token="+token+"&dateFrom=2024-09-02&dateTo=2024-09-09&homeworkId=42", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"done":"42"}`, w.Body.String())

	w = f.do(http.MethodGet, "/homework/setAsDone?token="+token+"&dateFrom=2024-09-02&dateTo=2024-09-09", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missinghomeworkId")
}

func TestResources_InvalidDate(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(http.MethodGet, "/timetable?token="+token+"&dateString=02/09/2024", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResources_InvalidToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/grades?token=nope", "", "")
	assert.Equal(t, StatusInvalidToken, w.Code)
	assert.JSONEq(t, `"notfound"`, w.Body.String())

	w = f.do(http.MethodGet, "/grades", "", "")
	assert.Equal(t, StatusInvalidToken, w.Code)
}

func TestResources_ExpiredThenNotFound(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	f.clock.Advance(domain.DefaultTimeout - time.Second)
	w := f.do(http.MethodGet, "/grades?token="+token, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	// The previous call slid the window.
	f.clock.Advance(domain.DefaultTimeout - time.Second)
	w = f.do(http.MethodGet, "/grades?token="+token, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	f.clock.Advance(domain.DefaultTimeout)
	w = f.do(http.MethodGet, "/grades?token="+token, "", "")
	assert.Equal(t, StatusInvalidToken, w.Code)
	assert.JSONEq(t, `"expired"`, w.Body.String())

	w = f.do(http.MethodGet, "/grades?token="+token, "", "")
	assert.JSONEq(t, `"notfound"`, w.Body.String())
}

func TestPeerEndpoint(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(http.MethodGet, "/peer/sessions/"+token, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string          `json:"status"`
		Record json.RawMessage `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Record)

	w = f.do(http.MethodGet, "/peer/sessions/unknown", "", "")
	assert.JSONEq(t, `{"status":"notfound"}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodOptions, "/grades", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "1728000", w.Header().Get("Access-Control-Max-Age"))

	w = f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestInfoAndDocs(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/info", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "1.0.0", info["api_version"])
	assert.Equal(t, "a", info["instance"])
	assert.Equal(t, "test", info["version"])

	w = f.do(http.MethodGet, "/openapi.yaml", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/generatetoken")

	w = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/peer/sessions/{token}"))
}
