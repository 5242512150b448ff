package adapter_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kindred/pkg/adapter"
	"github.com/m-mizutani/kindred/pkg/model"
)

func TestGeniFetchFamily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/profile/immediate-family")
		gt.Equal(t, r.URL.Query().Get("ids"), "1,2")
		gt.Equal(t, r.URL.Query().Get("fields"), "id,name")
		gt.Equal(t, r.URL.Query().Get("access_token"), "token-a")
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer srv.Close()

	client := adapter.NewGeni("token-a", adapter.WithBaseURL(srv.URL), adapter.WithRateLimit(0, 0))
	body, err := client.FetchFamily(context.Background(), []model.ProfileID{"profile-1", "profile-2"}, []string{"id", "name"})
	gt.NoError(t, err)
	gt.Equal(t, string(body), `{"results": []}`)
}

func TestGeniTransientStatus(t *testing.T) {
	testCases := []struct {
		name   string
		status int
	}{
		{"rate limited", http.StatusTooManyRequests},
		{"server error", http.StatusInternalServerError},
		{"bad gateway", http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := adapter.NewGeni("token", adapter.WithBaseURL(srv.URL), adapter.WithRateLimit(0, 0))
			_, err := client.FetchProfiles(context.Background(), []model.ProfileID{"profile-1"}, nil)
			gt.Error(t, err)
			gt.True(t, errors.Is(err, model.ErrTransientFetch))
		})
	}
}

func TestGeniNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := adapter.NewGeni("token", adapter.WithBaseURL(srv.URL), adapter.WithRateLimit(0, 0))
	_, err := client.FetchFamily(context.Background(), []model.ProfileID{"profile-1"}, nil)
	gt.True(t, errors.Is(err, model.ErrTransientFetch))
}

func TestGeniErrorBodyIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "Invalid access token"}}`)
	}))
	defer srv.Close()

	client := adapter.NewGeni("token", adapter.WithBaseURL(srv.URL), adapter.WithRateLimit(0, 0))
	body, err := client.FetchFamily(context.Background(), []model.ProfileID{"profile-1"}, nil)
	gt.NoError(t, err)
	gt.S(t, string(body)).Contains("Invalid access token")
}

func TestGeniFollow(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gt.Equal(t, r.Method, http.MethodPost)
		gt.NoError(t, r.ParseForm())
		gt.Equal(t, r.PostForm.Get("access_token"), "token")

		switch r.URL.Path {
		case "/profile-1/follow":
			fmt.Fprint(w, `{"id": "profile-1"}`)
		case "/profile-1/unfollow":
			fmt.Fprint(w, `{"error": {"message": "Access Denied"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := adapter.NewGeni("token", adapter.WithBaseURL(srv.URL), adapter.WithRateLimit(0, 0))
	gt.NoError(t, client.Follow(context.Background(), "profile-1"))
	gt.Error(t, client.Unfollow(context.Background(), "profile-1"))
	gt.Equal(t, calls.Load(), int32(2))
}

func TestGeniRefreshCredential(t *testing.T) {
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gt.Equal(t, q.Get("grant_type"), "refresh_token")
		gt.Equal(t, q.Get("client_id"), "app")
		if q.Get("refresh_token") != "refresh-1" {
			fmt.Fprint(w, `{"error": "invalid_grant"}`)
			return
		}
		fmt.Fprint(w, `{"access_token": "token-new", "refresh_token": "refresh-2"}`)
	}))
	defer oauth.Close()

	var seen atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{}`)
	}))
	defer api.Close()

	client := adapter.NewGeni("token-old",
		adapter.WithBaseURL(api.URL),
		adapter.WithOAuthURL(oauth.URL),
		adapter.WithRefreshToken("refresh-1"),
		adapter.WithAppCredential("app", "secret"),
		adapter.WithRateLimit(0, 0),
	)

	gt.NoError(t, client.RefreshCredential(context.Background()))
	_, err := client.FetchProjects(context.Background(), []int64{10985})
	gt.NoError(t, err)
	gt.Equal(t, seen.Load(), any("token-new"))

	// the rotated refresh token is sent next time, which this server rejects
	err = client.RefreshCredential(context.Background())
	gt.True(t, errors.Is(err, model.ErrInvalidCredential))
}

func TestGeniRefreshWithoutToken(t *testing.T) {
	client := adapter.NewGeni("token")
	err := client.RefreshCredential(context.Background())
	gt.True(t, errors.Is(err, model.ErrInvalidCredential))
}
