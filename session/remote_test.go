package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/superfly/frameRender/auth"
	"github.com/superfly/frameRender/japi"
)

func TestRemote(t *testing.T) {
	pub, priv, err := auth.GenKeypair()
	assert.NoError(t, err)
	signer, err := auth.NewSigner(priv)
	assert.NoError(t, err)
	verifier, err := auth.NewVerifier(pub, "render-1", time.Minute, nil)
	assert.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verifier(time.Now(), r.Header.Get(auth.Header)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("url") != "mock://scene" || q.Get("alpha") != "true" || q.Get("scale") != "1.5" {
			http.Error(w, "bad config", http.StatusBadRequest)
			return
		}

		switch r.URL.Path {
		case "/info":
			json.NewEncoder(w).Encode(testScene)
		case "/render":
			if q.Get("frame") == "13" {
				http.Error(w, "scene threw", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("frame " + q.Get("frame")))
		}
	}))
	defer srv.Close()

	cfg := Config{Url: "mock://scene", Alpha: true, Scale: 1.5}
	factory := NewRemoteFactory(srv.URL, cfg, RemoteAuth(signer, "render-1"))
	s := factory("remote-1")
	defer s.End()

	ctx := context.Background()
	info, err := s.Info(ctx)
	assert.NoError(t, err)
	assert.Equal(t, testScene.Width, info.Width)

	buf, err := s.Render(ctx, 4)
	assert.NoError(t, err)
	assert.Equal(t, "frame 4", string(buf))

	_, err = s.Render(ctx, 13)
	var rerr *RenderError
	assert.True(t, errors.As(err, &rerr))
	assert.True(t, japi.ErrorIsStatus(err, http.StatusInternalServerError))

	// a session with the wrong server id cannot start.
	bad := NewRemoteFactory(srv.URL, cfg, RemoteAuth(signer, "render-2"))("remote-2")
	defer bad.End()
	_, err = bad.Info(ctx)
	var ierr *InitError
	assert.True(t, errors.As(err, &ierr))
	assert.True(t, japi.ErrorIsStatus(err, http.StatusUnauthorized))
}
