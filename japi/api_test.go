package japi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestNilErr(t *testing.T) {
	var err error
	assert.False(t, ErrorIsStatus(err, http.StatusPreconditionFailed))
}

func TestReq(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			assert.Equal(t, "secret", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"frame": r.URL.Query().Get("frame")})
		case "/raw":
			w.Write([]byte{1, 2, 3})
		default:
			http.Error(w, "nope", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	api := New(srv.URL, Header("Authorization", "secret"))
	ctx := context.Background()

	var resp map[string]string
	err := api.Req("GET", ReqPath("/json"), ReqQuery("frame", "7"), ReqRespBody(&resp)).Do(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "7", resp["frame"])

	var raw []byte
	err = api.Req("GET", ReqPath("/%s", "raw"), ReqRespRaw(&raw)).Do(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	err = api.Req("GET", ReqPath("/missing")).Do(ctx)
	assert.Error(t, err)
	assert.True(t, ErrorIsStatus(err, http.StatusTeapot))
	assert.False(t, ErrorIsStatus(err, http.StatusOK))
}
