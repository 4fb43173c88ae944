package session

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/superfly/frameRender/auth"
	"github.com/superfly/frameRender/japi"
)

type remoteOpts struct {
	client *http.Client
	signer auth.Signer
	server string
}

type RemoteOpt func(*remoteOpts)

// RemoteClient sets the HTTP client used to reach the render server.
func RemoteClient(client *http.Client) RemoteOpt {
	return func(o *remoteOpts) { o.client = client }
}

// RemoteAuth signs every request with a token for the server id.
func RemoteAuth(signer auth.Signer, server string) RemoteOpt {
	return func(o *remoteOpts) {
		o.signer = signer
		o.server = server
	}
}

// NewRemoteFactory returns a factory of sessions that render cfg
// through the render server at baseUrl.
func NewRemoteFactory(baseUrl string, cfg Config, opts ...RemoteOpt) Factory {
	o := remoteOpts{client: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	api := japi.New(baseUrl, japi.Client(o.client))
	return func(name string) Session {
		return New(name, func(ctx context.Context) (Driver, error) {
			r := &remote{ctx: ctx, api: api, cfg: cfg, opts: o}
			var info Info
			if err := r.api.Req("GET", r.reqOpts("/info", japi.ReqRespBody(&info))...).Do(ctx); err != nil {
				return nil, err
			}
			r.info = &info
			return r, nil
		})
	}
}

type remote struct {
	ctx  context.Context
	api  *japi.Api
	cfg  Config
	opts remoteOpts
	info *Info
}

func (r *remote) reqOpts(path string, extra ...japi.ReqOpt) []japi.ReqOpt {
	scale := r.cfg.Scale
	if scale <= 0 {
		scale = 1
	}
	opts := []japi.ReqOpt{
		japi.ReqPath(path),
		japi.ReqQuery("url", r.cfg.Url),
		japi.ReqQuery("alpha", strconv.FormatBool(r.cfg.Alpha)),
		japi.ReqQuery("scale", strconv.FormatFloat(scale, 'g', -1, 64)),
	}
	if r.opts.signer != nil {
		opts = append(opts, japi.ReqHeader(auth.Header, r.opts.signer(time.Now(), r.opts.server)))
	}
	return append(opts, extra...)
}

func (r *remote) Info() *Info {
	return r.info
}

func (r *remote) Render(frame int) ([]byte, error) {
	var buf []byte
	opts := r.reqOpts("/render",
		japi.ReqQuery("frame", strconv.Itoa(frame)),
		japi.ReqRespRaw(&buf))
	if err := r.api.Req("GET", opts...).Do(r.ctx); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close is a no-op, the server owns the browsers.
func (r *remote) Close() error {
	return nil
}
