package browser

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"
	"padelslots-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// HttpLauncher is a Launcher without a real browser: pages are plain http
// requests over a transport that mimics a browser's tls fingerprint. It
// cannot run scripts, so it only helps when the upstream bot protection
// does not require a javascript challenge.
type HttpLauncher struct {
	Timeout time.Duration
}

func (l HttpLauncher) Launch(ctx context.Context) (Browser, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "lib/browser/http")
	return httpBrowser{client: client}, nil
}

type httpBrowser struct {
	client *resty.Client
}

func (b httpBrowser) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	return httpPage{client: b.client, opts: opts}, nil
}

func (b httpBrowser) Close() error {
	return nil
}

type httpPage struct {
	client *resty.Client
	opts   PageOptions
}

func (p httpPage) Navigate(ctx context.Context, url string) (Response, error) {
	if p.opts.Policy != nil && !p.opts.Policy(KindDocument) {
		return Response{}, fmt.Errorf("document requests are blocked by the page policy")
	}

	req := p.client.R().SetContext(ctx)
	if p.opts.UserAgent != "" {
		req.SetHeader("user-agent", p.opts.UserAgent)
	}
	res, err := req.Get(url)
	if err != nil {
		return Response{}, err
	}

	finalUrl := url
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	return Response{
		Status:      res.StatusCode(),
		Url:         finalUrl,
		ContentType: res.Header().Get("content-type"),
		Body:        res.Body(),
	}, nil
}

func (p httpPage) Close() error {
	return nil
}
