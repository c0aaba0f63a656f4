package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/browser")

// closeTimeout bounds closing pages and browsers, closing runs after the
// fetch deadline may already have passed.
const closeTimeout = time.Second * 5

type RodOptions struct {
	// Bin is the chrome binary, when empty rod looks one up (and downloads
	// one if none is installed).
	Bin string
	// ControlUrl connects to an already running browser instead of
	// launching one.
	ControlUrl string
	Headless   bool
}

type RodLauncher struct {
	opts RodOptions
}

func NewRodLauncher(opts RodOptions) RodLauncher {
	return RodLauncher{opts: opts}
}

func (l RodLauncher) Launch(ctx context.Context) (Browser, error) {
	ctx, span := tracer.Start(ctx, "rod:Launch")
	defer span.End()

	controlUrl := l.opts.ControlUrl
	var local *launcher.Launcher
	if controlUrl == "" {
		// not bound to ctx, the process must outlive the request that started it.
		local = launcher.New().
			Headless(l.opts.Headless).
			NoSandbox(true).
			Set("disable-setuid-sandbox")
		if l.opts.Bin != "" {
			local = local.Bin(l.opts.Bin)
		}

		var err error
		controlUrl, err = local.Launch()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to launch chrome")
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
	} else {
		resolved, err := launcher.ResolveURL(controlUrl)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve control url")
			return nil, fmt.Errorf("resolve control url: %w", err)
		}
		controlUrl = resolved
	}
	span.SetAttributes(attribute.String("browser.control_url", controlUrl))

	fail := func(err error, message string) (Browser, error) {
		if local != nil {
			local.Kill()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
		return nil, fmt.Errorf("%s: %w", message, err)
	}

	// the websocket is owned here so that a browser this process did not
	// launch can be disconnected from without closing it.
	conn := &cdp.WebSocket{}
	err := conn.Connect(ctx, controlUrl, nil)
	if err != nil {
		return fail(err, "connect to chrome")
	}
	b := rod.New().Client(cdp.New().Start(conn))
	err = b.Connect()
	if err != nil {
		conn.Close()
		return fail(err, "connect to chrome")
	}

	slog.InfoContext(ctx, "chrome browser connected", "control_url", controlUrl, "launched", local != nil)
	return &rodBrowser{browser: b, conn: conn, launcher: local}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	conn     io.Closer
	// launcher is nil when connected to an external browser.
	launcher *launcher.Launcher
}

func (b *rodBrowser) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	ctx, span := tracer.Start(ctx, "rod:NewPage")
	defer span.End()

	// every setup call is bound to ctx, a chrome that stops answering
	// must not hold up the caller past its deadline.
	setup, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create page")
		return nil, err
	}
	p := &rodPage{page: setup.Context(context.Background())}

	fail := func(err error, message string) (Page, error) {
		closeErr := p.Close()
		if closeErr != nil {
			slog.WarnContext(ctx, "failed to close page after setup error", "err", closeErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
		return nil, err
	}

	err = proto.NetworkEnable{}.Call(setup)
	if err != nil {
		return fail(err, "failed to enable network domain")
	}

	if opts.Policy != nil {
		router := setup.HijackRequests()
		p.router = router
		err = router.Add("*", "", func(h *rod.Hijack) {
			kind := ParseResourceKind(string(h.Request.Type()))
			if opts.Policy(kind) {
				h.ContinueRequest(&proto.FetchContinueRequest{})
				return
			}
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
		if err != nil {
			return fail(err, "failed to install request policy")
		}
		go router.Run()
	}

	if opts.UserAgent != "" {
		err = setup.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent})
		if err != nil {
			return fail(err, "failed to set user agent")
		}
	}

	return p, nil
}

func (b *rodBrowser) Close() error {
	if b.launcher == nil {
		return b.conn.Close()
	}

	err := b.browser.Timeout(closeTimeout).Close()
	if err != nil {
		b.launcher.Kill()
	}
	b.launcher.Cleanup()
	b.conn.Close()
	return err
}

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
}

func (p *rodPage) Navigate(ctx context.Context, url string) (Response, error) {
	ctx, span := tracer.Start(ctx, "rod:Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", url))

	// cancelling unsubscribes the event listeners below if navigation fails early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	page := p.page.Context(ctx)

	var res Response
	var documentId proto.NetworkRequestID
	var loadErr error
	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Type != proto.NetworkResourceTypeDocument || documentId != "" {
				return
			}
			documentId = e.RequestID
			res.Status = e.Response.Status
			res.Url = e.Response.URL
			res.ContentType = e.Response.MIMEType
		},
		func(e *proto.NetworkLoadingFinished) bool {
			return documentId != "" && e.RequestID == documentId
		},
		func(e *proto.NetworkLoadingFailed) bool {
			if e.Type != proto.NetworkResourceTypeDocument {
				return false
			}
			loadErr = fmt.Errorf("load document: %s", e.ErrorText)
			return true
		},
	)

	err := page.Navigate(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate")
		return Response{}, err
	}
	wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "navigation did not finish")
		return Response{}, err
	}
	if loadErr != nil {
		span.RecordError(loadErr)
		span.SetStatus(codes.Error, "document failed to load")
		return Response{}, loadErr
	}

	body, err := proto.NetworkGetResponseBody{RequestID: documentId}.Call(page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response body")
		return Response{}, err
	}
	if body.Base64Encoded {
		res.Body, err = base64.StdEncoding.DecodeString(body.Body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to decode response body")
			return Response{}, err
		}
	} else {
		res.Body = []byte(body.Body)
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", res.Status),
		attribute.Int("http.response.body.size", len(res.Body)),
	)
	return res, nil
}

func (p *rodPage) Close() error {
	var errs []error
	if p.router != nil {
		errs = append(errs, p.router.Stop())
	}
	errs = append(errs, p.page.Timeout(closeTimeout).Close())
	return errors.Join(errs...)
}
