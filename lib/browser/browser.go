// Package browser abstracts the small slice of browser automation the
// scrapers need: open a page with a request policy and a user agent,
// navigate to one url and read back the document response.
package browser

import (
	"context"
	"strings"
)

type ResourceKind string

const (
	KindDocument   ResourceKind = "document"
	KindStylesheet ResourceKind = "stylesheet"
	KindImage      ResourceKind = "image"
	KindMedia      ResourceKind = "media"
	KindFont       ResourceKind = "font"
	KindScript     ResourceKind = "script"
	KindXHR        ResourceKind = "xhr"
	KindFetch      ResourceKind = "fetch"
	KindWebSocket  ResourceKind = "websocket"
	KindOther      ResourceKind = "other"
)

// ParseResourceKind normalizes an engine specific resource type name
// ("Document", "XHR", ...) into a ResourceKind.
func ParseResourceKind(name string) ResourceKind {
	return ResourceKind(strings.ToLower(name))
}

// ResourcePolicy decides if a subresource request made by a page may proceed.
type ResourcePolicy func(kind ResourceKind) bool

// AllowKinds returns a policy that only lets the given kinds through.
func AllowKinds(kinds ...ResourceKind) ResourcePolicy {
	allowed := make(map[ResourceKind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return func(kind ResourceKind) bool {
		_, ok := allowed[kind]
		return ok
	}
}

// DefaultResourcePolicy lets documents, scripts and xhr/fetch calls through,
// everything else (images, stylesheets, fonts, media, ...) is aborted.
var DefaultResourcePolicy = AllowKinds(KindDocument, KindScript, KindXHR, KindFetch)

type PageOptions struct {
	UserAgent string
	// Policy may be nil, in which case every request is allowed.
	Policy ResourcePolicy
}

// Response is the final document response of a navigation.
type Response struct {
	Status      int
	Url         string
	ContentType string
	Body        []byte
}

type Page interface {
	// Navigate loads url and returns the document response once its body
	// has finished loading.
	Navigate(ctx context.Context, url string) (Response, error)
	Close() error
}

type Browser interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) {
	return f(ctx)
}
