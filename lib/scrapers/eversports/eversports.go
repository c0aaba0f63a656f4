package eversports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"padelslots-backend/lib/browser"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultBaseUrl    = "https://www.eversports.at"
	DefaultFacilityId = "82679"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

var DefaultCourts = []string{"110271", "110272", "110273"}

// Endpoint describes the slot api of a single facility.
type Endpoint struct {
	BaseUrl    string
	FacilityId string
	Courts     []string
}

func DefaultEndpoint() Endpoint {
	return Endpoint{
		BaseUrl:    DefaultBaseUrl,
		FacilityId: DefaultFacilityId,
		Courts:     DefaultCourts,
	}
}

// escape matches javascript's encodeURIComponent closely enough for dates.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// SlotUrl returns the slot api url for the given start date. The parameter
// order is kept stable so the url is identical to what the site itself requests.
func (e Endpoint) SlotUrl(startDate string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(e.BaseUrl, "/"))
	b.WriteString("/api/slot?facilityId=")
	b.WriteString(escape(e.FacilityId))
	b.WriteString("&startDate=")
	b.WriteString(escape(startDate))
	for _, court := range e.Courts {
		b.WriteString("&courts%5B%5D=")
		b.WriteString(escape(court))
	}
	return b.String()
}

// StatusError is returned when the upstream answered with a non 2xx status.
type StatusError struct {
	Status int
	Title  string
}

func (e *StatusError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("upstream responded with status %d (%s)", e.Status, e.Title)
	}
	return fmt.Sprintf("upstream responded with status %d", e.Status)
}

// NotJSONError is returned when the body of a successful response is not json,
// this is usually a bot challenge or maintenance page.
type NotJSONError struct {
	ContentType string
	Title       string
}

func (e *NotJSONError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("upstream returned a non-json page: %q", e.Title)
	}
	return fmt.Sprintf("upstream returned a non-json body (content-type %q)", e.ContentType)
}

// pageTitle returns the <title> of an html body, or "" if there is none.
func pageTitle(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// DecodeResponse validates a slot api response and returns its body as-is.
func DecodeResponse(res browser.Response) (json.RawMessage, error) {
	if res.Status < 200 || res.Status > 299 {
		return nil, &StatusError{Status: res.Status, Title: pageTitle(res.Body)}
	}
	body := bytes.TrimSpace(res.Body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, &NotJSONError{ContentType: res.ContentType, Title: pageTitle(res.Body)}
	}
	return json.RawMessage(body), nil
}
