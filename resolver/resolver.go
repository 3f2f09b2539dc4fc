// Package resolver implements spec 4.7: a client that drives the LoST
// redirect/proxy protocol on behalf of applications, and doubles as the
// engine's peer-proxy HTTP client (spec 4.5.2 step 6) via its Proxy method.
package resolver

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/go-redis/redis"

	"github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/xmlcodec"
)

// Client is both the spec 4.7 application-facing resolver and an
// engine.PeerProxier. A single HTTP client and (optional) Redis-backed
// in-flight de-duplication cache are shared across every call, matching the
// "process-global, initialized once" resource model of spec 5.
type Client struct {
	HTTP *http.Client

	// MaxRedirectHops bounds redirect-following in Find (spec 4.7: "up to a
	// caller-defined hop limit").
	MaxRedirectHops int

	// dedup, when non-nil, holds a short-lived in-flight lock per identical
	// peer call (DOMAIN STACK: github.com/go-redis/redis); a call that finds
	// the lock taken is delayed briefly and then still made on its own. It
	// is never an answer cache and no response is shared between calls.
	dedup *redis.Client
}

// New returns a Client with sane defaults. redisAddr may be empty to disable
// the in-flight de-duplication cache entirely.
func New(httpClient *http.Client, maxHops int, redisAddr string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if maxHops <= 0 {
		maxHops = 10
	}

	c := &Client{HTTP: httpClient, MaxRedirectHops: maxHops}
	if redisAddr != "" {
		c.dedup = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return c
}

// Proxy POSTs body to peerURL and returns the raw response (engine.PeerProxier).
func (c *Client) Proxy(ctx context.Context, peerURL string, body []byte, timeout time.Duration) ([]byte, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lockKey := dedupKey(peerURL, body)
	if c.dedup != nil {
		acquired, err := c.dedup.SetNX(lockKey, "1", 2*time.Second).Result()
		if err == nil && !acquired {
			// Another goroutine is already driving an identical call; wait
			// briefly, then make this call anyway. Its result is not shared.
			time.Sleep(50 * time.Millisecond)
		}
		defer c.dedup.Del(lockKey)
	}

	req, err := http.NewRequest(http.MethodPost, peerURL, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", lost.MIMEType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unsupported HTTP status code: %d", resp.StatusCode)
	}

	return respBody, contentTypeOf(resp), nil
}

func contentTypeOf(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	for i, r := range ct {
		if r == ';' {
			return ct[:i]
		}
	}
	return ct
}

func dedupKey(peerURL string, body []byte) string {
	h := sha1.New()
	h.Write([]byte(peerURL))
	h.Write(body)
	return "lost:inflight:" + hex.EncodeToString(h.Sum(nil))
}

// Find builds and submits a findService/findIntersect request for g against
// service at serverURL, following redirects up to MaxRedirectHops and
// raising the typed error named by the first <errors> child (spec 4.7).
func (c *Client) Find(ctx context.Context, serverURL, service string, g *geom.Geometry, intersect bool, recursive bool, reference bool) ([]string, error) {
	visited := map[string]bool{}
	target := serverURL

	for hop := 0; ; hop++ {
		if hop > c.MaxRedirectHops {
			return nil, errors.ServerError("exceeded %d redirect hops resolving %q", c.MaxRedirectHops, service)
		}
		if visited[target] {
			return nil, errors.Loop(target)
		}
		visited[target] = true

		body := buildRequest(service, g, intersect, recursive, reference)
		respBody, contentType, err := c.Proxy(ctx, target, body, 0)
		if err != nil {
			return nil, errors.ServerError("request to %q failed: %v", target, err)
		}
		if contentType != lost.MIMEType {
			return nil, errors.ServerError("unsupported content type %q from %q", contentType, target)
		}

		if kind, msg, ok := xmlcodec.ParseErrors(respBody); ok {
			k, known := errors.ParseKind(kind)
			if !known {
				k = errors.KindServerError
			}
			return nil, errors.FromKind(k, msg)
		}

		if redirectTarget, ok := xmlcodec.ParseRedirect(respBody); ok {
			target = redirectTarget
			continue
		}

		uris, ok := xmlcodec.ParseMappingURIs(respBody)
		if !ok {
			return nil, errors.ServerError("unrecognized response document from %q", target)
		}
		return uris, nil
	}
}

// FindService is the spec 4.7 findService entry point.
func (c *Client) FindService(ctx context.Context, serverURL, service string, g *geom.Geometry, recursive, reference bool) ([]string, error) {
	return c.Find(ctx, serverURL, service, g, false, recursive, reference)
}

// FindIntersect is the spec 4.7 findIntersect entry point.
func (c *Client) FindIntersect(ctx context.Context, serverURL, service string, g *geom.Geometry, recursive, reference bool) ([]string, error) {
	return c.Find(ctx, serverURL, service, g, true, recursive, reference)
}

func buildRequest(service string, g *geom.Geometry, intersect, recursive, reference bool) []byte {
	op := "findService"
	locTag := "location"
	if intersect {
		op = "findIntersect"
		locTag = "interest"
	}

	boundary := "value"
	if reference {
		boundary = "reference"
	}

	return []byte(fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<%s xmlns="%s" xmlns:gml="%s" recursive="%t" serviceBoundary="%s">`+
			`<%s profile="%s">%s</%s>`+
			`<service>%s</service>`+
			`</%s>`,
		op, lost.Namespace, lost.GMLNamespace, recursive, boundary,
		locTag, lost.ProfileGeodetic2D, geom.ToGML(g), locTag,
		service, op))
}
