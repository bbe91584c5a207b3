package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const maxJSONBodyBytes = 1 << 20

const platformHeader = "X-Platform"

// decodeJSON only accepts application/json bodies, the same ones the OpenAPI
// middleware validates.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if !isJSONRequest(r) {
		if r.ContentLength == 0 {
			return domain.Fail(domain.ErrInvalidArgument, "decode body", "request body is required")
		}
		return domain.Fail(domain.ErrInvalidArgument, "decode body", "Content-Type must be application/json")
	}
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return domain.Fail(domain.ErrInvalidArgument, "decode body", "request body too large")
		case errors.Is(err, io.EOF):
			return domain.Fail(domain.ErrInvalidArgument, "decode body", "request body is required")
		default:
			return domain.Fail(domain.ErrInvalidArgument, "decode body", "invalid json body")
		}
	}
	return nil
}

func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

func userQueryFromRequest(r *http.Request) (domain.UserQuery, error) {
	var (
		q      domain.UserQuery
		page   *int
		limit  *int
		search *string
		sort   *string
	)
	values := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", values, &page); err != nil {
		return q, domain.Fail(domain.ErrInvalidArgument, "bind query", "page must be an integer")
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", values, &limit); err != nil {
		return q, domain.Fail(domain.ErrInvalidArgument, "bind query", "limit must be an integer")
	}
	if err := runtime.BindQueryParameter("form", true, false, "search", values, &search); err != nil {
		return q, domain.Fail(domain.ErrInvalidArgument, "bind query", "invalid search parameter")
	}
	if err := runtime.BindQueryParameter("form", true, false, "sort", values, &sort); err != nil {
		return q, domain.Fail(domain.ErrInvalidArgument, "bind query", "invalid sort parameter")
	}
	if page != nil {
		q.Page = *page
	}
	if limit != nil {
		q.Limit = *limit
	}
	if search != nil {
		q.Search = *search
	}
	if sort != nil {
		q.Sort = *sort
	}
	return q, nil
}

// requestContext captures where a note was written from.
func requestContext(r *http.Request) domain.RequestContext {
	platform := strings.TrimSpace(r.Header.Get(platformHeader))
	if platform == "" {
		platform = "web"
	}
	return domain.RequestContext{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Platform:  platform,
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func mustPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "missing bearer token")
	}
	return principal, ok
}
