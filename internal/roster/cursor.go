package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/httpclient"
)

// Cursor walks the pages of one tenant's remote roster. HasMore is true
// before the first call to Next, so at least one request is always issued.
type Cursor interface {
	HasMore() bool
	Next(ctx context.Context) ([]RemoteMember, error)
	// Position describes the page the next call to Next will request.
	Position() string
}

// offsetCursor pages with a POSTed start offset and reads the declared
// total from every response.
type offsetCursor struct {
	client  *Client
	token   *oauth2.Token
	offset  int
	total   int
	started bool
}

func (c *offsetCursor) HasMore() bool {
	return !c.started || c.offset < c.total
}

func (c *offsetCursor) Position() string {
	return "offset " + strconv.Itoa(c.offset)
}

func (c *offsetCursor) Next(ctx context.Context) ([]RemoteMember, error) {
	req := offsetRequest{
		StatusCode: c.client.cfg.StatusCode,
		Offset:     c.offset,
		PageSize:   c.client.cfg.PageSize,
	}

	body, err := c.client.fetch(ctx, c.Position(), func(ctx context.Context) ([]byte, error) {
		return c.client.http.PostJSON(ctx, c.client.cfg.ListURL, req, httpclient.WithToken(c.token))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Position(), err)
	}

	var resp offsetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", c.Position(), ErrMalformedResponse, err)
	}
	if resp.Total == nil {
		return nil, fmt.Errorf("%s: %w: missing total_associados", c.Position(), ErrMalformedResponse)
	}

	c.started = true
	c.total = int(*resp.Total)
	if len(resp.Members) == 0 && c.offset < c.total {
		return nil, fmt.Errorf("%s: %w: empty page before declared total %d",
			c.Position(), ErrMalformedResponse, c.total)
	}
	c.offset += len(resp.Members)
	return resp.Members, nil
}

// pageCursor reads the page count from a metadata endpoint, then GETs
// pages 1..P. Page 1 is requested even when P is zero.
type pageCursor struct {
	client     *Client
	token      *oauth2.Token
	page       int
	totalPages int
	started    bool
}

func (c *pageCursor) HasMore() bool {
	return !c.started || c.page <= c.totalPages
}

func (c *pageCursor) Position() string {
	return "page " + strconv.Itoa(c.page)
}

func (c *pageCursor) Next(ctx context.Context) ([]RemoteMember, error) {
	if !c.started {
		if err := c.loadMetadata(ctx); err != nil {
			return nil, err
		}
	}

	url := strings.TrimRight(c.client.cfg.ListURL, "/") + "/" + strconv.Itoa(c.page)
	body, err := c.client.fetch(ctx, c.Position(), func(ctx context.Context) ([]byte, error) {
		return c.client.http.Get(ctx, url, httpclient.WithToken(c.token))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Position(), err)
	}

	members, err := decodeMemberPage(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", c.Position(), ErrMalformedResponse, err)
	}

	c.started = true
	c.page++
	return members, nil
}

func (c *pageCursor) loadMetadata(ctx context.Context) error {
	body, err := c.client.fetch(ctx, "pagination", func(ctx context.Context) ([]byte, error) {
		return c.client.http.Get(ctx, c.client.cfg.PaginationURL, httpclient.WithToken(c.token))
	})
	if err != nil {
		return fmt.Errorf("pagination metadata: %w", err)
	}

	var meta paginationResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return fmt.Errorf("pagination metadata: %w: %v", ErrMalformedResponse, err)
	}
	if meta.TotalPages == nil {
		return fmt.Errorf("pagination metadata: %w: missing quantidade_paginas", ErrMalformedResponse)
	}
	c.totalPages = int(*meta.TotalPages)
	c.page = 1
	return nil
}

// decodeMemberPage accepts either a bare array or an object wrapping the
// array under "associados".
func decodeMemberPage(body []byte) ([]RemoteMember, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	switch trimmed[0] {
	case '[':
		var members []RemoteMember
		if err := json.Unmarshal(trimmed, &members); err != nil {
			return nil, err
		}
		return members, nil
	case '{':
		var wrapped struct {
			Members []RemoteMember `json:"associados"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Members, nil
	default:
		return nil, fmt.Errorf("unexpected body starting with %q", trimmed[0])
	}
}
