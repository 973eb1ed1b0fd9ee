// Command wavewatch follows a wave over the WebSocket stream of the API. It
// either submits an instance file first or attaches to an existing wave id,
// then prints every status and step message until the wave completes.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wavepick/internal/logging"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type client struct {
	base   string
	tenant string
	role   string
	token  string
	http   *http.Client
}

func (c *client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	} else {
		h.Set("X-Tenant-Id", c.tenant)
		h.Set("X-Role", c.role)
	}
	return h
}

// submit posts the instance text as a new asynchronous wave and returns its id.
func (c *client) submit(ctx context.Context, name, instanceText, strategy string) (string, error) {
	body := map[string]any{"tenantId": c.tenant, "name": name, "instanceText": instanceText}
	if strategy != "" {
		body["options"] = map[string]any{"strategy": strategy}
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/waves", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header = c.header()
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("submit: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("submit: no wave id in response")
	}
	return out.ID, nil
}

func (c *client) wsURL(id string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/waves/" + url.PathEscape(id) + "/ws"
	return u.String(), nil
}

// watch streams the wave's messages to fn until "complete" arrives or the
// connection closes. It returns the last status payload seen.
func (c *client) watch(ctx context.Context, id string, fn func(wsMessage)) (json.RawMessage, error) {
	u, err := c.wsURL(id)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, c.header())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %s", resp.Status)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var last json.RawMessage
	for {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("read: %w", err)
		}
		fn(m)
		switch m.Type {
		case "status":
			last = m.Payload
		case "complete":
			return last, nil
		}
	}
}

func main() {
	var (
		addr     = flag.String("addr", "http://localhost:"+envOr("PORT", "8080"), "API base URL")
		tenant   = flag.String("tenant", "t_demo", "tenant id")
		role     = flag.String("role", "planner", "role sent in dev auth mode")
		token    = flag.String("token", os.Getenv("WAVEPICK_TOKEN"), "bearer token; overrides -tenant/-role headers")
		id       = flag.String("id", "", "watch an existing wave instead of submitting one")
		file     = flag.String("file", "", "instance file to submit")
		strategy = flag.String("strategy", "", "search strategy for the submitted wave")
	)
	flag.Parse()
	log := logrus.NewEntry(logging.FromEnv())

	if (*id == "") == (*file == "") {
		fmt.Fprintln(os.Stderr, "usage: wavewatch (-id WAVE | -file INSTANCE) [flags]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &client{base: strings.TrimSuffix(*addr, "/"), tenant: *tenant, role: *role, token: *token, http: &http.Client{Timeout: 30 * time.Second}}
	waveID := *id
	if waveID == "" {
		text, err := os.ReadFile(*file)
		if err != nil {
			log.WithError(err).Fatal("read instance")
		}
		waveID, err = c.submit(ctx, *file, string(text), *strategy)
		if err != nil {
			log.WithError(err).Fatal("submit wave")
		}
		log.WithField("wave", waveID).Info("wave submitted")
	}

	final, err := c.watch(ctx, waveID, func(m wsMessage) {
		log.WithField("type", m.Type).Debug(string(m.Payload))
		if m.Type == "step" || m.Type == "status" {
			fmt.Printf("%s %s\n", m.Type, m.Payload)
		}
	})
	if err != nil {
		log.WithError(err).Fatal("watch wave")
	}
	if final != nil {
		fmt.Printf("final %s\n", final)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
