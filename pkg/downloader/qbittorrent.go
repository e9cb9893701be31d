package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// QBittorrent accesses one qBittorrent instance over its v2 web API.
// The session cookie from /auth/login is held in the client's jar and
// refreshed transparently when the server forgets it.
type QBittorrent struct {
	name     string
	baseURL  string
	username string
	password string
	client   *http.Client

	mu       sync.Mutex
	loggedIn bool
}

func NewQBittorrent(name, baseURL, username, password string) (*QBittorrent, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid downloader url %q: %w", baseURL, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &QBittorrent{
		name:     name,
		baseURL:  baseURL,
		username: username,
		password: password,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (q *QBittorrent) Name() string {
	return q.name
}

func (q *QBittorrent) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", q.username)
	form.Set("password", q.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", q.baseURL)

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "Ok") {
		return fmt.Errorf("login rejected: status %d, body %q", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// get fetches an API path, logging in first on the initial call and
// again when the server answers 403 with a stale cookie.
func (q *QBittorrent) get(ctx context.Context, path string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.loggedIn {
		if err := q.login(ctx); err != nil {
			return nil, err
		}
		q.loggedIn = true
	}

	body, status, err := q.doGet(ctx, path)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden {
		if err := q.login(ctx); err != nil {
			q.loggedIn = false
			return nil, err
		}
		body, status, err = q.doGet(ctx, path)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, status)
	}
	return body, nil
}

func (q *QBittorrent) doGet(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (q *QBittorrent) Ping(ctx context.Context) error {
	_, err := q.get(ctx, "/api/v2/app/version")
	return err
}

func (q *QBittorrent) TransferInfo(ctx context.Context) (TransferInfo, error) {
	body, err := q.get(ctx, "/api/v2/transfer/info")
	if err != nil {
		return TransferInfo{}, err
	}
	var raw struct {
		DlInfoSpeed int64 `json:"dl_info_speed"`
		UpInfoSpeed int64 `json:"up_info_speed"`
		DlInfoData  int64 `json:"dl_info_data"`
		UpInfoData  int64 `json:"up_info_data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return TransferInfo{}, fmt.Errorf("decode transfer info: %w", err)
	}
	return TransferInfo{
		DownloadSpeed:   raw.DlInfoSpeed,
		UploadSpeed:     raw.UpInfoSpeed,
		DownloadedBytes: raw.DlInfoData,
		UploadedBytes:   raw.UpInfoData,
	}, nil
}

func (q *QBittorrent) Version(ctx context.Context) (VersionInfo, error) {
	app, err := q.get(ctx, "/api/v2/app/version")
	if err != nil {
		return VersionInfo{}, err
	}
	api, err := q.get(ctx, "/api/v2/app/webapiVersion")
	if err != nil {
		return VersionInfo{}, err
	}
	return VersionInfo{
		App:    strings.TrimSpace(string(app)),
		WebAPI: strings.TrimSpace(string(api)),
	}, nil
}
