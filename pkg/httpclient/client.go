package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout はリクエスト1件あたりのデフォルトのタイムアウト。
const DefaultTimeout = 30 * time.Second

// maxDrainBytes はコネクション再利用のために読み捨てるレスポンスボディの上限。
const maxDrainBytes = 4 << 10

// Client は下流サービス通信用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// timeout はWithTimeoutで指定されたタイムアウト。0の場合はhttpClientの設定をそのまま使う。
	timeout time.Duration
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout はリクエスト1件あたりのタイムアウトを設定する。
// WithHTTPClientと併用した場合は指定順によらず、渡されたクライアントの複製に適用される。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
// Transportを共有してコネクションを再利用したい場合に使用する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "http://users:5002/"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// StatusError は2xx以外のHTTPステータスを表すエラー。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Status はステータス行（例: "503 Service Unavailable"）。
	Status string
}

// Error はステータス行を返す。
func (e *StatusError) Error() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Probe は baseURL+path にGETリクエストを送信し、2xxであればnilを返す。
// 2xx以外の応答は*StatusError、通信エラーはそのまま返す。
func (c *Client) Probe(ctx context.Context, path string) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}
