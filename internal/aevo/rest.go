package aevo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// REST signs private requests with the AEVO-KEY/AEVO-TIMESTAMP/AEVO-SIGNATURE
// header triple.
type REST struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       *zap.Logger
	now       func() time.Time
}

func NewREST(baseURL, apiKey, apiSecret string, timeout time.Duration, log *zap.Logger) *REST {
	if log == nil {
		log = zap.NewNop()
	}
	return &REST{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
		log:       log,
		now:       time.Now,
	}
}

func (r *REST) Get(ctx context.Context, path string, private bool, out any) error {
	return r.do(ctx, http.MethodGet, path, nil, private, out)
}

func (r *REST) Post(ctx context.Context, path string, body any, out any) error {
	return r.do(ctx, http.MethodPost, path, body, true, out)
}

func (r *REST) do(ctx context.Context, method, path string, body any, private bool, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if private {
		ts := strconv.FormatInt(r.now().UnixNano(), 10)
		req.Header.Set("AEVO-KEY", r.apiKey)
		req.Header.Set("AEVO-TIMESTAMP", ts)
		req.Header.Set("AEVO-SIGNATURE", requestSignature(r.apiKey, r.apiSecret, ts, method, path, payload))
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("aevo %s %s: http %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// requestSignature is hex(HMAC-SHA256(secret, "key,ts,METHOD,path,body")).
func requestSignature(apiKey, apiSecret, ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(strings.Join([]string{apiKey, ts, strings.ToUpper(method), path, string(body)}, ",")))
	return hex.EncodeToString(mac.Sum(nil))
}
