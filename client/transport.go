package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	errors "github.com/goliatone/go-errors"

	"github.com/CherifSy/divide"
)

// transport performs the wire calls of the protocol against a server
// base URL. Each call is a single request/response exchange; retries are
// the caller's decision.
type transport struct {
	baseURL string
	scheme  string
	http    *http.Client
}

func newTransport(baseURL string, httpClient *http.Client) *transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &transport{
		baseURL: baseURL,
		scheme:  divide.AuthScheme,
		http:    httpClient,
	}
}

// signUp POSTs credentials and returns the sanitized record plus the
// out-of-band recovery token.
func (t *transport) signUp(ctx context.Context, creds *divide.Record) (*divide.Record, string, error) {
	return t.sendCredentials(ctx, http.MethodPost, creds)
}

// login PUTs credentials and returns the sanitized record.
func (t *transport) login(ctx context.Context, creds *divide.Record) (*divide.Record, error) {
	record, _, err := t.sendCredentials(ctx, http.MethodPut, creds)
	return record, err
}

func (t *transport) sendCredentials(ctx context.Context, method string, creds *divide.Record) (*divide.Record, string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, "", divide.ErrMalformedPayload
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", decodeError(res)
	}

	record := new(divide.Record)
	if err := json.NewDecoder(res.Body).Decode(record); err != nil {
		return nil, "", divide.ErrMalformedPayload
	}

	return record, res.Header.Get(divide.RecoveryTokenHeader), nil
}

// publicKey fetches the server's raw public key bytes.
func (t *transport) publicKey(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/auth/key", nil)
	if err != nil {
		return nil, err
	}

	res, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}

	return io.ReadAll(res.Body)
}

// fromToken resolves a stored auth token back into its record.
func (t *transport) fromToken(ctx context.Context, token string) (*divide.Record, error) {
	record, _, err := t.getRecord(ctx, "/auth/from/"+token)
	return record, err
}

// recoverFromToken redeems a one-time recovery token, returning the new
// record and replacement recovery token.
func (t *transport) recoverFromToken(ctx context.Context, token string) (*divide.Record, string, error) {
	return t.getRecord(ctx, "/auth/recover/"+token)
}

func (t *transport) getRecord(ctx context.Context, path string) (*divide.Record, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, "", err
	}

	res, err := t.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", decodeError(res)
	}

	record := new(divide.Record)
	if err := json.NewDecoder(res.Body).Decode(record); err != nil {
		return nil, "", divide.ErrMalformedPayload
	}

	return record, res.Header.Get(divide.RecoveryTokenHeader), nil
}

// saveUserData overwrites the authenticated caller's user data bag.
func (t *transport) saveUserData(ctx context.Context, token string, data map[string]any) (*divide.Record, error) {
	payload := &divide.Record{UserData: data}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, divide.ErrMalformedPayload
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/auth/user/data", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req, token)

	res, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}

	record := new(divide.Record)
	if err := json.NewDecoder(res.Body).Decode(record); err != nil {
		return nil, divide.ErrMalformedPayload
	}

	return record, nil
}

// fetchUserData retrieves a user data bag. A positive ownerID names the
// account to read; zero reads the authenticated caller's own.
func (t *transport) fetchUserData(ctx context.Context, token string, ownerID int64) (map[string]any, error) {
	var body io.Reader
	if ownerID > 0 {
		body = strings.NewReader(strconv.FormatInt(ownerID, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/auth/user/data", body)
	if err != nil {
		return nil, err
	}
	t.authorize(req, token)

	res, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}

	data := map[string]any{}
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, divide.ErrMalformedPayload
	}

	return data, nil
}

// registerPushKey attaches a push messaging key to the caller's record.
func (t *transport) registerPushKey(ctx context.Context, token, key string) error {
	return t.pushKeyRequest(ctx, http.MethodPost, "/auth/user/push/"+key, token)
}

// unregisterPushKey clears the caller's push messaging key.
func (t *transport) unregisterPushKey(ctx context.Context, token string) error {
	return t.pushKeyRequest(ctx, http.MethodDelete, "/auth/user/push", token)
}

func (t *transport) pushKeyRequest(ctx context.Context, method, path, token string) error {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, nil)
	if err != nil {
		return err
	}
	t.authorize(req, token)

	res, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return decodeError(res)
	}

	return nil
}

func (t *transport) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", t.scheme+" "+token)
}

type wireError struct {
	Error struct {
		Message  string `json:"message"`
		TextCode string `json:"text_code"`
	} `json:"error"`
}

// decodeError reconstructs a categorized error from a failed response.
func decodeError(res *http.Response) error {
	message := fmt.Sprintf("request failed with status %d", res.StatusCode)
	textCode := ""

	var wire wireError
	if err := json.NewDecoder(res.Body).Decode(&wire); err == nil && wire.Error.Message != "" {
		message = wire.Error.Message
		textCode = wire.Error.TextCode
	}

	category := errors.CategoryInternal
	switch {
	case res.StatusCode == http.StatusUnauthorized:
		category = errors.CategoryAuth
	case res.StatusCode == http.StatusConflict:
		category = errors.CategoryConflict
	case res.StatusCode == http.StatusNotFound:
		category = errors.CategoryNotFound
	case res.StatusCode >= 400 && res.StatusCode < 500:
		category = errors.CategoryBadInput
	}

	err := errors.New(message, category).WithCode(res.StatusCode)
	if textCode != "" {
		err = err.WithTextCode(textCode)
	}

	return err
}
