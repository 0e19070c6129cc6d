// Package room talks to the room-management API of the media server that bridges
// the phone call. Only the calls the survey agent needs are implemented.
package room

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deleter tears down a room and disconnects every participant in it.
type Deleter interface {
	DeleteRoom(ctx context.Context, name string) error
}

type Settings struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api-key"`
	APISecret string `mapstructure:"api-secret"`
	// RetryMax is the number of extra attempts on transport errors and 5xx answers.
	RetryMax int `mapstructure:"retry-max"`
}

// Service is a client for a LiveKit-compatible Twirp RoomService.
type Service struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *retryablehttp.Client
	tokenTTL  time.Duration
}

var _ Deleter = &Service{}

func NewService(s Settings) (*Service, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("room service: empty url")
	}
	if s.APIKey == "" || s.APISecret == "" {
		return nil, errors.New("room service: api key and secret are required")
	}
	base := strings.TrimRight(s.URL, "/")
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.Replace(base, "ws://", "http://", 1)

	client := retryablehttp.NewClient()
	client.RetryMax = s.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &Service{
		baseURL:   base,
		apiKey:    s.APIKey,
		apiSecret: s.APISecret,
		client:    client,
		tokenTTL:  10 * time.Minute,
	}, nil
}

type videoGrant struct {
	RoomCreate bool   `json:"roomCreate,omitempty"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	Room       string `json:"room,omitempty"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
}

// token signs a short-lived admin token scoped to room.
func (s *Service) token(room string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		Video: videoGrant{RoomCreate: true, RoomAdmin: true, Room: room},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.apiSecret))
	return signed, errors.Wrap(err, "room service: sign token")
}

func (s *Service) DeleteRoom(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("room service: empty room name")
	}
	body, err := json.Marshal(map[string]string{"room": name})
	if err != nil {
		return errors.Wrap(err, "room service: marshal request")
	}
	return s.call(ctx, "DeleteRoom", name, body)
}

func (s *Service) call(ctx context.Context, method string, room string, body []byte) error {
	token, err := s.token(room)
	if err != nil {
		return err
	}
	url := s.baseURL + "/twirp/livekit.RoomService/" + method
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "room service: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "room service: %s", method)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	log.Debug().Str("method", method).Str("room", room).Msg("room service call succeeded")
	return nil
}

// APIError is a non-2xx answer from the room service.
type APIError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "room service: " + e.Method + " returned " + http.StatusText(e.StatusCode) + ": " + e.Body
}
