package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestService_DeleteRoom(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/twirp/livekit.RoomService/DeleteRoom", r.URL.Path)

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &accessClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return []byte("secret"), nil
		})
		require.NoError(t, err)
		require.Equal(t, "key", claims.Issuer)
		require.True(t, claims.Video.RoomCreate)
		require.Equal(t, "survey-room", claims.Video.Room)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "survey-room", body["room"])
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	s, err := NewService(Settings{URL: srv.URL + "/", APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteRoom(context.Background(), "survey-room"))
	require.Equal(t, int32(1), calls.Load())
}

func TestService_DeleteRoomErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","msg":"room not found"}`))
	}))
	defer srv.Close()

	s, err := NewService(Settings{URL: srv.URL, APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)

	err = s.DeleteRoom(context.Background(), "gone")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "room not found")

	require.Error(t, s.DeleteRoom(context.Background(), " "))
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Settings{})
	require.Error(t, err)
	_, err = NewService(Settings{URL: "wss://media.example.com"})
	require.Error(t, err)

	s, err := NewService(Settings{URL: "wss://media.example.com", APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	require.Equal(t, "https://media.example.com", s.baseURL)
}
