package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugang-app/apiserver/config"
	"github.com/sugang-app/apiserver/internal/mq"
	"github.com/sugang-app/apiserver/internal/registration"
)

type stubPublisher struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
}

func (p *stubPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.channel = channel
	p.data = data
	p.attrs = attrs
	return "msg-1", nil
}

func newTestRegistrationHandler(publisher registration.Publisher) *RegistrationHandler {
	producer := registration.NewProducer(publisher, config.RegistrationConfig{
		Channel:       "course-actions",
		OrderingGroup: "CourseActionsGroup",
	}, nil)
	return NewRegistrationHandler(producer, nil, nil)
}

func authedRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(r.Context(), contextSubjectKey, "20240001")
	return r.WithContext(ctx)
}

func TestSubmitEnqueuesIntent(t *testing.T) {
	publisher := &stubPublisher{}
	handler := newTestRegistrationHandler(publisher)

	r := authedRequest(http.MethodPost, "/registrations", `{"courseId":"c1","action":"register"}`)
	w := httptest.NewRecorder()
	handler.Submit(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.RequestID)
	require.Equal(t, resp.RequestID, publisher.attrs[mq.AttrDedupKey])

	// The student comes from the token, never the body.
	require.JSONEq(t, `{"action":"register","studentId":"20240001","courseId":"c1"}`, string(publisher.data))
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	publisher := &stubPublisher{}
	handler := newTestRegistrationHandler(publisher)

	// No auth subject in context.
	r := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(`{"courseId":"c1","action":"register"}`))
	w := httptest.NewRecorder()
	handler.Submit(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = authedRequest(http.MethodPost, "/registrations", `{"courseId":"c1","action":"enroll"}`)
	w = httptest.NewRecorder()
	handler.Submit(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)

	r = authedRequest(http.MethodPost, "/registrations", `{"action":"register"}`)
	w = httptest.NewRecorder()
	handler.Submit(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Nil(t, publisher.data)
}

func TestLegacySubmit(t *testing.T) {
	publisher := &stubPublisher{}
	handler := newTestRegistrationHandler(publisher)

	r := httptest.NewRequest(http.MethodPost, "/register-course", strings.NewReader(`{"studentId":"s1","courseId":"c1"}`))
	w := httptest.NewRecorder()
	handler.LegacySubmit("register")(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"action":"register","studentId":"s1","courseId":"c1"}`, string(publisher.data))
}

func TestLegacySubmitErrorMapping(t *testing.T) {
	// Missing fields are the client's fault; a broker failure is not.
	handler := newTestRegistrationHandler(&stubPublisher{})
	r := httptest.NewRequest(http.MethodPost, "/register-course", strings.NewReader(`{"studentId":"s1"}`))
	w := httptest.NewRecorder()
	handler.LegacySubmit("register")(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)

	handler = newTestRegistrationHandler(&stubPublisher{err: errors.New("broker down")})
	r = httptest.NewRequest(http.MethodPost, "/register-course", strings.NewReader(`{"studentId":"s1","courseId":"c1"}`))
	w = httptest.NewRecorder()
	handler.LegacySubmit("register")(w, r)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
