/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-loadguard/admission"
)

const testErrDomain = "TestService"

func newTestController(t *testing.T, cfg *admission.Config) *admission.Controller {
	t.Helper()
	c, err := admission.New(cfg)
	require.NoError(t, err)
	return c
}

func TestAdmissionMiddlewareAdmitsAndRecords(t *testing.T) {
	controller := newTestController(t, &admission.Config{
		Capacity:   10,
		RefillRate: admission.Rate{Count: 10, Duration: time.Second},
		MinRate:    admission.Rate{Count: 1, Duration: time.Second},
		MaxRate:    admission.Rate{Count: 100, Duration: time.Second},
	})
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	})
	handler := Admission(controller, testErrDomain)(next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusNoContent, resp.Code)

	stats := controller.Stats()
	require.EqualValues(t, 1, stats.Admitted)
	require.Equal(t, 1, stats.Samples, "latency of the admitted request should be recorded")
	require.Equal(t, 0.0, stats.ErrorRate)
}

func TestAdmissionMiddlewareRecordsServerErrors(t *testing.T) {
	controller := newTestController(t, &admission.Config{
		Capacity:   10,
		RefillRate: admission.Rate{Count: 10, Duration: time.Second},
		MinRate:    admission.Rate{Count: 1, Duration: time.Second},
		MaxRate:    admission.Rate{Count: 100, Duration: time.Second},
	})
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusBadGateway)
	})
	handler := Admission(controller, testErrDomain)(next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusBadGateway, resp.Code)
	require.Equal(t, 1.0, controller.Stats().ErrorRate, "5xx responses should count as failures")
}

func TestAdmissionMiddlewareRejects(t *testing.T) {
	controller := newTestController(t, &admission.Config{
		Capacity:   1,
		RefillRate: admission.Rate{Count: 1, Duration: time.Hour},
		MinRate:    admission.Rate{Count: 1, Duration: time.Hour},
		MaxRate:    admission.Rate{Count: 100, Duration: time.Second},
	})
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	handler := Admission(controller, testErrDomain)(next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.Contains(t, resp.Body.String(), AdmissionErrCode)
	require.Contains(t, resp.Body.String(), testErrDomain)

	retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.Greater(t, retryAfter, 0)

	require.Equal(t, 0, controller.Stats().Samples, "rejected requests should not be recorded")
}

func TestAdmissionMiddlewareCustomStatusCodeAndRetryAfter(t *testing.T) {
	controller := newTestController(t, &admission.Config{
		Capacity:   1,
		RefillRate: admission.Rate{Count: 1, Duration: time.Hour},
		MinRate:    admission.Rate{Count: 1, Duration: time.Hour},
		MaxRate:    admission.Rate{Count: 100, Duration: time.Second},
	})
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})
	handler := AdmissionWithOpts(controller, testErrDomain, AdmissionOpts{
		ResponseStatusCode: http.StatusServiceUnavailable,
		GetRetryAfter: func(r *http.Request, estimatedTime time.Duration) time.Duration {
			return time.Minute
		},
	})(next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, "60", resp.Header().Get("Retry-After"))
}

func TestAdmissionMiddlewareCustomOnReject(t *testing.T) {
	controller := newTestController(t, &admission.Config{
		Capacity:   1,
		RefillRate: admission.Rate{Count: 1, Duration: time.Hour},
		MinRate:    admission.Rate{Count: 1, Duration: time.Hour},
		MaxRate:    admission.Rate{Count: 100, Duration: time.Second},
	})
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})

	var gotRejErr *admission.RejectedError
	handler := AdmissionWithOpts(controller, testErrDomain, AdmissionOpts{
		OnReject: func(
			rw http.ResponseWriter, r *http.Request, rejErr *admission.RejectedError,
			next http.Handler, logger log.FieldLogger,
		) {
			gotRejErr = rejErr
			rw.WriteHeader(http.StatusTeapot)
		},
	})(next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusTeapot, resp.Code)
	require.NotNil(t, gotRejErr)
	require.ErrorIs(t, gotRejErr, admission.ErrRejected)
}
