/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	appkitmw "github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"

	"github.com/acronis/go-loadguard/admission"
)

// AdmissionErrCode is an error code that is used in a response body
// if the request is rejected by the admission controller.
const AdmissionErrCode = "tooManyRequests"

// admissionLogFieldQueueFull it is the name of the logged field that tells
// whether the request was rejected because the admission queue was full.
const admissionLogFieldQueueFull = "admission_queue_full"

// AdmissionGetRetryAfterFunc is a function that is called to get a value for Retry-After
// response HTTP header when the request is rejected.
type AdmissionGetRetryAfterFunc func(r *http.Request, estimatedTime time.Duration) time.Duration

// AdmissionOnRejectFunc is a function that is called for rejecting HTTP request
// when the admission controller does not admit it.
type AdmissionOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, rejErr *admission.RejectedError, next http.Handler, logger log.FieldLogger)

// AdmissionOpts represents options for the Admission middleware.
type AdmissionOpts struct {
	// ResponseStatusCode is the HTTP status code of the rejection response.
	// http.StatusTooManyRequests is used by default.
	ResponseStatusCode int

	// GetRetryAfter is called to get a value for the Retry-After response header.
	// The controller's estimate is used by default.
	GetRetryAfter AdmissionGetRetryAfterFunc

	// OnReject is called for rejecting the HTTP request.
	OnReject AdmissionOnRejectFunc
}

// Admission is a middleware that submits every HTTP request to the admission
// controller and feeds the latency and outcome of admitted requests back into
// its adaptive loop. Rejected requests are answered with a JSON error and
// a Retry-After hint without reaching the next handler.
func Admission(controller *admission.Controller, errDomain string) func(next http.Handler) http.Handler {
	return AdmissionWithOpts(controller, errDomain, AdmissionOpts{})
}

// AdmissionWithOpts is a configurable version of the Admission middleware.
func AdmissionWithOpts(
	controller *admission.Controller, errDomain string, opts AdmissionOpts,
) func(next http.Handler) http.Handler {
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	onReject := opts.OnReject
	if onReject == nil {
		onReject = makeDefaultAdmissionOnReject(respStatusCode, errDomain, opts.GetRetryAfter)
	}
	return func(next http.Handler) http.Handler {
		return &admissionHandler{
			next:       next,
			controller: controller,
			errDomain:  errDomain,
			onReject:   onReject,
		}
	}
}

type admissionHandler struct {
	next       http.Handler
	controller *admission.Controller
	errDomain  string
	onReject   AdmissionOnRejectFunc
}

func (h *admissionHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := appkitmw.GetLoggerFromContext(r.Context())

	if err := h.controller.Acquire(r.Context()); err != nil {
		var rejErr *admission.RejectedError
		if errors.As(err, &rejErr) {
			h.onReject(rw, r, rejErr, h.next, logger)
			return
		}
		// The request context was canceled while the request was queued.
		if logger != nil {
			logger.Error(err.Error())
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
		return
	}

	wrw := wrapResponseWriter(rw)
	start := time.Now()
	h.next.ServeHTTP(wrw, r)
	h.controller.Record(time.Since(start), wrw.status < http.StatusInternalServerError)
}

func makeDefaultAdmissionOnReject(
	respStatusCode int, errDomain string, getRetryAfter AdmissionGetRetryAfterFunc,
) AdmissionOnRejectFunc {
	return func(
		rw http.ResponseWriter, r *http.Request, rejErr *admission.RejectedError, _ http.Handler, logger log.FieldLogger,
	) {
		retryAfter := rejErr.RetryAfter
		if getRetryAfter != nil {
			retryAfter = getRetryAfter(r, retryAfter)
		}
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		if logger != nil {
			logger.Warn("request rejected by admission control",
				log.Bool(admissionLogFieldQueueFull, errors.Is(rejErr, admission.ErrQueueFull)),
				log.Duration("retry_after", retryAfter),
			)
		}
		apiErr := restapi.NewError(errDomain, AdmissionErrCode, "Too many requests.")
		restapi.RespondError(rw, respStatusCode, apiErr, logger)
	}
}
