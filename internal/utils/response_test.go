package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"lawfirm-server/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ValidationError{Field: "slotId", Msg: "is required"}, http.StatusBadRequest},
		{domain.ErrInvalidSignature, http.StatusBadRequest},
		{domain.NotFoundError{Resource: "slot"}, http.StatusNotFound},
		{domain.ErrSlotAlreadyBooked, http.StatusConflict},
		{fmt.Errorf("book: %w", domain.ErrSlotAlreadyBooked), http.StatusConflict},
		{domain.ForbiddenError{Msg: "no"}, http.StatusForbidden},
		{domain.ExternalServiceError{Service: "razorpay", Err: errors.New("timeout")}, http.StatusBadGateway},
		{domain.InternalError{Msg: "db", Err: errors.New("boom")}, http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		err     error
		status  int
		leak    string
		visible string
	}{
		{"internal", domain.InternalError{Msg: "insert payment", Err: errors.New("duplicate key secret_idx")}, http.StatusInternalServerError, "secret_idx", ""},
		{"external", domain.ExternalServiceError{Service: "razorpay", Err: errors.New("401 bad key rzp_live")}, http.StatusBadGateway, "rzp_live", ""},
		{"conflict", domain.ErrSlotAlreadyBooked, http.StatusConflict, "", "slot is already booked"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			RespondError(c, tc.err)

			if rr.Code != tc.status {
				t.Fatalf("got %d want %d", rr.Code, tc.status)
			}
			var body ResponseData
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tc.leak != "" && strings.Contains(body.Error, tc.leak) {
				t.Fatalf("response leaks %q: %s", tc.leak, body.Error)
			}
			if tc.visible != "" && !strings.Contains(body.Error, tc.visible) {
				t.Fatalf("expected %q in %q", tc.visible, body.Error)
			}
		})
	}
}
