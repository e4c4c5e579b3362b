package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func typeName(v any) string { return fmt.Sprintf("%T", v) }

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	if NewTwilioSender(TwilioConfig{AccountSID: "AC1"}, nil) != nil {
		t.Fatal("expected nil sender without auth token")
	}
	if NewSMSSender(ProviderConfig{}, nil) != nil {
		t.Fatal("expected nil SMSSender without credentials")
	}
}

func TestTwilioSenderPostsForm(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotTo, gotFrom, gotBody = r.PostForm.Get("To"), r.PostForm.Get("From"), r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000000"}, nil).WithBaseURL(srv.URL)
	if err := sender.SendSMS(context.Background(), "+15551112222", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC1/Messages.json" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotUser != "AC1" || gotTo != "+15551112222" || gotFrom != "+15550000000" || gotBody != "hi" {
		t.Errorf("unexpected form: user=%s to=%s from=%s body=%s", gotUser, gotTo, gotFrom, gotBody)
	}

	if err := sender.SendSMS(context.Background(), WhatsAppAddress("+15551112222"), "hi"); err != nil {
		t.Fatalf("whatsapp send: %v", err)
	}
	if gotTo != "whatsapp:+15551112222" || gotFrom != "whatsapp:+15550000000" {
		t.Errorf("expected whatsapp addressing, got to=%s from=%s", gotTo, gotFrom)
	}
}

func TestTwilioSenderReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+1"}, nil).WithBaseURL(srv.URL)
	err := sender.SendSMS(context.Background(), "+1bad", "hi")
	if err == nil || !strings.Contains(err.Error(), "code 21211") {
		t.Fatalf("expected twilio error code, got %v", err)
	}
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected a 400 to be marked rejected, got %v", err)
	}
}

func TestTwilioSenderThrottleIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+1"}, nil).WithBaseURL(srv.URL)
	err := sender.SendSMS(context.Background(), "+15551112222", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRejected) {
		t.Fatalf("throttling should not be marked rejected: %v", err)
	}
}

func TestTwilioSenderValidation(t *testing.T) {
	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}, nil)
	if err := sender.SendSMS(context.Background(), "", "hi"); !errors.Is(err, ErrMissingRecipient) {
		t.Fatalf("expected ErrMissingRecipient, got %v", err)
	}
	if err := sender.SendSMS(context.Background(), "+1", "  "); !errors.Is(err, ErrMissingBody) {
		t.Fatalf("expected ErrMissingBody, got %v", err)
	}
	var nilSender *TwilioSender
	if err := nilSender.SendSMS(context.Background(), "+1", "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFormatTwilioError(t *testing.T) {
	if got := formatTwilioError(500, nil); got != "status 500" {
		t.Errorf("got %q", got)
	}
	if got := formatTwilioError(502, []byte("bad gateway")); got != "status 502: bad gateway" {
		t.Errorf("got %q", got)
	}
}
