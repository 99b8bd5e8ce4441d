package sigv4

import (
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testContext() Context {
	return Context{
		Credentials: Credentials{
			AccessKey: "AKIDEXAMPLE",
			SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		},
		Region: "us-east-1",
		Time:   time.Date(2020, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func testRequest() Request {
	return Request{
		Method: "GET",
		Host:   "transcribestreaming.us-east-1.amazonaws.com:8443",
		Path:   "/stream-transcription-websocket",
		Params: []Param{
			{"sample-rate", "16000"},
			{"language-code", "en-US"},
			{"media-encoding", "pcm"},
		},
	}
}

func TestSigningKey(t *testing.T) {
	key := SigningKey("wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "20120215", "us-east-1", "iam")
	want := "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d"
	if got := hex.EncodeToString(key); got != want {
		t.Errorf("SigningKey() = %s, want %s", got, want)
	}
}

func TestCanonicalQueryOrder(t *testing.T) {
	q := CanonicalQuery(testContext(), testRequest().Params)
	want := "X-Amz-Algorithm=AWS4-HMAC-SHA256" +
		"&X-Amz-Credential=AKIDEXAMPLE%2F20200314%2Fus-east-1%2Ftranscribe%2Faws4_request" +
		"&X-Amz-Date=20200314T092653Z" +
		"&X-Amz-Expires=300" +
		"&X-Amz-SignedHeaders=host" +
		"&language-code=en-US&media-encoding=pcm&sample-rate=16000"
	if q != want {
		t.Errorf("CanonicalQuery() =\n%s\nwant\n%s", q, want)
	}
}

func TestCanonicalRequest(t *testing.T) {
	req := testRequest()
	got := CanonicalRequest(req, "a=b")
	want := "GET\n/stream-transcription-websocket\na=b\n" +
		"host:transcribestreaming.us-east-1.amazonaws.com:8443\n\nhost\n" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("CanonicalRequest() =\n%q\nwant\n%q", got, want)
	}
}

func TestPresignDeterministic(t *testing.T) {
	a, err := Presign(testContext(), testRequest())
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	b, err := Presign(testContext(), testRequest())
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if a != b {
		t.Errorf("Presign is not deterministic:\n%s\n%s", a, b)
	}

	other := testContext()
	other.Time = other.Time.Add(time.Second)
	c, _ := Presign(other, testRequest())
	if c == a {
		t.Error("different timestamps produced the same URL")
	}
}

func TestPresignURLShape(t *testing.T) {
	raw, err := Presign(testContext(), testRequest())
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if !strings.HasPrefix(raw, "wss://transcribestreaming.us-east-1.amazonaws.com:8443/stream-transcription-websocket?X-Amz-Algorithm=") {
		t.Errorf("unexpected prefix: %s", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sig := u.Query().Get("X-Amz-Signature")
	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64", len(sig))
	}
	if !strings.HasSuffix(raw, "&X-Amz-Signature="+sig) {
		t.Error("signature must be the last parameter")
	}

	canonical := CanonicalRequest(testRequest(), CanonicalQuery(testContext(), testRequest().Params))
	if want := Sign(testContext(), canonical); sig != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}
}

func TestPresignMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"no access key", Credentials{SecretKey: "s"}},
		{"no secret key", Credentials{AccessKey: "a"}},
		{"nothing", Credentials{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContext()
			c.Credentials = tt.creds
			_, err := Presign(c, testRequest())
			if !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("err = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	c := testContext()
	if c.Expired(c.Time.Add(299 * time.Second)) {
		t.Error("expired before 300 seconds")
	}
	if !c.Expired(c.Time.Add(301 * time.Second)) {
		t.Error("not expired after 300 seconds")
	}
}
