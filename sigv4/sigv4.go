// Package sigv4 builds presigned connection URLs using the four-step
// HMAC-SHA256 request signing scheme used by AWS streaming endpoints.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	Algorithm      = "AWS4-HMAC-SHA256"
	DefaultService = "transcribe"
	Expires        = 300 * time.Second

	amzDateFormat = "20060102T150405Z"
	dateFormat    = "20060102"
	terminator    = "aws4_request"
	signedHeaders = "host"
)

var ErrMissingCredentials = errors.New("sigv4: access key and secret key are required")

type Credentials struct {
	AccessKey string
	SecretKey string
}

func (c Credentials) Valid() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Context is everything a signature depends on besides the request itself.
// Time is captured once and used for the credential scope, X-Amz-Date and
// the string to sign.
type Context struct {
	Credentials
	Region  string
	Service string
	Time    time.Time
}

// ExpiresAt is the last instant at which a URL signed with c is accepted.
func (c Context) ExpiresAt() time.Time {
	return c.Time.Add(Expires)
}

func (c Context) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt())
}

func (c Context) service() string {
	if c.Service == "" {
		return DefaultService
	}
	return c.Service
}

func (c Context) amzDate() string {
	return c.Time.UTC().Format(amzDateFormat)
}

func (c Context) date() string {
	return c.Time.UTC().Format(dateFormat)
}

// Scope is date/region/service/aws4_request.
func (c Context) Scope() string {
	return strings.Join([]string{c.date(), c.Region, c.service(), terminator}, "/")
}

type Param struct {
	Key   string
	Value string
}

type Request struct {
	Method string
	Host   string
	Path   string
	Params []Param
}

// Presign returns the wss:// URL for req, signed with c.
func Presign(c Context, req Request) (string, error) {
	if !c.Valid() {
		return "", ErrMissingCredentials
	}

	query := CanonicalQuery(c, req.Params)
	canonical := CanonicalRequest(req, query)
	signature := Sign(c, canonical)

	return "wss://" + req.Host + req.Path + "?" + query + "&X-Amz-Signature=" + signature, nil
}

// CanonicalQuery returns the sorted query string covered by the signature.
func CanonicalQuery(c Context, params []Param) string {
	all := []Param{
		{"X-Amz-Algorithm", Algorithm},
		{"X-Amz-Credential", c.AccessKey + "/" + c.Scope()},
		{"X-Amz-Date", c.amzDate()},
		{"X-Amz-Expires", strconv.Itoa(int(Expires / time.Second))},
		{"X-Amz-SignedHeaders", signedHeaders},
	}
	all = append(all, params...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	parts := make([]string, len(all))
	for i, p := range all {
		parts[i] = escape(p.Key) + "=" + escape(p.Value)
	}
	return strings.Join(parts, "&")
}

func CanonicalRequest(req Request, query string) string {
	method := req.Method
	if method == "" {
		method = "GET"
	}
	var sb strings.Builder
	sb.WriteString(method + "\n")
	sb.WriteString(req.Path + "\n")
	sb.WriteString(query + "\n")
	sb.WriteString("host:" + req.Host + "\n\n")
	sb.WriteString(signedHeaders + "\n")
	sb.WriteString(hashHex(""))
	return sb.String()
}

func StringToSign(c Context, canonicalRequest string) string {
	return Algorithm + "\n" + c.amzDate() + "\n" + c.Scope() + "\n" + hashHex(canonicalRequest)
}

// Sign returns the hex signature of canonicalRequest.
func Sign(c Context, canonicalRequest string) string {
	key := SigningKey(c.SecretKey, c.date(), c.Region, c.service())
	return hex.EncodeToString(hmacSHA256(key, StringToSign(c, canonicalRequest)))
}

func SigningKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), date)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, terminator)
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// escape percent-encodes everything outside the unreserved set; spaces
// become %20 rather than '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
