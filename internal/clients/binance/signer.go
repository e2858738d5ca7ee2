package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Param is one query parameter. Signed endpoints require the exact insertion
// order to be preserved, so parameters travel as a slice rather than a map.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// Add appends a parameter.
func (p *Params) Add(key, value string) {
	*p = append(*p, Param{Key: key, Value: value})
}

// Encode renders the parameters as a query string in insertion order,
// dropping parameters with empty values.
func (p Params) Encode() string {
	var buf []byte
	for _, param := range p {
		if param.Value == "" {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, '&')
		}
		buf = append(buf, param.Key...)
		buf = append(buf, '=')
		buf = append(buf, url.QueryEscape(param.Value)...)
	}
	return string(buf)
}

// Signer builds HMAC-SHA256 signed query strings for private endpoints.
// Credentials are validated at construction so a missing key surfaces as a
// setup error rather than a rejected request.
type Signer struct {
	apiKey     string
	secret     []byte
	recvWindow int64
	now        func() time.Time
}

// NewSigner creates a Signer. Both credentials are required.
func NewSigner(apiKey, apiSecret string, recvWindow int64) (*Signer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("binance signer: api key and secret are required")
	}
	if recvWindow <= 0 {
		recvWindow = 60000
	}
	return &Signer{
		apiKey:     apiKey,
		secret:     []byte(apiSecret),
		recvWindow: recvWindow,
		now:        time.Now,
	}, nil
}

// APIKey returns the key to place in the X-MBX-APIKEY header.
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign appends timestamp and recvWindow to the given parameters, computes
// the HMAC-SHA256 signature over the encoded query string and returns the
// final query with the signature appended last. timeOffset is the
// server-minus-local clock offset in milliseconds.
func (s *Signer) Sign(params Params, timeOffset int64) string {
	signed := make(Params, 0, len(params)+3)
	signed = append(signed, params...)
	signed.Add("timestamp", strconv.FormatInt(s.now().UnixMilli()+timeOffset, 10))
	signed.Add("recvWindow", strconv.FormatInt(s.recvWindow, 10))

	query := signed.Encode()

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	return query + "&signature=" + signature
}
