// Package encoding implements a reversible chain of text transforms.
//
// A Composer applies its encodings in declaration order and decodes in the
// reverse order, so Decode(Encode(s)) == s for every chain.
package encoding

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
)

// Encoding names a single reversible text transform.
type Encoding string

const (
	Base64 Encoding = "base64"
	Hex    Encoding = "hex"
	URL    Encoding = "url"
)

// Composer chains encodings into one reversible transform.
type Composer struct {
	chain []Encoding
}

// NewComposer validates the chain and builds a Composer. An empty chain is
// the identity transform.
func NewComposer(chain ...Encoding) (*Composer, error) {
	for _, enc := range chain {
		switch enc {
		case Base64, Hex, URL:
		default:
			return nil, fmt.Errorf("unknown encoding %q", enc)
		}
	}
	return &Composer{chain: append([]Encoding(nil), chain...)}, nil
}

// Encode applies every encoding in order.
func (c *Composer) Encode(s string) string {
	for _, enc := range c.chain {
		switch enc {
		case Base64:
			s = base64.StdEncoding.EncodeToString([]byte(s))
		case Hex:
			s = hex.EncodeToString([]byte(s))
		case URL:
			s = url.QueryEscape(s)
		}
	}
	return s
}

// Decode reverses the chain. It fails on input that is not a valid encoding
// at any step.
func (c *Composer) Decode(s string) (string, error) {
	for i := len(c.chain) - 1; i >= 0; i-- {
		switch c.chain[i] {
		case Base64:
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return "", fmt.Errorf("decode base64: %w", err)
			}
			s = string(b)
		case Hex:
			b, err := hex.DecodeString(s)
			if err != nil {
				return "", fmt.Errorf("decode hex: %w", err)
			}
			s = string(b)
		case URL:
			u, err := url.QueryUnescape(s)
			if err != nil {
				return "", fmt.Errorf("decode url: %w", err)
			}
			s = u
		}
	}
	return s, nil
}

// Chain returns the configured encodings in application order.
func (c *Composer) Chain() []Encoding {
	return append([]Encoding(nil), c.chain...)
}
