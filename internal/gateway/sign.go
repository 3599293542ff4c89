package gateway

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

const signField = "sign"

var (
	ErrMissingSignature = errors.New("payload has no signature")
	ErrBadSignature     = errors.New("signature verification failed")
)

// Signer produces the gateway's detached RSA-SHA256 signature over the
// canonical form of a request payload.
type Signer struct {
	key *rsa.PrivateKey
}

func LoadSigner(path string) (*Signer, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(block)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

func (s *Signer) Sign(params map[string]any) (string, error) {
	digest := sha256.Sum256([]byte(CanonicalString(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verifier checks callback payloads against the gateway's public key.
type Verifier struct {
	key *rsa.PublicKey
}

func LoadVerifier(path string) (*Verifier, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return &Verifier{key: rsaPub}, nil
}

func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Verify checks the "sign" field of a decoded payload against the remaining
// fields in canonical form.
func (v *Verifier) Verify(params map[string]any) error {
	raw, ok := params[signField].(string)
	if !ok || raw == "" {
		return ErrMissingSignature
	}
	sig, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ErrBadSignature
	}
	digest := sha256.Sum256([]byte(CanonicalString(params)))
	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// CanonicalString renders params as sorted key=value pairs joined by '&',
// skipping the signature field and empty values. Both sides of the wire must
// agree on this form.
func CanonicalString(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == signField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := stringifyValue(params[k])
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return block, nil
}

func parsePrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return rsaKey, nil
}
