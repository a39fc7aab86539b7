package certs

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sort"
	"strings"

	"cinekit.dev/dcp/dcperr"
)

// Chain is a set of certificates forming (or meant to form) a single
// issuance path, together with the leaf's private key.
type Chain struct {
	certs []Certificate
	// key is the leaf private key in PEM, empty if absent.
	key string
}

func NewChain() *Chain { return &Chain{} }

// ParseChainPEM loads a chain from concatenated PEM blocks.
// Certificates may appear in any order; an RSA PRIVATE KEY block, if
// present, becomes the leaf key.
func ParseChainPEM(data []byte) (*Chain, error) {
	ch := &Chain{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, dcperr.Wrap(dcperr.KindCertificateChain, "cannot parse certificate", err)
			}
			ch.certs = append(ch.certs, Certificate{x509: c, der: block.Bytes})
		case "RSA PRIVATE KEY", "PRIVATE KEY":
			ch.key = string(pem.EncodeToMemory(block))
		}
	}
	if len(ch.certs) == 0 {
		return nil, dcperr.New(dcperr.KindCertificateChain, "no certificates found in PEM data")
	}
	return ch, nil
}

func (ch *Chain) Add(c Certificate) { ch.certs = append(ch.certs, c) }

func (ch *Chain) Remove(c Certificate) {
	for i, x := range ch.certs {
		if x.Thumbprint() == c.Thumbprint() {
			ch.certs = append(ch.certs[:i], ch.certs[i+1:]...)
			return
		}
	}
}

func (ch *Chain) Count() int { return len(ch.certs) }

// SetKey installs the leaf private key PEM.
func (ch *Chain) SetKey(pemKey string) { ch.key = pemKey }

func (ch *Chain) Key() (string, bool) { return ch.key, ch.key != "" }

// RootToLeaf orders the certificates from root to leaf. Orderings are
// tried deterministically; an error means no valid path exists.
func (ch *Chain) RootToLeaf() ([]Certificate, error) {
	if len(ch.certs) == 0 {
		return nil, dcperr.New(dcperr.KindCertificateChain, "certificate chain is empty")
	}
	certs := append([]Certificate(nil), ch.certs...)
	sort.Slice(certs, func(i, j int) bool {
		return certs[i].Thumbprint() < certs[j].Thumbprint()
	})
	var found []Certificate
	permute(certs, func(p []Certificate) bool {
		if chainOrderValid(p) {
			found = append([]Certificate(nil), p...)
			return true
		}
		return false
	})
	if found == nil {
		return nil, dcperr.New(dcperr.KindCertificateChain, "certificates do not form a chain")
	}
	return found, nil
}

// LeafToRoot is RootToLeaf reversed.
func (ch *Chain) LeafToRoot() ([]Certificate, error) {
	rtl, err := ch.RootToLeaf()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rtl)-1; i < j; i, j = i+1, j-1 {
		rtl[i], rtl[j] = rtl[j], rtl[i]
	}
	return rtl, nil
}

// Leaf returns the end-entity certificate.
func (ch *Chain) Leaf() (Certificate, error) {
	rtl, err := ch.RootToLeaf()
	if err != nil {
		return Certificate{}, err
	}
	return rtl[len(rtl)-1], nil
}

// Root returns the self-signed anchor.
func (ch *Chain) Root() (Certificate, error) {
	rtl, err := ch.RootToLeaf()
	if err != nil {
		return Certificate{}, err
	}
	return rtl[0], nil
}

// Valid reports whether the certificates form a verifiable chain. On
// failure, reason (if non-nil) receives a short explanation.
func (ch *Chain) Valid(reason *string) bool {
	if _, err := ch.RootToLeaf(); err != nil {
		if reason != nil {
			if dcperr.IsKind(err, dcperr.KindCertificateChain) {
				*reason = "certificates do not form a chain"
			} else {
				*reason = err.Error()
			}
		}
		return false
	}
	return true
}

// PrivateKeyValid reports whether the held key matches the leaf
// certificate by RSA modulus.
func (ch *Chain) PrivateKeyValid() bool {
	if ch.key == "" {
		return false
	}
	key, err := parseRSAKey(ch.key)
	if err != nil {
		return false
	}
	leaf, err := ch.Leaf()
	if err != nil {
		return false
	}
	pub, err := leaf.PublicKey()
	if err != nil {
		return false
	}
	return key.PublicKey.N.Cmp(pub.N) == 0
}

// PEM serializes the whole chain root first, plus the private key when
// held.
func (ch *Chain) PEM() (string, error) {
	rtl, err := ch.RootToLeaf()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range rtl {
		b.WriteString(c.PEM())
	}
	if ch.key != "" {
		b.WriteString(ch.key)
	}
	return b.String(), nil
}

// chainOrderValid checks a root-to-leaf ordering: adjacency of issuer
// and subject, distinct subjects, and X.509 path verification.
func chainOrderValid(p []Certificate) bool {
	seen := map[string]bool{}
	for _, c := range p {
		s := c.Subject()
		if seen[s] {
			return false
		}
		seen[s] = true
	}
	root := p[0]
	if root.Subject() != root.Issuer() {
		return false
	}
	if err := root.x509.CheckSignatureFrom(root.x509); err != nil {
		return false
	}
	for i := 0; i+1 < len(p); i++ {
		child := p[i+1]
		if child.Issuer() != p[i].Subject() {
			return false
		}
		if err := child.x509.CheckSignatureFrom(p[i].x509); err != nil {
			return false
		}
	}

	roots := x509.NewCertPool()
	roots.AddCert(root.x509)
	inters := x509.NewCertPool()
	for _, c := range p[1 : len(p)-1] {
		inters.AddCert(c.x509)
	}
	leaf := p[len(p)-1]
	_, err := leaf.x509.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inters,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

// permute calls fn for each permutation until it returns true.
func permute(certs []Certificate, fn func([]Certificate) bool) bool {
	if len(certs) == 1 {
		// Single self-signed certificate.
		return fn(certs)
	}
	var rec func(k int) bool
	rec = func(k int) bool {
		if k == len(certs) {
			return fn(certs)
		}
		for i := k; i < len(certs); i++ {
			certs[k], certs[i] = certs[i], certs[k]
			if rec(k + 1) {
				return true
			}
			certs[k], certs[i] = certs[i], certs[k]
		}
		return false
	}
	return rec(0)
}

// RSAKey parses the chain's private key.
func (ch *Chain) RSAKey() (*rsa.PrivateKey, error) {
	keyPEM, ok := ch.Key()
	if !ok {
		return nil, dcperr.New(dcperr.KindCertificateChain, "chain has no private key")
	}
	return parseRSAKey(keyPEM)
}

func parseRSAKey(pemKey string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, dcperr.New(dcperr.KindMisc, "no key found in PEM data")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	any, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "cannot parse private key", err)
	}
	k, ok := any.(*rsa.PrivateKey)
	if !ok {
		return nil, dcperr.New(dcperr.KindMisc, "private key is not RSA")
	}
	return k, nil
}
