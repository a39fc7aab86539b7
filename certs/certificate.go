// Package certs implements the certificate handling of digital cinema:
// DCI-flavoured X.509 chains, their generation through openssl, and the
// XML signatures carried by playlists and packing lists.
package certs

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"

	"cinekit.dev/dcp/dcperr"
)

// Certificate wraps one parsed X.509 certificate.
type Certificate struct {
	x509 *x509.Certificate
	der  []byte
}

// ParseCertificate reads the first PEM block of data.
func ParseCertificate(data []byte) (Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return Certificate{}, dcperr.New(dcperr.KindMisc, "no certificate found in PEM data")
	}
	c, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return Certificate{}, dcperr.Wrap(dcperr.KindMisc, "cannot parse certificate", err)
	}
	return Certificate{x509: c, der: block.Bytes}, nil
}

func parseDER(der []byte) (Certificate, error) {
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return Certificate{}, err
	}
	return Certificate{x509: c, der: der}, nil
}

// ParseCertificates reads every certificate block in data, in order.
func ParseCertificates(data []byte) ([]Certificate, error) {
	var out []Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindMisc, "cannot parse certificate", err)
		}
		out = append(out, Certificate{x509: c, der: block.Bytes})
	}
	if len(out) == 0 {
		return nil, dcperr.New(dcperr.KindMisc, "no certificates found in PEM data")
	}
	return out, nil
}

func (c Certificate) X509() *x509.Certificate { return c.x509 }

// Subject renders the subject name in the attribute order used by
// digital cinema tools.
func (c Certificate) Subject() string { return dciName(c.x509.Subject) }

// Issuer renders the issuer name in the same order.
func (c Certificate) Issuer() string { return dciName(c.x509.Issuer) }

func (c Certificate) Serial() *big.Int { return c.x509.SerialNumber }

func (c Certificate) NotBefore() time.Time { return c.x509.NotBefore }
func (c Certificate) NotAfter() time.Time  { return c.x509.NotAfter }

// PublicKey returns the RSA public key; digital cinema certificates
// always carry RSA keys.
func (c Certificate) PublicKey() (*rsa.PublicKey, error) {
	k, ok := c.x509.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, dcperr.New(dcperr.KindCertificateChain, "certificate does not hold an RSA key")
	}
	return k, nil
}

// Thumbprint is the base64 SHA-1 of the certificate DER.
func (c Certificate) Thumbprint() string {
	sum := sha1.Sum(c.der)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// PEM renders the certificate as a PEM block.
func (c Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.der}))
}

// DERBase64 is the raw certificate in base64, as embedded in KeyInfo.
func (c Certificate) DERBase64() string {
	return base64.StdEncoding.EncodeToString(c.der)
}

var oidDNQualifier = asn1.ObjectIdentifier{2, 5, 4, 46}

// dciName renders a name as "dnQualifier=..,CN=..,OU=..,O=..", the
// order mastering tools and KDMs expect.
func dciName(n pkix.Name) string {
	var dnq string
	for _, atv := range n.Names {
		if atv.Type.Equal(oidDNQualifier) {
			if s, ok := atv.Value.(string); ok {
				dnq = s
			}
		}
	}
	var parts []string
	if dnq != "" {
		parts = append(parts, "dnQualifier="+escapeName(dnq))
	}
	if n.CommonName != "" {
		parts = append(parts, "CN="+escapeName(n.CommonName))
	}
	for _, ou := range n.OrganizationalUnit {
		parts = append(parts, "OU="+escapeName(ou))
	}
	for _, o := range n.Organization {
		parts = append(parts, "O="+escapeName(o))
	}
	return strings.Join(parts, ",")
}

func escapeName(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, ",", "\\,")
}

// PublicKeyDigest computes the dnQualifier for a public key: the base64
// SHA-1 of the key's DER encoding with the 24-byte algorithm header
// skipped.
func PublicKeyDigest(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", dcperr.Wrap(dcperr.KindMisc, "cannot encode public key", err)
	}
	if len(der) <= 24 {
		return "", dcperr.New(dcperr.KindMisc, fmt.Sprintf("public key DER too short (%d bytes)", len(der)))
	}
	sum := sha1.Sum(der[24:])
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
