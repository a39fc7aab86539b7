package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os/exec"
	"testing"
	"time"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

// testChain builds a root/intermediate/leaf chain in process so the
// ordering and signing logic can be exercised without openssl.
func testChain(t *testing.T) (*Chain, *rsa.PrivateKey) {
	t.Helper()

	newKey := func() *rsa.PrivateKey {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatal(err)
		}
		return k
	}
	name := func(cn string, key *rsa.PublicKey) pkix.Name {
		q, err := PublicKeyDigest(key)
		if err != nil {
			t.Fatal(err)
		}
		return pkix.Name{
			Organization:       []string{"example.org"},
			OrganizationalUnit: []string{"example.org"},
			CommonName:         cn,
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: oidDNQualifier, Value: q},
			},
		}
	}
	sign := func(tmpl, parent *x509.Certificate, pub *rsa.PublicKey, parentKey *rsa.PrivateKey) Certificate {
		der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, parentKey)
		if err != nil {
			t.Fatal(err)
		}
		c, err := parseDER(der)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	now := time.Now()
	rootKey, interKey, leafKey := newKey(), newKey(), newKey()

	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(5),
		Subject:               name(".smpte-430-2.ROOT.NOT_FOR_PRODUCTION", &rootKey.PublicKey),
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * 365 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            3,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	root := sign(rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)

	interTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(6),
		Subject:               name(".smpte-430-2.INTERMEDIATE.NOT_FOR_PRODUCTION", &interKey.PublicKey),
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * 364 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            2,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	inter := sign(interTmpl, root.X509(), &interKey.PublicKey, rootKey)

	leafTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:               name("CS.smpte-430-2.LEAF.NOT_FOR_PRODUCTION", &leafKey.PublicKey),
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * 363 * time.Hour),
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	leaf := sign(leafTmpl, inter.X509(), &leafKey.PublicKey, interKey)

	ch := NewChain()
	// Deliberately out of order.
	ch.Add(leaf)
	ch.Add(root)
	ch.Add(inter)
	ch.SetKey(string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(leafKey),
	})))
	return ch, leafKey
}

func TestPublicKeyDigest(t *testing.T) {
	k1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	d1, err := PublicKeyDigest(&k1.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(d1)
	if err != nil || len(raw) != 20 {
		t.Errorf("digest %q does not decode to 20 bytes", d1)
	}
	d1again, _ := PublicKeyDigest(&k1.PublicKey)
	if d1 != d1again {
		t.Error("digest is not deterministic")
	}
	k2, _ := rsa.GenerateKey(rand.Reader, 2048)
	d2, _ := PublicKeyDigest(&k2.PublicKey)
	if d1 == d2 {
		t.Error("digests of distinct keys collide")
	}
}

func TestRootToLeafOrdering(t *testing.T) {
	ch, _ := testChain(t)
	rtl, err := ch.RootToLeaf()
	if err != nil {
		t.Fatal(err)
	}
	if len(rtl) != 3 {
		t.Fatalf("chain length = %d", len(rtl))
	}
	if rtl[0].Subject() != rtl[0].Issuer() {
		t.Error("first certificate is not self-signed")
	}
	if rtl[1].Issuer() != rtl[0].Subject() || rtl[2].Issuer() != rtl[1].Subject() {
		t.Error("adjacency broken")
	}
	leaf, err := ch.Leaf()
	if err != nil {
		t.Fatal(err)
	}
	if leaf.Serial().Int64() != 7 {
		t.Errorf("leaf serial = %v", leaf.Serial())
	}
}

func TestValidAfterRemovingIntermediate(t *testing.T) {
	ch, _ := testChain(t)
	var reason string
	if !ch.Valid(&reason) {
		t.Fatalf("fresh chain invalid: %s", reason)
	}
	rtl, _ := ch.RootToLeaf()
	ch.Remove(rtl[1])
	if ch.Valid(&reason) {
		t.Fatal("chain without intermediate reported valid")
	}
	if reason != "certificates do not form a chain" {
		t.Errorf("reason = %q", reason)
	}
}

func TestPrivateKeyValid(t *testing.T) {
	ch, _ := testChain(t)
	if !ch.PrivateKeyValid() {
		t.Fatal("matching key reported invalid")
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ch.SetKey(string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(other),
	})))
	if ch.PrivateKeyValid() {
		t.Error("foreign key reported valid")
	}
}

func TestChainPEMRoundTrip(t *testing.T) {
	ch, _ := testChain(t)
	pemText, err := ch.PEM()
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseChainPEM([]byte(pemText))
	if err != nil {
		t.Fatal(err)
	}
	if back.Count() != 3 {
		t.Errorf("count = %d", back.Count())
	}
	if !back.PrivateKeyValid() {
		t.Error("key lost in round trip")
	}
	var reason string
	if !back.Valid(&reason) {
		t.Errorf("round-tripped chain invalid: %s", reason)
	}
}

func TestSubjectOrder(t *testing.T) {
	ch, _ := testChain(t)
	leaf, err := ch.Leaf()
	if err != nil {
		t.Fatal(err)
	}
	s := leaf.Subject()
	if got := s[:12]; got != "dnQualifier=" {
		t.Errorf("subject starts with %q", got)
	}
}

func signableDoc() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("CompositionPlaylist")
	root.CreateAttr("xmlns", "http://www.smpte-ra.org/schemas/429-7/2006/CPL")
	root.CreateElement("Id").SetText("urn:uuid:01234567-89ab-cdef-0123-456789abcdef")
	root.CreateElement("ContentTitleText").SetText("Signed Content")
	return doc
}

func TestSignAndVerify(t *testing.T) {
	ch, _ := testChain(t)
	doc := signableDoc()
	if err := SignDocument(doc, ch, value.SMPTE); err != nil {
		t.Fatal(err)
	}
	data, err := doc.WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(data); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	ch, _ := testChain(t)
	doc := signableDoc()
	if err := SignDocument(doc, ch, value.SMPTE); err != nil {
		t.Fatal(err)
	}
	root := doc.Root()
	root.SelectElement("ContentTitleText").SetText("Altered Content")
	data, err := doc.WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(data); err == nil {
		t.Error("tampered document verified")
	}
}

func TestSignRequiresMatchingKey(t *testing.T) {
	ch, _ := testChain(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ch.SetKey(string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(other),
	})))
	if err := SignDocument(signableDoc(), ch, value.SMPTE); !dcperr.IsKind(err, dcperr.KindCertificateChain) {
		t.Errorf("got %v", err)
	}
}

func TestGenerateWithOpenSSL(t *testing.T) {
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not available")
	}
	ch, err := Generate(GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var reason string
	if !ch.Valid(&reason) {
		t.Fatalf("generated chain invalid: %s", reason)
	}
	if !ch.PrivateKeyValid() {
		t.Error("generated key does not match leaf")
	}
	rtl, err := ch.RootToLeaf()
	if err != nil {
		t.Fatal(err)
	}
	for i, serial := range []int64{5, 6, 7} {
		if rtl[i].Serial().Int64() != serial {
			t.Errorf("certificate %d serial = %v, want %d", i, rtl[i].Serial(), serial)
		}
	}

	// The leaf dnQualifier must be the digest of its own public key.
	leaf := rtl[2]
	pub, err := leaf.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	want, err := PublicKeyDigest(pub)
	if err != nil {
		t.Fatal(err)
	}
	if got := leaf.Subject(); len(got) < 12 || got[:12] != "dnQualifier=" {
		t.Fatalf("subject = %q", got)
	} else if got[12:12+len(escapeName(want))] != escapeName(want) {
		t.Errorf("leaf dnQualifier does not match public key digest")
	}
}
