package certs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

const (
	dsigNS             = "http://www.w3.org/2000/09/xmldsig#"
	c14nAlgorithm      = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	envelopedTransform = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	rsaSHA1            = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	rsaSHA256          = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	digestSHA1         = "http://www.w3.org/2000/09/xmldsig#sha1"
	digestSHA256       = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// SignDocument appends an enveloped XML signature to the document root.
// Interop documents sign with SHA-1, their successors with SHA-256.
func SignDocument(doc *etree.Document, chain *Chain, standard value.Standard) error {
	root := doc.Root()
	if root == nil {
		return dcperr.New(dcperr.KindMisc, "cannot sign an empty document")
	}
	keyPEM, ok := chain.Key()
	if !ok {
		return dcperr.New(dcperr.KindCertificateChain, "signing chain has no private key")
	}
	key, err := parseRSAKey(keyPEM)
	if err != nil {
		return err
	}
	if !chain.PrivateKeyValid() {
		return dcperr.New(dcperr.KindCertificateChain, "private key does not match the leaf certificate")
	}
	ltr, err := chain.LeafToRoot()
	if err != nil {
		return err
	}

	sigMethod, digMethod := rsaSHA256, digestSHA256
	hash := crypto.SHA256
	if standard == value.Interop {
		sigMethod, digMethod = rsaSHA1, digestSHA1
		hash = crypto.SHA1
	}

	// Digest of the document as it stands, before the signature is
	// attached (the enveloped transform).
	docC14N, err := canonicalize(root)
	if err != nil {
		return err
	}
	digest := hashSum(hash, docC14N)

	sig := root.CreateElement("dsig:Signature")
	sig.CreateAttr("xmlns:dsig", dsigNS)
	si := sig.CreateElement("dsig:SignedInfo")
	si.CreateElement("dsig:CanonicalizationMethod").CreateAttr("Algorithm", c14nAlgorithm)
	si.CreateElement("dsig:SignatureMethod").CreateAttr("Algorithm", sigMethod)
	ref := si.CreateElement("dsig:Reference")
	ref.CreateAttr("URI", "")
	tr := ref.CreateElement("dsig:Transforms")
	tr.CreateElement("dsig:Transform").CreateAttr("Algorithm", envelopedTransform)
	ref.CreateElement("dsig:DigestMethod").CreateAttr("Algorithm", digMethod)
	ref.CreateElement("dsig:DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))

	siC14N, err := canonicalizeDetached(si)
	if err != nil {
		return err
	}
	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, key, hash, hashSum(hash, siC14N))
	if err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "RSA signing failed", err)
	}
	sig.CreateElement("dsig:SignatureValue").SetText(base64.StdEncoding.EncodeToString(sigBytes))

	ki := sig.CreateElement("dsig:KeyInfo")
	for _, c := range ltr {
		xd := ki.CreateElement("dsig:X509Data")
		is := xd.CreateElement("dsig:X509IssuerSerial")
		is.CreateElement("dsig:X509IssuerName").SetText(c.Issuer())
		is.CreateElement("dsig:X509SerialNumber").SetText(c.Serial().String())
		xd.CreateElement("dsig:X509Certificate").SetText(c.DERBase64())
	}
	return nil
}

// VerifySignature checks the enveloped signature of a serialized
// document against the certificates embedded in its KeyInfo.
func VerifySignature(data []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return dcperr.Wrap(dcperr.KindXML, "cannot parse signed document", err)
	}
	root := doc.Root()
	if root == nil {
		return dcperr.New(dcperr.KindXML, "empty document")
	}
	sig := root.SelectElement("Signature")
	if sig == nil {
		return dcperr.New(dcperr.KindXML, "document carries no signature")
	}

	si := sig.SelectElement("SignedInfo")
	if si == nil {
		return dcperr.New(dcperr.KindXML, "signature has no SignedInfo")
	}
	sigMethodEl := si.SelectElement("SignatureMethod")
	if sigMethodEl == nil {
		return dcperr.New(dcperr.KindXML, "signature has no SignatureMethod")
	}
	var hash crypto.Hash
	switch sigMethodEl.SelectAttrValue("Algorithm", "") {
	case rsaSHA1:
		hash = crypto.SHA1
	case rsaSHA256:
		hash = crypto.SHA256
	default:
		return dcperr.New(dcperr.KindXML, "unsupported signature method")
	}
	refEl := si.SelectElement("Reference")
	if refEl == nil {
		return dcperr.New(dcperr.KindXML, "signature has no Reference")
	}
	wantDigest := strings.TrimSpace(childElementText(refEl, "DigestValue"))
	sigValue := strings.TrimSpace(childElementText(sig, "SignatureValue"))
	if wantDigest == "" || sigValue == "" {
		return dcperr.New(dcperr.KindXML, "signature is incomplete")
	}

	// Leaf certificate is the first X509Data entry.
	ki := sig.SelectElement("KeyInfo")
	if ki == nil {
		return dcperr.New(dcperr.KindXML, "signature has no KeyInfo")
	}
	xds := ki.SelectElements("X509Data")
	if len(xds) == 0 {
		return dcperr.New(dcperr.KindXML, "KeyInfo holds no certificates")
	}
	certB64 := strings.Join(strings.Fields(childElementText(xds[0], "X509Certificate")), "")
	der, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		return dcperr.Wrap(dcperr.KindXML, "bad certificate encoding in KeyInfo", err)
	}
	leaf, err := ParseCertificateDER(der)
	if err != nil {
		return err
	}
	pub, err := leaf.PublicKey()
	if err != nil {
		return err
	}

	// Enveloped transform: digest the document without its signature.
	root.RemoveChild(sig)
	docC14N, err := canonicalize(root)
	if err != nil {
		return err
	}
	if base64.StdEncoding.EncodeToString(hashSum(hash, docC14N)) != wantDigest {
		return dcperr.New(dcperr.KindMisc, "document digest does not match the signature")
	}

	siC14N, err := canonicalizeDetached(si)
	if err != nil {
		return err
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sigValue)
	if err != nil {
		return dcperr.Wrap(dcperr.KindXML, "bad signature encoding", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, hash, hashSum(hash, siC14N), sigBytes); err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "signature verification failed", err)
	}
	return nil
}

// ParseCertificateDER wraps a raw DER certificate.
func ParseCertificateDER(der []byte) (Certificate, error) {
	c, err := parseDER(der)
	if err != nil {
		return Certificate{}, dcperr.Wrap(dcperr.KindMisc, "cannot parse certificate", err)
	}
	return c, nil
}

func canonicalize(el *etree.Element) ([]byte, error) {
	out, err := dsig.MakeC14N10RecCanonicalizer().Canonicalize(el)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "canonicalization failed", err)
	}
	return out, nil
}

// canonicalizeDetached canonicalizes an element apart from its parent,
// pinning the dsig namespace so the bytes match the in-document form.
func canonicalizeDetached(el *etree.Element) ([]byte, error) {
	copyEl := el.Copy()
	if copyEl.SelectAttr("xmlns:dsig") == nil {
		copyEl.CreateAttr("xmlns:dsig", dsigNS)
	}
	return canonicalize(copyEl)
}

func hashSum(h crypto.Hash, data []byte) []byte {
	if h == crypto.SHA1 {
		sum := sha1.Sum(data)
		return sum[:]
	}
	sum := sha256.Sum256(data)
	return sum[:]
}

func childElementText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
