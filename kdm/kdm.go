// Package kdm consumes Key Delivery Messages: the RSA-wrapped content
// keys a distributor issues for an encrypted package. Only consumption
// is implemented; issuance belongs to mastering systems.
package kdm

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/certs"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
)

const etmNS = "http://www.smpte-ra.org/schemas/430-3/2006/ETM"

// cipherBlockLen is the plaintext length of one wrapped key block per
// SMPTE 430-1: structure ID (16), signer thumbprint (20), CPL ID (16),
// key type (4), key ID (16), two 25-byte validity timestamps and the
// 16-byte key itself.
const cipherBlockLen = 138

// interopBlockLen is the older block without the 4-byte key type.
const interopBlockLen = 134

// TypedKeyID pairs a key ID with its type (MDIK, MDAK, MDSK and so on)
// as listed in the message's public part.
type TypedKeyID struct {
	Type string
	ID   string
}

// EncryptedKDM is a parsed but still locked message.
type EncryptedKDM struct {
	ID               string
	AnnotationText   string
	ContentTitleText string
	CPLID            string
	IssueDate        string
	NotValidBefore   string
	NotValidAfter    string
	RecipientSubject string
	keyIDs           []TypedKeyID
	ciphertexts      [][]byte
}

// KeyIDs lists the key IDs the message grants, with their types.
func (k *EncryptedKDM) KeyIDs() []TypedKeyID { return k.keyIDs }

// Key is one unwrapped content key.
type Key struct {
	CPLID string
	ID    string
	Type  string
	Value []byte
}

// DecryptedKDM holds the unwrapped keys of a message.
type DecryptedKDM struct {
	AnnotationText   string
	ContentTitleText string
	CPLID            string
	Keys             []Key
}

// Parse reads a DCinemaSecurityMessage.
func Parse(data []byte) (*EncryptedKDM, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, dcperr.Wrap(dcperr.KindXML, "cannot parse KDM", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "DCinemaSecurityMessage" {
		return nil, dcperr.New(dcperr.KindXML, "document is not a DCinemaSecurityMessage")
	}
	if ns := root.SelectAttrValue("xmlns", ""); ns != etmNS {
		return nil, dcperr.New(dcperr.KindXML, "unrecognised security message namespace")
	}
	pub := root.SelectElement("AuthenticatedPublic")
	if pub == nil {
		return nil, dcperr.New(dcperr.KindXML, "KDM has no AuthenticatedPublic")
	}

	k := &EncryptedKDM{
		ID:             urnutil.TrimPrefix(childText(pub, "MessageId")),
		AnnotationText: childText(pub, "AnnotationText"),
		IssueDate:      childText(pub, "IssueDate"),
	}

	ext := descend(pub, "RequiredExtensions", "KDMRequiredExtensions")
	if ext == nil {
		return nil, dcperr.New(dcperr.KindXML, "KDM has no KDMRequiredExtensions")
	}
	k.CPLID = urnutil.TrimPrefix(childText(ext, "CompositionPlaylistId"))
	k.ContentTitleText = childText(ext, "ContentTitleText")
	k.NotValidBefore = childText(ext, "ContentKeysNotValidBefore")
	k.NotValidAfter = childText(ext, "ContentKeysNotValidAfter")
	if rec := ext.SelectElement("Recipient"); rec != nil {
		k.RecipientSubject = childText(rec, "X509SubjectName")
	}
	if list := ext.SelectElement("KeyIdList"); list != nil {
		for _, tk := range list.SelectElements("TypedKeyId") {
			k.keyIDs = append(k.keyIDs, TypedKeyID{
				Type: strings.TrimSpace(childText(tk, "KeyType")),
				ID:   urnutil.TrimPrefix(childText(tk, "KeyId")),
			})
		}
	}

	priv := root.SelectElement("AuthenticatedPrivate")
	if priv == nil {
		return nil, dcperr.New(dcperr.KindXML, "KDM has no AuthenticatedPrivate")
	}
	for _, ek := range priv.SelectElements("EncryptedKey") {
		cv := descend(ek, "CipherData", "CipherValue")
		if cv == nil {
			return nil, dcperr.New(dcperr.KindXML, "EncryptedKey has no CipherValue")
		}
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(cv.Text()), ""))
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad CipherValue encoding", err)
		}
		k.ciphertexts = append(k.ciphertexts, raw)
	}
	if len(k.ciphertexts) == 0 {
		return nil, dcperr.New(dcperr.KindXML, "KDM carries no encrypted keys")
	}
	return k, nil
}

// ReadFile parses the message at path.
func ReadFile(path string) (*EncryptedKDM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindRead, "cannot read KDM", err)
	}
	return Parse(data)
}

// Decrypt unwraps every key block with the chain's private key. The
// chain must be the recipient's, with its leaf key present.
func (k *EncryptedKDM) Decrypt(chain *certs.Chain) (*DecryptedKDM, error) {
	key, err := chain.RSAKey()
	if err != nil {
		return nil, err
	}
	out := &DecryptedKDM{
		AnnotationText:   k.AnnotationText,
		ContentTitleText: k.ContentTitleText,
		CPLID:            k.CPLID,
	}
	for i, ct := range k.ciphertexts {
		plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, ct, nil)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindMisc,
				fmt.Sprintf("cannot decrypt key block %d", i), err)
		}
		dk, err := parseKeyBlock(plain)
		if err != nil {
			return nil, err
		}
		if dk.Type == "" && i < len(k.keyIDs) {
			dk.Type = k.keyIDs[i].Type
		}
		out.Keys = append(out.Keys, dk)
	}
	return out, nil
}

// parseKeyBlock decodes one plaintext block; the 134-byte form has no
// key type field.
func parseKeyBlock(plain []byte) (Key, error) {
	var typ string
	var off int
	switch len(plain) {
	case cipherBlockLen:
		typ = string(plain[52:56])
		off = 56
	case interopBlockLen:
		off = 52
	default:
		return Key{}, dcperr.New(dcperr.KindMisc,
			fmt.Sprintf("decrypted key block has unexpected length %d", len(plain)))
	}
	return Key{
		CPLID: uuidString(plain[36:52]),
		Type:  typ,
		ID:    uuidString(plain[off : off+16]),
		Value: append([]byte(nil), plain[off+66:off+82]...),
	}, nil
}

func uuidString(b []byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func descend(e *etree.Element, tags ...string) *etree.Element {
	for _, tag := range tags {
		if e == nil {
			return nil
		}
		e = e.SelectElement(tag)
	}
	return e
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
