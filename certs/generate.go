package certs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"cinekit.dev/dcp/dcperr"
)

// GenerateOptions configures chain generation. Zero values get the
// NOT_FOR_PRODUCTION defaults.
type GenerateOptions struct {
	Organization           string
	OrganizationalUnit     string
	RootCommonName         string
	IntermediateCommonName string
	LeafCommonName         string
	// OpenSSL is the binary to run, "openssl" by default.
	OpenSSL string
}

func (o *GenerateOptions) defaults() {
	if o.Organization == "" {
		o.Organization = "example.org"
	}
	if o.OrganizationalUnit == "" {
		o.OrganizationalUnit = "example.org"
	}
	if o.RootCommonName == "" {
		o.RootCommonName = ".smpte-430-2.ROOT.NOT_FOR_PRODUCTION"
	}
	if o.IntermediateCommonName == "" {
		o.IntermediateCommonName = ".smpte-430-2.INTERMEDIATE.NOT_FOR_PRODUCTION"
	}
	if o.LeafCommonName == "" {
		o.LeafCommonName = "CS.smpte-430-2.LEAF.NOT_FOR_PRODUCTION"
	}
	if o.OpenSSL == "" {
		o.OpenSSL = "openssl"
	}
}

// Generate builds a three-deep chain (root, intermediate, leaf) by
// shelling out to openssl, returning the chain with the leaf key
// attached. The scratch directory is always removed.
func Generate(opts GenerateOptions) (*Chain, error) {
	opts.defaults()

	dir, err := os.MkdirTemp("", "certchain")
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "cannot create scratch directory", err)
	}
	defer os.RemoveAll(dir)

	run := func(args ...string) error {
		cmd := exec.Command(opts.OpenSSL, args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			return dcperr.Wrap(dcperr.KindMisc,
				fmt.Sprintf("openssl %s failed: %s", args[0], strings.TrimSpace(string(out))), err)
		}
		return nil
	}

	writeCnf := func(name string, caTrue bool, pathlen int, leaf bool) error {
		var b strings.Builder
		b.WriteString("[ req ]\ndistinguished_name = req_distinguished_name\nx509_extensions = v3_ca\n[ v3_ca ]\n")
		if caTrue {
			fmt.Fprintf(&b, "basicConstraints = critical,CA:true,pathlen:%d\n", pathlen)
			b.WriteString("keyUsage = keyCertSign,cRLSign\n")
		} else {
			b.WriteString("basicConstraints = critical,CA:false\n")
			b.WriteString("keyUsage = digitalSignature,keyEncipherment\n")
			b.WriteString("extendedKeyUsage = emailProtection\n")
		}
		b.WriteString("subjectKeyIdentifier = hash\nauthorityKeyIdentifier = keyid:always,issuer:always\n[ req_distinguished_name ]\n")
		return os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o600)
	}

	dnq := func(keyFile string) (string, error) {
		pemData, err := os.ReadFile(filepath.Join(dir, keyFile))
		if err != nil {
			return "", dcperr.Wrap(dcperr.KindMisc, "cannot read generated key", err)
		}
		key, err := parseRSAKey(string(pemData))
		if err != nil {
			return "", err
		}
		d, err := PublicKeyDigest(&key.PublicKey)
		if err != nil {
			return "", err
		}
		// '/' separates subject fields on the openssl command line.
		return strings.ReplaceAll(d, "/", "\\/"), nil
	}

	subject := func(cn, q string) string {
		return fmt.Sprintf("/O=%s/OU=%s/CN=%s/dnQualifier=%s",
			opts.Organization, opts.OrganizationalUnit, cn, q)
	}

	// Root, serial 5, pathlen 3.
	if err := run("genrsa", "-out", "ca.key", "2048"); err != nil {
		return nil, err
	}
	if err := writeCnf("ca.cnf", true, 3, false); err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "cannot write openssl config", err)
	}
	q, err := dnq("ca.key")
	if err != nil {
		return nil, err
	}
	if err := run("req", "-new", "-x509", "-sha256", "-config", "ca.cnf",
		"-days", "3650", "-set_serial", "5",
		"-subj", subject(opts.RootCommonName, q),
		"-key", "ca.key", "-outform", "PEM", "-out", "ca.self-signed.pem"); err != nil {
		return nil, err
	}

	// Intermediate, serial 6, pathlen 2.
	if err := run("genrsa", "-out", "intermediate.key", "2048"); err != nil {
		return nil, err
	}
	if err := writeCnf("intermediate.cnf", true, 2, false); err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "cannot write openssl config", err)
	}
	q, err = dnq("intermediate.key")
	if err != nil {
		return nil, err
	}
	if err := run("req", "-new", "-config", "intermediate.cnf",
		"-days", "3649",
		"-subj", subject(opts.IntermediateCommonName, q),
		"-key", "intermediate.key", "-out", "intermediate.csr"); err != nil {
		return nil, err
	}
	if err := run("x509", "-req", "-sha256", "-days", "3649",
		"-CA", "ca.self-signed.pem", "-CAkey", "ca.key", "-set_serial", "6",
		"-in", "intermediate.csr", "-extfile", "intermediate.cnf", "-extensions", "v3_ca",
		"-out", "intermediate.signed.pem"); err != nil {
		return nil, err
	}

	// Leaf, serial 7, no CA.
	if err := run("genrsa", "-out", "leaf.key", "2048"); err != nil {
		return nil, err
	}
	if err := writeCnf("leaf.cnf", false, 0, true); err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "cannot write openssl config", err)
	}
	q, err = dnq("leaf.key")
	if err != nil {
		return nil, err
	}
	if err := run("req", "-new", "-config", "leaf.cnf",
		"-days", "3648",
		"-subj", subject(opts.LeafCommonName, q),
		"-key", "leaf.key", "-out", "leaf.csr"); err != nil {
		return nil, err
	}
	if err := run("x509", "-req", "-sha256", "-days", "3648",
		"-CA", "intermediate.signed.pem", "-CAkey", "intermediate.key", "-set_serial", "7",
		"-in", "leaf.csr", "-extfile", "leaf.cnf", "-extensions", "v3_ca",
		"-out", "leaf.signed.pem"); err != nil {
		return nil, err
	}

	ch := NewChain()
	for _, f := range []string{"ca.self-signed.pem", "intermediate.signed.pem", "leaf.signed.pem"} {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindMisc, "cannot read generated certificate", err)
		}
		c, err := ParseCertificate(data)
		if err != nil {
			return nil, err
		}
		ch.Add(c)
	}
	keyData, err := os.ReadFile(filepath.Join(dir, "leaf.key"))
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindMisc, "cannot read generated key", err)
	}
	ch.SetKey(string(keyData))
	return ch, nil
}
