// dcpinfo dumps the contents of one or more packages: dialect,
// compositions, reels and packing lists. Given a KDM and the matching
// private key it also reports which content keys the message carries.
package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"cinekit.dev/dcp"
	"cinekit.dev/dcp/certs"
	"cinekit.dev/dcp/cpl"
	"cinekit.dev/dcp/kdm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("dcpinfo", flag.ContinueOnError)
	fs.SetOutput(errOut)
	kdmPath := fs.String("kdm", "", "KDM for the package's encrypted content")
	keyPath := fs.String("key", "", "PEM RSA private key matching the KDM recipient")
	fs.Usage = func() {
		fmt.Fprintln(errOut, "usage: dcpinfo [flags] <DCP directory> ...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	var message *kdm.DecryptedKDM
	if *kdmPath != "" {
		if *keyPath == "" {
			fmt.Fprintln(errOut, "--kdm needs --key to decrypt")
			return 2
		}
		enc, err := kdm.ReadFile(*kdmPath)
		if err != nil {
			fmt.Fprintf(errOut, "read KDM: %v\n", err)
			return 1
		}
		pemKey, err := os.ReadFile(*keyPath)
		if err != nil {
			fmt.Fprintf(errOut, "read key: %v\n", err)
			return 1
		}
		chain := certs.NewChain()
		chain.SetKey(string(pemKey))
		if message, err = enc.Decrypt(chain); err != nil {
			fmt.Fprintf(errOut, "decrypt KDM: %v\n", err)
			return 1
		}
	}

	status := 0
	for _, dir := range fs.Args() {
		if err := describe(out, dir, message); err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", dir, err)
			status = 1
		}
	}
	return status
}

func describe(out io.Writer, dir string, message *kdm.DecryptedKDM) error {
	d, err := dcp.New(dir)
	if err != nil {
		return err
	}
	var notes []dcp.ReadNote
	if err := d.Read(&notes); err != nil {
		return err
	}
	if message != nil {
		d.AddKDM(message)
	}

	fmt.Fprintf(out, "DCP: %s\n", dir)
	if s, ok := d.Standard(); ok {
		fmt.Fprintf(out, "  Standard: %s\n", s)
	}
	for _, n := range notes {
		fmt.Fprintf(out, "  Note: %s %s\n", n.Code, n.File)
	}

	for _, c := range d.CPLs() {
		fmt.Fprintf(out, "  CPL: %s\n", c.ID())
		fmt.Fprintf(out, "    Title: %s\n", c.ContentTitleText)
		fmt.Fprintf(out, "    Kind: %s\n", c.ContentKind)
		if c.Encrypted() {
			fmt.Fprintln(out, "    Encrypted: yes")
		}
		for i, r := range c.Reels {
			fmt.Fprintf(out, "    Reel %d\n", i+1)
			describeAsset(out, "Picture", pictureAsset(r))
			describeAsset(out, "Sound", soundRef(r))
			describeAsset(out, "Subtitle", subtitleRef(r))
			for _, cc := range r.ClosedCaptions {
				describeAsset(out, "Closed caption", &cc.ReelAsset)
			}
			if r.Atmos != nil {
				describeAsset(out, "Atmos", &r.Atmos.ReelAsset)
			}
		}
	}

	for _, pk := range d.PKLs() {
		fmt.Fprintf(out, "  PKL: %s\n", pk.ID())
		if pk.AnnotationText != "" {
			fmt.Fprintf(out, "    Annotation: %s\n", pk.AnnotationText)
		}
		fmt.Fprintf(out, "    Assets: %d\n", len(pk.Assets()))
	}

	if message != nil {
		applied := 0
		for _, c := range d.CPLs() {
			for _, key := range message.Keys {
				if key.CPLID == c.ID() {
					applied++
				}
			}
		}
		fmt.Fprintf(out, "  KDM keys for this DCP: %d\n", applied)
	}
	return nil
}

func pictureAsset(r *cpl.Reel) *cpl.ReelAsset {
	if r.Picture == nil {
		return nil
	}
	return &r.Picture.ReelAsset
}

func soundRef(r *cpl.Reel) *cpl.ReelAsset {
	if r.Sound == nil {
		return nil
	}
	return &r.Sound.ReelAsset
}

func subtitleRef(r *cpl.Reel) *cpl.ReelAsset {
	if r.Subtitle == nil {
		return nil
	}
	return &r.Subtitle.ReelAsset
}

func describeAsset(out io.Writer, label string, ra *cpl.ReelAsset) {
	if ra == nil {
		return
	}
	enc := ""
	if ra.Encrypted() {
		enc = " (encrypted)"
	}
	fmt.Fprintf(out, "      %s: %s, %d frames @ %s%s\n",
		label, ra.Ref.ID(), ra.ActualDuration(), ra.EditRate, enc)
}
