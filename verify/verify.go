package verify

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/beevik/etree"

	"cinekit.dev/dcp"
	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/cpl"
	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/pkl"
	"cinekit.dev/dcp/subtitle"
	"cinekit.dev/dcp/value"
)

// Options tunes a verification run.
type Options struct {
	// XSDDir holds the XML schemas. Empty skips schema validation.
	XSDDir string
	// Validator overrides the schema validator built from XSDDir.
	Validator Validator
}

// Verify checks the packages in dirs and returns everything it found.
// stage, when non-nil, is told what is being checked; progress, when
// non-nil, receives hashing progress and may return false to cancel,
// in which case the notes collected so far are returned.
func Verify(dirs []string, stage func(activity, path string), progress func(float64) bool, opts Options) []Note {
	v := &verifier{stage: stage, progress: progress, validator: opts.Validator}
	if v.validator == nil && opts.XSDDir != "" {
		v.validator = &XSDValidator{Dir: opts.XSDDir}
	}
	for _, dir := range dirs {
		v.verifyDir(dir)
		if v.cancelled {
			break
		}
	}
	return v.notes
}

type verifier struct {
	notes     []Note
	stage     func(string, string)
	progress  func(float64) bool
	validator Validator
	cancelled bool

	// Language of the first main subtitle asset seen, for spotting
	// packages that mix subtitle languages.
	subtitleLanguage      string
	subtitleLanguageSet   bool
	subtitleLanguageNoted bool
}

func (v *verifier) add(n Note) {
	v.notes = append(v.notes, n)
}

func (v *verifier) stagef(activity, path string) {
	if v.stage != nil {
		v.stage(activity, path)
	}
}

// hashProgress adapts the cancellable progress callback to the
// fire-and-forget form the hashers take. Cancellation is honoured
// between assets.
func (v *verifier) hashProgress() func(float64) {
	return func(f float64) {
		if v.progress != nil && !v.progress(f) {
			v.cancelled = true
		}
	}
}

func (v *verifier) validateFile(path string) {
	if v.validator == nil || path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	v.notes = append(v.notes, v.validator.Validate(data, path)...)
}

func (v *verifier) verifyDir(dir string) {
	v.stagef("Checking DCP", dir)
	if !hasAssetMap(dir) {
		v.add(Note{Severity: SeverityError, Code: MissingAssetMap, Detail: dir})
		return
	}
	d, err := dcp.New(dir)
	if err != nil {
		v.add(Note{Severity: SeverityError, Code: FailedRead, Detail: err.Error()})
		return
	}
	var rnotes []dcp.ReadNote
	if err := d.Read(&rnotes); err != nil {
		v.add(Note{Severity: SeverityError, Code: FailedRead, Detail: err.Error()})
		return
	}
	for _, n := range rnotes {
		v.add(convertReadNote(n))
	}

	if s, ok := d.Standard(); ok && s != value.SMPTE {
		v.add(Note{Severity: SeverityBv21Error, Code: InvalidStandard})
	}

	for _, c := range d.CPLs() {
		v.verifyCPL(d, c)
		if v.cancelled {
			return
		}
	}
	for _, pk := range d.PKLs() {
		v.verifyPKL(d, pk)
	}

	v.stagef("Checking ASSETMAP", d.AssetMapPath())
	v.validateFile(d.AssetMapPath())
}

// convertReadNote maps the loader's recoverable problems onto
// verification notes.
func convertReadNote(n dcp.ReadNote) Note {
	switch n.Code {
	case dcp.NoteEmptyAssetPath:
		return Note{Severity: SeverityWarning, Code: EmptyAssetPath}
	case dcp.NoteExternalAsset:
		// The loader records the unresolved identifier, not a file.
		return Note{Severity: SeverityWarning, Code: ExternalAsset, Detail: n.File}
	case dcp.NoteMismatchedStandard:
		return Note{Severity: SeverityError, Code: MismatchedStandard, File: n.File}
	}
	return Note{Severity: SeverityError, Code: Code(n.Code), File: n.File}
}

func (v *verifier) verifyCPL(d *dcp.DCP, c *cpl.CPL) {
	v.stagef("Checking CPL", c.File())
	v.validateFile(c.File())

	assets := c.ReelAssets()
	var anyEncrypted, allEncrypted bool
	allEncrypted = len(assets) > 0
	for _, ra := range assets {
		if ra.Encrypted() {
			anyEncrypted = true
		} else {
			allEncrypted = false
		}
	}
	if anyEncrypted && !allEncrypted {
		v.add(Note{Severity: SeverityBv21Error, Code: PartiallyEncrypted})
	}

	if c.Metadata != nil {
		for _, l := range c.Metadata.AdditionalSubtitleLanguages {
			v.checkLanguage(l)
		}
		if t := c.Metadata.ReleaseTerritory; t != "" && t != "001" && !value.ValidRegionSubtag(t) {
			v.add(Note{Severity: SeverityBv21Error, Code: InvalidLanguage, Detail: t})
		}
	}

	if c.Standard == value.SMPTE {
		if c.AnnotationText == "" {
			v.add(Note{Severity: SeverityBv21Error, Code: MissingCPLAnnotationText, Detail: c.ID()})
		} else if c.AnnotationText != c.ContentTitleText {
			v.add(Note{Severity: SeverityWarning, Code: MismatchedCPLAnnotationText, Detail: c.ID()})
		}
	}

	// The PKL records a hash of the CPL file itself.
	for _, pk := range d.PKLs() {
		want, ok := pk.HashOf(c.ID())
		if !ok || c.File() == "" {
			continue
		}
		got, err := c.Hash(v.hashProgress())
		if v.cancelled {
			return
		}
		if err == nil && got != want {
			v.add(Note{Severity: SeverityError, Code: MismatchedCPLHashes, Detail: c.ID(), File: c.File()})
		}
	}

	for _, r := range c.Reels {
		v.verifyReel(d, c, r)
		if v.cancelled {
			return
		}
	}

	if c.Standard == value.SMPTE {
		v.checkMarkers(c)

		var haveSub, haveNoSub bool
		fewestCC, mostCC := -1, 0
		for _, r := range c.Reels {
			if r.Subtitle != nil {
				haveSub = true
			} else {
				haveNoSub = true
			}
			n := len(r.ClosedCaptions)
			if fewestCC < 0 || n < fewestCC {
				fewestCC = n
			}
			if n > mostCC {
				mostCC = n
			}
		}
		if haveSub && haveNoSub {
			v.add(Note{Severity: SeverityBv21Error, Code: MissingMainSubtitleFromSomeReels})
		}
		if mostCC > 0 && fewestCC != mostCC {
			v.add(Note{Severity: SeverityBv21Error, Code: MismatchedClosedCaptionAssetCounts})
		}

		if c.Metadata == nil {
			v.add(Note{Severity: SeverityBv21Error, Code: MissingCPLMetadata, Detail: c.ID()})
		} else {
			if c.Metadata.VersionNumber() == 0 {
				v.add(Note{Severity: SeverityBv21Error, Code: MissingCPLMetadataVersionNumber, Detail: c.ID()})
			}
			v.checkExtensionMetadata(c)
		}

		v.checkTextTiming(c)
	}

	if c.Encrypted() && c.File() != "" {
		if root := readDocument(c.File()); root != nil && root.SelectElement("Signature") == nil {
			v.add(Note{
				Severity: SeverityBv21Error,
				Code:     UnsignedCPLWithEncryptedContent,
				Detail:   c.ID(),
				File:     c.File(),
			})
		}
	}
}

func (v *verifier) verifyReel(d *dcp.DCP, c *cpl.CPL, r *cpl.Reel) {
	for _, ra := range r.FileAssets() {
		er := ra.EditRate
		if er.Numerator > 0 {
			if ra.Duration != nil && *ra.Duration*int64(er.Denominator) < int64(er.Numerator) {
				v.add(Note{Severity: SeverityError, Code: InvalidDuration, Detail: ra.Ref.ID()})
			}
			if ra.IntrinsicDuration*int64(er.Denominator) < int64(er.Numerator) {
				v.add(Note{Severity: SeverityError, Code: InvalidIntrinsicDuration, Detail: ra.Ref.ID()})
			}
		}
		if c.Standard == value.SMPTE && ra.Hash == "" {
			v.add(Note{Severity: SeverityBv21Error, Code: MissingHash, Detail: ra.Ref.ID()})
		}
	}

	if c.Standard == value.SMPTE {
		assets := r.FileAssets()
		for i := 1; i < len(assets); i++ {
			if assets[i].ActualDuration() != assets[0].ActualDuration() {
				v.add(Note{Severity: SeverityBv21Error, Code: MismatchedAssetDuration})
				break
			}
		}
	}

	if r.Picture != nil {
		fr := r.Picture.FrameRate
		if fr.Denominator != 1 || !validFrameRate(fr.Numerator) {
			v.add(Note{Severity: SeverityError, Code: InvalidPictureFrameRate, Detail: fr.String()})
		}
		v.verifyPictureAsset(d, c, r.Picture)
		if v.cancelled {
			return
		}
	}
	if r.Sound != nil {
		v.verifySoundAsset(d, r.Sound)
		if v.cancelled {
			return
		}
	}
	if r.Subtitle != nil {
		if r.Subtitle.Language != "" {
			v.checkLanguage(r.Subtitle.Language)
		}
		v.checkEntryPoint(&r.Subtitle.ReelAsset, MissingSubtitleEntryPoint, IncorrectSubtitleEntryPoint)
		if c.Standard == value.SMPTE {
			v.verifyTimedTextAsset(&r.Subtitle.ReelAsset, true)
		}
	}
	for _, cc := range r.ClosedCaptions {
		if cc.Language != "" {
			v.checkLanguage(cc.Language)
		}
		v.checkEntryPoint(&cc.ReelAsset, MissingClosedCaptionEntryPoint, IncorrectClosedCaptionEntryPoint)
		if c.Standard == value.SMPTE {
			v.verifyTimedTextAsset(&cc.ReelAsset, false)
		}
	}
}

func validFrameRate(n int) bool {
	switch n {
	case 24, 25, 30, 48, 50, 60, 96:
		return true
	}
	return false
}

func (v *verifier) checkLanguage(tag string) {
	if _, err := value.ParseLanguageTag(tag); err != nil {
		v.add(Note{Severity: SeverityBv21Error, Code: InvalidLanguage, Detail: tag})
	}
}

func (v *verifier) checkEntryPoint(ra *cpl.ReelAsset, missing, incorrect Code) {
	if ra.EntryPoint == nil {
		v.add(Note{Severity: SeverityBv21Error, Code: missing, Detail: ra.Ref.ID()})
	} else if *ra.EntryPoint != 0 {
		v.add(Note{Severity: SeverityBv21Error, Code: incorrect, Detail: ra.Ref.ID()})
	}
}

// checkAssetHash compares the file against the PKL record and the
// CPL's copy of it.
func (v *verifier) checkAssetHash(d *dcp.DCP, ra *cpl.ReelAsset, a asset.Packable, incorrect, mismatched Code) {
	want, ok := pklHash(d, ra.Ref.ID())
	if !ok {
		return
	}
	if ra.Hash != "" && ra.Hash != want {
		v.add(Note{Severity: SeverityError, Code: mismatched, File: a.File()})
	}
	got, err := a.Hash(v.hashProgress())
	if err != nil || v.cancelled {
		return
	}
	if got != want {
		v.add(Note{Severity: SeverityError, Code: incorrect, File: a.File()})
	}
}

func pklHash(d *dcp.DCP, id string) (string, bool) {
	for _, pk := range d.PKLs() {
		if h, ok := pk.HashOf(id); ok {
			return h, true
		}
	}
	return "", false
}

func (v *verifier) verifyPictureAsset(d *dcp.DCP, c *cpl.CPL, rp *cpl.ReelPicture) {
	a, ok := rp.Ref.Asset()
	if !ok {
		return
	}
	var size value.Size
	var stereo bool
	switch p := a.(type) {
	case *asset.MonoPicture:
		size = p.PictureSize()
	case *asset.StereoPicture:
		size = p.PictureSize()
		stereo = true
	default:
		return
	}

	v.checkAssetHash(d, &rp.ReelAsset, a, IncorrectPictureHash, MismatchedPictureHashes)
	if v.cancelled {
		return
	}

	// The instantaneous rate limit is 250Mbit/s; per frame that is
	// 250e6 / (8 * frames per second) bytes.
	if rate := rp.EditRate.Float(); rate > 0 && a.File() != "" {
		if sizes, err := mxf.FrameSizes(mxf.Default, a.File()); err == nil {
			maxFrame := int64(math.Round(250 * 1000000 / (8 * rate)))
			risky := int64(math.Round(230 * 1000000 / (8 * rate)))
			var tooBig, nearly bool
			for _, s := range sizes {
				if s > maxFrame {
					tooBig = true
				} else if s > risky {
					nearly = true
				}
			}
			if tooBig {
				v.add(Note{Severity: SeverityError, Code: InvalidPictureFrameSizeInBytes, File: a.File()})
			} else if nearly {
				v.add(Note{Severity: SeverityWarning, Code: NearlyInvalidPictureFrameSizeInBytes, File: a.File()})
			}
		}
	}

	if c.Standard == value.SMPTE {
		fr := rp.FrameRate
		flat := fr.Denominator == 1
		switch size.String() {
		case "2048x858", "1998x1080":
			if !flat || (fr.Numerator != 24 && fr.Numerator != 25 && fr.Numerator != 48) {
				v.add(Note{Severity: SeverityBv21Error, Code: InvalidPictureFrameRateFor2K, Detail: fr.String(), File: a.File()})
			}
		case "4096x1716", "3996x2160":
			if !flat || fr.Numerator != 24 {
				v.add(Note{Severity: SeverityBv21Error, Code: InvalidPictureFrameRateFor4K, Detail: fr.String(), File: a.File()})
			}
			if stereo {
				v.add(Note{Severity: SeverityBv21Error, Code: InvalidPictureAssetResolutionFor3D, File: a.File()})
			}
		default:
			v.add(Note{Severity: SeverityBv21Error, Code: InvalidPictureSizeInPixels, Detail: size.String(), File: a.File()})
		}
	}
}

func (v *verifier) verifySoundAsset(d *dcp.DCP, rs *cpl.ReelSound) {
	if rs.Language != "" {
		v.checkLanguage(rs.Language)
	}
	a, ok := rs.Ref.Asset()
	if !ok {
		return
	}
	snd, ok := a.(*asset.Sound)
	if !ok {
		return
	}
	v.checkAssetHash(d, &rs.ReelAsset, a, IncorrectSoundHash, MismatchedSoundHashes)
	if v.cancelled {
		return
	}
	if rate := snd.SampleRate(); rate != 48000 {
		v.add(Note{Severity: SeverityBv21Error, Code: InvalidSoundFrameRate, Detail: strconv.Itoa(rate), File: snd.File()})
	}
}

func (v *verifier) verifyTimedTextAsset(ra *cpl.ReelAsset, mainSubtitle bool) {
	a, ok := ra.Ref.Asset()
	if !ok {
		return
	}
	sa, ok := a.(*subtitle.SMPTEAsset)
	if !ok {
		return
	}

	if sa.Language.IsZero() {
		v.add(Note{Severity: SeverityBv21Error, Code: MissingSubtitleLanguage, File: sa.File()})
	} else if mainSubtitle {
		lang := sa.Language.String()
		if !v.subtitleLanguageSet {
			v.subtitleLanguage = lang
			v.subtitleLanguageSet = true
		} else if v.subtitleLanguage != lang && !v.subtitleLanguageNoted {
			v.add(Note{Severity: SeverityBv21Error, Code: MismatchedSubtitleLanguages})
			v.subtitleLanguageNoted = true
		}
	}

	if sa.File() != "" {
		if fi, err := os.Stat(sa.File()); err == nil && fi.Size() > 115*1024*1024 {
			v.add(Note{
				Severity: SeverityBv21Error,
				Code:     InvalidTimedTextSizeInBytes,
				Detail:   strconv.FormatInt(fi.Size(), 10),
				File:     sa.File(),
			})
		}
	}
	var fonts int
	for _, n := range sa.FontSizes() {
		fonts += n
	}
	if fonts > 10*1024*1024 {
		v.add(Note{
			Severity: SeverityBv21Error,
			Code:     InvalidTimedTextFontSizeInBytes,
			Detail:   strconv.Itoa(fonts),
			File:     sa.File(),
		})
	}

	if sa.StartTime == nil {
		v.add(Note{Severity: SeverityBv21Error, Code: MissingSubtitleStartTime, File: sa.File()})
	} else if !sa.StartTime.IsZero() {
		v.add(Note{Severity: SeverityBv21Error, Code: InvalidSubtitleStartTime, File: sa.File()})
	}

	if !mainSubtitle {
		if doc, err := sa.Document(); err == nil && len(doc) > 256*1024 {
			v.add(Note{
				Severity: SeverityBv21Error,
				Code:     InvalidClosedCaptionXMLSizeInBytes,
				Detail:   strconv.Itoa(len(doc)),
				File:     sa.File(),
			})
		}
	}
}

// checkMarkers aggregates the marker tracks of all reels; the first
// occurrence of each label wins.
func (v *verifier) checkMarkers(c *cpl.CPL) {
	seen := map[value.Marker]int64{}
	for _, r := range c.Reels {
		if r.Markers == nil {
			continue
		}
		for m, off := range r.Markers.All() {
			if _, ok := seen[m]; !ok {
				seen[m] = off
			}
		}
	}

	if c.ContentKind == value.Feature {
		if _, ok := seen[value.MarkerFFEC]; !ok {
			v.add(Note{Severity: SeverityBv21Error, Code: MissingFFECInFeature})
		}
		if _, ok := seen[value.MarkerFFMC]; !ok {
			v.add(Note{Severity: SeverityBv21Error, Code: MissingFFMCInFeature})
		}
	}

	if off, ok := seen[value.MarkerFFOC]; !ok {
		v.add(Note{Severity: SeverityWarning, Code: MissingFFOC})
	} else if off != 1 {
		v.add(Note{Severity: SeverityWarning, Code: IncorrectFFOC, Detail: strconv.FormatInt(off, 10)})
	}

	var lastDuration int64
	if n := len(c.Reels); n > 0 {
		lastDuration = c.Reels[n-1].Duration()
	}
	if off, ok := seen[value.MarkerLFOC]; !ok {
		v.add(Note{Severity: SeverityWarning, Code: MissingLFOC})
	} else if off != lastDuration-1 {
		v.add(Note{Severity: SeverityWarning, Code: IncorrectLFOC, Detail: strconv.FormatInt(off, 10)})
	}
}

// checkExtensionMetadata walks the written document rather than the
// parsed model; the check is about what is literally in the file.
func (v *verifier) checkExtensionMetadata(c *cpl.CPL) {
	root := readDocument(c.File())
	if root == nil {
		return
	}
	var list *etree.Element
	if rl := root.SelectElement("ReelList"); rl != nil {
		if reel := rl.SelectElement("Reel"); reel != nil {
			if al := reel.SelectElement("AssetList"); al != nil {
				if cm := al.SelectElement("CompositionMetadataAsset"); cm != nil {
					list = cm.SelectElement("ExtensionMetadataList")
				}
			}
		}
	}
	if list == nil {
		v.add(Note{Severity: SeverityBv21Error, Code: MissingExtensionMetadata, Detail: c.ID(), File: c.File()})
		return
	}

	const appScope = "http://isdcf.com/ns/cplmd/app"
	var found bool
	var malformed string
	for _, xm := range list.SelectElements("ExtensionMetadata") {
		if xm.SelectAttrValue("scope", "") != appScope {
			continue
		}
		found = true
		if elementText(xm, "Name") != "Application" {
			malformed = "<Name> should be 'Application'"
		}
		pl := xm.SelectElement("PropertyList")
		if pl == nil {
			malformed = "missing <PropertyList>"
			continue
		}
		for _, p := range pl.SelectElements("Property") {
			if elementText(p, "Name") != "DCP Constraints Profile" {
				malformed = "<Name> property should be 'DCP Constraints Profile'"
			}
			if elementText(p, "Value") != cpl.Bv21Profile {
				malformed = "<Value> property should be '" + cpl.Bv21Profile + "'"
			}
		}
	}
	if !found {
		v.add(Note{Severity: SeverityBv21Error, Code: MissingExtensionMetadata, Detail: c.ID(), File: c.File()})
	} else if malformed != "" {
		v.add(Note{Severity: SeverityBv21Error, Code: InvalidExtensionMetadata, Detail: malformed, File: c.File()})
	}
}

func (v *verifier) verifyPKL(d *dcp.DCP, pk *pkl.PKL) {
	v.stagef("Checking PKL", pk.File())
	v.validateFile(pk.File())

	// A PKL holding a single CPL should carry that CPL's title as its
	// annotation.
	var matched []*cpl.CPL
	for _, c := range d.CPLs() {
		if _, ok := pk.HashOf(c.ID()); ok {
			matched = append(matched, c)
		}
	}
	if len(matched) == 1 && pk.AnnotationText != matched[0].ContentTitleText {
		v.add(Note{
			Severity: SeverityBv21Error,
			Code:     MismatchedPKLAnnotationTextWithCPL,
			Detail:   pk.ID(),
			File:     pk.File(),
		})
	}

	if pklHasEncryptedAssets(d, pk) && pk.File() != "" {
		if root := readDocument(pk.File()); root != nil && root.SelectElement("Signature") == nil {
			v.add(Note{
				Severity: SeverityBv21Error,
				Code:     UnsignedPKLWithEncryptedContent,
				Detail:   pk.ID(),
				File:     pk.File(),
			})
		}
	}
}

func pklHasEncryptedAssets(d *dcp.DCP, pk *pkl.PKL) bool {
	for _, c := range d.CPLs() {
		for _, ra := range c.ReelAssets() {
			if ra.Encrypted() {
				if _, ok := pk.HashOf(ra.Ref.ID()); ok {
					return true
				}
			}
		}
	}
	return false
}

func hasAssetMap(dir string) bool {
	for _, name := range []string{"ASSETMAP", "ASSETMAP.xml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func readDocument(path string) *etree.Element {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil
	}
	return doc.Root()
}

func elementText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}

// Timed text plausibility thresholds.
const (
	subtitleWarnLineLength  = 52
	subtitleErrorLineLength = 79
	ccLineLength            = 32
)

// checkTextTiming walks the main subtitle track and every closed
// caption channel across reels, checking spacing, duration and the
// line layout at every instant.
func (v *verifier) checkTextTiming(c *cpl.CPL) {
	rate := 24
	for _, r := range c.Reels {
		if r.Picture != nil {
			if n := r.Picture.FrameRate.Numerator; n > 0 {
				rate = n
			}
			break
		}
	}

	v.checkTextStream(c, rate, false, func(r *cpl.Reel) *cpl.ReelAsset {
		if r.Subtitle != nil {
			return &r.Subtitle.ReelAsset
		}
		return nil
	})

	channels := 0
	for _, r := range c.Reels {
		if len(r.ClosedCaptions) > channels {
			channels = len(r.ClosedCaptions)
		}
	}
	for i := 0; i < channels; i++ {
		i := i
		v.checkTextStream(c, rate, true, func(r *cpl.Reel) *cpl.ReelAsset {
			if i < len(r.ClosedCaptions) {
				return &r.ClosedCaptions[i].ReelAsset
			}
			return nil
		})
	}
}

func (v *verifier) checkTextStream(c *cpl.CPL, rate int, closedCaption bool, pick func(*cpl.Reel) *cpl.ReelAsset) {
	var (
		reelOffset int64
		lastOut    int64
		haveLast   bool

		tooEarly, tooShort, tooClose bool
		lineCount, nearlyLong, long  bool
	)
	for ri, r := range c.Reels {
		ra := pick(r)
		if ra == nil {
			reelOffset += r.Duration()
			continue
		}
		if a, ok := ra.Ref.Asset(); ok {
			if sa, ok := a.(*subtitle.SMPTEAsset); ok {
				for _, t := range distinctTimings(sa.Items) {
					in := t.In.AsEditableUnits(rate)
					out := t.Out.AsEditableUnits(rate)
					if ri == 0 && in < int64(4*rate) {
						tooEarly = true
					}
					if t.Out.Sub(t.In).AsEditableUnits(rate) < 15 {
						tooShort = true
					}
					start := reelOffset + in
					if haveLast {
						if gap := start - lastOut; gap >= 0 && gap < 2 {
							tooClose = true
						}
					}
					lastOut = reelOffset + out
					haveLast = true
				}

				warnLen, errLen := subtitleWarnLineLength, subtitleErrorLineLength
				if closedCaption {
					warnLen, errLen = ccLineLength, ccLineLength
				}
				count, nearly, over := checkLineUsage(sa.Items, rate, warnLen, errLen)
				lineCount = lineCount || count
				nearlyLong = nearlyLong || nearly
				long = long || over
			}
		}
		reelOffset += ra.ActualDuration()
	}

	if tooEarly {
		v.add(Note{Severity: SeverityWarning, Code: InvalidSubtitleFirstTextTime})
	}
	if tooShort {
		v.add(Note{Severity: SeverityWarning, Code: InvalidSubtitleDuration})
	}
	if tooClose {
		v.add(Note{Severity: SeverityWarning, Code: InvalidSubtitleSpacing})
	}
	if closedCaption {
		if lineCount {
			v.add(Note{Severity: SeverityBv21Error, Code: InvalidClosedCaptionLineCount})
		}
		if long {
			v.add(Note{Severity: SeverityBv21Error, Code: InvalidClosedCaptionLineLength})
		}
	} else {
		if lineCount {
			v.add(Note{Severity: SeverityWarning, Code: InvalidSubtitleLineCount})
		}
		if nearlyLong && !long {
			v.add(Note{Severity: SeverityWarning, Code: NearlyInvalidSubtitleLineLength})
		}
		if long {
			v.add(Note{Severity: SeverityWarning, Code: InvalidSubtitleLineLength})
		}
	}
}

// distinctTimings collapses the styled runs of each subtitle spot into
// one schedule entry.
func distinctTimings(items []subtitle.Item) []subtitle.Timing {
	var out []subtitle.Timing
	seen := map[subtitle.Timing]bool{}
	for _, it := range items {
		var t subtitle.Timing
		switch x := it.(type) {
		case subtitle.String:
			t = x.Timing
		case subtitle.Image:
			t = x.Timing
		default:
			continue
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type textEvent struct {
	tick  int64
	pos   int
	chars int
	stop  bool
}

// checkLineUsage simulates display over time: each text run turns on
// at its In and off at its Out, keyed by vertical position. After each
// start event the live lines are counted and measured.
func checkLineUsage(items []subtitle.Item, rate, warnLen, errLen int) (countExceeded, nearly, over bool) {
	var events []textEvent
	for _, it := range items {
		s, ok := it.(subtitle.String)
		if !ok {
			continue
		}
		pos := linePosition(s.Placement)
		chars := len([]rune(s.Text))
		events = append(events,
			textEvent{tick: s.In.AsEditableUnits(rate), pos: pos, chars: chars},
			textEvent{tick: s.Out.AsEditableUnits(rate), pos: pos, chars: chars, stop: true})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].stop && !events[j].stop
	})

	current := map[int]int{}
	for _, e := range events {
		if e.stop {
			current[e.pos] -= e.chars
			if current[e.pos] <= 0 {
				delete(current, e.pos)
			}
			continue
		}
		current[e.pos] += e.chars
		if len(current) > 3 {
			countExceeded = true
		}
		for _, chars := range current {
			if chars > warnLen {
				nearly = true
			}
			if chars > errLen {
				over = true
			}
		}
	}
	return countExceeded, nearly, over
}

// linePosition quantises a placement to a percentage from the top of
// screen, so runs at the same height share a line. VPosition is a
// fraction offset from the anchor edge.
func linePosition(p subtitle.Placement) int {
	switch p.VAlign {
	case value.VTop:
		return int(math.Round(p.VPosition * 100))
	case value.VCenter:
		return int(math.Round((0.5 + p.VPosition) * 100))
	default:
		return int(math.Round((1 - p.VPosition) * 100))
	}
}
