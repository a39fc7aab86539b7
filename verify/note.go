// Package verify checks finished packages: file hashes against the
// packing list, picture and sound constraints, subtitle timing and
// layout, markers and metadata, with the stricter SMPTE Bv2.1
// application profile rules reported at their own severity.
package verify

import (
	"fmt"
	"path/filepath"
)

// Severity ranks a note. Bv21Error marks a violation of a "shall" in
// the Bv2.1 profile that plain SMPTE packages may ignore.
type Severity int

const (
	SeverityError Severity = iota
	SeverityBv21Error
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityBv21Error:
		return "bv2.1-error"
	default:
		return "warning"
	}
}

// Code names one kind of finding. The names answer "what is wrong?"
// with a negative adjective and a noun.
type Code string

const (
	FailedRead                           Code = "FAILED_READ"
	MismatchedCPLHashes                  Code = "MISMATCHED_CPL_HASHES"
	InvalidPictureFrameRate              Code = "INVALID_PICTURE_FRAME_RATE"
	IncorrectPictureHash                 Code = "INCORRECT_PICTURE_HASH"
	MismatchedPictureHashes              Code = "MISMATCHED_PICTURE_HASHES"
	IncorrectSoundHash                   Code = "INCORRECT_SOUND_HASH"
	MismatchedSoundHashes                Code = "MISMATCHED_SOUND_HASHES"
	EmptyAssetPath                       Code = "EMPTY_ASSET_PATH"
	MissingAsset                         Code = "MISSING_ASSET"
	MismatchedStandard                   Code = "MISMATCHED_STANDARD"
	InvalidXML                           Code = "INVALID_XML"
	MissingAssetMap                      Code = "MISSING_ASSETMAP"
	InvalidIntrinsicDuration             Code = "INVALID_INTRINSIC_DURATION"
	InvalidDuration                      Code = "INVALID_DURATION"
	InvalidPictureFrameSizeInBytes       Code = "INVALID_PICTURE_FRAME_SIZE_IN_BYTES"
	NearlyInvalidPictureFrameSizeInBytes Code = "NEARLY_INVALID_PICTURE_FRAME_SIZE_IN_BYTES"
	ExternalAsset                        Code = "EXTERNAL_ASSET"
	InvalidStandard                      Code = "INVALID_STANDARD"
	InvalidLanguage                      Code = "INVALID_LANGUAGE"
	InvalidPictureSizeInPixels           Code = "INVALID_PICTURE_SIZE_IN_PIXELS"
	InvalidPictureFrameRateFor2K         Code = "INVALID_PICTURE_FRAME_RATE_FOR_2K"
	InvalidPictureFrameRateFor4K         Code = "INVALID_PICTURE_FRAME_RATE_FOR_4K"
	InvalidPictureAssetResolutionFor3D   Code = "INVALID_PICTURE_ASSET_RESOLUTION_FOR_3D"
	InvalidClosedCaptionXMLSizeInBytes   Code = "INVALID_CLOSED_CAPTION_XML_SIZE_IN_BYTES"
	InvalidTimedTextSizeInBytes          Code = "INVALID_TIMED_TEXT_SIZE_IN_BYTES"
	InvalidTimedTextFontSizeInBytes      Code = "INVALID_TIMED_TEXT_FONT_SIZE_IN_BYTES"
	MissingSubtitleLanguage              Code = "MISSING_SUBTITLE_LANGUAGE"
	MismatchedSubtitleLanguages          Code = "MISMATCHED_SUBTITLE_LANGUAGES"
	MissingSubtitleStartTime             Code = "MISSING_SUBTITLE_START_TIME"
	InvalidSubtitleStartTime             Code = "INVALID_SUBTITLE_START_TIME"
	InvalidSubtitleFirstTextTime         Code = "INVALID_SUBTITLE_FIRST_TEXT_TIME"
	InvalidSubtitleDuration              Code = "INVALID_SUBTITLE_DURATION"
	InvalidSubtitleSpacing               Code = "INVALID_SUBTITLE_SPACING"
	InvalidSubtitleLineCount             Code = "INVALID_SUBTITLE_LINE_COUNT"
	NearlyInvalidSubtitleLineLength      Code = "NEARLY_INVALID_SUBTITLE_LINE_LENGTH"
	InvalidSubtitleLineLength            Code = "INVALID_SUBTITLE_LINE_LENGTH"
	InvalidClosedCaptionLineCount        Code = "INVALID_CLOSED_CAPTION_LINE_COUNT"
	InvalidClosedCaptionLineLength       Code = "INVALID_CLOSED_CAPTION_LINE_LENGTH"
	InvalidSoundFrameRate                Code = "INVALID_SOUND_FRAME_RATE"
	MissingCPLAnnotationText             Code = "MISSING_CPL_ANNOTATION_TEXT"
	MismatchedCPLAnnotationText          Code = "MISMATCHED_CPL_ANNOTATION_TEXT"
	MismatchedAssetDuration              Code = "MISMATCHED_ASSET_DURATION"
	MissingMainSubtitleFromSomeReels     Code = "MISSING_MAIN_SUBTITLE_FROM_SOME_REELS"
	MismatchedClosedCaptionAssetCounts   Code = "MISMATCHED_CLOSED_CAPTION_ASSET_COUNTS"
	MissingSubtitleEntryPoint            Code = "MISSING_SUBTITLE_ENTRY_POINT"
	IncorrectSubtitleEntryPoint          Code = "INCORRECT_SUBTITLE_ENTRY_POINT"
	MissingClosedCaptionEntryPoint       Code = "MISSING_CLOSED_CAPTION_ENTRY_POINT"
	IncorrectClosedCaptionEntryPoint     Code = "INCORRECT_CLOSED_CAPTION_ENTRY_POINT"
	MissingHash                          Code = "MISSING_HASH"
	MissingFFECInFeature                 Code = "MISSING_FFEC_IN_FEATURE"
	MissingFFMCInFeature                 Code = "MISSING_FFMC_IN_FEATURE"
	MissingFFOC                          Code = "MISSING_FFOC"
	MissingLFOC                          Code = "MISSING_LFOC"
	IncorrectFFOC                        Code = "INCORRECT_FFOC"
	IncorrectLFOC                        Code = "INCORRECT_LFOC"
	MissingCPLMetadata                   Code = "MISSING_CPL_METADATA"
	MissingCPLMetadataVersionNumber      Code = "MISSING_CPL_METADATA_VERSION_NUMBER"
	MissingExtensionMetadata             Code = "MISSING_EXTENSION_METADATA"
	InvalidExtensionMetadata             Code = "INVALID_EXTENSION_METADATA"
	UnsignedCPLWithEncryptedContent      Code = "UNSIGNED_CPL_WITH_ENCRYPTED_CONTENT"
	UnsignedPKLWithEncryptedContent      Code = "UNSIGNED_PKL_WITH_ENCRYPTED_CONTENT"
	MismatchedPKLAnnotationTextWithCPL   Code = "MISMATCHED_PKL_ANNOTATION_TEXT_WITH_CPL"
	PartiallyEncrypted                   Code = "PARTIALLY_ENCRYPTED"
)

// Note is one finding.
type Note struct {
	Severity Severity
	Code     Code
	// Detail carries extra information, often an ID or a value.
	Detail string
	// File is the file containing the problem, if applicable.
	File string
	// Line is the position within File, when known.
	Line int64
}

func (n Note) String() string {
	s := NoteString(n)
	if n.File != "" {
		s += " [" + n.File + "]"
	}
	return s
}

// NoteString renders a note as a sentence, incorporating its detail.
func NoteString(n Note) string {
	base := filepath.Base(n.File)
	switch n.Code {
	case FailedRead:
		return n.Detail
	case MismatchedCPLHashes:
		return fmt.Sprintf("The hash of the CPL %s in the PKL does not agree with the CPL file.", n.Detail)
	case InvalidPictureFrameRate:
		return fmt.Sprintf("The picture in a reel has an invalid frame rate %s.", n.Detail)
	case IncorrectPictureHash:
		return fmt.Sprintf("The hash of the picture asset %s does not agree with the PKL file.", base)
	case MismatchedPictureHashes:
		return fmt.Sprintf("The PKL and CPL hashes differ for the picture asset %s.", base)
	case IncorrectSoundHash:
		return fmt.Sprintf("The hash of the sound asset %s does not agree with the PKL file.", base)
	case MismatchedSoundHashes:
		return fmt.Sprintf("The PKL and CPL hashes differ for the sound asset %s.", base)
	case EmptyAssetPath:
		return "The asset map contains an empty asset path."
	case MissingAsset:
		return fmt.Sprintf("The file %s for an asset in the asset map cannot be found.", base)
	case MismatchedStandard:
		return "The DCP contains both SMPTE and Interop parts."
	case InvalidXML:
		return fmt.Sprintf("An XML file is badly formed: %s (%s:%d)", n.Detail, base, n.Line)
	case MissingAssetMap:
		return "No ASSETMAP or ASSETMAP.xml was found."
	case InvalidIntrinsicDuration:
		return fmt.Sprintf("The intrinsic duration of the asset %s is less than 1 second long.", n.Detail)
	case InvalidDuration:
		return fmt.Sprintf("The duration of the asset %s is less than 1 second long.", n.Detail)
	case InvalidPictureFrameSizeInBytes:
		return fmt.Sprintf("The instantaneous bit rate of the picture asset %s is larger than the limit of 250Mbit/s in at least one place.", base)
	case NearlyInvalidPictureFrameSizeInBytes:
		return fmt.Sprintf("The instantaneous bit rate of the picture asset %s is close to the limit of 250Mbit/s in at least one place.", base)
	case ExternalAsset:
		return fmt.Sprintf("The asset %s that this DCP refers to is not included in the DCP.  It may be a VF.", n.Detail)
	case InvalidStandard:
		return "This DCP does not use the SMPTE standard."
	case InvalidLanguage:
		return fmt.Sprintf("The DCP specifies a language '%s' which does not conform to the RFC 5646 standard.", n.Detail)
	case InvalidPictureSizeInPixels:
		return fmt.Sprintf("The size %s of picture asset %s is not allowed.", n.Detail, base)
	case InvalidPictureFrameRateFor2K:
		return fmt.Sprintf("The frame rate %s of picture asset %s is not allowed for 2K DCPs.", n.Detail, base)
	case InvalidPictureFrameRateFor4K:
		return fmt.Sprintf("The frame rate %s of picture asset %s is not allowed for 4K DCPs.", n.Detail, base)
	case InvalidPictureAssetResolutionFor3D:
		return "3D 4K DCPs are not allowed."
	case InvalidClosedCaptionXMLSizeInBytes:
		return fmt.Sprintf("The size %s of the closed caption asset %s is larger than the 256KB maximum.", n.Detail, base)
	case InvalidTimedTextSizeInBytes:
		return fmt.Sprintf("The size %s of the timed text asset %s is larger than the 115MB maximum.", n.Detail, base)
	case InvalidTimedTextFontSizeInBytes:
		return fmt.Sprintf("The size %s of the fonts in timed text asset %s is larger than the 10MB maximum.", n.Detail, base)
	case MissingSubtitleLanguage:
		return fmt.Sprintf("The XML for the SMPTE subtitle asset %s has no <Language> tag.", base)
	case MismatchedSubtitleLanguages:
		return "Some subtitle assets have different <Language> tags than others"
	case MissingSubtitleStartTime:
		return fmt.Sprintf("The XML for the SMPTE subtitle asset %s has no <StartTime> tag.", base)
	case InvalidSubtitleStartTime:
		return fmt.Sprintf("The XML for a SMPTE subtitle asset %s has a non-zero <StartTime> tag.", base)
	case InvalidSubtitleFirstTextTime:
		return "The first subtitle or closed caption is less than 4 seconds from the start of the DCP."
	case InvalidSubtitleDuration:
		return "At least one subtitle lasts less than 15 frames."
	case InvalidSubtitleSpacing:
		return "At least one pair of subtitles is separated by less than 2 frames."
	case InvalidSubtitleLineCount:
		return "There are more than 3 subtitle lines in at least one place in the DCP."
	case NearlyInvalidSubtitleLineLength:
		return "There are more than 52 characters in at least one subtitle line."
	case InvalidSubtitleLineLength:
		return "There are more than 79 characters in at least one subtitle line."
	case InvalidClosedCaptionLineCount:
		return "There are more than 3 closed caption lines in at least one place."
	case InvalidClosedCaptionLineLength:
		return "There are more than 32 characters in at least one closed caption line."
	case InvalidSoundFrameRate:
		return fmt.Sprintf("The sound asset %s has a sampling rate of %s", base, n.Detail)
	case MissingCPLAnnotationText:
		return fmt.Sprintf("The CPL %s has no <AnnotationText> tag.", n.Detail)
	case MismatchedCPLAnnotationText:
		return fmt.Sprintf("The CPL %s has an <AnnotationText> which differs from its <ContentTitleText>", n.Detail)
	case MismatchedAssetDuration:
		return "All assets in a reel do not have the same duration."
	case MissingMainSubtitleFromSomeReels:
		return "At least one reel contains a subtitle asset, but some reel(s) do not"
	case MismatchedClosedCaptionAssetCounts:
		return "At least one reel has closed captions, but reels have different numbers of closed caption assets."
	case MissingSubtitleEntryPoint:
		return fmt.Sprintf("The subtitle asset %s has no <EntryPoint> tag.", n.Detail)
	case IncorrectSubtitleEntryPoint:
		return fmt.Sprintf("The subtitle asset %s has an <EntryPoint> other than 0.", n.Detail)
	case MissingClosedCaptionEntryPoint:
		return fmt.Sprintf("The closed caption asset %s has no <EntryPoint> tag.", n.Detail)
	case IncorrectClosedCaptionEntryPoint:
		return fmt.Sprintf("The closed caption asset %s has an <EntryPoint> other than 0.", n.Detail)
	case MissingHash:
		return fmt.Sprintf("The asset %s has no <Hash> tag in the CPL.", n.Detail)
	case MissingFFECInFeature:
		return "The DCP is marked as a Feature but there is no FFEC (first frame of end credits) marker"
	case MissingFFMCInFeature:
		return "The DCP is marked as a Feature but there is no FFMC (first frame of moving credits) marker"
	case MissingFFOC:
		return "There should be a FFOC (first frame of content) marker"
	case MissingLFOC:
		return "There should be a LFOC (last frame of content) marker"
	case IncorrectFFOC:
		return fmt.Sprintf("The FFOC marker is %s instead of 1", n.Detail)
	case IncorrectLFOC:
		return fmt.Sprintf("The LFOC marker is %s instead of 1 less than the duration of the last reel.", n.Detail)
	case MissingCPLMetadata:
		return fmt.Sprintf("The CPL %s has no <CompositionMetadataAsset> tag.", n.Detail)
	case MissingCPLMetadataVersionNumber:
		return fmt.Sprintf("The CPL %s has no <VersionNumber> in its <CompositionMetadataAsset>.", n.Detail)
	case MissingExtensionMetadata:
		return fmt.Sprintf("The CPL %s has no <ExtensionMetadata> in its <CompositionMetadataAsset>.", n.Detail)
	case InvalidExtensionMetadata:
		return fmt.Sprintf("The CPL %s has a malformed <ExtensionMetadata> (%s).", base, n.Detail)
	case UnsignedCPLWithEncryptedContent:
		return fmt.Sprintf("The CPL %s, which has encrypted content, is not signed.", n.Detail)
	case UnsignedPKLWithEncryptedContent:
		return fmt.Sprintf("The PKL %s, which has encrypted content, is not signed.", n.Detail)
	case MismatchedPKLAnnotationTextWithCPL:
		return fmt.Sprintf("The PKL %s has only one CPL but its <AnnotationText> does not match the CPL's <ContentTitleText>", n.Detail)
	case PartiallyEncrypted:
		return "Some assets are encrypted but some are not"
	}
	return string(n.Code)
}
