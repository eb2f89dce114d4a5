package constants

const (
	// DefaultPrompt is the fixed instruction sent with every page image.
	DefaultPrompt = "You are a powerful OCR and handwriting expert. Please respond with all the words on this page"

	// FailedPagePlaceholder replaces the text of a page whose OCR came back empty or failed softly.
	FailedPagePlaceholder = "[OCR failed or no text detected]"

	DefaultModel       = "gemini-2.5-pro"
	DefaultDPI         = 144 // 2x the 72 DPI PDF user space
	DefaultMaxImageDim = 2048
	DefaultJPEGQuality = 85
)
