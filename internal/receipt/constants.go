package receipt

// Defaults for receipt scanning.
const (
	// DefaultModelName is the Gemini model used for receipt extraction.
	DefaultModelName = "gemini-2.5-flash"

	// MaxImageBytes is the largest receipt image accepted for scanning.
	MaxImageBytes = 5 << 20 // 5 MiB

	// DefaultDescription is substituted when the model returns no usable
	// description for a receipt.
	DefaultDescription = "Receipt Transaction"

	// dateLayout is the only date format the model is asked to produce.
	dateLayout = "2006-01-02"
)
