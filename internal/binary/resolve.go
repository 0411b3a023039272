package binary

// Checksum is a content hash; the empty string means "absent" (no local
// copy, or the record has never been uploaded).
type Checksum string

// Action is what a three-way sync decision calls for.
type Action string

const (
	ActionNoop     Action = "noop"
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
	ActionSkip     Action = "skip"

	// ActionUploadThenDownload is the conflict resolver's "download…"
	// choice: the local copy is uploaded first as an audit
	// trace, then the server copy is downloaded over it.
	ActionUploadThenDownload Action = "upload-then-download"
)

// ConflictResolver decides between uploading the local copy or taking the
// server's when both have diverged from the last synced checksum. It
// returns ActionUpload or ActionUploadThenDownload; any other value is
// treated as ActionUploadThenDownload (prefer not to silently drop either
// side's data).
type ConflictResolver func(lc, sc, fc Checksum) Action

// Resolve implements the three-way sync decision table: lc is the local
// checksum, sc the server's, fc the checksum as of the last successful
// sync.
func Resolve(lc, sc, fc Checksum, resolver ConflictResolver) Action {
	switch {
	case lc == "" && sc == "":
		return ActionSkip
	case lc == sc:
		return ActionNoop
	case lc == "" && sc != "":
		return ActionDownload
	case lc != "" && sc == "":
		return ActionUpload
	case sc == fc && lc != fc:
		return ActionUpload
	case lc == fc && sc != fc:
		return ActionDownload
	default:
		// lc != fc && sc != fc: both sides moved since the last sync.
		if resolver == nil {
			return ActionUploadThenDownload
		}
		action := resolver(lc, sc, fc)
		if action == ActionUpload {
			return ActionUpload
		}
		return ActionUploadThenDownload
	}
}
