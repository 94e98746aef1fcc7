package ruleset

import "fmt"

// sourceKind is the origin kind of a block-rule resource.
type sourceKind uint8

// Origin kinds of block-rule resources.
const (
	sourceKindBundled sourceKind = iota
	sourceKindDownloaded
)

// SourceType describes where a block-rule resource came from, which in turn
// decides its invalidation policy.  Bundled resources ship with the
// application and are never versioned; downloaded resources carry an optional
// version string.  SourceType is comparable: two source types are equal only
// when both the kind and the version match exactly.
type SourceType struct {
	version string
	kind    sourceKind
}

// NewBundledSource returns the source type of a resource shipped with the
// application.
func NewBundledSource() (st SourceType) {
	return SourceType{
		kind: sourceKindBundled,
	}
}

// NewDownloadedSource returns the source type of a downloaded resource.
// version may be empty when the download carries no version information.
func NewDownloadedSource(version string) (st SourceType) {
	return SourceType{
		kind:    sourceKindDownloaded,
		version: version,
	}
}

// IsBundled is true when the resource shipped with the application.
func (st SourceType) IsBundled() (ok bool) {
	return st.kind == sourceKindBundled
}

// Version returns the version of a downloaded resource.  ok is false for
// bundled resources and for downloads without version information.
func (st SourceType) Version() (version string, ok bool) {
	return st.version, st.kind == sourceKindDownloaded && st.version != ""
}

// type check
var _ fmt.Stringer = SourceType{}

// String implements the [fmt.Stringer] interface for SourceType.
func (st SourceType) String() (s string) {
	if st.kind == sourceKindBundled {
		return "bundled"
	}

	if st.version == "" {
		return "downloaded"
	}

	return "downloaded/" + st.version
}

// Resource is a raw block-rule file together with its declared source type.
// Resource is comparable; two resources for the same [ID] count as the same
// compile input only when both fields match exactly, and this equality, not
// the identifier, governs whether a resource has already been compiled.
type Resource struct {
	// Path is the filesystem location of the raw rules file.
	Path string

	// Source is the declared origin of the file.
	Source SourceType
}
