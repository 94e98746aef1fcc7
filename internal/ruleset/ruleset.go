// Package ruleset contains the core entities of the content-blocking rule-set
// subsystem: rule-type identifiers, block-rule sources and resources, and the
// compile-error taxonomy shared by the registry, the compiler, and the
// filter-list lifecycle manager.
package ruleset

import (
	"fmt"

	"github.com/google/uuid"
)

// GeneralKind is the kind of a built-in general blocking category.
type GeneralKind string

// Built-in general blocking categories.
//
// NOTE:  DO NOT change the string values, since the durable rule-list store
// keys derived from them must remain stable across versions.
const (
	KindBlockAds      GeneralKind = "block-ads"
	KindBlockTrackers GeneralKind = "block-trackers"
	KindBlockCookies  GeneralKind = "block-cookies"
	KindBlockImages   GeneralKind = "block-images"
)

// GeneralKinds returns all built-in general blocking categories in their
// canonical application order.
func GeneralKinds() (kinds []GeneralKind) {
	return []GeneralKind{
		KindBlockAds,
		KindBlockTrackers,
		KindBlockCookies,
		KindBlockImages,
	}
}

// ID is the identifier of a blockable rule type.  It is either a built-in
// general category or an externally supplied filter list.  The zero value is
// not valid.  IDs are comparable and are used as map keys; identity is based
// solely on the encoded key returned by [ID.Key].
type ID struct {
	listUUID uuid.UUID
	kind     GeneralKind
	isList   bool
}

// NewGeneralID returns the ID of the built-in general category with the given
// kind.
func NewGeneralID(kind GeneralKind) (id ID) {
	return ID{
		kind: kind,
	}
}

// NewFilterListID returns the ID of an externally supplied filter list.
func NewFilterListID(u uuid.UUID) (id ID) {
	return ID{
		listUUID: u,
		isList:   true,
	}
}

// Key prefixes of the deterministic string encoding of an [ID].  The prefixes
// differ, so keys of the two ID families cannot collide.
const (
	keyPrefixGeneral    = "general-"
	keyPrefixFilterList = "filterlist-"
)

// Key returns the stable, collision-free string encoding of id.  It is used as
// the identifier within the durable rule-list store.
func (id ID) Key() (key string) {
	if id.isList {
		return keyPrefixFilterList + id.listUUID.String()
	}

	return keyPrefixGeneral + string(id.kind)
}

// type check
var _ fmt.Stringer = ID{}

// String implements the [fmt.Stringer] interface for ID.
func (id ID) String() (s string) {
	return id.Key()
}

// GeneralKind returns the built-in category kind of id.  ok is false if id
// identifies a filter list.
func (id ID) GeneralKind() (kind GeneralKind, ok bool) {
	if id.isList {
		return "", false
	}

	return id.kind, true
}

// FilterListUUID returns the filter-list UUID of id.  ok is false if id
// identifies a built-in general category.
func (id ID) FilterListUUID() (u uuid.UUID, ok bool) {
	if !id.isList {
		return uuid.UUID{}, false
	}

	return id.listUUID, true
}
