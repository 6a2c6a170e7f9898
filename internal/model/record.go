package model

// ImageRecord is one retained file in the normalized corpus, uniquely
// identified by its canonical path. Records are created by the normalizer,
// enriched in place by the deduplicator (fingerprint fields only) and never
// deleted; exclusion happens in manifests, not on disk.
type ImageRecord struct {
	Source        string     `csv:"source" json:"source"`
	OriginalPath  string     `csv:"original_path" json:"original_path"`
	CanonicalPath string     `csv:"canonical_path" json:"canonical_path"`
	Class         ClassLabel `csv:"class" json:"class"`

	// Symptom is the matched unhealthy keyword, empty for healthy records.
	Symptom string `csv:"symptom,omitempty" json:"symptom,omitempty"`

	ByteSize int64 `csv:"byte_size" json:"byte_size"`

	// ContentHash is the hex SHA-256 of the file bytes, empty until the
	// dedup stage ran.
	ContentHash string `csv:"content_hash,omitempty" json:"content_hash,omitempty"`

	// PerceptualHash is the 16-digit hex dHash, empty until computed.
	// Exact duplicates of an already-hashed file skip perceptual hashing.
	PerceptualHash string `csv:"perceptual_hash,omitempty" json:"perceptual_hash,omitempty"`
}

// DuplicateGroupKind records which tier matched a group's members.
type DuplicateGroupKind string

const (
	GroupUnique DuplicateGroupKind = "unique"
	GroupExact  DuplicateGroupKind = "exact"
	GroupNear   DuplicateGroupKind = "near"
)

// DuplicateGroup is an equivalence class of records considered the same
// underlying photograph. Groups partition the corpus: every record belongs
// to exactly one group, singletons included.
type DuplicateGroup struct {
	ID   int                `json:"id"`
	Kind DuplicateGroupKind `json:"kind"`

	// Members holds canonical paths, sorted for reproducibility.
	Members []string `json:"members"`

	// Survivor is the canonical path of the retained member: largest byte
	// size, ties broken by lexicographically smallest canonical path.
	Survivor string `json:"survivor"`
}

// SplitAssignment maps one record to one split. All members of a duplicate
// group share the same split.
type SplitAssignment struct {
	CanonicalPath string     `csv:"canonical_path" json:"canonical_path"`
	Class         ClassLabel `csv:"class" json:"class"`
	GroupID       int        `csv:"group_id" json:"group_id"`
	Split         string     `csv:"split" json:"split"`
}
