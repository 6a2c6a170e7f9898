package model

// ArchiveFormat identifies how a source archive is unpacked.
type ArchiveFormat string

const (
	ArchiveZip   ArchiveFormat = "zip"
	ArchiveTarGz ArchiveFormat = "tar.gz"
)

// SourceDescriptor describes one integrated dataset source. Descriptors are
// loaded once from sources.yaml and never mutated afterwards.
type SourceDescriptor struct {
	// Name keys the staging subtree and prefixes canonical file names.
	Name string `yaml:"name"`

	// Origin is the archive URL. http(s) and ftp schemes are supported.
	Origin string `yaml:"origin"`

	// Format selects the unpacker. Inferred from the Origin suffix when empty.
	Format ArchiveFormat `yaml:"format"`

	// Checksum is the expected SHA-256 of the archive, hex encoded.
	// When empty the archive is revalidated via conditional GET instead.
	Checksum string `yaml:"checksum"`

	// ByteSize is the expected archive size; checked when Checksum is empty
	// and ByteSize is non-zero.
	ByteSize int64 `yaml:"byte_size"`

	// Adapter names the layout adapter that maps this source's on-disk
	// structure onto the taxonomy (plantvillage, plantdoc, diamos, megaplant).
	Adapter string `yaml:"adapter"`
}
