package index

// IndexedFile is one row of the local index: a file or folder known to
// exist on the remote, plus its local sync status.
type IndexedFile struct {
	Path        string
	Name        string
	ParentPath  string
	Size        int64
	ModTime     string
	IsDirectory bool
	IsSynced    bool
	LocalPath   string
	Extension   string
	// Relevance is populated by search queries only and never stored.
	Relevance float64
}

// Filters narrows SearchWithFilters. Zero values mean "no restriction".
type Filters struct {
	Query      string
	Extensions []string
	PathPrefix string
	SyncedOnly bool
	CloudOnly  bool
	Limit      int
}

// Stats is a snapshot of index size and ingestion state.
type Stats struct {
	TotalFiles       int64
	TotalFolders     int64
	TotalSize        int64
	SyncedFiles      int64
	LastFullIndex    string
	LastPartialIndex string
	IsIndexing       bool
	ProgressPercent  int
	Status           string
}
