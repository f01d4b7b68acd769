package updater

import (
	"path/filepath"

	"github.com/oshokin/release-updater/internal/lock"
)

const (
	stagingDirName = "update"
	logDirName     = "log"
	extractDirName = "extract"

	accessFileName    = ".htaccess"
	accessFileContent = "Order Deny,Allow\nDeny from all"

	logFileLayout = "2006-01-02_15-04-05"
	logFileExt    = ".txt"
)

// layout names every path a run touches under the install root.
type layout struct {
	root       string
	staging    string
	logDir     string
	extractDir string
	marker     string
	// archive is the downloaded artifact, and the kept release when clear is off.
	archive string
	// releaseRoot is the extracted release tree.
	releaseRoot string
}

func newLayout(root, repository string) layout {
	root = filepath.Clean(root)
	staging := filepath.Join(root, stagingDirName)
	extractDir := filepath.Join(staging, extractDirName)

	return layout{
		root:        root,
		staging:     staging,
		logDir:      filepath.Join(staging, logDirName),
		extractDir:  extractDir,
		marker:      filepath.Join(root, lock.DefaultMarkerName),
		archive:     filepath.Join(staging, repository+".zip"),
		releaseRoot: filepath.Join(extractDir, repository),
	}
}
