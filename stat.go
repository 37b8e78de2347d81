package originfs

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/originfs/originfs/internal/pfs"
)

// Stat describes a single entry in the origin, combining the sandbox
// stat data with the detected MIME type.
type Stat struct {
	pfs.FileInfo
	Mimetype string
}

// The directory mimetype reported for directory entries, matching what
// file browsers conventionally expect.
const inodeDirectory = "inode/directory"

// The fallback mimetype when an entry cannot safely be sniffed, e.g.
// named pipes or entries that fail path resolution.
const octetStream = "application/octet-stream"

func (s *Stat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string `json:"name"`
		Created   string `json:"created"`
		Modified  string `json:"modified"`
		Mode      string `json:"mode"`
		ModeBits  string `json:"mode_bits"`
		Size      int64  `json:"size"`
		Directory bool   `json:"directory"`
		File      bool   `json:"file"`
		Symlink   bool   `json:"symlink"`
		Mime      string `json:"mime"`
	}{
		Name:     s.Name(),
		Created:  s.CTime().Format(time.RFC3339),
		Modified: s.ModTime().Format(time.RFC3339),
		Mode:     s.Mode().String(),
		// Masking with ModePerm strips everything except the
		// permission bits.
		ModeBits:  strconv.FormatUint(uint64(s.Mode()&pfs.ModePerm), 8),
		Size:      s.Size(),
		Directory: s.IsDir(),
		File:      !s.IsDir(),
		Symlink:   s.Mode()&pfs.ModeSymlink != 0,
		Mime:      s.Mimetype,
	})
}
