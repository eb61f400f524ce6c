package webgpu

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// TransferStats counts host<->device traffic and kernel launches.
// Counters are atomic; the struct embedded in the registry is written
// by dispatch and snapshotted for readers.
type TransferStats struct {
	UploadedBytes   uint64
	DownloadedBytes uint64
	Launches        uint64
}

func (s *TransferStats) addUpload(n int) {
	atomic.AddUint64(&s.UploadedBytes, uint64(n))
}

func (s *TransferStats) addDownload(n int) {
	atomic.AddUint64(&s.DownloadedBytes, uint64(n))
}

func (s *TransferStats) addLaunch() {
	atomic.AddUint64(&s.Launches, 1)
}

func (s *TransferStats) snapshot() TransferStats {
	return TransferStats{
		UploadedBytes:   atomic.LoadUint64(&s.UploadedBytes),
		DownloadedBytes: atomic.LoadUint64(&s.DownloadedBytes),
		Launches:        atomic.LoadUint64(&s.Launches),
	}
}

// String formats the counters for logs and the CLI probe.
func (s TransferStats) String() string {
	return fmt.Sprintf("uploaded %s, downloaded %s, %d launches",
		humanize.Bytes(s.UploadedBytes), humanize.Bytes(s.DownloadedBytes), s.Launches)
}
