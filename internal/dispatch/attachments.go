package dispatch

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// ProcessAttachments reads and base64-encodes the given files, keeping only
// those that exist and fit under maxBytes. A missing, oversized or unreadable
// file is skipped with a logged reason; it never fails the send. The returned
// set is shared across all chunks of one bulk send.
func ProcessAttachments(paths []string, maxBytes int64) []domain.Attachment {
	var out []domain.Attachment

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			logger.Errorf("Attachment file not found: %s", path)
			continue
		}

		if info.Size() > maxBytes {
			logger.Errorf("Attachment too large (%.2fMB, max %.0fMB): %s",
				float64(info.Size())/(1024*1024), float64(maxBytes)/(1024*1024), path)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Errorf("Failed to read attachment %s: %v", path, err)
			continue
		}

		out = append(out, domain.Attachment{
			Name:    filepath.Base(path),
			Content: base64.StdEncoding.EncodeToString(data),
			Size:    info.Size(),
		})

		logger.Infof("Processed attachment: %s (%.1fKB)", filepath.Base(path), float64(info.Size())/1024)
	}

	return out
}
