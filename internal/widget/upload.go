package widget

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
)

// Uploader turns staged files into attachments, one storage call per file,
// all running concurrently.
type Uploader struct {
	storage ObjectStorage
	log     *logging.Logger
	metrics *Metrics
	now     func() time.Time

	mu   sync.Mutex
	last int64
}

func NewUploader(storage ObjectStorage, log *logging.Logger, metrics *Metrics) *Uploader {
	if log == nil {
		log = logging.Nop()
	}
	return &Uploader{storage: storage, log: log, metrics: metrics, now: time.Now}
}

// UploadAll never fails as a batch. A file whose upload fails keeps its local
// preview reference and is returned with Durable=false. Output order matches files.
func (u *Uploader) UploadAll(ctx context.Context, conversationID string, files []LocalFile) []Attachment {
	out := make([]Attachment, len(files))
	var g errgroup.Group

	for i, f := range files {
		out[i] = Attachment{
			Name:      f.Name,
			URL:       f.PreviewURL,
			MimeType:  f.MimeType,
			SizeBytes: int64(len(f.Data)),
		}
		if u.storage == nil {
			u.metrics.upload("degraded")
			continue
		}

		dest := u.destination(conversationID, f.Name)
		g.Go(func() error {
			url, err := u.storage.Upload(ctx, dest, f)
			if err != nil || url == "" {
				u.log.Warn(ctx, "upload failed, keeping local reference",
					zap.String("path", dest), zap.Error(err))
				u.metrics.upload("degraded")
				return nil
			}
			out[i].URL = url
			out[i].Durable = true
			u.metrics.upload("ok")
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// destination namespaces by conversation and a strictly increasing timestamp.
func (u *Uploader) destination(conversationID, name string) string {
	u.mu.Lock()
	stamp := u.now().UnixNano()
	if stamp <= u.last {
		stamp = u.last + 1
	}
	u.last = stamp
	u.mu.Unlock()

	return fmt.Sprintf("%s/%d-%s", conversationID, stamp, cleanName(name))
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return strings.ReplaceAll(name, " ", "_")
}
