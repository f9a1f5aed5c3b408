package archive

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/model"
)

// Publisher uploads the files of one run under <prefix>/<date>/.
type Publisher struct {
	storage ObjectStorage
	prefix  string
	log     *zap.Logger
}

// NewPublisher returns a Publisher writing to storage under prefix.
func NewPublisher(storage ObjectStorage, prefix string) *Publisher {
	return &Publisher{
		storage: storage,
		prefix:  prefix,
		log:     zap.L().With(zap.String("component", "archive")),
	}
}

// ObjectPath returns the object path of a local file for date.
func (p *Publisher) ObjectPath(date time.Time, localPath string) string {
	return path.Join(p.prefix, model.FormatDate(date), filepath.Base(localPath))
}

// Publish uploads each file and returns the object paths written. Empty
// paths are skipped. The first failure stops the upload.
func (p *Publisher) Publish(ctx context.Context, date time.Time, files ...string) ([]string, error) {
	var written []string
	for _, f := range files {
		if f == "" {
			continue
		}
		obj := p.ObjectPath(date, f)
		if err := p.storage.Upload(ctx, f, obj); err != nil {
			return written, eris.Wrapf(err, "archive: publish %s", filepath.Base(f))
		}
		written = append(written, obj)
	}
	p.log.Info("published run files",
		zap.String("date", model.FormatDate(date)),
		zap.Strings("objects", written),
	)
	return written, nil
}
